package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/martijn/sitecalm/internal/api/dto"
	"github.com/martijn/sitecalm/internal/api/util"
	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/core/repository"
	"github.com/martijn/sitecalm/internal/core/service"
)

var processListSchema = util.ListSchema{
	Filterable: []string{"id", "command", "command_id", "pid", "status", "return_code", "start_time", "end_time", "type"},
	Sortable:   []string{"id", "start_time", "end_time", "status"},
}

type ProcessHandler struct {
	processService *service.ProcessService
}

func NewProcessHandler(processService *service.ProcessService) *ProcessHandler {
	return &ProcessHandler{
		processService: processService,
	}
}

// ListProcesses handles GET /api/admin/processes
func (h *ProcessHandler) ListProcesses(c *gin.Context) {
	listFilter, err := processListSchema.Parse(c.Query("query"), c.Query("order"), c.Query("page"), c.Query("per_page"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	filter := repository.ProcessFilter{ListFilter: listFilter}

	processes, err := h.processService.ListProcesses(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	count, err := h.processService.CountProcesses(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	response := dto.ProcessListResponse{
		Items: make([]dto.ProcessResponse, len(processes)),
		Pagination: dto.PaginationInfo{
			Total:      count,
			Page:       listFilter.Page,
			PerPage:    listFilter.PerPage,
			TotalPages: listFilter.TotalPages(count),
		},
	}

	for i, process := range processes {
		response.Items[i] = toProcessResponse(process)
	}

	c.JSON(http.StatusOK, response)
}

// ListRunSteps handles GET /api/admin/runs/:run_id/steps
func (h *ProcessHandler) ListRunSteps(c *gin.Context) {
	runID := c.Param("run_id")

	processes, err := h.processService.GetProcessesByCommandID(c.Request.Context(), runID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if len(processes) == 0 {
		respondError(c, http.StatusNotFound, fmt.Sprintf("No steps recorded for run: %s", runID))
		return
	}

	items := make([]dto.ProcessResponse, len(processes))
	for i, process := range processes {
		items[i] = toProcessResponse(process)
	}
	c.JSON(http.StatusOK, dto.ProcessListResponse{
		Items: items,
		Pagination: dto.PaginationInfo{
			Total:      len(items),
			Page:       1,
			PerPage:    len(items),
			TotalPages: 1,
		},
	})
}

// GetProcess handles GET /api/admin/processes/:id
func (h *ProcessHandler) GetProcess(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid process ID")
		return
	}

	process, err := h.processService.GetProcess(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusNotFound, fmt.Sprintf("Process not found: %d", id))
		return
	}

	c.JSON(http.StatusOK, toProcessResponse(process))
}

func toProcessResponse(process *domain.Process) dto.ProcessResponse {
	response := dto.ProcessResponse{
		ID:         process.ID,
		CommandID:  process.CommandID,
		Command:    process.Command,
		PID:        process.PID,
		Status:     string(process.Status),
		Output:     process.Output,
		Error:      process.Error,
		ReturnCode: process.ReturnCode,
		StartTime:  process.StartTime,
		EndTime:    process.EndTime,
		Type:       string(process.Type),
		Args:       process.Args,
	}

	link := fmt.Sprintf("/api/admin/runs/%s/steps", process.CommandID)
	response.Link = &link

	if process.Args != nil {
		if filename, ok := process.Args["filename"].(string); ok {
			response.ResourceID = &filename
		}
	}

	return response
}
