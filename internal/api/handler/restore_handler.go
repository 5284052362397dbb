package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/martijn/sitecalm/internal/api/dto"
	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/core/service"
)

var restoreMessages = map[domain.RestoreMode]struct {
	done   string
	failed string
}{
	domain.RestoreModeFull:     {"Full backup restored successfully", "Restore failed"},
	domain.RestoreModeFiles:    {"Code restored successfully (database preserved)", "Code restore failed"},
	domain.RestoreModeDatabase: {"Database restored successfully (code preserved)", "Database restore failed"},
}

type RestoreHandler struct {
	restoreService *service.RestoreService
	jobService     *service.RestoreJobService
}

func NewRestoreHandler(restoreService *service.RestoreService, jobService *service.RestoreJobService) *RestoreHandler {
	return &RestoreHandler{
		restoreService: restoreService,
		jobService:     jobService,
	}
}

// RestoreFull handles POST /api/admin/backups/:filename/restore
func (h *RestoreHandler) RestoreFull(c *gin.Context) {
	h.restore(c, domain.RestoreModeFull)
}

// RestoreCode handles POST /api/admin/backups/:filename/restore-code
func (h *RestoreHandler) RestoreCode(c *gin.Context) {
	h.restore(c, domain.RestoreModeFiles)
}

// RestoreDatabase handles POST /api/admin/backups/:filename/restore-database
func (h *RestoreHandler) RestoreDatabase(c *gin.Context) {
	h.restore(c, domain.RestoreModeDatabase)
}

func (h *RestoreHandler) restore(c *gin.Context, mode domain.RestoreMode) {
	summary, err := h.restoreService.Restore(c.Request.Context(), domain.RestoreRequest{
		Filename: c.Param("filename"),
		Mode:     mode,
	})

	response := toRestoreResponse(summary)
	messages := restoreMessages[mode]

	if err != nil {
		response.Success = false
		switch {
		case errors.Is(err, service.ErrArchiveNotFound):
			response.Message = "Backup file not found"
		default:
			response.Message = messages.failed + ": " + err.Error()
		}
		c.JSON(statusFor(err), response)
		return
	}

	response.Success = true
	response.Message = messages.done
	c.JSON(http.StatusOK, response)
}

// RestoreAsync handles POST /api/admin/backups/:filename/restore-async?mode=
func (h *RestoreHandler) RestoreAsync(c *gin.Context) {
	mode, err := domain.ParseRestoreMode(c.Query("mode"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobService.Start(c.Request.Context(), domain.RestoreRequest{
		Filename: c.Param("filename"),
		Mode:     mode,
	})
	if err != nil {
		code := statusFor(err)
		if code == http.StatusNotFound {
			respondError(c, code, "Backup file not found")
			return
		}
		respondError(c, code, "Failed to start restore: "+err.Error())
		return
	}

	c.JSON(http.StatusAccepted, dto.AsyncRestoreResponse{
		Success:   true,
		Message:   "Restore started",
		JobID:     job.ID,
		Status:    string(job.Status),
		StatusURL: "/api/admin/restore-jobs/" + job.ID,
	})
}

// GetRestoreJob handles GET /api/admin/restore-jobs/:jobId
func (h *RestoreHandler) GetRestoreJob(c *gin.Context) {
	job, err := h.jobService.Get(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		code := statusFor(err)
		if code == http.StatusNotFound {
			respondError(c, code, "Restore job not found")
			return
		}
		respondError(c, code, err.Error())
		return
	}

	c.JSON(http.StatusOK, toRestoreJobResponse(job))
}

func toStepResponses(steps []domain.StepResult) []dto.StepResponse {
	out := make([]dto.StepResponse, len(steps))
	for i, step := range steps {
		out[i] = dto.StepResponse{
			Step:        step.Step,
			Status:      string(step.Status),
			Code:        step.Code,
			DurationSec: step.DurationSec,
		}
	}
	return out
}

func toRestoreResponse(summary *domain.RestoreSummary) dto.RestoreResponse {
	if summary == nil {
		return dto.RestoreResponse{PostRestore: []dto.StepResponse{}}
	}
	return dto.RestoreResponse{
		RunID:              summary.RunID,
		PreRestoreSnapshot: summary.PreRestoreSnapshot,
		Warnings:           summary.Warnings,
		PostRestore:        toStepResponses(summary.Steps),
	}
}

func toRestoreJobResponse(job *domain.RestoreJob) dto.RestoreJobResponse {
	response := dto.RestoreJobResponse{
		Success:     true,
		JobID:       job.ID,
		Filename:    job.Filename,
		Mode:        string(job.Mode),
		Status:      string(job.Status),
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		FinishedAt:  job.FinishedAt,
		PostRestore: []dto.StepResponse{},
	}
	if job.Summary != nil {
		response.Warnings = job.Summary.Warnings
		response.PostRestore = toStepResponses(job.Summary.Steps)
	}
	return response
}
