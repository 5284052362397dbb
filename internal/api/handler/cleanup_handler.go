package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/martijn/sitecalm/internal/api/dto"
	"github.com/martijn/sitecalm/internal/core/service"
)

type CleanupHandler struct {
	cleanupService *service.CleanupService
}

func NewCleanupHandler(cleanupService *service.CleanupService) *CleanupHandler {
	return &CleanupHandler{
		cleanupService: cleanupService,
	}
}

// Cleanup handles POST /api/admin/backups/cleanup
func (h *CleanupHandler) Cleanup(c *gin.Context) {
	deleted, err := h.cleanupService.Prune(c.Request.Context())
	if deleted == nil {
		deleted = []string{}
	}
	if err != nil {
		code := statusFor(err)
		c.JSON(code, dto.CleanupResponse{
			Success: false,
			Message: "Cleanup failed: " + err.Error(),
			Deleted: deleted,
		})
		return
	}

	c.JSON(http.StatusOK, dto.CleanupResponse{
		Success: true,
		Message: fmt.Sprintf("Deleted %d expired backup(s)", len(deleted)),
		Deleted: deleted,
	})
}
