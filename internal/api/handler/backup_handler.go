package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/martijn/sitecalm/internal/api/dto"
	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/core/service"
)

const createdAtLayout = "2006-01-02 15:04:05"

type BackupHandler struct {
	archiveService *service.ArchiveService
	catalogService *service.CatalogService
	baseURL        string
}

func NewBackupHandler(archiveService *service.ArchiveService, catalogService *service.CatalogService, baseURL string) *BackupHandler {
	return &BackupHandler{
		archiveService: archiveService,
		catalogService: catalogService,
		baseURL:        strings.TrimRight(baseURL, "/"),
	}
}

// ListBackups handles GET /api/admin/backups
func (h *BackupHandler) ListBackups(c *gin.Context) {
	archives, err := h.catalogService.List(c.Request.Context())
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to list backups")
		respondError(c, http.StatusInternalServerError, "Failed to retrieve backup list")
		return
	}

	response := dto.BackupListResponse{
		Success: true,
		Backups: make([]dto.BackupEntry, len(archives)),
	}
	for i, archive := range archives {
		response.Backups[i] = h.toBackupEntry(archive)
	}

	c.JSON(http.StatusOK, response)
}

// CreateBackup handles POST /api/admin/backups. The archive is complete when
// the response is sent.
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	archive, err := h.archiveService.CreateSnapshot(c.Request.Context(), domain.ArchiveKindOperator)
	if err != nil {
		respondError(c, statusFor(err), "Backup creation failed: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, dto.CreateBackupResponse{
		Success:  true,
		Message:  "Backup created successfully",
		Filename: archive.Filename,
		Size:     humanize.Bytes(uint64(archive.Size)),
	})
}

// DownloadBackup handles GET /api/admin/backups/:filename/download
func (h *BackupHandler) DownloadBackup(c *gin.Context) {
	f, archive, err := h.catalogService.Open(c.Request.Context(), c.Param("filename"))
	if err != nil {
		code := statusFor(err)
		if code == http.StatusNotFound {
			respondError(c, code, "Backup file not found")
			return
		}
		respondError(c, code, "Download failed")
		return
	}
	defer f.Close()

	c.DataFromReader(http.StatusOK, archive.Size, "application/gzip", f, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, archive.Filename),
	})
}

// DeleteBackup handles DELETE /api/admin/backups/:filename
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	if err := h.catalogService.Delete(c.Request.Context(), c.Param("filename")); err != nil {
		code := statusFor(err)
		if code == http.StatusNotFound {
			respondError(c, code, "Backup file not found")
			return
		}
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to delete backup")
		respondError(c, code, "Failed to delete backup")
		return
	}

	c.JSON(http.StatusOK, dto.MessageResponse{
		Success: true,
		Message: "Backup deleted successfully",
	})
}

func (h *BackupHandler) toBackupEntry(archive domain.BackupArchive) dto.BackupEntry {
	return dto.BackupEntry{
		Filename:    archive.Filename,
		Size:        humanize.Bytes(uint64(archive.Size)),
		CreatedAt:   archive.CreatedAt.Format(createdAtLayout),
		DownloadURL: fmt.Sprintf("%s/api/admin/backups/%s/download", h.baseURL, url.PathEscape(archive.Filename)),
	}
}
