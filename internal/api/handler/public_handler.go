package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/martijn/sitecalm/internal/api/dto"
	"github.com/martijn/sitecalm/internal/core/service"
)

type PublicHandler struct {
	selectorService *service.SelectorService
}

func NewPublicHandler(selectorService *service.SelectorService) *PublicHandler {
	return &PublicHandler{
		selectorService: selectorService,
	}
}

// RoundRobin handles GET /api/public/:brand/:campaign
func (h *PublicHandler) RoundRobin(c *gin.Context) {
	sel, err := h.selectorService.ServeRoundRobin(c.Request.Context(), c.Param("brand"), c.Param("campaign"))
	if err != nil {
		h.selectionError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSelectionResponse(sel))
}

// Variant handles GET /api/public/campaigns/:id/variant
func (h *PublicHandler) Variant(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "Invalid campaign ID")
		return
	}

	sel, err := h.selectorService.ServeVariant(c.Request.Context(), id)
	if err != nil {
		h.selectionError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSelectionResponse(sel))
}

// selectionError keeps internal details out of public responses.
func (h *PublicHandler) selectionError(c *gin.Context, err error) {
	code := statusFor(err)
	switch {
	case errors.Is(err, service.ErrNoVideos):
		respondError(c, code, "No videos found in this campaign")
	case errors.Is(err, service.ErrCampaignNotFound):
		respondError(c, code, "Campaign not found or inactive")
	case errors.Is(err, service.ErrCacheUnavailable):
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("round-robin cursor unavailable")
		respondError(c, code, "Video rotation is temporarily unavailable")
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to select video")
		respondError(c, http.StatusInternalServerError, "An error occurred while fetching campaign videos")
	}
}

func toSelectionResponse(sel *service.Selection) dto.SelectionResponse {
	campaign, video := sel.Campaign, sel.Video
	return dto.SelectionResponse{
		Success: true,
		Data: dto.SelectionData{
			Campaign: dto.CampaignInfo{
				ID:          campaign.ID,
				Name:        campaign.Name,
				Slug:        campaign.Slug,
				Description: campaign.Description,
			},
			Video: dto.VideoInfo{
				ID:            video.ID,
				Title:         video.Title,
				Description:   video.Description,
				FilePath:      video.FilePath,
				ThumbnailPath: video.ThumbnailPath,
				Duration:      video.Duration,
				CTAText:       video.CTAText,
				CTAURL:        video.CTAURL,
				Slug:          video.Slug,
			},
			TotalVideos:  sel.TotalVideos,
			CurrentIndex: sel.CurrentIndex,
		},
	}
}
