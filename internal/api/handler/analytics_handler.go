package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/martijn/sitecalm/internal/api/dto"
	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/core/service"
)

type AnalyticsHandler struct {
	analyticsService *service.AnalyticsService
}

func NewAnalyticsHandler(analyticsService *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
	}
}

// Track handles POST /api/analytics/track
func (h *AnalyticsHandler) Track(c *gin.Context) {
	var req dto.TrackEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	event, err := h.analyticsService.Track(c.Request.Context(), service.TrackRequest{
		EventType:  domain.EventType(req.EventType),
		CampaignID: req.CampaignID,
		VideoID:    req.VideoID,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Referrer:   c.Request.Referer(),
	})
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to track event")
			respondError(c, code, "Failed to track event")
			return
		}
		respondError(c, code, err.Error())
		return
	}

	c.JSON(http.StatusCreated, dto.TrackEventResponse{
		Success: true,
		Message: "Event tracked successfully",
		Data: dto.AnalyticsEventInfo{
			ID:         event.ID,
			EventType:  string(event.EventType),
			CampaignID: event.CampaignID,
			VideoID:    event.VideoID,
			DeviceType: event.DeviceType,
			Browser:    event.Browser,
			OS:         event.OS,
			CreatedAt:  event.CreatedAt,
		},
	})
}
