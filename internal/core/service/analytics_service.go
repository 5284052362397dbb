package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/core/repository"
)

// TrackRequest is an analytics event as received, before enrichment.
type TrackRequest struct {
	EventType  domain.EventType
	CampaignID *int64
	VideoID    *int64
	IPAddress  string
	UserAgent  string
	Referrer   string
}

type AnalyticsService struct {
	events    repository.AnalyticsRepository
	campaigns repository.CampaignRepository
	logger    zerolog.Logger
}

func NewAnalyticsService(events repository.AnalyticsRepository, campaigns repository.CampaignRepository, logger zerolog.Logger) *AnalyticsService {
	return &AnalyticsService{
		events:    events,
		campaigns: campaigns,
		logger:    logger.With().Str("component", "analytics").Logger(),
	}
}

// Track stores an event with device, browser and OS derived from the user
// agent. Without a user agent those fields stay empty.
func (s *AnalyticsService) Track(ctx context.Context, req TrackRequest) (*domain.AnalyticsEvent, error) {
	if !req.EventType.Valid() {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, req.EventType)
	}
	if req.CampaignID == nil {
		return nil, fmt.Errorf("%w: campaign_id is required", ErrInvalidEvent)
	}
	if _, err := s.campaigns.FindCampaignByID(ctx, *req.CampaignID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: campaign %d does not exist", ErrInvalidEvent, *req.CampaignID)
		}
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}

	now := time.Now()
	event := &domain.AnalyticsEvent{
		VideoID:    req.VideoID,
		CampaignID: req.CampaignID,
		EventType:  req.EventType,
		IPAddress:  optional(req.IPAddress),
		UserAgent:  optional(req.UserAgent),
		Referrer:   optional(req.Referrer),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.UserAgent != "" {
		event.DeviceType = optional(detectDevice(req.UserAgent))
		event.Browser = optional(detectBrowser(req.UserAgent))
		event.OS = optional(detectOS(req.UserAgent))
	}

	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to store analytics event: %w", err)
	}
	s.logger.Debug().
		Str("event_type", string(event.EventType)).
		Int64("campaign_id", *event.CampaignID).
		Msg("analytics event tracked")
	return event, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
