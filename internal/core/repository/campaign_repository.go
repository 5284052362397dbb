package repository

import (
	"context"

	"github.com/martijn/sitecalm/internal/core/domain"
)

// CampaignRepository is a read-only view of the campaign data owned by the
// application backend.
type CampaignRepository interface {
	FindBrandByUsername(ctx context.Context, username string) (*domain.Brand, error)
	FindActiveCampaign(ctx context.Context, brandID int64, slug string) (*domain.Campaign, error)
	FindCampaignByID(ctx context.Context, id int64) (*domain.Campaign, error)
	// ActiveVideos returns the campaign's active videos ordered by id.
	ActiveVideos(ctx context.Context, campaignID int64) ([]*domain.Video, error)
}

type AnalyticsRepository interface {
	Create(ctx context.Context, event *domain.AnalyticsEvent) error
}
