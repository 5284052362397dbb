package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/core/repository"
)

const videoColumns = `id, campaign_id, title, description, slug, file_path, thumbnail_path, cta_text, cta_url, weight, duration, status`

type campaignRepository struct {
	db *AppDB
}

func NewCampaignRepository(db *AppDB) repository.CampaignRepository {
	return &campaignRepository{db: db}
}

func (r *campaignRepository) FindBrandByUsername(ctx context.Context, username string) (*domain.Brand, error) {
	var brand domain.Brand
	err := r.db.GetContext(ctx, &brand, `SELECT id, username FROM users WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("brand %s: %w", username, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find brand: %w", err)
	}
	return &brand, nil
}

func (r *campaignRepository) FindActiveCampaign(ctx context.Context, brandID int64, slug string) (*domain.Campaign, error) {
	var campaign domain.Campaign
	err := r.db.GetContext(ctx, &campaign, `
		SELECT id, user_id, name, slug, description, is_active
		FROM campaigns
		WHERE user_id = ? AND slug = ? AND is_active = 1
	`, brandID, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("campaign %s: %w", slug, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find campaign: %w", err)
	}
	return &campaign, nil
}

func (r *campaignRepository) FindCampaignByID(ctx context.Context, id int64) (*domain.Campaign, error) {
	var campaign domain.Campaign
	err := r.db.GetContext(ctx, &campaign, `
		SELECT id, user_id, name, slug, description, is_active
		FROM campaigns
		WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("campaign %d: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find campaign: %w", err)
	}
	return &campaign, nil
}

func (r *campaignRepository) ActiveVideos(ctx context.Context, campaignID int64) ([]*domain.Video, error) {
	videos := []*domain.Video{}
	err := r.db.SelectContext(ctx, &videos, `
		SELECT `+videoColumns+`
		FROM videos
		WHERE campaign_id = ? AND status = ?
		ORDER BY id ASC
	`, campaignID, domain.VideoStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	return videos, nil
}

type analyticsRepository struct {
	db *AppDB
}

func NewAnalyticsRepository(db *AppDB) repository.AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) Create(ctx context.Context, event *domain.AnalyticsEvent) error {
	now := time.Now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	result, err := r.db.NamedExecContext(ctx, `
		INSERT INTO analytics (video_id, campaign_id, event_type, ip_address, user_agent, device_type, browser, os, referrer, created_at, updated_at)
		VALUES (:video_id, :campaign_id, :event_type, :ip_address, :user_agent, :device_type, :browser, :os, :referrer, :created_at, :updated_at)
	`, event)
	if err != nil {
		return fmt.Errorf("failed to record analytics event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	event.ID = id
	return nil
}
