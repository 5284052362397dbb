package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/core/repository"
	"github.com/martijn/sitecalm/internal/metrics"
)

const roundRobinKeyPrefix = "campaign_round_robin_"

// Selection is one served video together with its position in the rotation.
type Selection struct {
	Campaign     *domain.Campaign
	Video        *domain.Video
	TotalVideos  int
	CurrentIndex int
}

// SelectorService picks which of a campaign's videos to serve.
type SelectorService struct {
	campaigns repository.CampaignRepository
	cursors   repository.CursorStore
	ttl       time.Duration
	logger    zerolog.Logger

	// intn returns a uniform int in [0, n)
	intn func(n int) int
}

func NewSelectorService(campaigns repository.CampaignRepository, cursors repository.CursorStore, ttl time.Duration, logger zerolog.Logger) *SelectorService {
	return &SelectorService{
		campaigns: campaigns,
		cursors:   cursors,
		ttl:       ttl,
		logger:    logger.With().Str("component", "selector").Logger(),
		intn:      rand.IntN,
	}
}

// PickWeighted draws a video with probability weight/totalWeight. Weights
// below 1 count as 1.
func (s *SelectorService) PickWeighted(videos []*domain.Video) (*domain.Video, error) {
	if len(videos) == 0 {
		return nil, ErrNoVideos
	}

	total := 0
	for _, v := range videos {
		total += effectiveWeight(v)
	}

	r := s.intn(total) + 1
	cum := 0
	for _, v := range videos {
		cum += effectiveWeight(v)
		if r <= cum {
			return v, nil
		}
	}

	// unreachable while r <= total
	s.logger.Warn().Int("draw", r).Int("total_weight", total).Msg("weighted pick fell through; using first video")
	return videos[0], nil
}

func effectiveWeight(v *domain.Video) int {
	if v.Weight < 1 {
		return 1
	}
	return v.Weight
}

// NextRoundRobin returns the video at the campaign's cursor and advances the
// cursor. Concurrent callers each get a distinct position.
func (s *SelectorService) NextRoundRobin(ctx context.Context, campaignID int64, videos []*domain.Video) (*domain.Video, int, error) {
	if len(videos) == 0 {
		return nil, 0, ErrNoVideos
	}

	key := roundRobinKeyPrefix + strconv.FormatInt(campaignID, 10)
	idx, err := s.cursors.Next(ctx, key, len(videos), s.ttl)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return videos[idx], idx, nil
}

// ServeRoundRobin resolves brand and campaign slug and returns the next
// video in rotation.
func (s *SelectorService) ServeRoundRobin(ctx context.Context, brandUsername, campaignSlug string) (sel *Selection, err error) {
	defer func() {
		metrics.RoundRobinTotal.WithLabelValues(roundRobinOutcome(err)).Inc()
	}()

	brand, err := s.campaigns.FindBrandByUsername(ctx, brandUsername)
	if err != nil {
		return nil, notFoundAs(err, ErrCampaignNotFound, "brand "+brandUsername)
	}
	campaign, err := s.campaigns.FindActiveCampaign(ctx, brand.ID, campaignSlug)
	if err != nil {
		return nil, notFoundAs(err, ErrCampaignNotFound, "campaign "+campaignSlug)
	}

	videos, err := s.campaigns.ActiveVideos(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load videos: %w", err)
	}

	video, idx, err := s.NextRoundRobin(ctx, campaign.ID, videos)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int64("campaign_id", campaign.ID).
		Int64("video_id", video.ID).
		Int("index", idx).
		Int("total", len(videos)).
		Msg("round-robin video served")

	return &Selection{Campaign: campaign, Video: video, TotalVideos: len(videos), CurrentIndex: idx}, nil
}

// ServeVariant returns a weighted pick among an active campaign's videos.
func (s *SelectorService) ServeVariant(ctx context.Context, campaignID int64) (*Selection, error) {
	campaign, err := s.campaigns.FindCampaignByID(ctx, campaignID)
	if err != nil {
		return nil, notFoundAs(err, ErrCampaignNotFound, "campaign "+strconv.FormatInt(campaignID, 10))
	}
	if !campaign.IsActive {
		return nil, fmt.Errorf("%w: campaign %d is inactive", ErrCampaignNotFound, campaignID)
	}

	videos, err := s.campaigns.ActiveVideos(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load videos: %w", err)
	}
	video, err := s.PickWeighted(videos)
	if err != nil {
		return nil, err
	}

	idx := 0
	for i, v := range videos {
		if v.ID == video.ID {
			idx = i
			break
		}
	}
	return &Selection{Campaign: campaign, Video: video, TotalVideos: len(videos), CurrentIndex: idx}, nil
}

func notFoundAs(err, sentinel error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", sentinel, what)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func roundRobinOutcome(err error) string {
	switch {
	case err == nil:
		return "served"
	case errors.Is(err, ErrCacheUnavailable):
		return "cache_unavailable"
	case errors.Is(err, ErrCampaignNotFound), errors.Is(err, ErrNoVideos):
		return "not_found"
	default:
		return "error"
	}
}
