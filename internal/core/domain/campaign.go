package domain

import "time"

// Brand is the owner of campaigns, addressed publicly by username.
type Brand struct {
	ID       int64  `db:"id"`
	Username string `db:"username"`
}

type Campaign struct {
	ID          int64   `db:"id"`
	UserID      int64   `db:"user_id"`
	Name        string  `db:"name"`
	Slug        string  `db:"slug"`
	Description *string `db:"description"`
	IsActive    bool    `db:"is_active"`
}

const VideoStatusActive = "active"

type Video struct {
	ID            int64   `db:"id"`
	CampaignID    int64   `db:"campaign_id"`
	Title         string  `db:"title"`
	Description   *string `db:"description"`
	Slug          string  `db:"slug"`
	FilePath      *string `db:"file_path"`
	ThumbnailPath *string `db:"thumbnail_path"`
	CTAText       *string `db:"cta_text"`
	CTAURL        *string `db:"cta_url"`
	Weight        int     `db:"weight"`
	Duration      *int    `db:"duration"`
	Status        string  `db:"status"`
}

type EventType string

const (
	EventVideoPlay     EventType = "video_play"
	EventVideoView     EventType = "video_view"
	EventVideoComplete EventType = "video_complete"
	EventCTAClick      EventType = "cta_click"
	EventPageView      EventType = "page_view"
)

func (e EventType) Valid() bool {
	switch e {
	case EventVideoPlay, EventVideoView, EventVideoComplete, EventCTAClick, EventPageView:
		return true
	}
	return false
}

// AnalyticsEvent is one tracked interaction. Device, browser and OS are
// derived from the user agent at ingestion time.
type AnalyticsEvent struct {
	ID         int64     `db:"id"`
	VideoID    *int64    `db:"video_id"`
	CampaignID *int64    `db:"campaign_id"`
	EventType  EventType `db:"event_type"`
	IPAddress  *string   `db:"ip_address"`
	UserAgent  *string   `db:"user_agent"`
	DeviceType *string   `db:"device_type"`
	Browser    *string   `db:"browser"`
	OS         *string   `db:"os"`
	Referrer   *string   `db:"referrer"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
