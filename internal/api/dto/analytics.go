package dto

import "time"

// TrackEventRequest is the public analytics payload. Client IP, user agent
// and referrer are taken from the request itself.
type TrackEventRequest struct {
	EventType  string `json:"event_type" binding:"required,oneof=video_play video_view video_complete cta_click page_view"`
	CampaignID *int64 `json:"campaign_id" binding:"required,gt=0"`
	VideoID    *int64 `json:"video_id" binding:"omitempty,gt=0"`
}

type AnalyticsEventInfo struct {
	ID         int64     `json:"id"`
	EventType  string    `json:"event_type"`
	CampaignID *int64    `json:"campaign_id"`
	VideoID    *int64    `json:"video_id"`
	DeviceType *string   `json:"device_type"`
	Browser    *string   `json:"browser"`
	OS         *string   `json:"os"`
	CreatedAt  time.Time `json:"created_at"`
}

type TrackEventResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Data    AnalyticsEventInfo `json:"data"`
}
