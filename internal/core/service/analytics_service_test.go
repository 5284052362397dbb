package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martijn/sitecalm/internal/core/domain"
)

const (
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaSafariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaSafariIPad    = "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaFirefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaChromeAndroid = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	uaEdgeLegacy    = "Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) Edge/18.19041"
)

func TestUserAgentDetection(t *testing.T) {
	tests := []struct {
		name    string
		ua      string
		device  string
		browser string
		os      string
	}{
		{"chrome on windows", uaChromeWindows, "desktop", "Chrome", "Windows"},
		{"safari on iphone", uaSafariIPhone, "mobile", "Safari", "macOS"},
		{"safari on ipad", uaSafariIPad, "tablet", "Safari", "macOS"},
		{"firefox on linux", uaFirefoxLinux, "desktop", "Firefox", "Linux"},
		// Linux is checked before Android
		{"chrome on android", uaChromeAndroid, "mobile", "Chrome", "Linux"},
		{"legacy edge", uaEdgeLegacy, "desktop", "Edge", "Windows"},
		{"bot", "curl/8.4.0", "desktop", "Unknown", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.device, detectDevice(tt.ua))
			assert.Equal(t, tt.browser, detectBrowser(tt.ua))
			assert.Equal(t, tt.os, detectOS(tt.ua))
		})
	}
}

func TestAnalyticsTrack(t *testing.T) {
	repo := newCampaignFixture()
	s := NewAnalyticsService(repo, repo, zerolog.Nop())
	campaignID, videoID := int64(1), int64(11)

	event, err := s.Track(context.Background(), TrackRequest{
		EventType:  domain.EventCTAClick,
		CampaignID: &campaignID,
		VideoID:    &videoID,
		IPAddress:  "203.0.113.9",
		UserAgent:  uaSafariIPad,
		Referrer:   "https://example.com/watch",
	})
	require.NoError(t, err)
	require.Len(t, repo.events, 1)
	assert.Same(t, event, repo.events[0])

	assert.Equal(t, "tablet", *event.DeviceType)
	assert.Equal(t, "Safari", *event.Browser)
	assert.Equal(t, "macOS", *event.OS)
	assert.Equal(t, "203.0.113.9", *event.IPAddress)
	assert.Equal(t, "https://example.com/watch", *event.Referrer)
	assert.Equal(t, videoID, *event.VideoID)
}

func TestAnalyticsTrackWithoutUserAgent(t *testing.T) {
	repo := newCampaignFixture()
	s := NewAnalyticsService(repo, repo, zerolog.Nop())
	campaignID := int64(1)

	event, err := s.Track(context.Background(), TrackRequest{EventType: domain.EventPageView, CampaignID: &campaignID})
	require.NoError(t, err)
	assert.Nil(t, event.UserAgent)
	assert.Nil(t, event.DeviceType)
	assert.Nil(t, event.Browser)
	assert.Nil(t, event.OS)
	assert.Nil(t, event.Referrer)
}

func TestAnalyticsTrackRejectsInvalidEvents(t *testing.T) {
	repo := newCampaignFixture()
	s := NewAnalyticsService(repo, repo, zerolog.Nop())
	known, unknown := int64(1), int64(404)

	tests := []struct {
		name string
		req  TrackRequest
	}{
		{"unknown event type", TrackRequest{EventType: "video_skip", CampaignID: &known}},
		{"missing campaign", TrackRequest{EventType: domain.EventVideoPlay}},
		{"campaign does not exist", TrackRequest{EventType: domain.EventVideoPlay, CampaignID: &unknown}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Track(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}
	assert.Empty(t, repo.events)
}
