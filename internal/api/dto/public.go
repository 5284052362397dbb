package dto

type CampaignInfo struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
}

type VideoInfo struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Description   *string `json:"description"`
	FilePath      *string `json:"file_path"`
	ThumbnailPath *string `json:"thumbnail_path"`
	Duration      *int    `json:"duration"`
	CTAText       *string `json:"cta_text"`
	CTAURL        *string `json:"cta_url"`
	Slug          string  `json:"slug"`
}

type SelectionData struct {
	Campaign     CampaignInfo `json:"campaign"`
	Video        VideoInfo    `json:"video"`
	TotalVideos  int          `json:"total_videos"`
	CurrentIndex int          `json:"current_index"`
}

// SelectionResponse wraps a served video
type SelectionResponse struct {
	Success bool          `json:"success"`
	Data    SelectionData `json:"data"`
}
