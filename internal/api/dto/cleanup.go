package dto

// CleanupResponse lists the archives removed by the retention rules
type CleanupResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Deleted []string `json:"deleted"`
}
