package dto

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// MessageResponse is the plain success envelope
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PaginationInfo describes one page of a list response
type PaginationInfo struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}
