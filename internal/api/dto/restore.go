package dto

import "time"

// StepResponse is one post-restore step. Output is kept in the process records.
type StepResponse struct {
	Step        string   `json:"step"`
	Status      string   `json:"status"`
	Code        *int     `json:"code,omitempty"`
	DurationSec *float64 `json:"duration_sec,omitempty"`
}

// RestoreResponse is returned by the synchronous restore endpoints. Partial
// step failures still report success.
type RestoreResponse struct {
	Success            bool           `json:"success"`
	Message            string         `json:"message"`
	RunID              string         `json:"run_id,omitempty"`
	PreRestoreSnapshot string         `json:"pre_restore_snapshot,omitempty"`
	Warnings           []string       `json:"warnings,omitempty"`
	PostRestore        []StepResponse `json:"post_restore"`
}

// AsyncRestoreResponse is returned with 202 when a restore job is queued
type AsyncRestoreResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

// RestoreJobResponse reports a background restore
type RestoreJobResponse struct {
	Success     bool           `json:"success"`
	JobID       string         `json:"job_id"`
	Filename    string         `json:"filename"`
	Mode        string         `json:"mode"`
	Status      string         `json:"status"`
	Error       *string        `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
	PostRestore []StepResponse `json:"post_restore"`
}
