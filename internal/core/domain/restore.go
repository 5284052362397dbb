package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RestoreMode string

const (
	RestoreModeFull     RestoreMode = "full"
	RestoreModeFiles    RestoreMode = "files"
	RestoreModeDatabase RestoreMode = "database"
)

// ParseRestoreMode accepts the API names, including "code" for files-only.
func ParseRestoreMode(s string) (RestoreMode, error) {
	switch s {
	case "", "full":
		return RestoreModeFull, nil
	case "files", "code":
		return RestoreModeFiles, nil
	case "database", "db":
		return RestoreModeDatabase, nil
	default:
		return "", fmt.Errorf("invalid restore mode: %s (expected full, files or database)", s)
	}
}

func (m RestoreMode) RestoresFiles() bool {
	return m == RestoreModeFull || m == RestoreModeFiles
}

func (m RestoreMode) RestoresDatabase() bool {
	return m == RestoreModeFull || m == RestoreModeDatabase
}

type RestoreRequest struct {
	Filename string
	Mode     RestoreMode
}

// RestoreSummary accumulates everything a restore run did. On hard failure it
// still carries the steps completed so far.
type RestoreSummary struct {
	RunID              string       `json:"run_id"`
	Filename           string       `json:"filename"`
	Mode               RestoreMode  `json:"mode"`
	PreRestoreSnapshot string       `json:"pre_restore_snapshot,omitempty"`
	Steps              []StepResult `json:"post_restore"`
	Warnings           []string     `json:"warnings,omitempty"`
	StartedAt          time.Time    `json:"started_at"`
	FinishedAt         *time.Time   `json:"finished_at,omitempty"`
}

func NewRestoreSummary(req RestoreRequest) *RestoreSummary {
	return &RestoreSummary{
		RunID:     uuid.New().String(),
		Filename:  req.Filename,
		Mode:      req.Mode,
		Steps:     []StepResult{},
		StartedAt: time.Now(),
	}
}

func (s *RestoreSummary) AddStep(r StepResult) {
	s.Steps = append(s.Steps, r)
}

func (s *RestoreSummary) Warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

func (s *RestoreSummary) Finish() {
	now := time.Now()
	s.FinishedAt = &now
}

// FailedSteps returns every step that did not finish with status ok.
func (s *RestoreSummary) FailedSteps() []StepResult {
	var failed []StepResult
	for _, step := range s.Steps {
		if !step.OK() {
			failed = append(failed, step)
		}
	}
	return failed
}

// Step returns the result recorded for label, if any.
func (s *RestoreSummary) Step(label string) (StepResult, bool) {
	for _, step := range s.Steps {
		if step.Step == label {
			return step, true
		}
	}
	return StepResult{}, false
}

type RestoreJobStatus string

const (
	RestoreJobPending   RestoreJobStatus = "pending"
	RestoreJobRunning   RestoreJobStatus = "running"
	RestoreJobCompleted RestoreJobStatus = "completed"
	RestoreJobFailed    RestoreJobStatus = "failed"
)

// RestoreJob tracks a restore started in the background.
type RestoreJob struct {
	ID         string           `db:"id"`
	Filename   string           `db:"filename"`
	Mode       RestoreMode      `db:"mode"`
	Status     RestoreJobStatus `db:"status"`
	Summary    *RestoreSummary  `db:"-"`
	Error      *string          `db:"error"`
	CreatedAt  time.Time        `db:"created_at"`
	StartedAt  *time.Time       `db:"started_at"`
	FinishedAt *time.Time       `db:"finished_at"`
}

func NewRestoreJob(req RestoreRequest) *RestoreJob {
	return &RestoreJob{
		ID:        uuid.New().String(),
		Filename:  req.Filename,
		Mode:      req.Mode,
		Status:    RestoreJobPending,
		CreatedAt: time.Now(),
	}
}

func (j *RestoreJob) Start() {
	now := time.Now()
	j.StartedAt = &now
	j.Status = RestoreJobRunning
}

func (j *RestoreJob) Complete(summary *RestoreSummary) {
	now := time.Now()
	j.FinishedAt = &now
	j.Summary = summary
	j.Status = RestoreJobCompleted
}

func (j *RestoreJob) Fail(summary *RestoreSummary, err error) {
	now := time.Now()
	j.FinishedAt = &now
	j.Summary = summary
	j.Status = RestoreJobFailed
	if err != nil {
		msg := err.Error()
		j.Error = &msg
	}
}

func (j *RestoreJob) IsComplete() bool {
	return j.Status == RestoreJobCompleted || j.Status == RestoreJobFailed
}
