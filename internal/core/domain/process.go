package domain

import (
	"time"

	"github.com/google/uuid"
)

type ProcessStatus string

const (
	ProcessStatusRunning ProcessStatus = "running"
	ProcessStatusSuccess ProcessStatus = "success"
	ProcessStatusFailed  ProcessStatus = "failed"
	ProcessStatusTimeout ProcessStatus = "timeout"
)

type ProcessType string

const (
	ProcessTypePostRestoreStep ProcessType = "post_restore_step"
	ProcessTypeSnapshot        ProcessType = "snapshot"
	ProcessTypeCleanupBackups  ProcessType = "cleanup_backups"
)

// Process is the persisted record of one external command run. Steps of the
// same restore share a CommandID.
type Process struct {
	ID         int64                  `db:"id"`
	CommandID  string                 `db:"command_id"`
	Command    string                 `db:"command"`
	PID        *int                   `db:"pid"`
	Status     ProcessStatus          `db:"status"`
	Output     *string                `db:"output"`
	Error      *string                `db:"error"`
	ReturnCode *int                   `db:"return_code"`
	StartTime  time.Time              `db:"start_time"`
	EndTime    *time.Time             `db:"end_time"`
	Type       ProcessType            `db:"type"`
	Args       map[string]interface{} `db:"-"` // stored as JSON text
}

// NewProcess creates a running process record. An empty commandID gets a fresh UUID.
func NewProcess(commandID, command string, processType ProcessType, args map[string]interface{}) *Process {
	if commandID == "" {
		commandID = uuid.New().String()
	}
	// PID stays 0 until the child has started
	pid := 0
	return &Process{
		CommandID: commandID,
		Command:   command,
		PID:       &pid,
		Status:    ProcessStatusRunning,
		StartTime: time.Now(),
		Type:      processType,
		Args:      args,
	}
}

func (p *Process) SetPID(pid int) {
	p.PID = &pid
}

// Complete records the outcome of a step run.
func (p *Process) Complete(result StepResult) {
	now := time.Now()
	p.EndTime = &now
	p.ReturnCode = result.Code

	if result.Output != "" {
		output := result.Output
		p.Output = &output
	}
	if result.Error != "" {
		errorOutput := result.Error
		p.Error = &errorOutput
	}

	switch result.Status {
	case StepStatusOK:
		p.Status = ProcessStatusSuccess
	case StepStatusTimeout:
		p.Status = ProcessStatusTimeout
	default:
		p.Status = ProcessStatusFailed
	}
}

func (p *Process) Fail(errorOutput string) {
	now := time.Now()
	p.EndTime = &now
	p.Status = ProcessStatusFailed
	if errorOutput != "" {
		p.Error = &errorOutput
	}
}

func (p *Process) IsComplete() bool {
	return p.Status != ProcessStatusRunning
}
