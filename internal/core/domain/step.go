package domain

import (
	"strings"
	"time"
)

type StepStatus string

const (
	StepStatusOK      StepStatus = "ok"
	StepStatusFailed  StepStatus = "failed"
	StepStatusTimeout StepStatus = "timeout"
	// StepStatusMissingArtifact is reported when a build finished but its
	// output marker is absent. It never fails the restore.
	StepStatusMissingArtifact StepStatus = "missing-middleware-manifest"
)

// Command is an external program invocation. It is executed directly,
// without a shell.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

func NewCommand(argv []string, dir string) Command {
	if len(argv) == 0 {
		return Command{Dir: dir}
	}
	return Command{Name: argv[0], Args: append([]string(nil), argv[1:]...), Dir: dir}
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// PostRestoreStep is one entry of the ordered post-restore plan.
type PostRestoreStep struct {
	Label   string
	Command Command
	Timeout time.Duration
}

// StepResult is the outcome of one post-restore step. Output and Error hold
// the captured tail of stdout and stderr and are kept out of API responses.
type StepResult struct {
	Step        string     `json:"step"`
	Status      StepStatus `json:"status"`
	Code        *int       `json:"code,omitempty"`
	DurationSec *float64   `json:"duration_sec,omitempty"`
	Output      string     `json:"-"`
	Error       string     `json:"-"`
}

func NewStepResult(label string, status StepStatus, elapsed time.Duration) StepResult {
	secs := roundSeconds(elapsed)
	return StepResult{Step: label, Status: status, DurationSec: &secs}
}

func (r StepResult) WithCode(code int) StepResult {
	r.Code = &code
	return r
}

func (r StepResult) OK() bool {
	return r.Status == StepStatusOK
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(10*time.Millisecond).Milliseconds()) / 1000
}
