package tool

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martijn/sitecalm/internal/core/domain"
)

func shStep(label, script string, timeout time.Duration) domain.PostRestoreStep {
	return domain.PostRestoreStep{
		Label:   label,
		Command: domain.NewCommand([]string{"sh", "-c", script}, ""),
		Timeout: timeout,
	}
}

func newTestRunner() *Runner {
	return NewRunner(20*time.Millisecond, zerolog.Nop())
}

func TestRunSuccess(t *testing.T) {
	result := newTestRunner().Run(context.Background(), shStep("Composer Install", "echo installed; echo warn >&2", time.Minute))

	assert.Equal(t, "Composer Install", result.Step)
	assert.Equal(t, domain.StepStatusOK, result.Status)
	require.NotNil(t, result.Code)
	assert.Equal(t, 0, *result.Code)
	require.NotNil(t, result.DurationSec)
	assert.Equal(t, "installed\n", result.Output)
	assert.Equal(t, "warn\n", result.Error)
}

func TestRunNonZeroExit(t *testing.T) {
	result := newTestRunner().Run(context.Background(), shStep("NPM Install", "exit 1", time.Minute))

	assert.Equal(t, domain.StepStatusFailed, result.Status)
	require.NotNil(t, result.Code)
	assert.Equal(t, 1, *result.Code)
}

func TestRunCleanExitWithDaemonHoldingOutput(t *testing.T) {
	// the background sleep keeps stdout open after sh exits, like a process manager's daemon
	start := time.Now()
	result := newTestRunner().Run(context.Background(), shStep("Restart Backend (PM2)", "echo restarted; sleep 5 & exit 0", time.Minute))

	assert.Equal(t, domain.StepStatusOK, result.Status)
	require.NotNil(t, result.Code)
	assert.Equal(t, 0, *result.Code)
	assert.Contains(t, result.Output, "restarted")
	assert.Contains(t, result.Error, exec.ErrWaitDelay.Error())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExitResult(t *testing.T) {
	clean := exec.Command("sh", "-c", "exit 0")
	require.NoError(t, clean.Run())
	failing := exec.Command("sh", "-c", "exit 3")
	failErr := failing.Run()
	require.Error(t, failErr)

	tests := []struct {
		name    string
		cmd     *exec.Cmd
		waitErr error
		status  domain.StepStatus
		code    int
		errText string
	}{
		{"clean exit", clean, nil, domain.StepStatusOK, 0, ""},
		{"clean exit with held pipes", clean, exec.ErrWaitDelay, domain.StepStatusOK, 0, exec.ErrWaitDelay.Error()},
		{"non-zero exit", failing, failErr, domain.StepStatusFailed, 3, ""},
		{"no process state", &exec.Cmd{}, errors.New("wait failed"), domain.StepStatusFailed, -1, "wait failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := exitResult("Step", tt.cmd.ProcessState, tt.waitErr, time.Second)
			assert.Equal(t, tt.status, result.Status)
			require.NotNil(t, result.Code)
			assert.Equal(t, tt.code, *result.Code)
			assert.Equal(t, tt.errText, result.Error)
		})
	}
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	timeout := 300 * time.Millisecond
	start := time.Now()
	result := newTestRunner().Run(context.Background(), shStep("Next Build", "sleep 30", timeout))

	assert.Equal(t, domain.StepStatusTimeout, result.Status)
	assert.Nil(t, result.Code)
	require.NotNil(t, result.DurationSec)
	assert.InDelta(t, timeout.Seconds(), *result.DurationSec, 1.0)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunTimeoutWithChattyChild(t *testing.T) {
	// writes far more than a pipe buffer holds; must still be killed on time
	result := newTestRunner().Run(context.Background(), shStep("Next Build", "yes building", 300*time.Millisecond))

	assert.Equal(t, domain.StepStatusTimeout, result.Status)
	assert.True(t, strings.HasPrefix(result.Output, "...[truncated]"))
	assert.LessOrEqual(t, len(result.Output), maxCapture+len("...[truncated]\n"))
}

func TestRunMissingBinary(t *testing.T) {
	step := domain.PostRestoreStep{
		Label:   "Restart Backend (PM2)",
		Command: domain.NewCommand([]string{"/nonexistent/pm2", "restart", "backend"}, ""),
		Timeout: time.Minute,
	}
	result := newTestRunner().Run(context.Background(), step)

	assert.Equal(t, domain.StepStatusFailed, result.Status)
	require.NotNil(t, result.Code)
	assert.Equal(t, -1, *result.Code)
	assert.NotEmpty(t, result.Error)
}

func TestRunEmptyCommand(t *testing.T) {
	result := newTestRunner().Run(context.Background(), domain.PostRestoreStep{Label: "Empty"})
	assert.Equal(t, domain.StepStatusFailed, result.Status)
}

func TestRunParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	result := newTestRunner().Run(ctx, shStep("Laravel Optimize", "sleep 30", time.Minute))
	assert.Equal(t, domain.StepStatusFailed, result.Status)
	assert.Contains(t, result.Error, "canceled")
}

func TestRunUsesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	step := domain.PostRestoreStep{
		Label:   "pwd",
		Command: domain.NewCommand([]string{"pwd"}, dir),
		Timeout: time.Minute,
	}
	result := newTestRunner().Run(context.Background(), step)
	require.True(t, result.OK())
	assert.Contains(t, result.Output, dir)
}

type memoryRecorder struct {
	mu       sync.Mutex
	started  []*domain.Process
	finished []domain.StepResult
}

func (m *memoryRecorder) StartStep(ctx context.Context, runID string, step domain.PostRestoreStep, pid int) (*domain.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := domain.NewProcess(runID, step.Command.String(), domain.ProcessTypePostRestoreStep, map[string]interface{}{"step": step.Label})
	p.SetPID(pid)
	m.started = append(m.started, p)
	return p, nil
}

func (m *memoryRecorder) FinishStep(ctx context.Context, p *domain.Process, result domain.StepResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Complete(result)
	m.finished = append(m.finished, result)
	return nil
}

func TestRunRecordsProcess(t *testing.T) {
	rec := &memoryRecorder{}
	runner := newTestRunner().WithRecorder(rec)
	ctx := WithRunID(context.Background(), "run-42")

	runner.Run(ctx, shStep("Laravel Cache Clear", "exit 2", time.Minute))
	runner.Run(ctx, domain.PostRestoreStep{Label: "Broken", Command: domain.NewCommand([]string{"/nonexistent"}, "")})

	require.Len(t, rec.started, 2)
	assert.Equal(t, "run-42", rec.started[0].CommandID)
	assert.NotZero(t, *rec.started[0].PID)
	assert.Equal(t, domain.ProcessStatusFailed, rec.started[0].Status)
	assert.Equal(t, 2, *rec.started[0].ReturnCode)
	assert.Zero(t, *rec.started[1].PID)
	assert.Len(t, rec.finished, 2)
}

func TestTailBufferKeepsEnd(t *testing.T) {
	b := newTailBuffer(8)
	_, _ = b.Write([]byte("hello"))
	assert.Equal(t, "hello", b.String())

	_, _ = b.Write([]byte(" world"))
	assert.Equal(t, "...[truncated]\nlo world", b.String())

	n, err := b.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, "...[truncated]\n89abcdef", b.String())
}
