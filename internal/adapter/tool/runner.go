package tool

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/metrics"
)

// DefaultPollInterval is how often a running step is checked against its
// timeout.
const DefaultPollInterval = 150 * time.Millisecond

// reapDelay bounds how long Wait may block on output pipes after a kill.
const reapDelay = 2 * time.Second

// Runner executes steps as child processes.
type Runner struct {
	pollInterval time.Duration
	recorder     ProcessRecorder
	logger       zerolog.Logger
}

var _ ExternalTool = (*Runner)(nil)

func NewRunner(pollInterval time.Duration, logger zerolog.Logger) *Runner {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Runner{
		pollInterval: pollInterval,
		logger:       logger.With().Str("component", "step-runner").Logger(),
	}
}

// WithRecorder attaches a process recorder. Recorder errors are logged and
// never change a step's result.
func (r *Runner) WithRecorder(recorder ProcessRecorder) *Runner {
	r.recorder = recorder
	return r
}

func (r *Runner) Run(ctx context.Context, step domain.PostRestoreStep) domain.StepResult {
	start := time.Now()
	log := r.logger.With().Str("step", step.Label).Str("command", step.Command.String()).Logger()

	if step.Command.Name == "" {
		result := domain.NewStepResult(step.Label, domain.StepStatusFailed, 0).WithCode(-1)
		result.Error = "no command configured"
		r.record(ctx, step, 0, result)
		return result
	}

	cmd := exec.Command(step.Command.Name, step.Command.Args...)
	cmd.Dir = step.Command.Dir
	cmd.Env = append(getCleanEnvForSystemBinaries(), step.Command.Env...)
	cmd.WaitDelay = reapDelay
	setProcessGroup(cmd)

	stdout := newTailBuffer(maxCapture)
	stderr := newTailBuffer(maxCapture)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		result := domain.NewStepResult(step.Label, domain.StepStatusFailed, time.Since(start)).WithCode(-1)
		result.Error = err.Error()
		log.Error().Err(err).Msg("failed to start step")
		r.record(ctx, step, 0, result)
		return result
	}

	log.Info().Int("pid", cmd.Process.Pid).Dur("timeout", step.Timeout).Msg("step started")
	process := r.startRecord(ctx, step, cmd.Process.Pid)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	var result domain.StepResult
loop:
	for {
		select {
		case err := <-done:
			result = exitResult(step.Label, cmd.ProcessState, err, time.Since(start))
			break loop

		case <-ctx.Done():
			killProcessGroup(cmd)
			<-done
			result = domain.NewStepResult(step.Label, domain.StepStatusFailed, time.Since(start)).WithCode(-1)
			result.Error = "step canceled: " + ctx.Err().Error()
			break loop

		case <-ticker.C:
			if step.Timeout > 0 && time.Since(start) > step.Timeout {
				killProcessGroup(cmd)
				<-done
				result = domain.NewStepResult(step.Label, domain.StepStatusTimeout, time.Since(start))
				break loop
			}
		}
	}

	result.Output = stdout.String()
	if result.Error == "" {
		result.Error = stderr.String()
	} else if tail := stderr.String(); tail != "" {
		result.Error += "\n" + tail
	}

	event := log.Info()
	if !result.OK() {
		event = log.Warn()
	}
	event.Str("status", string(result.Status)).Dur("elapsed", time.Since(start)).Msg("step finished")

	metrics.StepDuration.WithLabelValues(step.Label, string(result.Status)).Observe(time.Since(start).Seconds())
	r.finishRecord(ctx, process, result)
	return result
}

// exitResult classifies a finished step by its exit status. A daemon started
// by the step may keep the output pipes open past a clean exit; Wait then
// reports exec.ErrWaitDelay, which is kept as a note only.
func exitResult(label string, state *os.ProcessState, waitErr error, elapsed time.Duration) domain.StepResult {
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return domain.NewStepResult(label, domain.StepStatusFailed, elapsed).WithCode(exitErr.ExitCode())
	}

	if state == nil {
		result := domain.NewStepResult(label, domain.StepStatusFailed, elapsed).WithCode(-1)
		if waitErr != nil {
			result.Error = waitErr.Error()
		}
		return result
	}

	status := domain.StepStatusOK
	if state.ExitCode() != 0 {
		status = domain.StepStatusFailed
	}
	result := domain.NewStepResult(label, status, elapsed).WithCode(state.ExitCode())
	if waitErr != nil {
		result.Error = waitErr.Error()
	}
	return result
}

func (r *Runner) record(ctx context.Context, step domain.PostRestoreStep, pid int, result domain.StepResult) {
	metrics.StepDuration.WithLabelValues(step.Label, string(result.Status)).Observe(0)
	r.finishRecord(ctx, r.startRecord(ctx, step, pid), result)
}

func (r *Runner) startRecord(ctx context.Context, step domain.PostRestoreStep, pid int) *domain.Process {
	if r.recorder == nil {
		return nil
	}
	process, err := r.recorder.StartStep(context.WithoutCancel(ctx), RunID(ctx), step, pid)
	if err != nil {
		r.logger.Warn().Err(err).Str("step", step.Label).Msg("failed to create process record")
		return nil
	}
	return process
}

func (r *Runner) finishRecord(ctx context.Context, process *domain.Process, result domain.StepResult) {
	if r.recorder == nil || process == nil {
		return
	}
	if err := r.recorder.FinishStep(context.WithoutCancel(ctx), process, result); err != nil {
		r.logger.Warn().Err(err).Str("step", result.Step).Msg("failed to update process record")
	}
}

// getCleanEnvForSystemBinaries drops a LD_LIBRARY_PATH inherited from a
// bundled launcher so system binaries load their own libraries.
func getCleanEnvForSystemBinaries() []string {
	env := os.Environ()
	clean := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, "LD_LIBRARY_PATH=") {
			clean = append(clean, e)
		}
	}
	return clean
}
