package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/core/repository"
)

type ProcessService struct {
	processRepo repository.ProcessRepository
	logger      zerolog.Logger
}

func NewProcessService(processRepo repository.ProcessRepository, logger zerolog.Logger) *ProcessService {
	return &ProcessService{
		processRepo: processRepo,
		logger:      logger.With().Str("component", "process").Logger(),
	}
}

// StartStep creates the running record for a post-restore step.
func (s *ProcessService) StartStep(ctx context.Context, runID string, step domain.PostRestoreStep, pid int) (*domain.Process, error) {
	args := map[string]interface{}{
		"step":    step.Label,
		"dir":     step.Command.Dir,
		"timeout": step.Timeout.Seconds(),
	}
	process := domain.NewProcess(runID, step.Command.String(), domain.ProcessTypePostRestoreStep, args)
	process.SetPID(pid)

	if err := s.processRepo.Create(ctx, process); err != nil {
		return nil, fmt.Errorf("failed to create process: %w", err)
	}
	return process, nil
}

// FinishStep stores the outcome of a step started with StartStep.
func (s *ProcessService) FinishStep(ctx context.Context, process *domain.Process, result domain.StepResult) error {
	process.Complete(result)
	if err := s.processRepo.Update(ctx, process); err != nil {
		return fmt.Errorf("failed to update process: %w", err)
	}
	return nil
}

// RecordTask stores a finished in-process task (snapshot, cleanup) so it shows
// up next to the external steps.
func (s *ProcessService) RecordTask(ctx context.Context, commandID, command string, processType domain.ProcessType, args map[string]interface{}, taskErr error) {
	process := domain.NewProcess(commandID, command, processType, args)
	if err := s.processRepo.Create(ctx, process); err != nil {
		s.logger.Warn().Err(err).Str("command", command).Msg("failed to record task")
		return
	}

	if taskErr != nil {
		process.Fail(taskErr.Error())
	} else {
		code := 0
		process.Complete(domain.StepResult{Status: domain.StepStatusOK, Code: &code})
	}
	if err := s.processRepo.Update(ctx, process); err != nil {
		s.logger.Warn().Err(err).Str("command", command).Msg("failed to record task")
	}
}

// FailInterrupted marks records left running by a previous server instance.
func (s *ProcessService) FailInterrupted(ctx context.Context) (int, error) {
	running, err := s.processRepo.FindRunning(ctx)
	if err != nil {
		return 0, err
	}
	for _, process := range running {
		process.Fail("interrupted: server stopped while the step was running")
		if err := s.processRepo.Update(ctx, process); err != nil {
			return 0, err
		}
	}
	return len(running), nil
}

// GetProcess retrieves a process by ID
func (s *ProcessService) GetProcess(ctx context.Context, id int64) (*domain.Process, error) {
	return s.processRepo.FindByID(ctx, id)
}

// GetProcessesByCommandID returns every step recorded for one restore run
func (s *ProcessService) GetProcessesByCommandID(ctx context.Context, commandID string) ([]*domain.Process, error) {
	return s.processRepo.FindByCommandID(ctx, commandID)
}

// ListProcesses lists processes with filtering
func (s *ProcessService) ListProcesses(ctx context.Context, filter repository.ProcessFilter) ([]*domain.Process, error) {
	return s.processRepo.List(ctx, filter)
}

// CountProcesses counts processes with filtering
func (s *ProcessService) CountProcesses(ctx context.Context, filter repository.ProcessFilter) (int, error) {
	return s.processRepo.Count(ctx, filter)
}
