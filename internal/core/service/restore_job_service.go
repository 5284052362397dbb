package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/core/repository"
)

// RestoreJobService runs restores in the background and persists their state
// so callers can poll for the outcome.
type RestoreJobService struct {
	restores *RestoreService
	catalog  *CatalogService
	jobRepo  repository.RestoreJobRepository
	logger   zerolog.Logger

	wg sync.WaitGroup
}

func NewRestoreJobService(restores *RestoreService, catalog *CatalogService, jobRepo repository.RestoreJobRepository, logger zerolog.Logger) *RestoreJobService {
	return &RestoreJobService{
		restores: restores,
		catalog:  catalog,
		jobRepo:  jobRepo,
		logger:   logger.With().Str("component", "restore_jobs").Logger(),
	}
}

// Start validates the archive, persists a pending job and runs the restore
// on its own goroutine. The restore outlives ctx.
func (s *RestoreJobService) Start(ctx context.Context, req domain.RestoreRequest) (*domain.RestoreJob, error) {
	if req.Mode == "" {
		req.Mode = domain.RestoreModeFull
	}
	if _, err := s.catalog.Path(req.Filename); err != nil {
		return nil, err
	}

	job := domain.NewRestoreJob(req)
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create restore job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("archive", job.Filename).
		Str("mode", string(job.Mode)).
		Msg("restore job queued")

	queued := *job
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(job, req)
	}()
	return &queued, nil
}

func (s *RestoreJobService) run(job *domain.RestoreJob, req domain.RestoreRequest) {
	ctx := context.Background()
	log := s.logger.With().Str("job_id", job.ID).Logger()

	job.Start()
	if err := s.jobRepo.Update(ctx, job); err != nil {
		log.Error().Err(err).Msg("failed to mark restore job running")
	}

	summary, err := s.restores.Restore(ctx, req)
	if err != nil {
		job.Fail(summary, err)
		log.Error().Err(err).Msg("restore job failed")
	} else {
		job.Complete(summary)
		log.Info().Int("failed_steps", len(summary.FailedSteps())).Msg("restore job completed")
	}

	if err := s.jobRepo.Update(ctx, job); err != nil {
		log.Error().Err(err).Msg("failed to store restore job result")
	}
}

func (s *RestoreJobService) Get(ctx context.Context, id string) (*domain.RestoreJob, error) {
	job, err := s.jobRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load restore job: %w", err)
	}
	return job, nil
}

// RecoverUnfinished fails jobs that a previous server instance left pending
// or running.
func (s *RestoreJobService) RecoverUnfinished(ctx context.Context) (int, error) {
	jobs, err := s.jobRepo.FindUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to find unfinished restore jobs: %w", err)
	}
	for _, job := range jobs {
		job.Fail(job.Summary, errors.New("interrupted: server stopped before the restore finished"))
		if err := s.jobRepo.Update(ctx, job); err != nil {
			return 0, fmt.Errorf("failed to update restore job %s: %w", job.ID, err)
		}
	}
	return len(jobs), nil
}

// Wait blocks until every started job has finished.
func (s *RestoreJobService) Wait() {
	s.wg.Wait()
}
