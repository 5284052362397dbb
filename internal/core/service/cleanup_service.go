package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/pkg/config"
)

// CleanupService applies the retention rules to the catalog.
type CleanupService struct {
	catalog     *CatalogService
	retention   config.RetentionConfig
	processServ *ProcessService
	logger      zerolog.Logger
	now         func() time.Time
}

func NewCleanupService(catalog *CatalogService, retention config.RetentionConfig, processServ *ProcessService, logger zerolog.Logger) *CleanupService {
	return &CleanupService{
		catalog:     catalog,
		retention:   retention,
		processServ: processServ,
		logger:      logger.With().Str("component", "cleanup").Logger(),
		now:         time.Now,
	}
}

// Expired returns the archives the retention rules would remove. Operator
// and pre-restore snapshots are counted separately; a zero rule is off.
func (s *CleanupService) Expired(ctx context.Context) ([]domain.BackupArchive, error) {
	archives, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if s.retention.MaxAge > 0 {
		cutoff = s.now().Add(-s.retention.MaxAge)
	}

	// archives are newest first
	seen := map[domain.ArchiveKind]int{}
	var expired []domain.BackupArchive
	for _, a := range archives {
		kind := a.Kind()
		seen[kind]++

		keep := s.retention.KeepLast
		if kind == domain.ArchiveKindPreRestore {
			keep = s.retention.KeepPreRestore
		}

		switch {
		case keep > 0 && seen[kind] > keep:
			expired = append(expired, a)
		case !cutoff.IsZero() && a.CreatedAt.Before(cutoff):
			expired = append(expired, a)
		}
	}
	return expired, nil
}

// Prune deletes every expired archive and returns their filenames. A failed
// delete is reported after the remaining archives have been tried.
func (s *CleanupService) Prune(ctx context.Context) ([]string, error) {
	expired, err := s.Expired(ctx)
	if err != nil {
		return nil, err
	}

	deleted := []string{}
	var errs []error
	for _, a := range expired {
		if err := s.catalog.Delete(ctx, a.Filename); err != nil {
			if errors.Is(err, ErrArchiveNotFound) {
				// removed concurrently
				continue
			}
			errs = append(errs, fmt.Errorf("%s: %w", a.Filename, err))
			continue
		}
		deleted = append(deleted, a.Filename)
	}
	pruneErr := errors.Join(errs...)

	s.logger.Info().
		Int("expired", len(expired)).
		Int("deleted", len(deleted)).
		Strs("archives", deleted).
		Msg("retention cleanup finished")

	if s.processServ != nil {
		s.processServ.RecordTask(context.WithoutCancel(ctx), "", "cleanup_backups", domain.ProcessTypeCleanupBackups,
			map[string]interface{}{"deleted": deleted}, pruneErr)
	}

	if pruneErr != nil {
		return deleted, fmt.Errorf("failed to delete expired archives: %w", pruneErr)
	}
	return deleted, nil
}
