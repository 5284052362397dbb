package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/martijn/sitecalm/internal/core/domain"
)

// CatalogService lists, streams and deletes the archives in the backup directory.
type CatalogService struct {
	backupDir  string
	replicator Replicator
	logger     zerolog.Logger
}

func NewCatalogService(backupDir string, logger zerolog.Logger) *CatalogService {
	return &CatalogService{
		backupDir: backupDir,
		logger:    logger.With().Str("component", "catalog").Logger(),
	}
}

func (s *CatalogService) WithReplicator(r Replicator) *CatalogService {
	s.replicator = r
	return s
}

// List returns every archive, newest first.
func (s *CatalogService) List(ctx context.Context) ([]domain.BackupArchive, error) {
	entries, err := os.ReadDir(s.backupDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.BackupArchive{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	archives := make([]domain.BackupArchive, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), domain.ArchiveExtension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed while listing
			continue
		}
		archives = append(archives, s.describe(entry.Name(), info))
	}

	sort.Slice(archives, func(i, j int) bool {
		if archives[i].CreatedAt.Equal(archives[j].CreatedAt) {
			return archives[i].Filename > archives[j].Filename
		}
		return archives[i].CreatedAt.After(archives[j].CreatedAt)
	})
	return archives, nil
}

// Path resolves filename to its location in the catalog. Names that are not
// bare archive filenames can never exist and are reported as not found.
func (s *CatalogService) Path(filename string) (string, error) {
	if !domain.ValidArchiveName(filename) {
		return "", fmt.Errorf("%w: %w: %q", ErrArchiveNotFound, ErrInvalidArchiveName, filename)
	}

	path := filepath.Join(s.backupDir, filename)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrArchiveNotFound, filename)
	}
	return path, nil
}

func (s *CatalogService) Get(ctx context.Context, filename string) (domain.BackupArchive, error) {
	path, err := s.Path(filename)
	if err != nil {
		return domain.BackupArchive{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.BackupArchive{}, fmt.Errorf("%w: %s", ErrArchiveNotFound, filename)
	}
	return s.describe(filename, info), nil
}

// Open returns the archive for streaming. The caller closes the file.
func (s *CatalogService) Open(ctx context.Context, filename string) (*os.File, domain.BackupArchive, error) {
	archive, err := s.Get(ctx, filename)
	if err != nil {
		return nil, domain.BackupArchive{}, err
	}
	f, err := os.Open(archive.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.BackupArchive{}, fmt.Errorf("%w: %s", ErrArchiveNotFound, filename)
		}
		return nil, domain.BackupArchive{}, fmt.Errorf("failed to open archive: %w", err)
	}
	return f, archive, nil
}

// Delete removes an archive, and its offsite copy when replication is on.
func (s *CatalogService) Delete(ctx context.Context, filename string) error {
	path, err := s.Path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrArchiveNotFound, filename)
		}
		return fmt.Errorf("failed to delete archive: %w", err)
	}

	s.logger.Info().Str("archive", filename).Msg("archive deleted")

	if s.replicator != nil {
		if err := s.replicator.Delete(ctx, filename); err != nil {
			s.logger.Warn().Err(err).Str("archive", filename).Msg("failed to delete offsite copy")
		}
	}
	return nil
}

// describe prefers the timestamp in the filename; archives copied in from
// elsewhere fall back to their modification time.
func (s *CatalogService) describe(filename string, info fs.FileInfo) domain.BackupArchive {
	createdAt, ok := domain.ParseArchiveTime(filename)
	if !ok {
		createdAt = info.ModTime()
	}
	return domain.BackupArchive{
		Filename:  filename,
		Path:      filepath.Join(s.backupDir, filename),
		Size:      info.Size(),
		CreatedAt: createdAt,
	}
}
