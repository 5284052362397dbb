package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/martijn/sitecalm/internal/adapter/archive"
	"github.com/martijn/sitecalm/internal/adapter/tree"
	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/metrics"
	"github.com/martijn/sitecalm/pkg/config"
)

// DatabaseExporter produces a consistent copy of the live database.
type DatabaseExporter interface {
	Export(ctx context.Context, src, dst string) error
	Verify(ctx context.Context, path string) error
}

// Replicator mirrors catalog archives to offsite storage.
type Replicator interface {
	Upload(ctx context.Context, localPath string) error
	Delete(ctx context.Context, filename string) error
}

// ArchiveService creates snapshot archives of the live deployment.
type ArchiveService struct {
	cfg         *config.Config
	exporter    DatabaseExporter
	replicator  Replicator
	processServ *ProcessService
	logger      zerolog.Logger
	now         func() time.Time

	// guards filename allocation
	mu sync.Mutex
}

func NewArchiveService(cfg *config.Config, exporter DatabaseExporter, logger zerolog.Logger) *ArchiveService {
	return &ArchiveService{
		cfg:      cfg,
		exporter: exporter,
		logger:   logger.With().Str("component", "archiver").Logger(),
		now:      time.Now,
	}
}

func (s *ArchiveService) WithReplicator(r Replicator) *ArchiveService {
	s.replicator = r
	return s
}

func (s *ArchiveService) WithProcessService(p *ProcessService) *ArchiveService {
	s.processServ = p
	return s
}

// CreateSnapshot archives the backend and frontend trees, a database export
// and the flat config files into a new catalog entry.
func (s *ArchiveService) CreateSnapshot(ctx context.Context, kind domain.ArchiveKind) (result *domain.BackupArchive, err error) {
	start := time.Now()
	defer func() {
		metrics.SnapshotsTotal.WithLabelValues(string(kind), metrics.Result(err)).Inc()
		metrics.SnapshotDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	for _, root := range s.cfg.SourceRoots() {
		if config.IsWithin(s.cfg.StagingDir, root) {
			return nil, fmt.Errorf("%w: staging directory %s is inside source root %s", ErrArchiveCreation, s.cfg.StagingDir, root)
		}
	}
	if err := os.MkdirAll(s.cfg.BackupDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := os.MkdirAll(s.cfg.StagingDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	filename, createdAt, err := s.reserveName(kind)
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(s.cfg.BackupDir, filename)
	defer os.Remove(dest + ".partial")

	log := s.logger.With().Str("archive", filename).Str("kind", string(kind)).Logger()
	log.Info().Msg("creating snapshot")

	base := domain.ArchiveBaseName(filename)
	stage, err := os.MkdirTemp(s.cfg.StagingDir, base+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	root := filepath.Join(stage, base)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	manifest := domain.NewManifest(kind, createdAt)

	if err := s.exportDatabase(ctx, root, manifest, log); err != nil {
		return nil, err
	}
	if err := s.copyTrees(ctx, root, manifest, log); err != nil {
		return nil, err
	}
	if err := s.copyConfigFiles(root, manifest); err != nil {
		return nil, err
	}
	if err := writeManifest(root, manifest); err != nil {
		return nil, err
	}

	size, err := archive.Create(ctx, root, dest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveCreation, err)
	}

	// the archive must exist afterwards, whatever the writer reported
	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is missing after compression", ErrArchiveCreation, filename)
	}

	result = &domain.BackupArchive{
		Filename:  filename,
		Path:      dest,
		Size:      info.Size(),
		CreatedAt: createdAt,
	}

	log.Info().
		Str("size", humanize.IBytes(uint64(size))).
		Dur("elapsed", time.Since(start)).
		Msg("snapshot created")

	if s.replicator != nil {
		if err := s.replicator.Upload(ctx, dest); err != nil {
			log.Warn().Err(err).Msg("offsite upload failed; local archive kept")
		}
	}
	if s.processServ != nil {
		s.processServ.RecordTask(context.WithoutCancel(ctx), "", "snapshot "+filename, domain.ProcessTypeSnapshot,
			map[string]interface{}{"filename": filename, "kind": string(kind)}, nil)
	}

	return result, nil
}

// reserveName picks an unused filename. Two snapshots in the same second get
// consecutive timestamps; the .partial placeholder holds the name until the
// archive is renamed into place.
func (s *ArchiveService) reserveName(kind domain.ArchiveKind) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().Truncate(time.Second)
	for attempt := 0; attempt < 60; attempt++ {
		name := domain.ArchiveName(kind, t)
		dest := filepath.Join(s.cfg.BackupDir, name)

		if _, err := os.Stat(dest); errors.Is(err, fs.ErrNotExist) {
			f, err := os.OpenFile(dest+".partial", os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
			if err == nil {
				f.Close()
				return name, t, nil
			}
			if !errors.Is(err, fs.ErrExist) {
				return "", time.Time{}, fmt.Errorf("failed to reserve archive name: %w", err)
			}
		}
		t = t.Add(time.Second)
	}
	return "", time.Time{}, fmt.Errorf("%w: no free archive name", ErrArchiveCreation)
}

func (s *ArchiveService) exportDatabase(ctx context.Context, root string, manifest *domain.Manifest, log zerolog.Logger) error {
	if _, err := os.Stat(s.cfg.DatabasePath); errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("database", s.cfg.DatabasePath).Msg("database file not found; snapshot has no database")
		return nil
	}

	dst := filepath.Join(root, domain.DatabaseFilename)
	if err := s.exporter.Export(ctx, s.cfg.DatabasePath, dst); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	manifest.Database = domain.DatabaseFilename
	return nil
}

func (s *ArchiveService) copyTrees(ctx context.Context, root string, manifest *domain.Manifest, log zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	copyRoot := func(src, name string, patterns []string) func() error {
		return func() error {
			stats, err := tree.Copy(gctx, src, filepath.Join(root, name), s.exclusionsFor(src, patterns))
			if err != nil {
				return fmt.Errorf("failed to copy %s tree: %w", name, err)
			}
			log.Debug().
				Str("tree", name).
				Int("files", stats.Files).
				Int("skipped", stats.Skipped).
				Str("bytes", humanize.IBytes(uint64(stats.Bytes))).
				Msg("tree copied")
			return nil
		}
	}

	if dirExists(s.cfg.BackendRoot()) {
		manifest.Backend = domain.BackendTreeName
		g.Go(copyRoot(s.cfg.BackendRoot(), domain.BackendTreeName, s.cfg.BackendExclusions))
	} else {
		log.Warn().Str("path", s.cfg.BackendRoot()).Msg("backend directory not found; skipped")
	}

	if fr := s.cfg.FrontendRoot(); fr != "" && dirExists(fr) {
		manifest.Frontend = domain.FrontendTreeName
		g.Go(copyRoot(fr, domain.FrontendTreeName, s.cfg.FrontendExclusions))
	}

	return g.Wait()
}

// exclusionsFor adds the backup and staging directories and the live
// database when they live below the source root, on top of the mandatory and
// configured patterns. The database travels as its own export.
func (s *ArchiveService) exclusionsFor(src string, patterns []string) domain.ExclusionSet {
	set := domain.NewExclusionSet(patterns...)
	for _, dir := range []string{s.cfg.BackupDir, s.cfg.StagingDir} {
		if config.IsWithin(dir, src) {
			if rel, err := filepath.Rel(src, dir); err == nil && rel != "." {
				set = set.Add(rel)
			}
		}
	}
	return set.Add(databasePaths(s.cfg.DatabasePath, src)...)
}

// databasePaths returns the database file and its SQLite sidecars relative to
// root, or nothing when the database lives elsewhere.
func databasePaths(dbPath, root string) []string {
	if !config.IsWithin(dbPath, root) {
		return nil
	}
	rel, err := filepath.Rel(root, dbPath)
	if err != nil || rel == "." {
		return nil
	}
	rel = filepath.ToSlash(rel)
	return []string{rel, rel + "-wal", rel + "-shm", rel + "-journal"}
}

func (s *ArchiveService) copyConfigFiles(root string, manifest *domain.Manifest) error {
	for _, name := range s.cfg.ConfigFiles {
		src := filepath.Join(s.cfg.ProjectRoot, name)
		info, err := os.Stat(src)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := tree.CopyFile(src, filepath.Join(root, name)); err != nil {
			return fmt.Errorf("failed to copy config file %s: %w", name, err)
		}
		manifest.ConfigFiles = append(manifest.ConfigFiles, name)
	}
	return nil
}

func writeManifest(root string, manifest *domain.Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, domain.ManifestFilename), data, 0o640); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	info := fmt.Sprintf("Backup created on: %s\n", manifest.CreatedAt.Format("2006-01-02 15:04:05"))
	if err := os.WriteFile(filepath.Join(root, domain.InfoFilename), []byte(info), 0o640); err != nil {
		return fmt.Errorf("failed to write backup info: %w", err)
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
