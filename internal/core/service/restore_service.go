package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/martijn/sitecalm/internal/adapter/archive"
	"github.com/martijn/sitecalm/internal/adapter/tool"
	"github.com/martijn/sitecalm/internal/adapter/tree"
	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/metrics"
	"github.com/martijn/sitecalm/pkg/config"
)

// VerifyBuildLabel is the pipeline step that checks for the frontend build marker.
const VerifyBuildLabel = "Verify Next build"

// RestoreService rebuilds the live deployment from a catalog archive.
//
// A restore runs PRE_SNAPSHOT, EXTRACT, RESTORE_FILES (files and full mode),
// RESTORE_DB (database and full mode), the post-restore pipeline and finally
// removes its staging directory. Nothing is rolled back on failure.
type RestoreService struct {
	cfg      *config.Config
	archives *ArchiveService
	catalog  *CatalogService
	exporter DatabaseExporter
	tool     tool.ExternalTool
	logger   zerolog.Logger

	// called after RESTORE_DB so open pools follow the new file
	databaseReplaced []func() error

	// one restore at a time per process
	running sync.Mutex
}

func NewRestoreService(
	cfg *config.Config,
	archives *ArchiveService,
	catalog *CatalogService,
	exporter DatabaseExporter,
	externalTool tool.ExternalTool,
	logger zerolog.Logger,
) *RestoreService {
	return &RestoreService{
		cfg:      cfg,
		archives: archives,
		catalog:  catalog,
		exporter: exporter,
		tool:     externalTool,
		logger:   logger.With().Str("component", "restore").Logger(),
	}
}

// OnDatabaseReplaced registers fn to run after a restore has renamed a new
// database over the live path. A failing hook becomes a summary warning.
func (s *RestoreService) OnDatabaseReplaced(fn func() error) *RestoreService {
	s.databaseReplaced = append(s.databaseReplaced, fn)
	return s
}

// Restore runs a restore to completion. On a hard failure the returned
// summary still holds everything done up to that point.
func (s *RestoreService) Restore(ctx context.Context, req domain.RestoreRequest) (summary *domain.RestoreSummary, err error) {
	if req.Mode == "" {
		req.Mode = domain.RestoreModeFull
	}
	summary = domain.NewRestoreSummary(req)

	archivePath, err := s.catalog.Path(req.Filename)
	if err != nil {
		return summary, err
	}

	if !s.running.TryLock() {
		return summary, ErrRestoreInProgress
	}
	defer s.running.Unlock()

	// a caller going away must not abort a restore halfway
	ctx = tool.WithRunID(context.WithoutCancel(ctx), summary.RunID)

	log := s.logger.With().
		Str("run_id", summary.RunID).
		Str("archive", req.Filename).
		Str("mode", string(req.Mode)).
		Logger()
	log.Info().Msg("restore started")

	defer func() {
		summary.Finish()
		metrics.RestoresTotal.WithLabelValues(string(req.Mode), metrics.Result(err)).Inc()
		if err != nil {
			log.Error().Err(err).Int("steps", len(summary.Steps)).Msg("restore failed")
			return
		}
		log.Info().
			Int("steps", len(summary.Steps)).
			Int("failed_steps", len(summary.FailedSteps())).
			Msg("restore finished")
	}()

	// PRE_SNAPSHOT
	if err := s.preRestoreSnapshot(ctx, summary, log); err != nil {
		return summary, err
	}

	// EXTRACT
	if err := os.MkdirAll(s.cfg.StagingDir, 0o700); err != nil {
		return summary, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	stage, err := os.MkdirTemp(s.cfg.StagingDir, "restore-*")
	if err != nil {
		return summary, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	// CLEANUP
	defer os.RemoveAll(stage)

	if err := archive.Extract(ctx, archivePath, stage); err != nil {
		return summary, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	root, manifest, err := locateArchiveRoot(stage)
	if err != nil {
		return summary, err
	}

	var backendTouched, frontendTouched bool

	// RESTORE_FILES
	if req.Mode.RestoresFiles() {
		frontendTouched, err = s.restoreFiles(ctx, root, manifest, summary, log)
		if err != nil {
			return summary, err
		}
		// backend steps run on every code restore, with or without a backend tree
		backendTouched = true
	}

	// RESTORE_DB
	if req.Mode.RestoresDatabase() {
		if err := s.restoreDatabase(ctx, root, manifest, summary, log); err != nil {
			return summary, err
		}
		backendTouched = true
	}

	// POST_RESTORE_PIPELINE
	s.runPipeline(ctx, backendTouched, frontendTouched, summary)

	return summary, nil
}

func (s *RestoreService) preRestoreSnapshot(ctx context.Context, summary *domain.RestoreSummary, log zerolog.Logger) error {
	snapshot, err := s.archives.CreateSnapshot(ctx, domain.ArchiveKindPreRestore)
	if err == nil {
		summary.PreRestoreSnapshot = snapshot.Filename
		log.Info().Str("snapshot", snapshot.Filename).Msg("pre-restore snapshot created")
		return nil
	}

	if s.cfg.PreRestorePolicy == config.PolicyRequire {
		return fmt.Errorf("%w: %v", ErrPreRestoreSnapshot, err)
	}
	summary.Warn("pre-restore snapshot failed: " + err.Error())
	log.Warn().Err(err).Msg("pre-restore snapshot failed; continuing")
	return nil
}

// locateArchiveRoot finds the snapshot root inside an extraction directory and
// reads its manifest. Archives without a manifest use the fixed legacy layout
// below their single top-level directory.
func locateArchiveRoot(stage string) (string, *domain.Manifest, error) {
	entries, err := os.ReadDir(stage)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if len(entries) == 0 {
		return "", nil, fmt.Errorf("%w: archive is empty", ErrExtraction)
	}

	root := stage
	if len(entries) == 1 && entries[0].IsDir() {
		root = filepath.Join(stage, entries[0].Name())
	}

	data, err := os.ReadFile(filepath.Join(root, domain.ManifestFilename))
	if errors.Is(err, fs.ErrNotExist) {
		return root, domain.LegacyManifest(), nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	var manifest domain.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", nil, fmt.Errorf("%w: invalid manifest: %v", ErrExtraction, err)
	}
	if manifest.Version > domain.ManifestVersion {
		return "", nil, fmt.Errorf("%w: unsupported manifest version %d", ErrExtraction, manifest.Version)
	}
	for _, rel := range append([]string{manifest.Backend, manifest.Frontend, manifest.Database}, manifest.ConfigFiles...) {
		if rel != "" && (filepath.IsAbs(rel) || !config.IsWithin(filepath.Join(root, rel), root)) {
			return "", nil, fmt.Errorf("%w: manifest path %q leaves the archive", ErrExtraction, rel)
		}
	}
	return root, &manifest, nil
}

func (s *RestoreService) restoreFiles(ctx context.Context, root string, manifest *domain.Manifest, summary *domain.RestoreSummary, log zerolog.Logger) (frontend bool, err error) {
	if src := filepath.Join(root, manifest.Backend); manifest.Backend != "" && dirExists(src) {
		if err := s.restoreBackend(ctx, src, log); err != nil {
			return false, err
		}
	} else {
		summary.Warn("archive has no backend tree; backend files left untouched")
	}

	if fr := s.cfg.FrontendRoot(); fr != "" {
		if src := filepath.Join(root, manifest.Frontend); manifest.Frontend != "" && dirExists(src) {
			if err := os.MkdirAll(fr, 0o755); err != nil {
				return false, fmt.Errorf("failed to create frontend directory: %w", err)
			}
			stats, err := tree.Mirror(ctx, src, fr, s.keepFor(fr, s.cfg.FrontendKeep))
			if err != nil {
				return false, fmt.Errorf("failed to restore frontend files: %w", err)
			}
			log.Info().Int("files", stats.Files).Int("removed", stats.Removed).Msg("frontend files restored")
			frontend = true
		}
	}

	if err := s.restoreConfigFiles(root, manifest, log); err != nil {
		return frontend, err
	}
	return frontend, nil
}

// restoreBackend mirrors the archived backend over the live one. Live-only
// artifacts (secrets, logs) are set aside first and put back afterwards.
func (s *RestoreService) restoreBackend(ctx context.Context, src string, log zerolog.Logger) error {
	live := s.cfg.BackendRoot()
	if err := os.MkdirAll(live, 0o755); err != nil {
		return fmt.Errorf("failed to create backend directory: %w", err)
	}

	preserve, err := os.MkdirTemp(s.cfg.StagingDir, "preserve-*")
	if err != nil {
		return fmt.Errorf("failed to create preserve directory: %w", err)
	}
	defer os.RemoveAll(preserve)

	var saved []string
	for _, rel := range s.cfg.PreservePaths {
		from := filepath.Join(live, rel)
		if _, err := os.Lstat(from); err != nil {
			continue
		}
		if err := tree.CopyPath(ctx, from, filepath.Join(preserve, rel)); err != nil {
			return fmt.Errorf("failed to preserve %s: %w", rel, err)
		}
		saved = append(saved, rel)
	}

	stats, err := tree.Mirror(ctx, src, live, s.keepFor(live, s.cfg.BackendKeep))
	if err != nil {
		return fmt.Errorf("failed to restore backend files: %w", err)
	}

	for _, rel := range saved {
		to := filepath.Join(live, rel)
		if err := os.RemoveAll(to); err != nil {
			return fmt.Errorf("failed to restore preserved %s: %w", rel, err)
		}
		if err := tree.CopyPath(ctx, filepath.Join(preserve, rel), to); err != nil {
			return fmt.Errorf("failed to restore preserved %s: %w", rel, err)
		}
	}

	log.Info().
		Int("files", stats.Files).
		Int("removed", stats.Removed).
		Strs("preserved", saved).
		Msg("backend files restored")
	return nil
}

// keepFor lists what a file restore must leave alone below root: the
// configured keep patterns, the mandatory exclusions, the backup directory
// and the live database, which only a database restore replaces.
func (s *RestoreService) keepFor(root string, patterns []string) domain.ExclusionSet {
	set := domain.NewExclusionSet(patterns...)
	if config.IsWithin(s.cfg.BackupDir, root) {
		if rel, err := filepath.Rel(root, s.cfg.BackupDir); err == nil && rel != "." {
			set = set.Add(rel)
		}
	}
	return set.Add(databasePaths(s.cfg.DatabasePath, root)...)
}

func (s *RestoreService) restoreConfigFiles(root string, manifest *domain.Manifest, log zerolog.Logger) error {
	names := manifest.ConfigFiles
	if manifest.Version == 0 {
		names = s.cfg.ConfigFiles
	}
	for _, name := range names {
		src := filepath.Join(root, name)
		if !fileExists(src) {
			continue
		}
		if err := tree.CopyFile(src, filepath.Join(s.cfg.ProjectRoot, name)); err != nil {
			return fmt.Errorf("failed to restore config file %s: %w", name, err)
		}
		log.Debug().Str("file", name).Msg("config file restored")
	}
	return nil
}

// restoreDatabase swaps the live database for the archived export. The copy
// lands in a temp file next to the live one and is renamed over it, so the
// live path always holds either the old or the new database.
func (s *RestoreService) restoreDatabase(ctx context.Context, root string, manifest *domain.Manifest, summary *domain.RestoreSummary, log zerolog.Logger) error {
	if manifest.Database == "" {
		return ErrMissingDatabaseBackup
	}
	src := filepath.Join(root, manifest.Database)
	if !fileExists(src) {
		return fmt.Errorf("%w: %s", ErrMissingDatabaseBackup, manifest.Database)
	}

	live := s.cfg.DatabasePath
	dir := filepath.Dir(live)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	tmp, err := copyToTemp(src, dir)
	if err != nil {
		return fmt.Errorf("failed to stage database: %w", err)
	}
	defer os.Remove(tmp)

	if info, err := os.Stat(live); err == nil {
		_ = os.Chmod(tmp, info.Mode().Perm())
	}

	if s.exporter != nil {
		if err := s.exporter.Verify(ctx, tmp); err != nil {
			summary.Warn("restored database failed integrity check: " + err.Error())
			log.Warn().Err(err).Msg("restored database failed integrity check")
		}
	}

	// stale WAL pages from the old database must not be replayed into the new one
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(live + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", live+suffix, err)
		}
	}

	if err := os.Rename(tmp, live); err != nil {
		return fmt.Errorf("failed to replace database: %w", err)
	}
	log.Info().Str("database", live).Msg("database restored")

	for _, fn := range s.databaseReplaced {
		if err := fn(); err != nil {
			summary.Warn("failed to reopen the application database: " + err.Error())
			log.Error().Err(err).Msg("failed to reopen the application database")
		}
	}
	return nil
}

func copyToTemp(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.CreateTemp(dir, ".sitecalm-restore-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// pipelineStep is either an external command or, when marker is set, a check
// that the file exists.
type pipelineStep struct {
	domain.PostRestoreStep
	marker string
}

// Plan returns the ordered post-restore steps for the sides a restore touched.
// Backend steps run on every code or database restore; the backend restart
// always runs.
func (s *RestoreService) Plan(backendTouched, frontendTouched bool) []domain.PostRestoreStep {
	steps := s.plan(backendTouched, frontendTouched)
	out := make([]domain.PostRestoreStep, len(steps))
	for i, step := range steps {
		out[i] = step.PostRestoreStep
	}
	return out
}

func (s *RestoreService) plan(backendTouched, frontendTouched bool) []pipelineStep {
	pr := s.cfg.PostRestore
	var steps []pipelineStep

	if backendTouched {
		for _, sc := range pr.Backend {
			steps = append(steps, pipelineStep{PostRestoreStep: s.toStep(sc)})
		}
	}

	if frontendTouched {
		for _, sc := range pr.Frontend {
			steps = append(steps, pipelineStep{PostRestoreStep: s.toStep(sc)})
		}
		if pr.BuildMarker != "" {
			steps = append(steps, pipelineStep{
				PostRestoreStep: domain.PostRestoreStep{Label: VerifyBuildLabel},
				marker:          filepath.Join(s.cfg.FrontendRoot(), pr.BuildMarker),
			})
		}
	}

	steps = append(steps, pipelineStep{PostRestoreStep: s.toStep(pr.RestartBackend)})
	if frontendTouched {
		steps = append(steps, pipelineStep{PostRestoreStep: s.toStep(pr.RestartFrontend)})
	}
	return steps
}

func (s *RestoreService) toStep(sc config.StepConfig) domain.PostRestoreStep {
	dir := s.cfg.BackendRoot()
	if sc.Dir == config.DirFrontend && s.cfg.FrontendRoot() != "" {
		dir = s.cfg.FrontendRoot()
	}
	return domain.PostRestoreStep{
		Label:   sc.Label,
		Command: domain.NewCommand(sc.Command, dir),
		Timeout: sc.Timeout,
	}
}

// runPipeline executes every step in order. A failed step is recorded and the
// next one still runs.
func (s *RestoreService) runPipeline(ctx context.Context, backendTouched, frontendTouched bool, summary *domain.RestoreSummary) {
	for _, step := range s.plan(backendTouched, frontendTouched) {
		if step.marker != "" {
			summary.AddStep(verifyMarker(step.Label, step.marker))
			continue
		}
		summary.AddStep(s.tool.Run(ctx, step.PostRestoreStep))
	}
}

func verifyMarker(label, marker string) domain.StepResult {
	start := time.Now()
	if fileExists(marker) {
		return domain.NewStepResult(label, domain.StepStatusOK, time.Since(start))
	}
	return domain.NewStepResult(label, domain.StepStatusMissingArtifact, time.Since(start))
}
