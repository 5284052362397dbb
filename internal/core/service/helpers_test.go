package service

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/martijn/sitecalm/internal/adapter/archive"
	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/pkg/config"
)

// fakeExporter copies the database file byte for byte.
type fakeExporter struct {
	mu         sync.Mutex
	exportErr  error
	verifyErr  error
	exported   int
	verifyPath string
}

func (e *fakeExporter) Export(ctx context.Context, src, dst string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exportErr != nil {
		return e.exportErr
	}
	e.exported++
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func (e *fakeExporter) Verify(ctx context.Context, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verifyPath = path
	return e.verifyErr
}

func (e *fakeExporter) failExports(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exportErr = err
}

// scriptedTool answers each step from a script keyed by label; unscripted
// steps succeed with code 0.
type scriptedTool struct {
	mu     sync.Mutex
	script map[string]func(domain.PostRestoreStep) domain.StepResult
	calls  []domain.PostRestoreStep
}

func newScriptedTool() *scriptedTool {
	return &scriptedTool{script: map[string]func(domain.PostRestoreStep) domain.StepResult{}}
}

func (t *scriptedTool) on(label string, fn func(domain.PostRestoreStep) domain.StepResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script[label] = fn
}

func (t *scriptedTool) Run(ctx context.Context, step domain.PostRestoreStep) domain.StepResult {
	t.mu.Lock()
	t.calls = append(t.calls, step)
	fn := t.script[step.Label]
	t.mu.Unlock()

	if fn != nil {
		return fn(step)
	}
	return domain.NewStepResult(step.Label, domain.StepStatusOK, 10*time.Millisecond).WithCode(0)
}

func (t *scriptedTool) labels() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.calls))
	for i, c := range t.calls {
		out[i] = c.Label
	}
	return out
}

func failed(code int) func(domain.PostRestoreStep) domain.StepResult {
	return func(step domain.PostRestoreStep) domain.StepResult {
		return domain.NewStepResult(step.Label, domain.StepStatusFailed, time.Second).WithCode(code)
	}
}

func timedOut(step domain.PostRestoreStep) domain.StepResult {
	return domain.NewStepResult(step.Label, domain.StepStatusTimeout, step.Timeout)
}

// fixture is a small live deployment with a backend, a frontend, a database
// and flat config files.
type fixture struct {
	cfg      *config.Config
	exporter *fakeExporter
	tool     *scriptedTool
	archives *ArchiveService
	catalog  *CatalogService
	restores *RestoreService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	cfg := &config.Config{
		BackupDir:          filepath.Join(root, "backups"),
		ProjectRoot:        root,
		DatabasePath:       filepath.Join(root, "backend", "database", "database.sqlite"),
		BackendDir:         "backend",
		FrontendDir:        "frontend",
		ConfigFiles:        []string{"auth_response.json", "campaign_response.json"},
		StagingDir:         t.TempDir(),
		BackendExclusions:  config.DefaultBackendExclusions,
		FrontendExclusions: config.DefaultFrontendExclusions,
		BackendKeep:        config.DefaultBackendKeep,
		FrontendKeep:       config.DefaultFrontendKeep,
		PreservePaths:      config.DefaultPreserve,
		PreRestorePolicy:   config.PolicyWarn,
		PostRestore: config.PostRestoreConfig{
			Backend:         config.DefaultBackendSteps(),
			Frontend:        config.DefaultFrontendSteps(),
			RestartBackend:  config.StepConfig{Label: "Restart Backend (PM2)", Command: []string{"pm2", "restart", "backend"}, Dir: config.DirBackend, Timeout: time.Minute},
			RestartFrontend: config.StepConfig{Label: "Restart Frontend (PM2)", Command: []string{"pm2", "restart", "frontend"}, Dir: config.DirFrontend, Timeout: time.Minute},
			BuildMarker:     config.DefaultBuildMarker,
		},
	}

	writeFiles(t, root, map[string]string{
		"backend/app/Http/Kernel.php":          "<?php // kernel v1",
		"backend/routes/api.php":               "<?php // routes v1",
		"backend/.env":                         "APP_KEY=live-secret",
		"backend/vendor/autoload.php":          "<?php // vendor",
		"backend/storage/logs/laravel.log":     "log line 1\n",
		"backend/database/database.sqlite":     "database v1",
		"frontend/package.json":                `{"name":"site"}`,
		"frontend/src/app/page.tsx":            "export default function Page() {}",
		"frontend/node_modules/react/index.js": "module.exports = {}",
		"frontend/.next/server/pages/index.js": "built",
		"auth_response.json":                   `{"token":"x"}`,
		"campaign_response.json":               `{"campaign":1}`,
	})

	exporter := &fakeExporter{}
	tool := newScriptedTool()
	logger := zerolog.Nop()

	archives := NewArchiveService(cfg, exporter, logger)
	catalog := NewCatalogService(cfg.BackupDir, logger)

	return &fixture{
		cfg:      cfg,
		exporter: exporter,
		tool:     tool,
		archives: archives,
		catalog:  catalog,
		restores: NewRestoreService(cfg, archives, catalog, exporter, tool, logger),
	}
}

func (f *fixture) path(rel string) string {
	return filepath.Join(f.cfg.ProjectRoot, filepath.FromSlash(rel))
}

func (f *fixture) snapshot(t *testing.T) *domain.BackupArchive {
	t.Helper()
	a, err := f.archives.CreateSnapshot(context.Background(), domain.ArchiveKindOperator)
	require.NoError(t, err)
	return a
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// treeContents maps every regular file below root to its contents.
func treeContents(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

// archiveContents extracts an archive and returns its files keyed by path
// relative to the snapshot root.
func archiveContents(t *testing.T, a *domain.BackupArchive) map[string]string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, archive.Extract(context.Background(), a.Path, dir))
	return treeContents(t, filepath.Join(dir, domain.ArchiveBaseName(a.Filename)))
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
