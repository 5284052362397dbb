package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/martijn/sitecalm/internal/api/dto"
	"github.com/martijn/sitecalm/internal/api/middleware"
	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/core/repository"
	"github.com/martijn/sitecalm/internal/core/service"
	"github.com/martijn/sitecalm/internal/infrastructure/sqlite"
	"github.com/martijn/sitecalm/pkg/config"
)

// stubTool answers steps by label; unscripted steps succeed.
type stubTool struct {
	mu     sync.Mutex
	script map[string]func(domain.PostRestoreStep) domain.StepResult
	calls  []string
}

func (t *stubTool) on(label string, fn func(domain.PostRestoreStep) domain.StepResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script[label] = fn
}

func (t *stubTool) Run(ctx context.Context, step domain.PostRestoreStep) domain.StepResult {
	t.mu.Lock()
	t.calls = append(t.calls, step.Label)
	fn := t.script[step.Label]
	t.mu.Unlock()

	if fn != nil {
		return fn(step)
	}
	return domain.NewStepResult(step.Label, domain.StepStatusOK, 10*time.Millisecond).WithCode(0)
}

// failingCursors simulates an unreachable round-robin store.
type failingCursors struct{}

func (failingCursors) Next(ctx context.Context, key string, size int, ttl time.Duration) (int, error) {
	return 0, context.DeadlineExceeded
}

func (failingCursors) Close() error { return nil }

// testEnv holds all test dependencies
type testEnv struct {
	db      *sqlite.DB
	appDB   *sqlite.AppDB
	cfg     *config.Config
	tool    *stubTool
	router  *gin.Engine
	token   string
	catalog *service.CatalogService
	jobs    *service.RestoreJobService
}

// setupTestEnv creates a live project in a temp dir, an in-memory state
// database and an in-memory application database with one brand.
func setupTestEnv(t *testing.T) *testEnv {
	return buildTestEnv(t, nil, false)
}

func setupTestEnvWithCursors(t *testing.T, cursors repository.CursorStore) *testEnv {
	return buildTestEnv(t, cursors, false)
}

// setupTestEnvWithLiveAppDB serves campaigns from a real SQLite file at the
// configured database path, so database restores replace what the routes read.
func setupTestEnvWithLiveAppDB(t *testing.T) *testEnv {
	return buildTestEnv(t, nil, true)
}

func buildTestEnv(t *testing.T, cursors repository.CursorStore, liveAppDB bool) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)

	root := t.TempDir()
	cfg := &config.Config{
		BackupDir:          filepath.Join(root, "backups"),
		ProjectRoot:        root,
		DatabasePath:       filepath.Join(root, "backend", "database", "database.sqlite"),
		BackendDir:         "backend",
		FrontendDir:        "frontend",
		ConfigFiles:        []string{"auth_response.json"},
		StagingDir:         t.TempDir(),
		BaseURL:            "https://admin.example.com/",
		BackendExclusions:  config.DefaultBackendExclusions,
		FrontendExclusions: config.DefaultFrontendExclusions,
		BackendKeep:        config.DefaultBackendKeep,
		FrontendKeep:       config.DefaultFrontendKeep,
		PreservePaths:      config.DefaultPreserve,
		PreRestorePolicy:   config.PolicyWarn,
		Retention:          config.RetentionConfig{KeepLast: 1},
		PostRestore: config.PostRestoreConfig{
			Backend:         config.DefaultBackendSteps(),
			Frontend:        config.DefaultFrontendSteps(),
			RestartBackend:  config.StepConfig{Label: "Restart Backend (PM2)", Command: []string{"pm2", "restart", "backend"}, Dir: config.DirBackend, Timeout: time.Minute},
			RestartFrontend: config.StepConfig{Label: "Restart Frontend (PM2)", Command: []string{"pm2", "restart", "frontend"}, Dir: config.DirFrontend, Timeout: time.Minute},
			BuildMarker:     config.DefaultBuildMarker,
		},
	}
	writeProjectFiles(t, root, map[string]string{
		"backend/app/Models/Video.php":     "<?php // v1",
		"backend/.env":                     "APP_KEY=secret",
		"backend/database/database.sqlite": "database v1",
		"frontend/package.json":            `{"name":"site"}`,
		"auth_response.json":               `{"token":"x"}`,
	})

	appDBPath := ":memory:"
	if liveAppDB {
		appDBPath = cfg.DatabasePath
		require.NoError(t, os.Remove(cfg.DatabasePath))
	}
	appDB, err := sqlite.OpenApp(appDBPath)
	require.NoError(t, err)
	require.NoError(t, sqlite.CreateAppSchema(context.Background(), appDB))

	tool := &stubTool{script: map[string]func(domain.PostRestoreStep) domain.StepResult{}}
	// a real build leaves the marker behind
	tool.on("Next Build", func(step domain.PostRestoreStep) domain.StepResult {
		writeProjectFiles(t, cfg.FrontendRoot(), map[string]string{cfg.PostRestore.BuildMarker: "{}"})
		return domain.NewStepResult(step.Label, domain.StepStatusOK, time.Second).WithCode(0)
	})

	logger := zerolog.Nop()
	exporter := sqlite.NewExporter()
	processService := service.NewProcessService(sqlite.NewProcessRepository(db), logger)
	archiveService := service.NewArchiveService(cfg, exporter, logger).WithProcessService(processService)
	catalogService := service.NewCatalogService(cfg.BackupDir, logger)
	restoreService := service.NewRestoreService(cfg, archiveService, catalogService, exporter, tool, logger)
	if liveAppDB {
		restoreService.OnDatabaseReplaced(appDB.Reopen)
	}
	jobService := service.NewRestoreJobService(restoreService, catalogService, sqlite.NewRestoreJobRepository(db), logger)
	cleanupService := service.NewCleanupService(catalogService, cfg.Retention, processService, logger)
	tokenService := service.NewTokenService("test-secret", "HS256")

	if cursors == nil {
		cursors = sqlite.NewCursorStore(db)
	}
	campaigns := sqlite.NewCampaignRepository(appDB)
	selectorService := service.NewSelectorService(campaigns, cursors, time.Hour, logger)
	analyticsService := service.NewAnalyticsService(sqlite.NewAnalyticsRepository(appDB), campaigns, logger)

	backupHandler := NewBackupHandler(archiveService, catalogService, cfg.BaseURL)
	restoreHandler := NewRestoreHandler(restoreService, jobService)
	cleanupHandler := NewCleanupHandler(cleanupService)
	processHandler := NewProcessHandler(processService)
	publicHandler := NewPublicHandler(selectorService)
	analyticsHandler := NewAnalyticsHandler(analyticsService)

	// Setup gin router in test mode
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.GET("/api/public/campaigns/:id/variant", publicHandler.Variant)
	router.GET("/api/public/:brand/:campaign", publicHandler.RoundRobin)
	router.POST("/api/analytics/track", analyticsHandler.Track)

	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(tokenService, service.ScopeAdmin))
	admin.GET("/backups", backupHandler.ListBackups)
	admin.POST("/backups", backupHandler.CreateBackup)
	admin.POST("/backups/cleanup", cleanupHandler.Cleanup)
	admin.GET("/backups/:filename/download", backupHandler.DownloadBackup)
	admin.DELETE("/backups/:filename", backupHandler.DeleteBackup)
	admin.POST("/backups/:filename/restore", restoreHandler.RestoreFull)
	admin.POST("/backups/:filename/restore-code", restoreHandler.RestoreCode)
	admin.POST("/backups/:filename/restore-database", restoreHandler.RestoreDatabase)
	admin.POST("/backups/:filename/restore-async", restoreHandler.RestoreAsync)
	admin.GET("/restore-jobs/:jobId", restoreHandler.GetRestoreJob)
	admin.GET("/processes", processHandler.ListProcesses)
	admin.GET("/processes/:id", processHandler.GetProcess)
	admin.GET("/runs/:run_id/steps", processHandler.ListRunSteps)

	token, _, err := tokenService.Issue("handler-tests", []string{service.ScopeAdmin}, time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		db:      db,
		appDB:   appDB,
		cfg:     cfg,
		tool:    tool,
		router:  router,
		token:   token,
		catalog: catalogService,
		jobs:    jobService,
	}
	t.Cleanup(env.cleanup)
	return env
}

// cleanup waits for background restores and closes the databases
func (env *testEnv) cleanup() {
	env.jobs.Wait()
	if env.db != nil {
		env.db.Close()
	}
	if env.appDB != nil {
		env.appDB.Close()
	}
}

func (env *testEnv) execApp(t *testing.T, query string, args ...interface{}) {
	t.Helper()
	_, err := env.appDB.ExecContext(context.Background(), query, args...)
	require.NoError(t, err)
}

// seedCampaigns creates brand "acme" with an active campaign of three active
// videos (weights 1, 2, 3), one draft video and an inactive campaign.
func (env *testEnv) seedCampaigns(t *testing.T) {
	t.Helper()
	env.execApp(t, `INSERT INTO users (id, username) VALUES (7, 'acme')`)
	env.execApp(t, `INSERT INTO campaigns (id, user_id, name, slug, description, is_active) VALUES
		(1, 7, 'Spring', 'spring', 'Spring launch', 1),
		(2, 7, 'Winter', 'winter', NULL, 0),
		(3, 7, 'Empty', 'empty', NULL, 1)`)
	env.execApp(t, `INSERT INTO videos (id, campaign_id, title, slug, file_path, cta_text, weight, status) VALUES
		(10, 1, 'A', 'a', '/videos/a.mp4', 'Buy', 1, 'active'),
		(11, 1, 'B', 'b', '/videos/b.mp4', NULL, 2, 'active'),
		(12, 1, 'Draft', 'draft', NULL, NULL, 9, 'draft'),
		(13, 1, 'C', 'c', '/videos/c.mp4', NULL, 3, 'active'),
		(20, 2, 'W', 'w', NULL, NULL, 1, 'active')`)
}

// snapshot creates an operator archive and returns its filename
func (env *testEnv) snapshot(t *testing.T) string {
	t.Helper()
	w := env.request(t, http.MethodPost, "/api/admin/backups", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp dto.CreateBackupResponse
	decode(t, w, &resp)
	return resp.Filename
}

// request performs an authenticated request and returns the response
func (env *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return env.requestWithToken(t, method, path, body, env.token)
}

func (env *testEnv) requestWithToken(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// makeRequest performs an authenticated GET request
func (env *testEnv) makeRequest(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return env.request(t, http.MethodGet, path, nil)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response: %v\nBody: %s", err, w.Body.String())
	}
}

// parseProcessListResponse parses the response body into ProcessListResponse
func parseProcessListResponse(t *testing.T, w *httptest.ResponseRecorder) dto.ProcessListResponse {
	t.Helper()
	var resp dto.ProcessListResponse
	decode(t, w, &resp)
	return resp
}

// parseErrorResponse parses the response body into ErrorResponse
func parseErrorResponse(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	decode(t, w, &resp)
	return resp
}

func writeProjectFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

// ptr is a helper to create a pointer to a value
func ptr[T any](v T) *T {
	return &v
}
