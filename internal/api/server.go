package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/martijn/sitecalm/internal/api/handler"
	"github.com/martijn/sitecalm/internal/api/middleware"
	"github.com/martijn/sitecalm/internal/core/service"
	"github.com/martijn/sitecalm/pkg/config"
)

type Server struct {
	router *gin.Engine
	srv    *http.Server
	config *config.Config
	logger zerolog.Logger
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	logger zerolog.Logger,
	tokenService *service.TokenService,
	processService *service.ProcessService,
	archiveService *service.ArchiveService,
	catalogService *service.CatalogService,
	restoreService *service.RestoreService,
	jobService *service.RestoreJobService,
	cleanupService *service.CleanupService,
	selectorService *service.SelectorService,
	analyticsService *service.AnalyticsService,
) *Server {
	// Set Gin mode
	if !cfg.IsDevMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger = logger.With().Str("component", "api").Logger()
	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.ErrorHandlerMiddleware())
	router.Use(middleware.Metrics())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	// Initialize handlers
	backupHandler := handler.NewBackupHandler(archiveService, catalogService, cfg.BaseURL)
	restoreHandler := handler.NewRestoreHandler(restoreService, jobService)
	cleanupHandler := handler.NewCleanupHandler(cleanupService)
	processHandler := handler.NewProcessHandler(processService)
	publicHandler := handler.NewPublicHandler(selectorService)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService)

	// Public routes (no auth required)
	public := router.Group("/api/public")
	{
		public.GET("/campaigns/:id/variant", publicHandler.Variant)
		public.GET("/:brand/:campaign", publicHandler.RoundRobin)
	}
	router.POST("/api/analytics/track", analyticsHandler.Track)

	// Admin routes
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(tokenService, service.ScopeAdmin))
	{
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
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &Server{
		router: router,
		config: cfg,
		logger: logger,
	}

	return server
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.config.RestoreRequestTimeout,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	// Start with or without SSL
	if s.config.SSLCert != "" && s.config.SSLKey != "" {
		s.logger.Info().Str("addr", addr).Msg("starting HTTPS server")
		return s.srv.ListenAndServeTLS(s.config.SSLCert, s.config.SSLKey)
	}

	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
