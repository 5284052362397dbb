package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/martijn/sitecalm/internal/adapter/tool"
	"github.com/martijn/sitecalm/internal/core/repository"
	"github.com/martijn/sitecalm/internal/core/service"
	"github.com/martijn/sitecalm/internal/infrastructure/cache"
	"github.com/martijn/sitecalm/internal/infrastructure/kv"
	"github.com/martijn/sitecalm/internal/infrastructure/s3"
	"github.com/martijn/sitecalm/internal/infrastructure/sqlite"
	"github.com/martijn/sitecalm/internal/logging"
	"github.com/martijn/sitecalm/pkg/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sitecalm",
	Short: "SiteCalm - Website snapshot, restore and video campaign service",
	Long: `SiteCalm keeps a Laravel + Next.js deployment recoverable and serves its video campaigns.

It provides:
- Full snapshots of code, config files and the SQLite database
- Full, code-only and database-only restores with a pre-restore safety snapshot
- Post-restore rebuild (composer, artisan, npm, Next build, PM2 restarts)
- Retention cleanup and optional offsite copies in S3
- Round-robin and weighted video selection for public campaign pages
- Analytics event ingestion`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger = logging.NewLogger(cfg)

		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+config.DefaultConfigPath+")")
}

// initServices opens both databases and wires every service
func initServices(ctx context.Context) (*Services, error) {
	db, err := sqlite.New(cfg.StateDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state database: %w", err)
	}
	services := &Services{DB: db}

	appDB, err := sqlite.OpenApp(cfg.DatabasePath)
	if err != nil {
		services.Close()
		return nil, fmt.Errorf("failed to open application database: %w", err)
	}
	services.AppDB = appDB

	cursors, err := openCursorStore(db)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Cursors = cache.NewGuardedStore(cursors, cfg.Cache.Breaker, logging.Component(logger, "cursor-breaker"))

	exporter := sqlite.NewExporter()
	processService := service.NewProcessService(sqlite.NewProcessRepository(db), logger)
	runner := tool.NewRunner(cfg.StepPollInterval, logger).WithRecorder(processService)

	archiveService := service.NewArchiveService(cfg, exporter, logger).WithProcessService(processService)
	catalogService := service.NewCatalogService(cfg.BackupDir, logger)
	if cfg.Offsite.Enabled {
		replicator := s3.New(cfg.Offsite, logging.Component(logger, "offsite"))
		archiveService.WithReplicator(replicator)
		catalogService.WithReplicator(replicator)
	}

	restoreService := service.NewRestoreService(cfg, archiveService, catalogService, exporter, runner, logger).
		OnDatabaseReplaced(appDB.Reopen)
	campaigns := sqlite.NewCampaignRepository(appDB)

	services.ProcessService = processService
	services.ArchiveService = archiveService
	services.CatalogService = catalogService
	services.RestoreService = restoreService
	services.JobService = service.NewRestoreJobService(restoreService, catalogService, sqlite.NewRestoreJobRepository(db), logger)
	services.CleanupService = service.NewCleanupService(catalogService, cfg.Retention, processService, logger)
	services.TokenService = service.NewTokenService(cfg.JWTSecretKey, cfg.JWTAlgorithm)
	services.SelectorService = service.NewSelectorService(campaigns, services.Cursors, cfg.Cache.RoundRobinTTL, logger)
	services.AnalyticsService = service.NewAnalyticsService(sqlite.NewAnalyticsRepository(appDB), campaigns, logger)

	return services, nil
}

// openCursorStore picks the round-robin backend named by cache.driver
func openCursorStore(db *sqlite.DB) (repository.CursorStore, error) {
	if cfg.Cache.Driver != "badger" {
		return sqlite.NewCursorStore(db), nil
	}
	store, err := kv.Open(cfg.Cache.BadgerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger cursor store: %w", err)
	}
	return store, nil
}

// Services holds all initialized services
type Services struct {
	DB               *sqlite.DB
	AppDB            *sqlite.AppDB
	Cursors          repository.CursorStore
	ProcessService   *service.ProcessService
	ArchiveService   *service.ArchiveService
	CatalogService   *service.CatalogService
	RestoreService   *service.RestoreService
	JobService       *service.RestoreJobService
	CleanupService   *service.CleanupService
	TokenService     *service.TokenService
	SelectorService  *service.SelectorService
	AnalyticsService *service.AnalyticsService
}

// Close waits for background restores and releases all resources
func (s *Services) Close() {
	if s.JobService != nil {
		s.JobService.Wait()
	}
	if s.Cursors != nil {
		if err := s.Cursors.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close cursor store")
		}
	}
	if s.AppDB != nil {
		s.AppDB.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
