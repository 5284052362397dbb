package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/martijn/sitecalm/internal/api"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long:  "Start the REST API server for backups, restores, campaign pages and analytics",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		// Anything still marked running was cut off by the previous shutdown
		if n, err := services.ProcessService.FailInterrupted(cmd.Context()); err != nil {
			logger.Warn().Err(err).Msg("failed to close out interrupted steps")
		} else if n > 0 {
			logger.Warn().Int("count", n).Msg("marked interrupted steps as failed")
		}
		if n, err := services.JobService.RecoverUnfinished(cmd.Context()); err != nil {
			logger.Warn().Err(err).Msg("failed to close out unfinished restore jobs")
		} else if n > 0 {
			logger.Warn().Int("count", n).Msg("marked unfinished restore jobs as failed")
		}

		server := api.NewServer(
			cfg,
			logger,
			services.TokenService,
			services.ProcessService,
			services.ArchiveService,
			services.CatalogService,
			services.RestoreService,
			services.JobService,
			services.CleanupService,
			services.SelectorService,
			services.AnalyticsService,
		)

		// Start server in goroutine
		serverErr := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		// Wait for interrupt signal or server error
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErr:
			return fmt.Errorf("server error: %w", err)
		case sig := <-sigChan:
			logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
