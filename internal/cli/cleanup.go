package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupDryRun bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run snapshot cleanup",
	Long:  "Delete snapshots that fall outside the retention policy (typically used by cron)",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		if cleanupDryRun {
			expired, err := services.CleanupService.Expired(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to evaluate retention: %w", err)
			}
			for _, a := range expired {
				fmt.Printf("would delete %s\n", a.Filename)
			}
			fmt.Printf("%d snapshot(s) outside retention\n", len(expired))
			return nil
		}

		deleted, err := services.CleanupService.Prune(cmd.Context())
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		for _, name := range deleted {
			fmt.Printf("deleted %s\n", name)
		}
		fmt.Printf("Deleted %d expired backup(s)\n", len(deleted))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "list expired snapshots without deleting them")
}
