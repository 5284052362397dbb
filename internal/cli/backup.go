package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/martijn/sitecalm/internal/core/domain"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage snapshots",
	Long:  "Create, list and delete snapshot archives (create is typically run from cron)",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a snapshot of the live deployment",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		archive, err := services.ArchiveService.CreateSnapshot(cmd.Context(), domain.ArchiveKindOperator)
		if err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}

		fmt.Printf("Snapshot created\n")
		fmt.Printf("Filename: %s\n", archive.Filename)
		fmt.Printf("Size: %s\n", humanize.Bytes(uint64(archive.Size)))
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		archives, err := services.CatalogService.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}

		if len(archives) == 0 {
			fmt.Println("No snapshots found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILENAME\tKIND\tSIZE\tCREATED")
		for _, a := range archives {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				a.Filename,
				a.Kind(),
				humanize.Bytes(uint64(a.Size)),
				a.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <filename>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		if err := services.CatalogService.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}

		fmt.Printf("Snapshot '%s' deleted\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupDeleteCmd)
}
