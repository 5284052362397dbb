package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/core/service"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a snapshot",
	Long:  "Restore a snapshot into the live deployment and run the post-restore rebuild",
}

func newRestoreCmd(use, short string, mode domain.RestoreMode) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <filename>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := initServices(cmd.Context())
			if err != nil {
				return err
			}
			defer services.Close()

			summary, err := services.RestoreService.Restore(cmd.Context(), domain.RestoreRequest{
				Filename: args[0],
				Mode:     mode,
			})
			printSummary(os.Stdout, summary)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			return stepsErr(summary.Steps)
		},
	}
}

// printSummary writes whatever the restore got through, even on failure
func printSummary(out io.Writer, summary *domain.RestoreSummary) {
	if summary == nil {
		return
	}
	fmt.Fprintf(out, "Run ID: %s\n", summary.RunID)
	if summary.PreRestoreSnapshot != "" {
		fmt.Fprintf(out, "Pre-restore snapshot: %s\n", summary.PreRestoreSnapshot)
	}
	for _, w := range summary.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	if len(summary.Steps) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSTATUS\tCODE\tDURATION")
	for _, step := range summary.Steps {
		code, duration := "-", "-"
		if step.Code != nil {
			code = fmt.Sprintf("%d", *step.Code)
		}
		if step.DurationSec != nil {
			duration = fmt.Sprintf("%.2fs", *step.DurationSec)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", step.Step, step.Status, code, duration)
	}
	w.Flush()
}

// stepsErr makes the command exit non-zero when any rebuild step failed.
// The restore itself has already been applied at that point.
func stepsErr(steps []domain.StepResult) error {
	var errs []error
	for _, step := range steps {
		if err := service.StepErr(step); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.Step, err))
		}
	}
	return errors.Join(errs...)
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.AddCommand(newRestoreCmd("full", "Restore code, config files and database", domain.RestoreModeFull))
	restoreCmd.AddCommand(newRestoreCmd("files", "Restore code and config files, keep the live database", domain.RestoreModeFiles))
	restoreCmd.AddCommand(newRestoreCmd("database", "Restore only the database, keep the live code", domain.RestoreModeDatabase))
}
