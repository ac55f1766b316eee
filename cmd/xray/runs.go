package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/cozy-creator/xray-classifier/internal/db/models"
	"github.com/cozy-creator/xray-classifier/internal/db/repository"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded training runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent training runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		return withDB(cmd.Context(), func(db *bun.DB) error {
			runs, err := repository.NewTrainingRunRepository(db).List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tEPOCHS\tSTARTED\tDURATION\tARTIFACT")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
					run.ID, run.Status, run.EpochsDone, run.Epochs,
					run.StartedAt.Local().Format(time.DateTime), runDuration(run), run.ArtifactPath)
			}
			return tw.Flush()
		})
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one training run with its per-epoch history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(db *bun.DB) error {
			run, err := repository.NewTrainingRunRepository(db).GetByID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load run %s: %w", args[0], err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		})
	},
}

func runDuration(run models.TrainingRun) string {
	if run.FinishedAt.IsZero() {
		return "-"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "Maximum number of runs to list; 0 lists all")
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
}
