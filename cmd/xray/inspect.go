package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cozy-creator/xray-classifier/internal/artifact"
	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/internal/utils/hashutil"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [artifact]",
	Short: "Show the architecture, labels and training history of an artifact",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetConfig().Predict.ArtifactPath
		if len(args) == 1 {
			path = args[0]
		}

		a, err := artifact.Load(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(a)
		}

		model, err := a.Network()
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "ID:            %s\n", a.ID)
		fmt.Fprintf(out, "Created:       %s\n", a.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Labels:        %s\n", strings.Join(a.Labels, ", "))
		fmt.Fprintf(out, "Input:         %v\n", a.InputShape)
		fmt.Fprintf(out, "Interpolation: %s\n", a.Interpolation)
		fmt.Fprintf(out, "Checksum:      %s\n", a.Checksum)
		if sum, err := hashutil.Blake3File(path); err == nil {
			fmt.Fprintf(out, "File blake3:   %s\n", sum)
		}
		if a.Dataset.Files > 0 {
			fmt.Fprintf(out, "Dataset:       %s (%d files, %d train / %d validation)\n",
				a.Dataset.Root, a.Dataset.Files, a.Dataset.TrainCount, a.Dataset.ValCount)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, model.Summary())

		if len(a.History) == 0 {
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "EPOCH\tLOSS\tACCURACY\tVAL_LOSS\tVAL_ACCURACY\tDURATION")
		for _, m := range a.History {
			valLoss, valAcc := "-", "-"
			if m.HasValidation {
				valLoss = fmt.Sprintf("%.4f", m.ValLoss)
				valAcc = fmt.Sprintf("%.4f", m.ValAccuracy)
			}
			fmt.Fprintf(tw, "%d\t%.4f\t%.4f\t%s\t%s\t%s\n", m.Epoch, m.Loss, m.Accuracy, valLoss, valAcc,
				time.Duration(m.DurationMs)*time.Millisecond)
		}
		return tw.Flush()
	},
}

func init() {
	inspectCmd.Flags().Bool("json", false, "Print the artifact metadata as JSON")
}
