package cmd

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/internal/predictor"
	"github.com/cozy-creator/xray-classifier/internal/utils/imageutil"
	"github.com/cozy-creator/xray-classifier/internal/utils/pathutil"
	"github.com/cozy-creator/xray-classifier/pkg/logger"
)

var predictCmd = &cobra.Command{
	Use:   "predict [image or directory]...",
	Short: "Classify images with a trained artifact",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPredict,
}

func init() {
	d := config.Default().Predict
	flags := predictCmd.Flags()

	flags.String("model", d.ArtifactPath, "Path to the trained artifact")
	flags.String("interpolation", "", "Resize filter; defaults to the one the model was trained with")
	flags.Bool("json", false, "Print results as JSON lines")
	flags.Bool("probs", false, "Print the full probability vector of each image")

	viper.BindPFlag("predict.artifact_path", flags.Lookup("model"))
	viper.BindPFlag("predict.interpolation", flags.Lookup("interpolation"))
}

type predictionOutput struct {
	Path          string             `json:"path"`
	Class         int                `json:"class"`
	Label         string             `json:"label,omitempty"`
	Probabilities map[string]float32 `json:"probabilities,omitempty"`
	Error         string             `json:"error,omitempty"`
}

func runPredict(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()

	p, err := predictor.New(cfg.Predict, predictor.WithLogger(logger.GetLogger()))
	if err != nil {
		return err
	}

	paths, err := expandImagePaths(args)
	if err != nil {
		return err
	}

	results, err := p.PredictFiles(cmd.Context(), paths)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		for _, r := range results {
			o := predictionOutput{Path: r.Path, Class: r.Class, Label: r.Label}
			if r.Err != nil {
				o.Error = r.Err.Error()
			} else {
				o.Probabilities = make(map[string]float32, len(r.Probabilities))
				for i, prob := range r.Probabilities {
					o.Probabilities[p.Label(i)] = prob
				}
			}
			if err := enc.Encode(o); err != nil {
				return err
			}
		}
	} else {
		probs, _ := cmd.Flags().GetBool("probs")
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprint(tw, "PATH\tCLASS\tLABEL\tCONFIDENCE")
		if probs {
			fmt.Fprint(tw, "\tPROBABILITIES")
		}
		fmt.Fprintln(tw)
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(tw, "%s\t-\t-\t%v\n", r.Path, r.Err)
				continue
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%.4f", r.Path, r.Class, r.Label, r.Probabilities[r.Class])
			if probs {
				fmt.Fprintf(tw, "\t%.4f", r.Probabilities)
			}
			fmt.Fprintln(tw)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	for _, r := range results {
		if r.Err != nil {
			return fmt.Errorf("some images could not be classified")
		}
	}
	return nil
}

// expandImagePaths replaces each directory argument with the image files
// below it, in lexical order.
func expandImagePaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		if !pathutil.IsDir(arg) {
			paths = append(paths, arg)
			continue
		}

		var found []string
		err := filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && imageutil.IsImageFile(d.Name()) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}
