package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/internal/services/artifactstore"
	"github.com/cozy-creator/xray-classifier/internal/services/fetcher"
	"github.com/cozy-creator/xray-classifier/internal/utils/hashutil"
	"github.com/cozy-creator/xray-classifier/pkg/logger"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url> [destination]",
	Short: "Download an artifact over HTTP, resuming partial downloads",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest := config.GetConfig().Predict.ArtifactPath
		if len(args) == 2 {
			dest = args[1]
		}

		f := fetcher.New(fetcher.WithLogger(logger.GetLogger()), fetcher.WithOutput(cmd.ErrOrStderr()))
		a, err := f.Fetch(cmd.Context(), args[0], dest)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "fetched %s (%s)\n", dest, a.ID)
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push <artifact>",
	Short: "Upload an artifact to the configured storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		store, err := artifactstore.NewStore(cmd.Context(), &cfg.Storage)
		if err != nil {
			return err
		}

		location, err := artifactstore.Push(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}

		sum, err := hashutil.Blake3File(args[0])
		if err != nil {
			return err
		}
		logger.Info("artifact pushed", zap.String("path", args[0]), zap.String("location", location), zap.String("blake3", sum))
		fmt.Fprintln(cmd.OutOrStdout(), location)
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull <name> [destination]",
	Short: "Download an artifact from the configured storage",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		store, err := artifactstore.NewStore(cmd.Context(), &cfg.Storage)
		if err != nil {
			return err
		}

		dest := filepath.Base(args[0])
		if len(args) == 2 {
			dest = args[1]
		}

		a, err := artifactstore.Pull(cmd.Context(), store, args[0], dest)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "pulled %s (%s)\n", dest, a.ID)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{pushCmd, pullCmd} {
		flags := c.Flags()
		flags.String("storage", "", "Storage backend: local or s3")
		flags.String("storage-dir", "", "Directory used by the local backend")
	}

	pushCmd.PreRun = bindStorageFlags
	pullCmd.PreRun = bindStorageFlags
}

// bindStorageFlags overrides the loaded storage config with explicit flags.
func bindStorageFlags(cmd *cobra.Command, args []string) {
	if f := cmd.Flags().Lookup("storage"); f.Changed {
		config.GetConfig().Storage.Type = f.Value.String()
	}
	if f := cmd.Flags().Lookup("storage-dir"); f.Changed {
		config.GetConfig().Storage.Dir = f.Value.String()
	}
}
