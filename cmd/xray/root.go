package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/pkg/logger"
)

var Cmd = &cobra.Command{
	Use:   "xray",
	Short: "Chest X-ray classifier",
	Long:  "Train a convolutional classifier on a directory of labelled chest X-ray images and use the saved model to label new images",

	SilenceUsage:  true,
	SilenceErrors: true,

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		if err := config.InitConfig(); err != nil {
			return err
		}

		if _, err := logger.InitLogger(config.GetConfig()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return nil
	},

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if config.IsLoaded() {
			logger.GetLogger().Sync() //nolint:errcheck
		}
	},
}

func GetRootCmd() *cobra.Command {
	return Cmd
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()

	pflags.String("home", "", "Path to the xray home directory")
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("env-file", "", "Path to the env file")
	pflags.String("environment", "", "Environment configuration; affects logging")

	viper.BindPFlag("home", pflags.Lookup("home"))
	viper.BindPFlag("config_file", pflags.Lookup("config-file"))
	viper.BindPFlag("env_file", pflags.Lookup("env-file"))
	viper.BindPFlag("environment", pflags.Lookup("environment"))

	Cmd.AddCommand(trainCmd, predictCmd, inspectCmd, fetchCmd, pushCmd, pullCmd, runsCmd, eventsCmd, dbCmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}
