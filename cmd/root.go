package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/signalnine/covbatch/internal/config"
	"github.com/signalnine/covbatch/internal/logging"
)

var (
	cfgFile      string
	flagLogLevel string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "covbatch",
		Short:        "Resumable coverage verification for generated bug-reproducing tests",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path (.yaml or .toml)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newStatusCmd())
	return root
}

// loadConfig reads --config. The default path may be absent.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if cmd.Flags().Changed("config") {
		return config.Load(cfgFile)
	}
	return config.LoadOrDefault(cfgFile)
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Log.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	return logging.New(logging.Config{Level: level, Format: cfg.Log.Format})
}
