package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"hwtrack-backend/internal/config"
	"hwtrack-backend/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath *string
	verbose    *bool

	loadedConfig config.Config
	logCloser    io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "hwtrack-cli",
	Short: "hwtrack-cli fetches homework from the portal and inspects the local cache and run log.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		if *verbose {
			cfg.Log.Level = "debug"
		}
		loadedConfig = cfg
		logCloser = telemetry.InitSlog(cfg.Log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
	SilenceUsage: true,
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "", "Path to the config file, hwtrack.json5 is searched upwards from the cwd by default.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
