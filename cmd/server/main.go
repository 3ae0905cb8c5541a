package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"donorlink/internal/platform/config"
	"donorlink/internal/platform/logger"
)

const programName = "donorlink"

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

// setup loads configuration and builds the process logger. --debug overrides
// the configured level.
func setup() (config.Server, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Server{}, nil, fmt.Errorf("load config: %w", err)
	}
	if globalFlags.debug {
		cfg.Log.Level = "debug"
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format).With("component", programName)
	slog.SetDefault(log)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		log.Info(fmt.Sprintf(format, v...))
	})); err != nil {
		return config.Server{}, nil, fmt.Errorf("set GOMAXPROCS: %w", err)
	}
	return cfg, log, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Blood donor registry and request matching service",
		SilenceUsage: true,
		RunE:         serveRun,
	}
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
