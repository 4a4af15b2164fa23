package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ratingcore/internal/config"
	"ratingcore/internal/logger"
	"ratingcore/pkg/logging"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "cachectl",
		Short:         "Operate the rating caches",
		Long:          "cachectl migrates cache stores, imports cache data, requests reloads and runs lookups against stored caches",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(reloadCmd())
	rootCmd.AddCommand(lookupCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Early("cachectl").Fatalw("Command failed", "error", err)
	}
}

// setup loads the config and logger shared by every subcommand.
func setup() (*config.Config, logger.Logger, error) {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			return nil, nil, fmt.Errorf("config file is required. Use --config flag or CONFIG_FILE environment variable")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Logging, "cachectl")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, log, nil
}
