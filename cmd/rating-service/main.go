package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "ratingcore/internal/admin/docs"
	"ratingcore/internal/config"
	"ratingcore/internal/logger"
	"ratingcore/pkg/logging"
)

var configFile string

var errNoConfig = errors.New("config file is required: use --config or CONFIG_FILE")

// @title           Rating Service Admin API
// @version         1.0
// @description     Cache status, reloads and ad-hoc lookups for the rating core.

// @BasePath  /api/v1

func main() {
	serveCommand := serveCmd()
	rootCmd := &cobra.Command{
		Use:          "rating-service",
		Short:        "Rating service for CDR streams",
		Long:         "Rating service resolves zones, price models and holidays for call detail records",
		RunE:         serveCommand.RunE,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (falls back to CONFIG_FILE)")
	rootCmd.AddCommand(serveCommand)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func configPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	if env := os.Getenv("CONFIG_FILE"); env != "" {
		return env, nil
	}
	return "", errNoConfig
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the rating service",
		RunE: func(cmd *cobra.Command, args []string) error {
			early := logging.Early(serviceName)

			path, err := configPath()
			if err != nil {
				early.Errorw("Cannot start", "error", err)
				return err
			}

			cfg, err := config.Load(path)
			if err != nil {
				early.Errorw("Failed to load config", "config_file", path, "error", err)
				return err
			}

			log, err := logger.New(cfg.Logging, serviceName)
			if err != nil {
				early.Errorw("Failed to init logger", "error", err)
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, NewApp(cfg, log), log)
		},
	}
}

// serve runs app until ctx is done and always shuts it down, including after
// a failed Initialize.
func serve(ctx context.Context, app *App, log logger.Logger) error {
	log.InfowCtx(ctx, "Starting Rating Service")

	err := app.Initialize(ctx)
	if err != nil {
		log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
	} else {
		log.InfowCtx(ctx, "Rating service running")
		err = app.Run(ctx)
	}

	if shutdownErr := app.Shutdown(ctx); shutdownErr != nil {
		log.ErrorwCtx(ctx, "Shutdown error", "error", shutdownErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.ErrorwCtx(ctx, "Service stopped with error", "error", err)
		return err
	}
	log.InfowCtx(ctx, "Shutdown complete")
	return nil
}
