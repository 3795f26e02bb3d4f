// Command gateway runs the EPortal bridge gateway service, following the
// signal-driven startup/shutdown structure of the analytics-system
// collector's cmd/collector/main.go, with a cobra root command in place
// of bare flag parsing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eportal-gateway/gateway/internal/app"
	"github.com/eportal-gateway/gateway/internal/appconfig"
	"github.com/eportal-gateway/gateway/internal/logger"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "gateway",
		Short: "EPortal bridge gateway service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "config/config.yaml", "path to config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return err
	}

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, DevMode: cfg.Logging.DevMode})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		return err
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("starting service")

	if err := app.Run(ctx, cfg, log); err != nil && ctx.Err() == nil {
		log.Error("application exited with error")
		os.Exit(1)
	}

	log.Info("shutdown complete")
	return nil
}
