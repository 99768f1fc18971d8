package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lhdbsbz/hookrelay/internal/config"
	"github.com/lhdbsbz/hookrelay/internal/gateway"
	"github.com/lhdbsbz/hookrelay/internal/logging"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configPath)
		},
	}
}

func serve(configPath string) error {
	path, cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, closer := logging.New(cfg.Log)
	defer closer.Close()
	slog.SetDefault(logger)
	slog.Info("hookrelay starting", "version", version, "config", path, "uploads", cfg.Uploads.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := gateway.NewServer(cfg, logger)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		go config.Watch(ctx, path, func(next *config.Config) {
			if err := srv.Reload(next); err != nil {
				slog.Error("config reload rejected", "error", err)
			}
		})
	}

	err = srv.Start(ctx)
	slog.Info("hookrelay stopped")
	return err
}
