package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/timmy/photovault/internal/app"
	"github.com/timmy/photovault/internal/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume job queues until interrupted",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.GetDefault()
	if cfg.Queue.Driver == "memory" {
		log.Warn("The memory queue only sees jobs queued by this process; use rabbitmq to share work with the API server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	log.WithFields(logger.Fields{
		"driver": cfg.Queue.Driver,
		"jobs":   a.Registry.Names(),
	}).Info("Worker started")
	if err := a.Jobs.Run(ctx); err != nil {
		return err
	}
	log.Info("Worker stopped")
	return nil
}
