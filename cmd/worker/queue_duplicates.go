package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/timmy/photovault/internal/app"
	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/logger"
	"github.com/timmy/photovault/internal/queue"
)

var queueDuplicatesCmd = &cobra.Command{
	Use:   "queue-duplicates",
	Short: "Queue duplicate detection for every eligible asset",
	Long: `Queue duplicate detection for assets that have an embedding.
Without --force only assets that were never checked are queued.`,
	RunE: runQueueDuplicates,
}

func init() {
	rootCmd.AddCommand(queueDuplicatesCmd)
	queueDuplicatesCmd.Flags().Bool("force", false, "Re-check assets that were already checked")
}

func runQueueDuplicates(cmd *cobra.Command, args []string) error {
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Queue.Driver != "rabbitmq" {
		return errors.New("queue-duplicates needs a shared queue; set queue.driver to rabbitmq or call POST /api/v1/jobs/duplicates")
	}

	ctx := context.Background()
	log := logger.GetDefault()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// The bulk driver runs here; the per-asset jobs it queues go to the workers.
	job := domain.MustJob(domain.JobAssetDetectDuplicatesQueueAll, domain.ForceJob{Force: force})
	status, err := queue.Dispatch(ctx, a.Registry, job)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{"force": force, "status": status}).Info("Duplicate detection queued")
	return nil
}
