package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/timmy/photovault/internal/app"
	"github.com/timmy/photovault/internal/logger"
	"github.com/timmy/photovault/internal/service"
	"github.com/timmy/photovault/internal/source/directory"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Upload every photo and video under a directory for one user",
	Long: `Walk a directory tree and upload each supported file through the regular
upload path. .xmp sidecars next to a file are uploaded with it. Files the
user already owns are reported as duplicates, so an import can be re-run.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("user", "", "Owner of the imported assets (required)")
	importCmd.Flags().Int("limit", 0, "Maximum number of files to import (0 = all)")
	importCmd.Flags().Int("workers", 4, "Concurrent uploads")
	importCmd.Flags().String("device-id", "", "Device id recorded on imported assets")
	_ = importCmd.MarkFlagRequired("user")
}

func runImport(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("limit")
	workers, _ := cmd.Flags().GetInt("workers")
	deviceID, _ := cmd.Flags().GetString("device-id")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.GetDefault()
	if cfg.Queue.Driver == "memory" {
		log.Warn("With the memory queue the background jobs of imported assets are lost when this command exits; use rabbitmq")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	src := directory.NewAdapter(args[0])
	total, err := src.Total(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{"dir": args[0], "files": total, "user": userID}).Info("Starting import")

	stats, err := a.Import.ImportFromSource(ctx, service.Auth{UserID: userID}, src, service.ImportOptions{
		Limit:    limit,
		Workers:  workers,
		DeviceID: deviceID,
	})
	if stats != nil {
		fmt.Printf("Imported %d files: %d created, %d duplicates, %d failed\n",
			stats.Total, stats.Created, stats.Duplicates, stats.Failed)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("import interrupted")
		}
		return err
	}
	return nil
}
