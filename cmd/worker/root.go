package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/timmy/photovault/internal/config"
	"github.com/timmy/photovault/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "photovault-worker",
	Short: "Background job processing for photovault",
	Long: `photovault-worker consumes the job queues that the API server feeds:
metadata extraction, CLIP encoding, duplicate detection and file cleanup.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogger)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "Path to config file")
}

func initLogger() {
	envCfg := logger.LoadFromEnv()
	envCfg.ServiceName = "photovault-worker"
	logger.SetDefaultLogger(logger.NewFromEnv(envCfg))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
