package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/photovault/internal/api"
	"github.com/timmy/photovault/internal/api/handler"
	"github.com/timmy/photovault/internal/app"
	"github.com/timmy/photovault/internal/config"
	"github.com/timmy/photovault/internal/logger"
	"golang.org/x/sync/errgroup"
)

func main() {
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize")
	}
	defer a.Close()

	router := api.SetupRouter(cfg.Server, api.Services{
		Media:      a.Media,
		Duplicates: a.Duplicates,
		Jobs:       a.Jobs,
		Checks:     map[string]handler.Check{"database": a.Ping},
	}, appLogger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	if cfg.Server.InProcessWorkers {
		g.Go(func() error {
			appLogger.WithField("driver", cfg.Queue.Driver).Info("Starting in-process workers")
			return a.Jobs.Run(gctx)
		})
	} else if cfg.Queue.Driver == "memory" {
		appLogger.Warn("In-process workers are disabled with the memory queue; queued jobs will not run")
	}
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.WithError(err).Error("Server exited with error")
		return
	}
	appLogger.Info("Server exited")
}
