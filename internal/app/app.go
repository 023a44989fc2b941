// Package app wires configuration into the repositories, stores, queue and
// services shared by the API server and the worker.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/photovault/internal/config"
	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/event"
	"github.com/timmy/photovault/internal/logger"
	"github.com/timmy/photovault/internal/queue"
	"github.com/timmy/photovault/internal/repository"
	"github.com/timmy/photovault/internal/service"
	"github.com/timmy/photovault/internal/storage"
	"gorm.io/gorm"
)

// App holds the long-lived components of one process.
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Store    storage.ContentStore
	Registry *queue.Registry
	Jobs     queue.Backend
	Events   *event.Bus

	Media      *service.AssetMediaService
	Duplicates *service.DuplicateService
	Import     *service.ImportService

	closers []func() error
}

// New connects every backend selected by cfg and registers the job handlers.
// On error everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Events: event.NewBus(), Registry: queue.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.DB, err = repository.InitDB(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.closers = append(a.closers, func() error {
		sqlDB, err := a.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	a.Store, err = storage.NewContentStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	vectors, err := a.vectorIndex(ctx, log)
	if err != nil {
		return nil, err
	}

	a.Jobs, err = queue.New(cfg.Queue, a.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}
	a.closers = append(a.closers, a.Jobs.Close)

	if cfg.Redis.Enabled {
		pub, err := event.NewRedisPublisher(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		a.Events.On(pub.Handle,
			domain.EventAssetCreate,
			domain.EventAssetReplace,
			domain.EventAssetTrash,
			domain.EventDuplicateMerge,
		)
		log.WithField("addr", cfg.Redis.Addr).Info("Publishing events to redis")
	}
	a.closers = append(a.closers, func() error { a.Events.Close(); return nil })

	assets := repository.NewAssetRepository(a.DB)
	users := repository.NewUserRepository(a.DB)
	index := repository.NewDuplicateRepository(a.DB, vectors, cfg.Vector.SearchLimit)

	a.Media = service.NewAssetMediaService(assets, users, a.Store, a.Jobs, a.Events, service.NewOwnerAccess(users, assets), log)
	a.Duplicates = service.NewDuplicateService(assets, index, a.Jobs, a.Events, cfg, log)
	a.Import = service.NewImportService(a.Media, log)

	handlers := &service.JobHandlers{
		Metadata:    service.NewMetadataService(assets, a.Store, a.Jobs, log),
		SmartSearch: service.NewSmartSearchService(assets, vectors, a.Store, service.NewMLClient(cfg.MachineLearning), a.Jobs, cfg, log),
		Duplicates:  a.Duplicates,
		Cleanup:     service.NewCleanupService(assets, a.Store),
	}
	if err := handlers.Register(a.Registry); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) vectorIndex(ctx context.Context, log *logger.Logger) (repository.VectorIndex, error) {
	cfg := a.Config
	switch cfg.Vector.Backend {
	case "qdrant":
		idx, err := repository.NewQdrantIndex(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: cfg.Vector.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize qdrant: %w", err)
		}
		a.closers = append(a.closers, idx.Close)
		if err := idx.EnsureCollection(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure qdrant collection: %w", err)
		}
		return idx, nil
	case "pgvector":
		idx, err := repository.NewPgvectorIndex(ctx, a.DB)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		idx := repository.NewHNSWIndex()
		n, err := idx.Load(ctx, a.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to build hnsw index: %w", err)
		}
		log.WithField("count", n).Info("Built in-memory embedding index")
		return idx, nil
	}
}

// Ping checks the database connection.
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
