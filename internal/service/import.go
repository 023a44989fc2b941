package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/logger"
	"github.com/timmy/photovault/internal/source"
	"golang.org/x/sync/errgroup"
)

const (
	importBatchSize     = 100
	defaultImportDevice = "photovault-import"
)

// ImportOptions tunes one import run.
type ImportOptions struct {
	Limit    int // 0 imports everything
	Workers  int
	DeviceID string
}

// ImportStats summarizes an import run.
type ImportStats struct {
	Total      int `json:"total"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// ImportService uploads files from a source on behalf of one user. Every
// file goes through the regular upload path, so re-running an import only
// reports duplicates.
type ImportService struct {
	media  *AssetMediaService
	logger *logger.Logger
}

func NewImportService(media *AssetMediaService, log *logger.Logger) *ImportService {
	return &ImportService{media: media, logger: log}
}

// ImportFromSource uploads every item of src. Per-file failures are counted
// and logged; only cancellation and source errors abort the run.
func (s *ImportService) ImportFromSource(ctx context.Context, auth Auth, src source.Source, opts ImportOptions) (*ImportStats, error) {
	ctx = logger.SetOwnerID(logger.SetComponent(ctx, "import"), auth.UserID)
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.DeviceID == "" {
		opts.DeviceID = defaultImportDevice
	}

	start := time.Now()
	var (
		mu    sync.Mutex
		stats ImportStats
	)
	record := func(status domain.AssetMediaStatus, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			stats.Failed++
		case status == domain.AssetMediaDuplicate:
			stats.Duplicates++
		default:
			stats.Created++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	cursor := ""
	queued := 0
fetch:
	for {
		batchSize := importBatchSize
		if opts.Limit > 0 {
			batchSize = min(batchSize, opts.Limit-queued)
		}
		items, next, err := src.FetchBatch(gctx, cursor, batchSize)
		if err != nil {
			_ = g.Wait()
			return &stats, fmt.Errorf("failed to fetch from %s: %w", src.GetSourceID(), err)
		}
		for _, item := range items {
			if gctx.Err() != nil {
				break fetch
			}
			g.Go(func() error {
				status, err := s.importItem(gctx, auth, item, opts.DeviceID)
				if err != nil {
					logger.CtxWarn(gctx, "[Import] Failed to import %s: %v", item.SourceID, err)
				}
				record(status, err)
				return nil
			})
			queued++
		}
		if next == "" || (opts.Limit > 0 && queued >= opts.Limit) {
			break
		}
		cursor = next
	}

	_ = g.Wait()
	stats.Total = queued
	if err := ctx.Err(); err != nil {
		return &stats, err
	}

	logger.With(logger.Fields{"created": stats.Created, "duplicates": stats.Duplicates, "failed": stats.Failed}).
		WithCount(stats.Total).WithDuration(start).
		Info(ctx, "[Import] Imported from %s", src.GetSourceID())
	return &stats, nil
}

func (s *ImportService) importItem(ctx context.Context, auth Auth, item source.Item, deviceID string) (domain.AssetMediaStatus, error) {
	file, closeFile, err := openImportFile(domain.UploadFieldAssetData, item.LocalPath)
	if err != nil {
		return "", err
	}
	defer closeFile()

	var sidecar *domain.UploadFile
	if item.SidecarPath != "" {
		sc, closeSidecar, err := openImportFile(domain.UploadFieldSidecarData, item.SidecarPath)
		if err != nil {
			return "", err
		}
		defer closeSidecar()
		sidecar = sc
	}

	resp, err := s.media.Upload(ctx, auth, domain.AssetMediaCreate{
		DeviceID:       deviceID,
		DeviceAssetID:  item.SourceID,
		FileCreatedAt:  item.ModTime,
		FileModifiedAt: item.ModTime,
		Filename:       filepath.Base(item.LocalPath),
	}, file, sidecar)
	if err != nil {
		return "", err
	}
	return resp.Status, nil
}

func openImportFile(field domain.UploadFieldName, path string) (*domain.UploadFile, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	upload, err := domain.NewUploadFile(field, filepath.Base(path), f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return upload, func() { f.Close() }, nil
}
