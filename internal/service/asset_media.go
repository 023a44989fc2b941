package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/event"
	"github.com/timmy/photovault/internal/logger"
	"github.com/timmy/photovault/internal/queue"
	"github.com/timmy/photovault/internal/repository"
	"github.com/timmy/photovault/internal/storage"
)

// AssetMediaService turns uploaded files into assets. Bytes are always
// persisted before the record that references them, the record before the
// quota ledger moves, and the ledger before any job is queued.
type AssetMediaService struct {
	assets AssetRepository
	users  UserRepository
	store  storage.ContentStore
	jobs   queue.Queue
	events event.Emitter
	access AccessChecker
	logger *logger.Logger
	now    func() time.Time
}

// NewAssetMediaService creates a new asset media service
func NewAssetMediaService(
	assets AssetRepository,
	users UserRepository,
	store storage.ContentStore,
	jobs queue.Queue,
	events event.Emitter,
	access AccessChecker,
	log *logger.Logger,
) *AssetMediaService {
	return &AssetMediaService{
		assets: assets,
		users:  users,
		store:  store,
		jobs:   jobs,
		events: events,
		access: access,
		logger: log,
		now:    time.Now,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *AssetMediaService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// storedFiles tracks where the bytes of one request went and which of them
// this request created.
type storedFiles struct {
	originalPath string
	sidecarPath  *string
	written      []string
}

// Upload stores file (and optional sidecar) as a new asset of the caller.
// Re-uploading content the caller already owns resolves to the existing
// asset with status duplicate.
func (s *AssetMediaService) Upload(
	ctx context.Context,
	auth Auth,
	dto domain.AssetMediaCreate,
	file *domain.UploadFile,
	sidecar *domain.UploadFile,
) (*domain.AssetMediaResponse, error) {
	ctx = logger.SetOwnerID(ctx, auth.UserID)

	if err := s.access.CheckUpload(ctx, auth); err != nil {
		return nil, err
	}
	if err := s.validate(ctx, auth, file, sidecar); err != nil {
		return nil, err
	}
	if dto.LivePhotoVideoID != nil {
		if err := s.checkLivePhotoLink(ctx, auth, *dto.LivePhotoVideoID); err != nil {
			return nil, err
		}
	}

	files, err := s.storeFiles(ctx, auth.UserID, file, sidecar)
	if err != nil {
		return s.handleUploadError(ctx, err, auth.UserID, file.Checksum, files.written)
	}

	asset := s.newAsset(auth.UserID, dto, file, files)
	res, err := s.assets.Create(ctx, asset)
	if err != nil {
		return s.handleUploadError(ctx, err, auth.UserID, file.Checksum, files.written)
	}
	if res.Outcome == repository.ConflictExisting {
		s.queueFileDelete(ctx, files.written)
		s.log(ctx).WithField(logger.FieldAssetID, res.ExistingID).Info("Upload resolved to existing asset")
		return &domain.AssetMediaResponse{ID: res.ExistingID, Status: domain.AssetMediaDuplicate}, nil
	}
	ctx = logger.SetAssetID(ctx, asset.ID)

	if err := s.assets.UpsertExif(ctx, &domain.AssetExif{AssetID: asset.ID, FileSizeInByte: file.Size}); err != nil {
		return s.handleUploadError(ctx, err, auth.UserID, file.Checksum, files.written)
	}
	if err := s.users.IncrementUsage(ctx, auth.UserID, file.Size); err != nil {
		return s.handleUploadError(ctx, err, auth.UserID, file.Checksum, files.written)
	}
	if err := s.jobs.Queue(ctx, domain.MustJob(domain.JobAssetExtractMetadata, domain.EntityJob{
		ID:     asset.ID,
		Source: domain.JobSourceUpload,
	})); err != nil {
		return s.handleUploadError(ctx, err, auth.UserID, file.Checksum, files.written)
	}

	if asset.LivePhotoVideoID != nil {
		// The motion part of a live photo is only reachable through its still.
		if err := s.assets.UpdateAll(ctx, []string{*asset.LivePhotoVideoID}, map[string]interface{}{
			"visibility": domain.AssetVisibilityHidden,
		}); err != nil {
			s.log(ctx).WithError(err).Warn("Failed to hide live photo video")
		}
	}

	s.events.Emit(ctx, domain.EventAssetCreate, domain.AssetEvent{AssetID: asset.ID, UserID: auth.UserID})
	logger.With(nil).WithSize(file.Size).Info(ctx, "[AssetMedia] Uploaded %s", asset.OriginalFileName)
	return &domain.AssetMediaResponse{ID: asset.ID, Status: domain.AssetMediaCreated}, nil
}

// Replace swaps the content of asset id for file. The asset keeps its id
// and points at the new bytes; the previous content is preserved as a new,
// trashed asset whose id is returned.
func (s *AssetMediaService) Replace(
	ctx context.Context,
	auth Auth,
	id string,
	dto domain.AssetMediaCreate,
	file *domain.UploadFile,
	sidecar *domain.UploadFile,
) (*domain.AssetMediaResponse, error) {
	ctx = logger.SetAssetID(logger.SetOwnerID(ctx, auth.UserID), id)

	if err := s.access.CheckAssetUpdate(ctx, auth, id); err != nil {
		return nil, err
	}
	if err := s.validate(ctx, auth, file, sidecar); err != nil {
		return nil, err
	}
	existing, err := s.assets.GetByID(ctx, id, repository.AssetInclude{})
	if err != nil {
		return nil, err
	}
	if bytes.Equal(existing.Checksum, file.Checksum) {
		return &domain.AssetMediaResponse{ID: existing.ID, Status: domain.AssetMediaDuplicate}, nil
	}

	files, err := s.storeFiles(ctx, auth.UserID, file, sidecar)
	if err != nil {
		return s.handleUploadError(ctx, err, auth.UserID, file.Checksum, files.written)
	}

	copyID, err := s.replaceFileData(ctx, existing, dto, file, files)
	if err != nil {
		return s.handleUploadError(ctx, err, auth.UserID, file.Checksum, files.written)
	}

	s.events.Emit(ctx, domain.EventAssetReplace, domain.AssetEvent{AssetID: existing.ID, UserID: auth.UserID})
	s.log(ctx).WithField("copy_id", copyID).Info("Replaced asset content")
	return &domain.AssetMediaResponse{ID: copyID, Status: domain.AssetMediaReplaced}, nil
}

func (s *AssetMediaService) replaceFileData(
	ctx context.Context,
	existing *domain.Asset,
	dto domain.AssetMediaCreate,
	file *domain.UploadFile,
	files storedFiles,
) (string, error) {
	before := *existing

	// 1. point the existing record at the new bytes and drop links that no longer apply
	updated := *existing
	updated.Checksum = file.Checksum
	updated.OriginalPath = files.originalPath
	updated.OriginalFileName = originalFileName(dto, file)
	updated.Type = domain.AssetTypeFromFileName(file.OriginalName)
	updated.FileCreatedAt = dto.FileCreatedAt
	updated.FileModifiedAt = dto.FileModifiedAt
	updated.LocalDateTime = dto.FileCreatedAt
	updated.Duration = dto.Duration
	updated.DeviceID = dto.DeviceID
	updated.DeviceAssetID = dto.DeviceAssetID
	updated.LivePhotoVideoID = nil
	updated.SidecarPath = files.sidecarPath
	if err := s.assets.Update(ctx, &updated,
		"checksum", "original_path", "original_file_name", "type",
		"file_created_at", "file_modified_at", "local_date_time", "duration",
		"device_id", "device_asset_id", "live_photo_video_id", "sidecar_path",
	); err != nil {
		return "", err
	}

	// 2. file times follow what the client declared
	if err := s.store.Utimes(ctx, files.originalPath, s.now(), dto.FileModifiedAt); err != nil {
		return "", err
	}

	// 3. size record, then the ledger
	if err := s.assets.UpsertExif(ctx, &domain.AssetExif{AssetID: updated.ID, FileSizeInByte: file.Size}); err != nil {
		return "", err
	}
	if err := s.users.IncrementUsage(ctx, updated.OwnerID, file.Size); err != nil {
		return "", err
	}

	// 4.
	if err := s.jobs.Queue(ctx, domain.MustJob(domain.JobAssetExtractMetadata, domain.EntityJob{
		ID:     updated.ID,
		Source: domain.JobSourceUpload,
	})); err != nil {
		return "", err
	}

	// 5. keep the old content under a new id
	copied, err := s.createCopy(ctx, &before)
	if err != nil {
		return "", err
	}

	// 6.
	now := s.now()
	if err := s.assets.UpdateAll(ctx, []string{copied.ID}, map[string]interface{}{
		"status":     domain.AssetStatusTrashed,
		"deleted_at": now,
	}); err != nil {
		return "", err
	}
	s.events.Emit(ctx, domain.EventAssetTrash, domain.AssetEvent{AssetID: copied.ID, UserID: copied.OwnerID})

	// 7.
	if err := s.jobs.Queue(ctx, domain.MustJob(domain.JobAssetExtractMetadata, domain.EntityJob{
		ID:     copied.ID,
		Source: domain.JobSourceCopy,
	})); err != nil {
		return "", err
	}

	return copied.ID, nil
}

// createCopy inserts a new asset carrying the file attributes of src.
// Cluster and stack membership stay with src.
func (s *AssetMediaService) createCopy(ctx context.Context, src *domain.Asset) (*domain.Asset, error) {
	copied := &domain.Asset{
		ID:               uuid.NewString(),
		OwnerID:          src.OwnerID,
		DeviceID:         src.DeviceID,
		DeviceAssetID:    src.DeviceAssetID,
		Type:             src.Type,
		OriginalPath:     src.OriginalPath,
		OriginalFileName: src.OriginalFileName,
		Checksum:         src.Checksum,
		FileCreatedAt:    src.FileCreatedAt,
		FileModifiedAt:   src.FileModifiedAt,
		LocalDateTime:    src.LocalDateTime,
		Duration:         src.Duration,
		Visibility:       src.Visibility,
		Status:           domain.AssetStatusActive,
		LivePhotoVideoID: src.LivePhotoVideoID,
		SidecarPath:      src.SidecarPath,
	}
	res, err := s.assets.Create(ctx, copied)
	if err != nil {
		return nil, fmt.Errorf("failed to copy asset %s: %w", src.ID, err)
	}
	if res.Outcome == repository.ConflictExisting {
		return nil, fmt.Errorf("failed to copy asset %s: %w", src.ID, domain.ErrChecksumConflict)
	}

	info, err := s.store.Stat(ctx, copied.OriginalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", copied.OriginalPath, err)
	}
	if err := s.assets.UpsertExif(ctx, &domain.AssetExif{AssetID: copied.ID, FileSizeInByte: info.Size}); err != nil {
		return nil, err
	}
	return copied, nil
}

// CheckExisting returns which device asset ids the caller already uploaded from deviceID.
func (s *AssetMediaService) CheckExisting(ctx context.Context, auth Auth, deviceID string, deviceAssetIDs []string) ([]string, error) {
	return s.assets.GetByDeviceIDs(ctx, auth.UserID, deviceID, deviceAssetIDs)
}

// BulkUploadCheck tells the client which files it still needs to send.
// It reads only.
func (s *AssetMediaService) BulkUploadCheck(ctx context.Context, auth Auth, items []domain.BulkUploadCheckItem) ([]domain.BulkUploadCheckResult, error) {
	checksums := make([][]byte, 0, len(items))
	parsed := make([][]byte, len(items))
	for i, item := range items {
		sum, err := domain.ParseChecksum(item.Checksum)
		if err != nil {
			continue
		}
		parsed[i] = sum
		checksums = append(checksums, sum)
	}

	existing, err := s.assets.GetByChecksums(ctx, auth.UserID, checksums)
	if err != nil {
		return nil, err
	}
	byChecksum := make(map[string]*domain.Asset, len(existing))
	for i := range existing {
		byChecksum[existing[i].ChecksumHex()] = &existing[i]
	}

	results := make([]domain.BulkUploadCheckResult, len(items))
	for i, item := range items {
		switch {
		case parsed[i] == nil:
			results[i] = domain.BulkUploadCheckResult{
				ID:     item.ID,
				Action: domain.BulkUploadReject,
				Reason: domain.BulkUploadReasonInvalidChecksum,
			}
		case byChecksum[hex.EncodeToString(parsed[i])] != nil:
			asset := byChecksum[hex.EncodeToString(parsed[i])]
			results[i] = domain.BulkUploadCheckResult{
				ID:        item.ID,
				Action:    domain.BulkUploadReject,
				Reason:    domain.BulkUploadReasonDuplicate,
				AssetID:   asset.ID,
				IsTrashed: asset.IsTrashed(),
			}
		default:
			results[i] = domain.BulkUploadCheckResult{ID: item.ID, Action: domain.BulkUploadAccept}
		}
	}
	return results, nil
}

// validate rejects a request before anything is written.
func (s *AssetMediaService) validate(ctx context.Context, auth Auth, file, sidecar *domain.UploadFile) error {
	if file == nil {
		return fmt.Errorf("%w: missing asset data", domain.ErrUnsupportedFileType)
	}
	if err := domain.ValidateUploadFileName(domain.UploadFieldAssetData, file.OriginalName); err != nil {
		return err
	}
	if sidecar != nil {
		if err := domain.ValidateUploadFileName(domain.UploadFieldSidecarData, sidecar.OriginalName); err != nil {
			return err
		}
	}

	user, err := s.users.GetByID(ctx, auth.UserID)
	if err != nil {
		return err
	}
	if !user.HasRoomFor(file.Size) {
		return fmt.Errorf("%w: %d bytes requested", domain.ErrQuotaExceeded, file.Size)
	}
	return nil
}

// checkLivePhotoLink requires videoID to be an unlinked video of the caller.
func (s *AssetMediaService) checkLivePhotoLink(ctx context.Context, auth Auth, videoID string) error {
	video, err := s.assets.GetByID(ctx, videoID, repository.AssetInclude{})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: %s does not exist", domain.ErrInvalidLivePhoto, videoID)
		}
		return err
	}
	if video.OwnerID != auth.UserID {
		return fmt.Errorf("%w: %s belongs to another user", domain.ErrInvalidLivePhoto, videoID)
	}
	if video.Type != domain.AssetTypeVideo {
		return fmt.Errorf("%w: %s is not a video", domain.ErrInvalidLivePhoto, videoID)
	}
	linked, err := s.assets.IsLivePhotoLinked(ctx, videoID)
	if err != nil {
		return err
	}
	if linked {
		return fmt.Errorf("%w: %s is already linked", domain.ErrInvalidLivePhoto, videoID)
	}
	return nil
}

// storeFiles writes the request's bytes to their content-addressed paths.
// Paths that already hold the same content are left alone and are not
// reported as written.
func (s *AssetMediaService) storeFiles(ctx context.Context, ownerID string, file, sidecar *domain.UploadFile) (storedFiles, error) {
	files := storedFiles{
		originalPath: storage.OriginalPath(ownerID, file.Checksum, domain.Extension(file.OriginalName)),
	}

	wrote, err := s.writeIfAbsent(ctx, files.originalPath, file)
	if wrote {
		files.written = append(files.written, files.originalPath)
	}
	if err != nil {
		return files, err
	}

	if sidecar != nil {
		p := storage.SidecarPath(files.originalPath, uuid.NewString())
		if err := s.store.Write(ctx, p, sidecar.Content, sidecar.Size); err != nil {
			return files, fmt.Errorf("failed to write sidecar: %w", err)
		}
		files.written = append(files.written, p)
		files.sidecarPath = &p
	}
	return files, nil
}

func (s *AssetMediaService) writeIfAbsent(ctx context.Context, p string, file *domain.UploadFile) (bool, error) {
	exists, err := storage.Exists(ctx, s.store, p)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	if exists {
		return false, nil
	}
	if err := s.store.Write(ctx, p, file.Content, file.Size); err != nil {
		// A failed write may leave a partial object behind.
		return true, fmt.Errorf("failed to write %s: %w", p, err)
	}
	return true, nil
}

func (s *AssetMediaService) newAsset(ownerID string, dto domain.AssetMediaCreate, file *domain.UploadFile, files storedFiles) *domain.Asset {
	visibility := dto.Visibility
	if visibility == "" {
		visibility = domain.AssetVisibilityTimeline
	}
	return &domain.Asset{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		DeviceID:         dto.DeviceID,
		DeviceAssetID:    dto.DeviceAssetID,
		Type:             domain.AssetTypeFromFileName(file.OriginalName),
		OriginalPath:     files.originalPath,
		OriginalFileName: originalFileName(dto, file),
		Checksum:         file.Checksum,
		FileCreatedAt:    dto.FileCreatedAt,
		FileModifiedAt:   dto.FileModifiedAt,
		LocalDateTime:    dto.FileCreatedAt,
		Duration:         dto.Duration,
		Visibility:       visibility,
		Status:           domain.AssetStatusActive,
		LivePhotoVideoID: dto.LivePhotoVideoID,
		SidecarPath:      files.sidecarPath,
	}
}

func originalFileName(dto domain.AssetMediaCreate, file *domain.UploadFile) string {
	if dto.Filename != "" {
		return dto.Filename
	}
	return file.OriginalName
}

// handleUploadError queues cleanup of the bytes this request wrote. A
// checksum collision is not a failure: it resolves to the asset that holds
// the content.
func (s *AssetMediaService) handleUploadError(
	ctx context.Context,
	err error,
	ownerID string,
	checksum []byte,
	written []string,
) (*domain.AssetMediaResponse, error) {
	s.queueFileDelete(ctx, written)

	if errors.Is(err, domain.ErrChecksumConflict) {
		existingID, lookupErr := s.assets.GetUploadAssetIDByChecksum(ctx, ownerID, checksum)
		if lookupErr != nil {
			return nil, fmt.Errorf("checksum conflict but existing asset not found: %w", lookupErr)
		}
		return &domain.AssetMediaResponse{ID: existingID, Status: domain.AssetMediaDuplicate}, nil
	}

	s.log(ctx).WithError(err).Error("Upload failed")
	return nil, err
}

// queueFileDelete is best effort. The delete job itself skips paths that
// an asset still references.
func (s *AssetMediaService) queueFileDelete(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	job := domain.MustJob(domain.JobFileDelete, domain.FileDeleteJob{Files: paths})
	if err := s.jobs.Queue(context.WithoutCancel(ctx), job); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to queue file cleanup")
	}
}
