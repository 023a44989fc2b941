package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/photovault/internal/api/middleware"
	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/service"
)

// AssetMediaService is the ingestion surface used by AssetMediaHandler.
type AssetMediaService interface {
	Upload(ctx context.Context, auth service.Auth, dto domain.AssetMediaCreate, file, sidecar *domain.UploadFile) (*domain.AssetMediaResponse, error)
	Replace(ctx context.Context, auth service.Auth, id string, dto domain.AssetMediaCreate, file, sidecar *domain.UploadFile) (*domain.AssetMediaResponse, error)
	CheckExisting(ctx context.Context, auth service.Auth, deviceID string, deviceAssetIDs []string) ([]string, error)
	BulkUploadCheck(ctx context.Context, auth service.Auth, items []domain.BulkUploadCheckItem) ([]domain.BulkUploadCheckResult, error)
}

// AssetMediaHandler handles upload and replace of asset content.
type AssetMediaHandler struct {
	media    AssetMediaService
	maxBytes int64
}

// NewAssetMediaHandler creates the handler. Request bodies larger than
// maxBytes are rejected; zero disables the limit.
func NewAssetMediaHandler(media AssetMediaService, maxBytes int64) *AssetMediaHandler {
	return &AssetMediaHandler{media: media, maxBytes: maxBytes}
}

// CheckExistingRequest lists device asset ids to look up.
type CheckExistingRequest struct {
	DeviceID       string   `json:"device_id" binding:"required"`
	DeviceAssetIDs []string `json:"device_asset_ids" binding:"required"`
}

// CheckExistingResponse lists the device asset ids already uploaded.
type CheckExistingResponse struct {
	ExistingIDs []string `json:"existing_ids"`
}

// BulkUploadCheckRequest lists client files to pre-check.
type BulkUploadCheckRequest struct {
	Assets []domain.BulkUploadCheckItem `json:"assets" binding:"required,dive"`
}

// BulkUploadCheckResponse answers a BulkUploadCheckRequest in order.
type BulkUploadCheckResponse struct {
	Results []domain.BulkUploadCheckResult `json:"results"`
}

// Upload handles POST /api/v1/assets.
func (h *AssetMediaHandler) Upload(c *gin.Context) {
	dto, file, sidecar, cleanup, ok := h.bindMedia(c)
	if !ok {
		return
	}
	defer cleanup()

	resp, err := h.media.Upload(c.Request.Context(), middleware.GetAuth(c), dto, file, sidecar)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Status == domain.AssetMediaDuplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// Replace handles PUT /api/v1/assets/:id/original.
func (h *AssetMediaHandler) Replace(c *gin.Context) {
	dto, file, sidecar, cleanup, ok := h.bindMedia(c)
	if !ok {
		return
	}
	defer cleanup()

	resp, err := h.media.Replace(c.Request.Context(), middleware.GetAuth(c), c.Param("id"), dto, file, sidecar)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CheckExisting handles POST /api/v1/assets/exist.
func (h *AssetMediaHandler) CheckExisting(c *gin.Context) {
	var req CheckExistingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	ids, err := h.media.CheckExisting(c.Request.Context(), middleware.GetAuth(c), req.DeviceID, req.DeviceAssetIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, CheckExistingResponse{ExistingIDs: ids})
}

// BulkUploadCheck handles POST /api/v1/assets/bulk-upload-check.
func (h *AssetMediaHandler) BulkUploadCheck(c *gin.Context) {
	var req BulkUploadCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	results, err := h.media.BulkUploadCheck(c.Request.Context(), middleware.GetAuth(c), req.Assets)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, BulkUploadCheckResponse{Results: results})
}

// bindMedia reads the multipart form. On failure it has already written the
// response and ok is false.
func (h *AssetMediaHandler) bindMedia(c *gin.Context) (dto domain.AssetMediaCreate, file, sidecar *domain.UploadFile, cleanup func(), ok bool) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}
	if err := c.ShouldBind(&dto); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			return dto, nil, nil, nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return dto, nil, nil, nil, false
	}

	var closers []io.Closer
	cleanup = func() {
		for _, cl := range closers {
			cl.Close()
		}
	}

	file, err := formFile(c, domain.UploadFieldAssetData, &closers)
	if err == nil && file == nil {
		err = fmt.Errorf("%s is required", domain.UploadFieldAssetData)
	}
	if err == nil {
		sidecar, err = formFile(c, domain.UploadFieldSidecarData, &closers)
	}
	if err != nil {
		cleanup()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return dto, nil, nil, nil, false
	}
	return dto, file, sidecar, cleanup, true
}

// formFile opens and hashes one multipart file. A missing field yields nil.
func formFile(c *gin.Context, field domain.UploadFieldName, closers *[]io.Closer) (*domain.UploadFile, error) {
	fh, err := c.FormFile(string(field))
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	return openUpload(field, fh, closers)
}

func openUpload(field domain.UploadFieldName, fh *multipart.FileHeader, closers *[]io.Closer) (*domain.UploadFile, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", field, err)
	}
	*closers = append(*closers, f)
	return domain.NewUploadFile(field, fh.Filename, f)
}
