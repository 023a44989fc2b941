package domain

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// UploadFieldName is the multipart field a file arrived in.
type UploadFieldName string

const (
	UploadFieldAssetData    UploadFieldName = "assetData"
	UploadFieldSidecarData  UploadFieldName = "sidecarData"
	UploadFieldProfileImage UploadFieldName = "profileImage"
)

// UploadFile is one received file. It is consumed by a single ingestion call.
type UploadFile struct {
	Field        UploadFieldName
	OriginalName string
	Checksum     []byte // SHA-1 of the content
	Size         int64
	Content      io.Reader
}

// NewUploadFile hashes r and rewinds it so the content can be streamed again.
func NewUploadFile(field UploadFieldName, name string, r io.ReadSeeker) (*UploadFile, error) {
	h := sha1.New()
	size, err := io.Copy(h, r)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", name, err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind %s: %w", name, err)
	}
	return &UploadFile{
		Field:        field,
		OriginalName: name,
		Checksum:     h.Sum(nil),
		Size:         size,
		Content:      r,
	}, nil
}

// AssetMediaCreate is the client-declared metadata sent with an upload or replace.
type AssetMediaCreate struct {
	DeviceID         string          `form:"deviceId" json:"device_id"`
	DeviceAssetID    string          `form:"deviceAssetId" json:"device_asset_id"`
	FileCreatedAt    time.Time       `form:"fileCreatedAt" json:"file_created_at"`
	FileModifiedAt   time.Time       `form:"fileModifiedAt" json:"file_modified_at"`
	Duration         string          `form:"duration" json:"duration,omitempty"`
	Filename         string          `form:"filename" json:"filename,omitempty"`
	Visibility       AssetVisibility `form:"visibility" json:"visibility,omitempty"`
	LivePhotoVideoID *string         `form:"livePhotoVideoId" json:"live_photo_video_id,omitempty"`
}

// AssetMediaStatus reports how an upload was resolved.
type AssetMediaStatus string

const (
	AssetMediaCreated   AssetMediaStatus = "created"
	AssetMediaDuplicate AssetMediaStatus = "duplicate"
	AssetMediaReplaced  AssetMediaStatus = "replaced"
)

// AssetMediaResponse is returned by upload and replace.
type AssetMediaResponse struct {
	ID     string           `json:"id"`
	Status AssetMediaStatus `json:"status"`
}

// BulkUploadCheckItem is one client-side file to pre-check.
// Checksum is SHA-1 in hex (40 chars) or base64 (28 chars).
type BulkUploadCheckItem struct {
	ID       string `json:"id" binding:"required"`
	Checksum string `json:"checksum" binding:"required"`
}

type BulkUploadAction string

const (
	BulkUploadAccept BulkUploadAction = "accept"
	BulkUploadReject BulkUploadAction = "reject"
)

type BulkUploadReason string

const (
	BulkUploadReasonDuplicate       BulkUploadReason = "duplicate"
	BulkUploadReasonInvalidChecksum BulkUploadReason = "invalid-checksum"
)

// BulkUploadCheckResult answers one BulkUploadCheckItem.
type BulkUploadCheckResult struct {
	ID        string           `json:"id"`
	Action    BulkUploadAction `json:"action"`
	Reason    BulkUploadReason `json:"reason,omitempty"`
	AssetID   string           `json:"asset_id,omitempty"`
	IsTrashed bool             `json:"is_trashed,omitempty"`
}

// ParseChecksum decodes a client-supplied SHA-1 checksum in hex or base64 form.
func ParseChecksum(s string) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	switch len(s) {
	case 2 * sha1.Size:
		b, err = hex.DecodeString(s)
	case base64.StdEncoding.EncodedLen(sha1.Size):
		b, err = base64.StdEncoding.DecodeString(s)
	default:
		return nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidChecksum, len(s))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChecksum, err)
	}
	return b, nil
}
