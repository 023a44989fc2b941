package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("not allowed")
	ErrQuotaExceeded       = errors.New("quota has been exceeded")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrInvalidLivePhoto    = errors.New("invalid live photo video")
	ErrChecksumConflict    = errors.New("asset with this checksum already exists")
	ErrInvalidChecksum     = errors.New("invalid checksum")
)
