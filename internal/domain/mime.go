package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {},
	".tif": {}, ".tiff": {}, ".heic": {}, ".heif": {}, ".avif": {}, ".jxl": {},
	".dng": {}, ".cr2": {}, ".cr3": {}, ".nef": {}, ".arw": {}, ".raf": {}, ".orf": {}, ".rw2": {},
}

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".m4v": {}, ".mkv": {}, ".webm": {}, ".avi": {},
	".3gp": {}, ".mts": {}, ".m2ts": {}, ".mpg": {}, ".mpeg": {}, ".wmv": {}, ".flv": {},
}

var sidecarExtensions = map[string]struct{}{
	".xmp": {},
}

var profileExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {}, ".heic": {}, ".heif": {},
}

// Extension returns the lowercased extension of name, including the dot.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// AssetTypeFromFileName derives the asset type from the file extension.
func AssetTypeFromFileName(name string) AssetType {
	ext := Extension(name)
	if _, ok := imageExtensions[ext]; ok {
		return AssetTypeImage
	}
	if _, ok := videoExtensions[ext]; ok {
		return AssetTypeVideo
	}
	return AssetTypeOther
}

// ValidateUploadFileName checks that name has an extension accepted for field.
func ValidateUploadFileName(field UploadFieldName, name string) error {
	ext := Extension(name)
	var ok bool
	switch field {
	case UploadFieldAssetData:
		ok = AssetTypeFromFileName(name) != AssetTypeOther
	case UploadFieldSidecarData:
		_, ok = sidecarExtensions[ext]
	case UploadFieldProfileImage:
		_, ok = profileExtensions[ext]
	}
	if !ok {
		return fmt.Errorf("%w: %q for field %s", ErrUnsupportedFileType, ext, field)
	}
	return nil
}
