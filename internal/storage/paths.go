package storage

import (
	"encoding/hex"
	"path"
)

// SidecarExtension is appended to an original path to name its sidecar.
const SidecarExtension = ".xmp"

// OriginalPath returns the content-addressed location of an original file:
// upload/<owner>/<hh>/<hh>/<checksum><ext>. Identical content from the same
// owner always lands on the same path.
func OriginalPath(ownerID string, checksum []byte, ext string) string {
	sum := hex.EncodeToString(checksum)
	return path.Join("upload", ownerID, sum[0:2], sum[2:4], sum+ext)
}

// SidecarPath returns a sidecar location next to original. Sidecars are not
// content-addressed, so every stored sidecar gets its own key and a write
// never lands on a path an existing asset already points at.
func SidecarPath(original, key string) string {
	return original + "." + key + SidecarExtension
}
