package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(rel), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFetchBatch(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{
		"2024/IMG_2.jpg",
		"2024/IMG_2.jpg.xmp",
		"2024/IMG_1.HEIC",
		"2024/IMG_1.xmp",
		"clip.mov",
		"notes.txt",
		".thumbnails/IMG_1.jpg",
		"2024/.hidden.png",
	} {
		writeFile(t, root, rel)
	}

	a := NewAdapter(root)
	ctx := context.Background()
	total, err := a.Total(ctx)
	if err != nil {
		t.Fatalf("Total: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}

	first, cursor, err := a.FetchBatch(ctx, "", 2)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(first) != 2 || cursor != "2" {
		t.Fatalf("first batch = %d items, cursor %q", len(first), cursor)
	}
	if first[0].SourceID != "2024/IMG_1.HEIC" || first[1].SourceID != "2024/IMG_2.jpg" {
		t.Errorf("order = %s, %s", first[0].SourceID, first[1].SourceID)
	}
	if got := filepath.Base(first[0].SidecarPath); got != "IMG_1.xmp" {
		t.Errorf("IMG_1 sidecar = %q", first[0].SidecarPath)
	}
	if got := filepath.Base(first[1].SidecarPath); got != "IMG_2.jpg.xmp" {
		t.Errorf("IMG_2 sidecar = %q", first[1].SidecarPath)
	}

	rest, cursor, err := a.FetchBatch(ctx, cursor, 2)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(rest) != 1 || rest[0].SourceID != "clip.mov" || rest[0].SidecarPath != "" || cursor != "" {
		t.Errorf("rest = %+v, cursor %q", rest, cursor)
	}

	if _, _, err := a.FetchBatch(ctx, "x", 2); err == nil {
		t.Error("expected an error for a malformed cursor")
	}
}

func TestFetchBatchMissingRoot(t *testing.T) {
	a := NewAdapter(filepath.Join(t.TempDir(), "missing"))
	if _, _, err := a.FetchBatch(context.Background(), "", 10); err == nil {
		t.Error("expected an error for a missing root")
	}
}
