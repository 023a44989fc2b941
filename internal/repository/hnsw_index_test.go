package repository

import (
	"context"
	"testing"
	"time"

	"github.com/timmy/photovault/internal/domain"
)

func TestHNSWIndexSearchFilters(t *testing.T) {
	ctx := context.Background()
	index := NewHNSWIndex()

	add := func(id, owner string, typ domain.AssetType, v []float32) {
		t.Helper()
		if err := index.Upsert(ctx, &domain.Asset{ID: id, OwnerID: owner, Type: typ}, v); err != nil {
			t.Fatalf("Upsert(%s) error = %v", id, err)
		}
	}
	add("q", "u1", domain.AssetTypeImage, []float32{1, 0})
	add("same", "u1", domain.AssetTypeImage, []float32{1, 0})
	add("video", "u1", domain.AssetTypeVideo, []float32{1, 0})
	add("foreign", "u2", domain.AssetTypeImage, []float32{1, 0})
	add("orthogonal", "u1", domain.AssetTypeImage, []float32{0, 1})

	got, err := index.Search(ctx, VectorQuery{
		Embedding:   []float32{1, 0},
		OwnerIDs:    []string{"u1"},
		Type:        domain.AssetTypeImage,
		ExcludeID:   "q",
		MaxDistance: 0.01,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].AssetID != "same" {
		t.Fatalf("Search() = %+v, want only 'same'", got)
	}
	if got[0].Distance > 1e-6 {
		t.Errorf("Distance = %v, want ~0", got[0].Distance)
	}
}

func TestHNSWIndexUpsertReplacesAndDelete(t *testing.T) {
	ctx := context.Background()
	index := NewHNSWIndex()
	asset := &domain.Asset{ID: "a", OwnerID: "u1", Type: domain.AssetTypeImage}
	other := &domain.Asset{ID: "b", OwnerID: "u1", Type: domain.AssetTypeImage}

	_ = index.Upsert(ctx, other, []float32{0, 1})
	_ = index.Upsert(ctx, asset, []float32{1, 0})
	_ = index.Upsert(ctx, asset, []float32{0, 1})

	q := VectorQuery{Embedding: []float32{0, 1}, OwnerIDs: []string{"u1"}, Type: domain.AssetTypeImage, ExcludeID: "b", MaxDistance: 0.01}
	got, _ := index.Search(ctx, q)
	if len(got) != 1 || got[0].AssetID != "a" {
		t.Fatalf("after re-upsert Search() = %+v, want a", got)
	}

	if err := index.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ = index.Search(ctx, q)
	if len(got) != 0 {
		t.Errorf("after delete Search() = %+v, want none", got)
	}
}

func TestHNSWIndexDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	index := NewHNSWIndex()
	if got, err := index.Search(ctx, VectorQuery{Embedding: []float32{1}}); err != nil || got != nil {
		t.Fatalf("Search() on empty index = %v, %v", got, err)
	}
	_ = index.Upsert(ctx, &domain.Asset{ID: "a"}, []float32{1, 0, 0})
	if err := index.Upsert(ctx, &domain.Asset{ID: "b"}, []float32{1, 0}); err == nil {
		t.Error("Upsert() with wrong dimensions should fail")
	}
	if _, err := index.Search(ctx, VectorQuery{Embedding: []float32{1, 0}}); err == nil {
		t.Error("Search() with wrong dimensions should fail")
	}
}

// Two processes share smart_search but not their graphs: each must see what
// the other wrote.
func TestHNSWIndexSyncsRowsFromOtherWriters(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	old := insertAsset(t, db, "u1", "old")
	insertEmbedding(t, db, old.ID, []float32{1, 0}, time.Now().UTC().Add(-time.Hour))

	local, remote := NewHNSWIndex(), NewHNSWIndex()
	for _, idx := range []*HNSWIndex{local, remote} {
		n, err := idx.Load(ctx, db)
		if err != nil || n != 1 {
			t.Fatalf("Load() = %d, %v", n, err)
		}
	}

	// Written by the other process after both indexes loaded.
	fresh := insertAsset(t, db, "u1", "fresh")
	insertEmbedding(t, db, fresh.ID, []float32{0, 1}, time.Now().UTC())
	if err := remote.Upsert(ctx, fresh, []float32{0, 1}); err != nil {
		t.Fatal(err)
	}

	q := VectorQuery{Embedding: []float32{0, 1}, OwnerIDs: []string{"u1"}, Type: domain.AssetTypeImage, MaxDistance: 0.01}
	got, err := local.Search(ctx, q)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].AssetID != fresh.ID {
		t.Fatalf("Search() = %+v, want %s", got, fresh.ID)
	}
	if local.Len() != 2 {
		t.Errorf("Len() = %d, want 2", local.Len())
	}

	// Rows already indexed with the same vector are not re-added.
	if n, err := remote.Sync(ctx); err != nil || n != 0 {
		t.Errorf("Sync() = %d, %v, want 0", n, err)
	}
}
