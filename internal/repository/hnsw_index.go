package repository

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/timmy/photovault/internal/domain"
	"gorm.io/gorm"
)

const (
	hnswMaxNeighbors     = 16
	hnswSearchMultiplier = 3
	hnswMinCandidates    = 100
	hnswCompactAfter     = 1024

	// hnswSyncOverlap re-reads rows this far behind the watermark so a writer
	// with a lagging clock is not missed.
	hnswSyncOverlap = time.Minute
)

type hnswEntry struct {
	key       string
	ownerID   string
	assetType domain.AssetType
}

// HNSWIndex is an in-process VectorIndex over a coder/hnsw graph. The graph only
// knows keys and vectors, so owner and type filtering happens on the candidates.
//
// Graph nodes are never deleted in place. Each upsert adds a node under a fresh
// key and the previous node becomes stale; stale nodes are skipped at search time
// and dropped when the graph is rebuilt.
//
// Once loaded from a database, every Search first pulls in embeddings that
// other processes wrote to smart_search since the previous sync.
type HNSWIndex struct {
	syncMu    sync.Mutex
	db        *gorm.DB
	watermark time.Time

	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	entries map[string]hnswEntry // asset id -> live node
	live    map[string]string    // node key -> asset id
	seq     uint64
	stale   int
}

// NewHNSWIndex creates an empty index using cosine distance.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		graph:   newHNSWGraph(),
		entries: make(map[string]hnswEntry),
		live:    make(map[string]string),
	}
}

func newHNSWGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// Load fills the index from the smart_search table and keeps db for later syncs.
func (h *HNSWIndex) Load(ctx context.Context, db *gorm.DB) (int, error) {
	h.syncMu.Lock()
	h.db = db
	h.watermark = time.Time{}
	h.syncMu.Unlock()
	return h.Sync(ctx)
}

// Sync adds smart_search rows updated since the last sync and returns how
// many assets changed. Rows whose vector is already indexed are skipped.
func (h *HNSWIndex) Sync(ctx context.Context) (int, error) {
	h.syncMu.Lock()
	defer h.syncMu.Unlock()
	if h.db == nil {
		return 0, nil
	}

	query := h.db.WithContext(ctx).Model(&domain.SmartSearch{}).
		Select("smart_search.asset_id, smart_search.embedding, smart_search.updated_at, assets.owner_id, assets.type").
		Joins("JOIN assets ON assets.id = smart_search.asset_id")
	if !h.watermark.IsZero() {
		query = query.Where("smart_search.updated_at > ?", h.watermark.Add(-hnswSyncOverlap))
	}
	rows, err := query.Rows()
	if err != nil {
		return 0, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()

	n := 0
	latest := h.watermark
	for rows.Next() {
		var (
			asset domain.Asset
			row   domain.SmartSearch
		)
		if err := rows.Scan(&asset.ID, &row.Embedding, &row.UpdatedAt, &asset.OwnerID, &asset.Type); err != nil {
			return n, err
		}
		if row.UpdatedAt.After(latest) {
			latest = row.UpdatedAt
		}
		if h.indexed(asset.ID, row.Embedding.Slice()) {
			continue
		}
		if err := h.Upsert(ctx, &asset, row.Embedding.Slice()); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	h.watermark = latest
	return n, nil
}

func (h *HNSWIndex) indexed(assetID string, embedding []float32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry, ok := h.entries[assetID]
	if !ok {
		return false
	}
	vec, ok := h.graph.Lookup(entry.key)
	return ok && slices.Equal(vec, embedding)
}

func (h *HNSWIndex) Upsert(_ context.Context, asset *domain.Asset, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("empty embedding for asset %s", asset.ID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if dims := h.graph.Dims(); h.graph.Len() > 0 && dims != len(embedding) {
		return fmt.Errorf("embedding for asset %s has %d dimensions, index has %d", asset.ID, len(embedding), dims)
	}
	h.retire(asset.ID)

	h.seq++
	key := asset.ID + "#" + strconv.FormatUint(h.seq, 10)
	h.graph.Add(hnsw.MakeNode(key, slices.Clone(embedding)))
	h.entries[asset.ID] = hnswEntry{key: key, ownerID: asset.OwnerID, assetType: asset.Type}
	h.live[key] = asset.ID

	if h.stale > hnswCompactAfter && h.stale > len(h.live) {
		h.compact()
	}
	return nil
}

func (h *HNSWIndex) Delete(_ context.Context, assetIDs ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range assetIDs {
		h.retire(id)
	}
	return nil
}

// Len returns the number of indexed assets.
func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func (h *HNSWIndex) retire(assetID string) {
	if entry, ok := h.entries[assetID]; ok {
		delete(h.live, entry.key)
		delete(h.entries, assetID)
		h.stale++
	}
}

// compact rebuilds the graph from live nodes only.
func (h *HNSWIndex) compact() {
	g := newHNSWGraph()
	for key := range h.live {
		if vec, ok := h.graph.Lookup(key); ok {
			g.Add(hnsw.MakeNode(key, vec))
		}
	}
	h.graph = g
	h.stale = 0
}

// Search over-fetches candidates so owner and type filtering keeps enough recall.
func (h *HNSWIndex) Search(ctx context.Context, q VectorQuery) ([]VectorNeighbor, error) {
	if _, err := h.Sync(ctx); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.live) == 0 {
		return nil, nil
	}
	if dims := h.graph.Dims(); dims != len(q.Embedding) {
		return nil, fmt.Errorf("query has %d dimensions, index has %d", len(q.Embedding), dims)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	k := max(limit*hnswSearchMultiplier, hnswMinCandidates) + h.stale

	var out []VectorNeighbor
	for _, node := range h.graph.Search(q.Embedding, k) {
		assetID, ok := h.live[node.Key]
		if !ok || assetID == q.ExcludeID {
			continue
		}
		entry := h.entries[assetID]
		if q.Type != "" && entry.assetType != q.Type {
			continue
		}
		if len(q.OwnerIDs) > 0 && !slices.Contains(q.OwnerIDs, entry.ownerID) {
			continue
		}
		dist := float64(hnsw.CosineDistance(q.Embedding, node.Value))
		if dist > q.MaxDistance {
			continue
		}
		out = append(out, VectorNeighbor{AssetID: assetID, Distance: dist})
	}

	slices.SortFunc(out, compareNeighbors)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func compareNeighbors(a, b VectorNeighbor) int {
	switch {
	case a.Distance < b.Distance:
		return -1
	case a.Distance > b.Distance:
		return 1
	}
	switch {
	case a.AssetID < b.AssetID:
		return -1
	case a.AssetID > b.AssetID:
		return 1
	}
	return 0
}
