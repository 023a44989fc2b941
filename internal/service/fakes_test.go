package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/timmy/photovault/internal/config"
	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/repository"
	"github.com/timmy/photovault/internal/storage"
)

// fakeAssets is an in-memory AssetRepository that enforces the
// (owner, checksum) uniqueness of the real table.
type fakeAssets struct {
	mu        sync.Mutex
	assets    map[string]*domain.Asset
	exif      map[string]domain.AssetExif
	detected  map[string]time.Time
	extracted map[string]time.Time
	creates   int

	// error injection
	createErr error
	updateErr error
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{
		assets:    make(map[string]*domain.Asset),
		exif:      make(map[string]domain.AssetExif),
		detected:  make(map[string]time.Time),
		extracted: make(map[string]time.Time),
	}
}

func (f *fakeAssets) put(a *domain.Asset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.assets[a.ID] = &cp
}

func (f *fakeAssets) get(id string) *domain.Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (f *fakeAssets) conflictLocked(ownerID string, checksum []byte, exceptID string) string {
	for _, a := range f.assets {
		if a.ID != exceptID && a.OwnerID == ownerID && bytes.Equal(a.Checksum, checksum) {
			return a.ID
		}
	}
	return ""
}

func (f *fakeAssets) Create(_ context.Context, asset *domain.Asset) (repository.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return repository.CreateResult{}, f.createErr
	}
	if id := f.conflictLocked(asset.OwnerID, asset.Checksum, ""); id != "" {
		return repository.CreateResult{Outcome: repository.ConflictExisting, ExistingID: id}, nil
	}
	cp := *asset
	f.assets[asset.ID] = &cp
	return repository.CreateResult{Outcome: repository.Created, Asset: asset}, nil
}

func (f *fakeAssets) Update(_ context.Context, asset *domain.Asset, _ ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.assets[asset.ID]; !ok {
		return domain.ErrNotFound
	}
	if id := f.conflictLocked(asset.OwnerID, asset.Checksum, asset.ID); id != "" {
		return fmt.Errorf("update: %w", domain.ErrChecksumConflict)
	}
	cp := *asset
	f.assets[asset.ID] = &cp
	return nil
}

func (f *fakeAssets) UpdateAll(_ context.Context, ids []string, values map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		a, ok := f.assets[id]
		if !ok {
			continue
		}
		for k, v := range values {
			switch k {
			case "status":
				a.Status = v.(domain.AssetStatus)
			case "visibility":
				a.Visibility = v.(domain.AssetVisibility)
			case "deleted_at":
				t := v.(time.Time)
				a.DeletedAt = &t
			default:
				return fmt.Errorf("fakeAssets.UpdateAll: unsupported column %s", k)
			}
		}
	}
	return nil
}

func (f *fakeAssets) GetByID(_ context.Context, id string, _ repository.AssetInclude) (*domain.Asset, error) {
	if a := f.get(id); a != nil {
		return a, nil
	}
	return nil, fmt.Errorf("asset %s: %w", id, domain.ErrNotFound)
}

func (f *fakeAssets) GetByChecksums(_ context.Context, ownerID string, checksums [][]byte) ([]domain.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Asset
	for _, a := range f.assets {
		if a.OwnerID != ownerID {
			continue
		}
		for _, c := range checksums {
			if bytes.Equal(a.Checksum, c) {
				out = append(out, *a)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeAssets) GetUploadAssetIDByChecksum(_ context.Context, ownerID string, checksum []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id := f.conflictLocked(ownerID, checksum, ""); id != "" {
		return id, nil
	}
	return "", domain.ErrNotFound
}

func (f *fakeAssets) GetByDeviceIDs(_ context.Context, ownerID, deviceID string, deviceAssetIDs []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, a := range f.assets {
		if a.OwnerID == ownerID && a.DeviceID == deviceID && slices.Contains(deviceAssetIDs, a.DeviceAssetID) {
			out = append(out, a.DeviceAssetID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeAssets) GetReferencedPaths(_ context.Context, paths []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range paths {
		for _, a := range f.assets {
			if a.OriginalPath == p || (a.SidecarPath != nil && *a.SidecarPath == p) {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeAssets) IsLivePhotoLinked(_ context.Context, videoID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assets {
		if a.LivePhotoVideoID != nil && *a.LivePhotoVideoID == videoID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAssets) UpsertExif(_ context.Context, exif *domain.AssetExif) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exif[exif.AssetID] = *exif
	return nil
}

func (f *fakeAssets) UpsertSmartSearch(_ context.Context, row *domain.SmartSearch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[row.AssetID]
	if !ok {
		return domain.ErrNotFound
	}
	cp := *row
	a.SmartSearch = &cp
	return nil
}

func (f *fakeAssets) StampMetadataExtracted(_ context.Context, assetID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracted[assetID] = at
	return nil
}

func (f *fakeAssets) StampDuplicatesDetected(_ context.Context, ids []string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.detected[id] = at
	}
	return nil
}

func (f *fakeAssets) StreamDuplicateCandidates(_ context.Context, force bool) iter.Seq2[string, error] {
	f.mu.Lock()
	var ids []string
	for id, a := range f.assets {
		if a.SmartSearch == nil || a.StackID != nil || !a.IsTimelineVisible() {
			continue
		}
		if _, done := f.detected[id]; done && !force {
			continue
		}
		ids = append(ids, id)
	}
	f.mu.Unlock()
	sort.Strings(ids)

	return func(yield func(string, error) bool) {
		for _, id := range ids {
			if !yield(id, nil) {
				return
			}
		}
	}
}

// fakeUsers is the quota ledger.
type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUsers(users ...*domain.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*domain.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) IncrementUsage(_ context.Context, id string, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.QuotaUsageInBytes += delta
	return nil
}

func (f *fakeUsers) usage(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].QuotaUsageInBytes
}

// fakeStore keeps objects in memory.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	mtimes  map[string]time.Time
	writes  []string
	deletes []string

	writeErr  error
	utimesErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte), mtimes: make(map[string]time.Time)}
}

func (s *fakeStore) Write(_ context.Context, p string, r io.Reader, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[p] = b
	s.writes = append(s.writes, p)
	return nil
}

func (s *fakeStore) Open(_ context.Context, p string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[p]
	if !ok {
		return nil, storage.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *fakeStore) Stat(_ context.Context, p string) (storage.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[p]
	if !ok {
		return storage.FileInfo{}, storage.ErrNotExist
	}
	return storage.FileInfo{Size: int64(len(b)), ModTime: s.mtimes[p]}, nil
}

func (s *fakeStore) Utimes(_ context.Context, p string, _, mtime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.utimesErr != nil {
		return s.utimesErr
	}
	if _, ok := s.objects[p]; !ok {
		return storage.ErrNotExist
	}
	s.mtimes[p] = mtime
	return nil
}

func (s *fakeStore) Delete(_ context.Context, paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		delete(s.objects, p)
		s.deletes = append(s.deletes, p)
	}
	return nil
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

// fakeQueue records jobs instead of running them.
type fakeQueue struct {
	mu      sync.Mutex
	jobs    []domain.Job
	batches int
	err     error
}

func (q *fakeQueue) Queue(_ context.Context, job domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) QueueAll(_ context.Context, jobs []domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.batches++
	q.jobs = append(q.jobs, jobs...)
	return nil
}

func (q *fakeQueue) named(name domain.JobName) []domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.Job
	for _, j := range q.jobs {
		if j.Name == name {
			out = append(out, j)
		}
	}
	return out
}

func entityJobs(jobs []domain.Job) []domain.EntityJob {
	out := make([]domain.EntityJob, 0, len(jobs))
	for _, j := range jobs {
		var p domain.EntityJob
		_ = j.Decode(&p)
		out = append(out, p)
	}
	return out
}

// fakeEvents records emissions synchronously.
type fakeEvents struct {
	mu     sync.Mutex
	events []domain.EventName
	loads  []any
}

func (e *fakeEvents) Emit(_ context.Context, name domain.EventName, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, name)
	e.loads = append(e.loads, payload)
}

func (e *fakeEvents) count(name domain.EventName) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev == name {
			n++
		}
	}
	return n
}

// allowAll grants every access check.
type allowAll struct{}

func (allowAll) CheckUpload(context.Context, Auth) error              { return nil }
func (allowAll) CheckAssetUpdate(context.Context, Auth, string) error { return nil }

// denyAll refuses every access check.
type denyAll struct{}

func (denyAll) CheckUpload(context.Context, Auth) error {
	return fmt.Errorf("upload: %w", domain.ErrForbidden)
}

func (denyAll) CheckAssetUpdate(context.Context, Auth, string) error {
	return fmt.Errorf("update: %w", domain.ErrForbidden)
}

// fakeIndex is a DuplicateIndex over fakeAssets. Search results are scripted
// per asset id; Merge and Remove apply cluster semantics to the asset rows.
type fakeIndex struct {
	assets  *fakeAssets
	hits    map[string][]domain.DuplicateHit
	merges  []domain.DuplicateMerge
	removes []string
}

func newFakeIndex(assets *fakeAssets) *fakeIndex {
	return &fakeIndex{assets: assets, hits: make(map[string][]domain.DuplicateHit)}
}

// Search returns the scripted neighbours with their current duplicate ids.
func (x *fakeIndex) Search(_ context.Context, s domain.DuplicateSearch) ([]domain.DuplicateHit, error) {
	scripted := x.hits[s.AssetID]
	out := make([]domain.DuplicateHit, 0, len(scripted))
	for _, h := range scripted {
		a := x.assets.get(h.AssetID)
		if a == nil {
			continue
		}
		h.DuplicateID = a.DuplicateID
		out = append(out, h)
	}
	return out, nil
}

func (x *fakeIndex) Merge(_ context.Context, m domain.DuplicateMerge) error {
	x.merges = append(x.merges, m)
	x.assets.mu.Lock()
	defer x.assets.mu.Unlock()
	target := m.TargetID
	for _, id := range m.AssetIDs {
		if a, ok := x.assets.assets[id]; ok {
			a.DuplicateID = &target
		}
	}
	for _, a := range x.assets.assets {
		if a.DuplicateID != nil && slices.Contains(m.SourceIDs, *a.DuplicateID) {
			a.DuplicateID = &target
		}
	}
	x.dissolveLocked()
	return nil
}

func (x *fakeIndex) Remove(_ context.Context, assetID string) error {
	x.removes = append(x.removes, assetID)
	x.assets.mu.Lock()
	defer x.assets.mu.Unlock()
	if a, ok := x.assets.assets[assetID]; ok {
		a.DuplicateID = nil
	}
	x.dissolveLocked()
	return nil
}

func (x *fakeIndex) dissolveLocked() {
	counts := make(map[string]int)
	for _, a := range x.assets.assets {
		if a.DuplicateID != nil {
			counts[*a.DuplicateID]++
		}
	}
	for _, a := range x.assets.assets {
		if a.DuplicateID != nil && counts[*a.DuplicateID] < 2 {
			a.DuplicateID = nil
		}
	}
}

func (x *fakeIndex) GetAll(_ context.Context, ownerIDs []string) ([]domain.DuplicateGroup, error) {
	x.assets.mu.Lock()
	defer x.assets.mu.Unlock()
	groups := make(map[string][]string)
	for _, a := range x.assets.assets {
		if a.DuplicateID != nil && slices.Contains(ownerIDs, a.OwnerID) {
			groups[*a.DuplicateID] = append(groups[*a.DuplicateID], a.ID)
		}
	}
	var out []domain.DuplicateGroup
	for id, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		out = append(out, domain.DuplicateGroup{DuplicateID: id, AssetIDs: members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DuplicateID < out[j].DuplicateID })
	return out, nil
}

func mlConfig(enabled, duplicates bool) StaticConfig {
	return StaticConfig{MachineLearning: config.MachineLearningConfig{
		Enabled: enabled,
		Clip:    config.ClipConfig{ModelName: "ViT-B-32__openai"},
		DuplicateDetection: config.DuplicateDetectionConfig{
			Enabled:     duplicates,
			MaxDistance: 0.01,
		},
	}}
}

func strPtr(s string) *string { return &s }
