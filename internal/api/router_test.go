package api

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/timmy/photovault/internal/api/handler"
	"github.com/timmy/photovault/internal/api/middleware"
	"github.com/timmy/photovault/internal/config"
	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/logger"
	"github.com/timmy/photovault/internal/service"
)

type uploadCall struct {
	auth     service.Auth
	id       string
	dto      domain.AssetMediaCreate
	content  string
	checksum []byte
	sidecar  bool
}

// fakeMedia records calls and answers with the configured response.
type fakeMedia struct {
	calls   []uploadCall
	resp    *domain.AssetMediaResponse
	err     error
	results []domain.BulkUploadCheckResult
	items   []domain.BulkUploadCheckItem
}

func (f *fakeMedia) record(auth service.Auth, id string, dto domain.AssetMediaCreate, file, sidecar *domain.UploadFile) {
	b, _ := io.ReadAll(file.Content)
	f.calls = append(f.calls, uploadCall{auth: auth, id: id, dto: dto, content: string(b), checksum: file.Checksum, sidecar: sidecar != nil})
}

func (f *fakeMedia) Upload(_ context.Context, auth service.Auth, dto domain.AssetMediaCreate, file, sidecar *domain.UploadFile) (*domain.AssetMediaResponse, error) {
	f.record(auth, "", dto, file, sidecar)
	return f.resp, f.err
}

func (f *fakeMedia) Replace(_ context.Context, auth service.Auth, id string, dto domain.AssetMediaCreate, file, sidecar *domain.UploadFile) (*domain.AssetMediaResponse, error) {
	f.record(auth, id, dto, file, sidecar)
	return f.resp, f.err
}

func (f *fakeMedia) CheckExisting(_ context.Context, _ service.Auth, deviceID string, ids []string) ([]string, error) {
	if deviceID != "phone" {
		return nil, nil
	}
	return ids[:1], nil
}

func (f *fakeMedia) BulkUploadCheck(_ context.Context, _ service.Auth, items []domain.BulkUploadCheckItem) ([]domain.BulkUploadCheckResult, error) {
	f.items = items
	return f.results, f.err
}

type fakeDuplicates struct {
	groups    []domain.DuplicateGroup
	owner     string
	requestID string
}

func (f *fakeDuplicates) GetDuplicates(ctx context.Context, auth service.Auth) ([]domain.DuplicateGroup, error) {
	f.owner = auth.UserID
	f.requestID = logger.GetRequestID(ctx)
	return f.groups, nil
}

type fakeJobs struct {
	jobs []domain.Job
}

func (q *fakeJobs) Queue(_ context.Context, job domain.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeJobs) QueueAll(_ context.Context, jobs []domain.Job) error {
	q.jobs = append(q.jobs, jobs...)
	return nil
}

type fixture struct {
	media      *fakeMedia
	duplicates *fakeDuplicates
	jobs       *fakeJobs
	checks     map[string]handler.Check
}

func newFixture() *fixture {
	return &fixture{
		media:      &fakeMedia{resp: &domain.AssetMediaResponse{ID: "a1", Status: domain.AssetMediaCreated}},
		duplicates: &fakeDuplicates{},
		jobs:       &fakeJobs{},
		checks:     map[string]handler.Check{"database": func(context.Context) error { return nil }},
	}
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	cfg := config.ServerConfig{Mode: "test", MaxUploadSizeMB: 1, CORS: config.CORSConfig{AllowAllOrigins: true}}
	r := SetupRouter(cfg, Services{
		Media:      f.media,
		Duplicates: f.duplicates,
		Jobs:       f.jobs,
		Checks:     f.checks,
	}, logger.GetDefault())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func multipartRequest(t *testing.T, method, url string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for field, content := range files {
		fw, err := mw.CreateFormFile(field, field+".jpg")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(fw, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(middleware.UserIDHeader, "u1")
	return req
}

func jsonRequest(method, url, body string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserIDHeader, "u1")
	return req
}

func TestUpload(t *testing.T) {
	f := newFixture()
	req := multipartRequest(t, http.MethodPost, "/api/v1/assets", map[string]string{
		"deviceId":       "phone",
		"deviceAssetId":  "IMG_1",
		"fileCreatedAt":  "2024-05-01T10:00:00Z",
		"fileModifiedAt": "2024-05-02T10:00:00Z",
	}, map[string]string{"assetData": "pixels", "sidecarData": "<xmp/>"})

	w := f.serve(req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	if len(f.media.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(f.media.calls))
	}
	call := f.media.calls[0]
	if call.auth.UserID != "u1" {
		t.Errorf("user = %q, want u1", call.auth.UserID)
	}
	if call.content != "pixels" || !call.sidecar {
		t.Errorf("content = %q sidecar = %v", call.content, call.sidecar)
	}
	if want := sha1.Sum([]byte("pixels")); !bytes.Equal(call.checksum, want[:]) {
		t.Errorf("checksum = %x, want %x", call.checksum, want)
	}
	if call.dto.DeviceAssetID != "IMG_1" || call.dto.FileModifiedAt.Day() != 2 {
		t.Errorf("dto = %+v", call.dto)
	}

	var resp domain.AssetMediaResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != "a1" || resp.Status != domain.AssetMediaCreated {
		t.Errorf("response = %+v", resp)
	}
}

func TestUploadResponses(t *testing.T) {
	tests := []struct {
		name  string
		resp  *domain.AssetMediaResponse
		err   error
		files map[string]string
		want  int
	}{
		{name: "duplicate", resp: &domain.AssetMediaResponse{ID: "a0", Status: domain.AssetMediaDuplicate}, want: http.StatusOK},
		{name: "quota", err: fmt.Errorf("upload: %w", domain.ErrQuotaExceeded), want: http.StatusBadRequest},
		{name: "unsupported", err: domain.ErrUnsupportedFileType, want: http.StatusBadRequest},
		{name: "forbidden", err: domain.ErrForbidden, want: http.StatusForbidden},
		{name: "internal", err: errors.New("disk on fire"), want: http.StatusInternalServerError},
		{name: "missing file", files: map[string]string{}, want: http.StatusBadRequest},
		{name: "too large", files: map[string]string{"assetData": strings.Repeat("x", 2<<20)}, want: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.resp != nil {
				f.media.resp = tt.resp
			}
			f.media.err = tt.err
			files := tt.files
			if files == nil {
				files = map[string]string{"assetData": "pixels"}
			}

			w := f.serve(multipartRequest(t, http.MethodPost, "/api/v1/assets", map[string]string{"deviceId": "phone"}, files))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
			if tt.want == http.StatusInternalServerError && strings.Contains(w.Body.String(), "disk on fire") {
				t.Error("internal error details leaked to the client")
			}
		})
	}
}

func TestReplace(t *testing.T) {
	f := newFixture()
	f.media.resp = &domain.AssetMediaResponse{ID: "copy", Status: domain.AssetMediaReplaced}

	w := f.serve(multipartRequest(t, http.MethodPut, "/api/v1/assets/a1/original", nil, map[string]string{"assetData": "new"}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	if got := f.media.calls[0].id; got != "a1" {
		t.Errorf("replaced id = %q, want a1", got)
	}
	if !strings.Contains(w.Body.String(), `"replaced"`) {
		t.Errorf("body = %s", w.Body)
	}

	f.media.err = domain.ErrNotFound
	w = f.serve(multipartRequest(t, http.MethodPut, "/api/v1/assets/nope/original", nil, map[string]string{"assetData": "new"}))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing asset status = %d, want 404", w.Code)
	}
}

func TestRequireUser(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/duplicates", nil)
	w := f.serve(req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestCheckExisting(t *testing.T) {
	f := newFixture()
	w := f.serve(jsonRequest(http.MethodPost, "/api/v1/assets/exist", `{"device_id":"phone","device_asset_ids":["x","y"]}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"existing_ids":["x"]}` {
		t.Errorf("body = %s", got)
	}

	w = f.serve(jsonRequest(http.MethodPost, "/api/v1/assets/exist", `{"device_id":"tablet","device_asset_ids":["x"]}`))
	if got := strings.TrimSpace(w.Body.String()); got != `{"existing_ids":[]}` {
		t.Errorf("body = %s", got)
	}

	w = f.serve(jsonRequest(http.MethodPost, "/api/v1/assets/exist", `{}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid request status = %d, want 400", w.Code)
	}
}

func TestBulkUploadCheck(t *testing.T) {
	f := newFixture()
	f.media.results = []domain.BulkUploadCheckResult{
		{ID: "1", Action: domain.BulkUploadReject, Reason: domain.BulkUploadReasonDuplicate, AssetID: "a1"},
		{ID: "2", Action: domain.BulkUploadAccept},
	}
	body := `{"assets":[{"id":"1","checksum":"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},{"id":"2","checksum":"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"}]}`

	w := f.serve(jsonRequest(http.MethodPost, "/api/v1/assets/bulk-upload-check", body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	if len(f.media.items) != 2 || f.media.items[1].ID != "2" {
		t.Errorf("items = %+v", f.media.items)
	}
	var resp handler.BulkUploadCheckResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 || resp.Results[0].Reason != domain.BulkUploadReasonDuplicate {
		t.Errorf("results = %+v", resp.Results)
	}

	w = f.serve(jsonRequest(http.MethodPost, "/api/v1/assets/bulk-upload-check", `{"assets":[{"id":"1"}]}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing checksum status = %d, want 400", w.Code)
	}
}

func TestDuplicates(t *testing.T) {
	f := newFixture()
	w := f.serve(jsonRequest(http.MethodGet, "/api/v1/duplicates", ""))
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("empty = %d %s", w.Code, w.Body)
	}
	if f.duplicates.owner != "u1" {
		t.Errorf("owner = %q, want u1", f.duplicates.owner)
	}

	f.duplicates.groups = []domain.DuplicateGroup{{DuplicateID: "d1", AssetIDs: []string{"a1", "a2"}}}
	w = f.serve(jsonRequest(http.MethodGet, "/api/v1/duplicates", ""))
	var groups []domain.DuplicateGroup
	if err := json.Unmarshal(w.Body.Bytes(), &groups); err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || len(groups[0].AssetIDs) != 2 {
		t.Errorf("groups = %+v", groups)
	}
}

func TestRequestID(t *testing.T) {
	t.Run("forwarded", func(t *testing.T) {
		f := newFixture()
		req := jsonRequest(http.MethodGet, "/api/v1/duplicates", "")
		req.Header.Set("X-Request-ID", "req-1")
		w := f.serve(req)
		if got := w.Header().Get("X-Request-ID"); got != "req-1" {
			t.Errorf("response X-Request-ID = %q, want req-1", got)
		}
		if f.duplicates.requestID != "req-1" {
			t.Errorf("request id seen by service = %q, want req-1", f.duplicates.requestID)
		}
	})
	t.Run("generated", func(t *testing.T) {
		f := newFixture()
		w := f.serve(jsonRequest(http.MethodGet, "/api/v1/duplicates", ""))
		got := w.Header().Get("X-Request-ID")
		if got == "" || f.duplicates.requestID != got {
			t.Errorf("response X-Request-ID = %q, service saw %q", got, f.duplicates.requestID)
		}
	})
}

func TestTriggerDetection(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantForce bool
	}{
		{name: "empty body", body: ""},
		{name: "force", body: `{"force":true}`, wantForce: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			w := f.serve(jsonRequest(http.MethodPost, "/api/v1/jobs/duplicates", tt.body))
			if w.Code != http.StatusAccepted {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body)
			}
			if len(f.jobs.jobs) != 1 || f.jobs.jobs[0].Name != domain.JobAssetDetectDuplicatesQueueAll {
				t.Fatalf("jobs = %+v", f.jobs.jobs)
			}
			var payload domain.ForceJob
			if err := f.jobs.jobs[0].Decode(&payload); err != nil {
				t.Fatal(err)
			}
			if payload.Force != tt.wantForce {
				t.Errorf("force = %v, want %v", payload.Force, tt.wantForce)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	f := newFixture()
	w := f.serve(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("healthy status = %d", w.Code)
	}

	f.checks["queue"] = func(context.Context) error { return errors.New("connection refused") }
	w = f.serve(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("body = %s", w.Body)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/assets", nil)
	req.Header.Set("Origin", "https://photos.example.com")
	w := f.serve(req)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestIsOriginAllowed(t *testing.T) {
	cfg := config.CORSConfig{AllowedOrigins: []string{"https://photos.example.com"}}
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://photos.example.com", true},
		{"HTTPS://PHOTOS.EXAMPLE.COM", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		if got := middleware.IsOriginAllowed(tt.origin, cfg); got != tt.want {
			t.Errorf("IsOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
