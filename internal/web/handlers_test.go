package web

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/geostage/shpgate/internal/config"
	"github.com/geostage/shpgate/internal/core"
)

// stubService cans the pipeline responses so handler behavior can be
// tested without a database or conversion tool.
type stubService struct {
	uploadResult core.IngestResult
	uploadErr    error
	uploadedName string
	uploadedSize int64

	exportPath string
	exportName string
	exportErr  error

	maxBytes int64
	gate     core.GateStatus
}

func (s *stubService) UploadArchive(ctx context.Context, fileName string, size int64, r io.Reader) (core.IngestResult, error) {
	s.uploadedName = fileName
	s.uploadedSize = size
	io.Copy(io.Discard, r)
	if s.uploadErr != nil {
		return core.IngestResult{}, s.uploadErr
	}
	return s.uploadResult, nil
}

func (s *stubService) ExportArchive(ctx context.Context, sel core.Selector) (*core.ExportResult, error) {
	if s.exportErr != nil {
		return nil, s.exportErr
	}
	return &core.ExportResult{Path: s.exportPath, Name: s.exportName}, nil
}

func (s *stubService) MaxUploadBytes() int64 {
	if s.maxBytes > 0 {
		return s.maxBytes
	}
	return 1 << 20
}

func (s *stubService) GateStatus() core.GateStatus { return s.gate }

// stubPinger fakes the pool's health view.
type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(ctx context.Context) error { return p.err }

func newTestServer(service Service, db pinger, apiKey string) *Server {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Security.APIKey = apiKey
	return NewServer(service, db, cfg)
}

// multipartBody builds a multipart form with one file field.
func multipartBody(t *testing.T, fieldName, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(fieldName, fileName)
	if err != nil {
		t.Fatalf("CreateFormFile error = %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("form write error = %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart close error = %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHandleUploadOK(t *testing.T) {
	stub := &stubService{
		uploadResult: core.IngestResult{Inserted: 12, FileName: "sites.zip", Duration: 1500 * time.Millisecond},
	}
	srv := newTestServer(stub, &stubPinger{}, "")

	body, contentType := multipartBody(t, "file", "sites.zip", []byte("zip bytes"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}

	var resp uploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	if resp.Status != "ok" || resp.InsertedRows != 12 {
		t.Errorf("response = %+v, want status ok with 12 rows", resp)
	}
	if stub.uploadedName != "sites.zip" {
		t.Errorf("uploaded name = %q, want %q", stub.uploadedName, "sites.zip")
	}
}

func TestHandleUploadBadInput(t *testing.T) {
	stub := &stubService{uploadErr: fmt.Errorf("%w: not an archive", core.ErrBadInput)}
	srv := newTestServer(stub, &stubPinger{}, "")

	body, contentType := multipartBody(t, "file", "sites.csv", []byte("a,b"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleUploadMissingFileField(t *testing.T) {
	srv := newTestServer(&stubService{}, &stubPinger{}, "")

	body, contentType := multipartBody(t, "wrong", "sites.zip", []byte("zip"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleUploadOversizeDeclared(t *testing.T) {
	stub := &stubService{maxBytes: 128}
	srv := newTestServer(stub, &stubPinger{}, "")

	body, contentType := multipartBody(t, "file", "sites.zip", bytes.Repeat([]byte("x"), 4096))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413; body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleUploadBusyGate(t *testing.T) {
	stub := &stubService{uploadErr: core.ErrIngestBusy}
	srv := newTestServer(stub, &stubPinger{}, "")

	body, contentType := multipartBody(t, "file", "sites.zip", []byte("zip"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Errorf("Retry-After header missing on 503")
	}
}

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{name: "missing key", key: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong key", key: "nope", wantStatus: http.StatusUnauthorized},
		{name: "correct key", key: "sesame", wantStatus: http.StatusOK},
	}

	srv := newTestServer(&stubService{}, &stubPinger{}, "sesame")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()

			srv.Router().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

// exportFixture writes a small zip the stub can serve.
func exportFixture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("site_features_export.shp")
	if err != nil {
		t.Fatalf("zip Create error = %v", err)
	}
	w.Write([]byte("shape data"))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close error = %v", err)
	}
	f.Close()
	return path
}

func TestHandleDownloadAll(t *testing.T) {
	name := "site_features_all.zip"
	stub := &stubService{exportName: name, exportPath: exportFixture(t, name)}
	srv := newTestServer(stub, &stubPinger{}, "")

	req := httptest.NewRequest(http.MethodGet, "/download/all", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/zip" {
		t.Errorf("Content-Type = %q, want application/zip", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, name) {
		t.Errorf("Content-Disposition = %q, want it to name %q", got, name)
	}
	if rec.Body.Len() == 0 {
		t.Errorf("empty body for a packaged archive")
	}
}

func TestHandleDownloadByIDNotFound(t *testing.T) {
	stub := &stubService{exportErr: fmt.Errorf("%w: nothing exported", core.ErrNoFeatures)}
	srv := newTestServer(stub, &stubPinger{}, "")

	req := httptest.NewRequest(http.MethodGet, "/download/id/99", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Errorf("404 must carry a JSON reason, not an empty archive")
	}
}

func TestHandleDownloadByIDMalformed(t *testing.T) {
	srv := newTestServer(&stubService{}, &stubPinger{}, "")

	req := httptest.NewRequest(http.MethodGet, "/download/id/abc", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleDownloadByIDsValidation(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantBody string
	}{
		{name: "empty list", query: "/download/ids?ids=", wantBody: "empty id list"},
		{name: "missing parameter", query: "/download/ids", wantBody: "empty id list"},
		{name: "malformed list", query: "/download/ids?ids=1,abc", wantBody: "bad id list format"},
	}

	srv := newTestServer(&stubService{}, &stubPinger{}, "")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.query, nil)
			rec := httptest.NewRecorder()

			srv.Router().ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to mention %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandleDownloadByIDsOK(t *testing.T) {
	name := "site_features_ids_1-2.zip"
	stub := &stubService{exportName: name, exportPath: exportFixture(t, name)}
	srv := newTestServer(stub, &stubPinger{}, "")

	req := httptest.NewRequest(http.MethodGet, "/download/ids?ids=2,1", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&stubService{}, &stubPinger{}, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleHealthDatabaseDown(t *testing.T) {
	srv := newTestServer(&stubService{}, &stubPinger{err: errors.New("connection refused")}, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	stub := &stubService{gate: core.GateStatus{Active: true, Waiting: 2}}
	srv := newTestServer(stub, &stubPinger{}, "")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	if !resp.Ingest.Active || resp.Ingest.Waiting != 2 {
		t.Errorf("ingest status = %+v, want active with 2 waiting", resp.Ingest)
	}
}
