package web

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/geostage/shpgate/internal/core"
	"github.com/geostage/shpgate/internal/logging"
	"github.com/go-chi/chi/v5"
)

// uploadResponse is the JSON body of a successful upload.
type uploadResponse struct {
	Status       string `json:"status"`
	InsertedRows int64  `json:"inserted_rows"`
	FileName     string `json:"file_name"`
	DurationMS   int64  `json:"duration_ms"`
}

// handleUpload accepts a multipart archive in the "file" field and runs
// the full ingest pipeline. A success response is only written after
// reconciliation and staging truncation completed.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.service.MaxUploadBytes()

	// Reject an honestly-declared oversize body before reading it.
	if r.ContentLength > maxBytes {
		s.respondError(w, r, fmt.Errorf("%w: file exceeds the %d byte limit", core.ErrBadInput, maxBytes))
		return
	}
	// Multipart framing adds overhead above the file payload, so the
	// body cap carries slack; the exact cap is enforced per file by the
	// pipeline.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(64<<10))

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, r, err)
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: parse multipart form: %v", core.ErrBadInput, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, fmt.Errorf(`%w: missing "file" field`, core.ErrBadInput))
		return
	}
	defer file.Close()

	result, err := s.service.UploadArchive(r.Context(), header.Filename, header.Size, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Status:       "ok",
		InsertedRows: result.Inserted,
		FileName:     result.FileName,
		DurationMS:   result.Duration.Milliseconds(),
	})
}

// handleDownloadAll streams an archive of every target row.
func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, core.ExportAll{})
}

// handleDownloadByID streams an archive of one feature, or 404.
func (s *Server) handleDownloadByID(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "featureID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: feature id %q is not an integer", core.ErrBadInput, raw))
		return
	}
	s.export(w, r, core.ExportByID{ID: id})
}

// handleDownloadByIDs streams an archive of the requested feature set.
// An empty and a malformed ids parameter fail with distinct reasons.
func (s *Server) handleDownloadByIDs(w http.ResponseWriter, r *http.Request) {
	sel, err := core.ParseIDList(r.URL.Query().Get("ids"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.export(w, r, sel)
}

// export runs the export pipeline and streams the packaged archive.
// The workspace is released after delivery finishes, whether delivery
// succeeded, failed, or was cancelled by the caller.
func (s *Server) export(w http.ResponseWriter, r *http.Request, sel core.Selector) {
	result, err := s.service.ExportArchive(r.Context(), sel)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer result.Release()

	f, err := os.Open(result.Path)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("open export archive: %w", err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.respondError(w, r, fmt.Errorf("stat export archive: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Name))
	http.ServeContent(w, r, result.Name, info.ModTime(), f)
}

// handleHealth reports liveness and database reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		logging.FromContext(r.Context()).Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"reason": "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse surfaces the staging gate for monitoring.
type statusResponse struct {
	Status string          `json:"status"`
	Ingest core.GateStatus `json:"ingest"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status: "ok",
		Ingest: s.service.GateStatus(),
	})
}
