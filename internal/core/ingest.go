package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/geostage/shpgate/internal/archive"
	"github.com/geostage/shpgate/internal/logging"
)

// IngestResult summarizes a completed upload.
type IngestResult struct {
	Inserted int64
	FileName string
	Duration time.Duration
}

// UploadArchive runs the full ingest pipeline for one uploaded archive:
// save, extract, import into staging, reconcile into target, truncate
// staging. The workspace and the staging gate are released on every
// exit path.
//
// The web layer caps the reader at the configured maximum before this
// is called; size re-guards against callers that skip that layer.
func (s *Service) UploadArchive(ctx context.Context, fileName string, size int64, r io.Reader) (IngestResult, error) {
	start := time.Now()
	logger := logging.WithFields(ctx, "file_name", fileName)

	if !archive.Supported(fileName) {
		return IngestResult{}, fmt.Errorf("%w: %q is not a supported archive; upload a .zip containing the shapefile set (.shp .dbf .shx .prj)",
			ErrBadInput, filepath.Ext(fileName))
	}
	if size > 0 && s.maxUploadBytes > 0 && size > s.maxUploadBytes {
		return IngestResult{}, fmt.Errorf("%w: file exceeds the %d byte limit", ErrBadInput, s.maxUploadBytes)
	}

	ws, err := s.workspaces.Acquire()
	if err != nil {
		return IngestResult{}, err
	}
	defer ws.Release()

	archivePath := ws.Join(filepath.Base(fileName))
	if err := saveUpload(archivePath, r, s.maxUploadBytes); err != nil {
		return IngestResult{}, err
	}

	if err := archive.Extract(archivePath, ws.Path()); err != nil {
		if errors.Is(err, archive.ErrBadArchive) {
			return IngestResult{}, fmt.Errorf("%w: %v", ErrBadInput, err)
		}
		return IngestResult{}, err
	}

	// The staging relation is shared across requests; import, merge,
	// and truncate run as one critical section.
	if err := s.gate.Acquire(ctx); err != nil {
		return IngestResult{}, err
	}
	defer s.gate.Release()

	logger.Info("importing shapefile into staging", "relation", s.stagingTable, "workspace", ws.Path())
	if err := s.converter.ImportShapefile(ctx, ws.Path(), s.stagingTable); err != nil {
		return IngestResult{}, err
	}

	inserted, err := s.Reconcile(ctx)
	if err != nil {
		return IngestResult{}, err
	}
	if err := s.TruncateStaging(ctx); err != nil {
		return IngestResult{}, err
	}

	result := IngestResult{
		Inserted: inserted,
		FileName: fileName,
		Duration: time.Since(start),
	}
	logger.Info("ingest completed",
		"relation", s.targetTable,
		"inserted", result.Inserted,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// saveUpload copies the raw archive into the workspace, enforcing the
// size cap during the copy so an understated Content-Length cannot
// bypass it.
func saveUpload(path string, r io.Reader, maxBytes int64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	defer f.Close()

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		return fmt.Errorf("%w: file exceeds the %d byte limit", ErrBadInput, maxBytes)
	}
	return nil
}
