package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/geostage/shpgate/internal/archive"
	"github.com/geostage/shpgate/internal/catalog"
	"github.com/geostage/shpgate/internal/gis"
	"github.com/geostage/shpgate/internal/logging"
)

// Selector picks which target rows an export covers. The three
// implementations mirror the three download endpoints.
type Selector interface {
	// where returns the WHERE clause for the export query, or "" for
	// an unfiltered export. The clause is assembled only from validated
	// int64 values; caller text never reaches it.
	where(idCol string) string

	// suffix returns the deterministic archive-name suffix.
	suffix() string

	// filtered reports whether an empty result is a caller-visible
	// not-found rather than an internal failure.
	filtered() bool
}

// ExportAll selects every row of the target relation.
type ExportAll struct{}

func (ExportAll) where(string) string { return "" }
func (ExportAll) suffix() string      { return "all" }
func (ExportAll) filtered() bool      { return false }

// ExportByID selects a single row by identifier.
type ExportByID struct {
	ID int64
}

func (s ExportByID) where(idCol string) string {
	return quoteIdentifier(idCol) + " = " + strconv.FormatInt(s.ID, 10)
}

func (s ExportByID) suffix() string {
	return "id_" + strconv.FormatInt(s.ID, 10)
}

func (ExportByID) filtered() bool { return true }

// ExportByIDs selects a set of rows by identifier. IDs are kept sorted
// so the archive name and the query are deterministic for a given set.
type ExportByIDs struct {
	IDs []int64
}

func (s ExportByIDs) where(idCol string) string {
	parts := make([]string, len(s.IDs))
	for i, id := range s.IDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return quoteIdentifier(idCol) + " IN (" + strings.Join(parts, ", ") + ")"
}

func (s ExportByIDs) suffix() string {
	parts := make([]string, len(s.IDs))
	for i, id := range s.IDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "ids_" + strings.Join(parts, "-")
}

func (ExportByIDs) filtered() bool { return true }

// ParseIDList parses a comma-separated id list from a query parameter.
// Blank items are skipped, the rest must be integers. The result is
// sorted and deduplicated so equivalent requests name the same archive.
// An empty list and a malformed list fail distinctly.
func ParseIDList(raw string) (ExportByIDs, error) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return ExportByIDs{}, fmt.Errorf("%w: %q", ErrBadIDList, item)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return ExportByIDs{}, ErrEmptyIDList
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ExportByIDs{IDs: ids}, nil
}

// ExportResult hands the packaged archive to the web layer. Release
// must be called exactly once after the archive's bytes have been
// delivered (or delivery failed); it reclaims the whole workspace.
type ExportResult struct {
	Path string
	Name string

	releaseOnce sync.Once
	release     func()
}

// Release reclaims the export's workspace. Safe to call more than once.
func (r *ExportResult) Release() {
	r.releaseOnce.Do(func() {
		if r.release != nil {
			r.release()
		}
	})
}

// ExportArchive exports the selected target rows as a zipped shapefile
// inside a fresh workspace.
//
// A filtered selector that matches nothing surfaces ErrNoFeatures; an
// unfiltered export that produces nothing is an internal failure, since
// a full-table query is always valid. On success the workspace outlives
// the call: the caller owns it through ExportResult.Release.
func (s *Service) ExportArchive(ctx context.Context, sel Selector) (*ExportResult, error) {
	logger := logging.FromContext(ctx)

	base := s.targetTable
	if _, table, err := catalog.Split(s.targetTable); err == nil {
		base = table
	}
	archiveName := base + "_" + sel.suffix() + ".zip"

	sql := "SELECT * FROM " + quoteRelation(s.targetTable)
	if where := sel.where(s.idColumn); where != "" {
		sql += " WHERE " + where
	}

	ws, err := s.workspaces.Acquire()
	if err != nil {
		return nil, err
	}

	shpDir := ws.Join("export")
	if err := os.MkdirAll(shpDir, 0o700); err != nil {
		ws.Release()
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	shpPath, err := s.converter.ExportQuery(ctx, sql, shpDir, base+"_export")
	if err != nil {
		ws.Release()
		var convErr *gis.ConversionError
		if sel.filtered() && errors.As(err, &convErr) {
			// The tool refuses to write a shapefile for an empty result
			// set; for an id-filtered export that means the features do
			// not exist.
			return nil, fmt.Errorf("%w: %v", ErrNoFeatures, err)
		}
		return nil, err
	}
	if _, err := os.Stat(shpPath); err != nil {
		ws.Release()
		if sel.filtered() {
			return nil, fmt.Errorf("%w: export produced no files", ErrNoFeatures)
		}
		return nil, fmt.Errorf("export produced no files for %s", s.targetTable)
	}

	archivePath := ws.Join(archiveName)
	if err := archive.Pack(shpDir, archivePath); err != nil {
		ws.Release()
		return nil, fmt.Errorf("package export: %w", err)
	}

	logger.Info("export packaged", "relation", s.targetTable, "archive", archiveName)
	return &ExportResult{
		Path:    archivePath,
		Name:    archiveName,
		release: ws.Release,
	}, nil
}
