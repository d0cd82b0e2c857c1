package core

// testsupport_test.go holds the fakes shared by the core tests: an
// in-memory DB that serves canned catalog rows and records executed
// statements, and a stub converter standing in for ogr2ogr.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/geostage/shpgate/internal/config"
	"github.com/geostage/shpgate/internal/gis"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRows serves a single-column result set.
type fakeRows struct {
	names []string
	idx   int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	if r.idx >= len(r.names) {
		return false
	}
	r.idx++
	return true
}
func (r *fakeRows) Scan(dest ...any) error {
	p, ok := dest[0].(*string)
	if !ok {
		return fmt.Errorf("scan dest is %T, want *string", dest[0])
	}
	*p = r.names[r.idx-1]
	return nil
}
func (r *fakeRows) Values() ([]any, error) { return nil, nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

// fakeDB serves catalog introspection from a relation->columns map and
// records every executed statement.
type fakeDB struct {
	mu      sync.Mutex
	columns map[string][]string // "schema.table" -> ordered columns
	execTag string              // command tag returned from Exec
	execErr error

	execs []string
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		columns: make(map[string][]string),
		execTag: "INSERT 0 0",
	}
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	db.execs = append(db.execs, sql)
	db.mu.Unlock()
	if db.execErr != nil {
		return pgconn.CommandTag{}, db.execErr
	}
	return pgconn.NewCommandTag(db.execTag), nil
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("introspection query expects 2 args, got %d", len(args))
	}
	key := fmt.Sprintf("%v.%v", args[0], args[1])
	db.mu.Lock()
	defer db.mu.Unlock()
	return &fakeRows{names: db.columns[key]}, nil
}

func (db *fakeDB) Ping(ctx context.Context) error { return nil }

func (db *fakeDB) executed() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]string(nil), db.execs...)
}

// stubConverter records invocations and simulates import/export
// behavior without shelling out.
type stubConverter struct {
	mu sync.Mutex

	importErr     error
	importedDirs  []string
	importedRels  []string
	exportErr     error
	exportSQLs    []string
	writeNoOutput bool // simulate a run that produces no .shp
}

func (c *stubConverter) ImportShapefile(ctx context.Context, srcDir, relation string) error {
	c.mu.Lock()
	c.importedDirs = append(c.importedDirs, srcDir)
	c.importedRels = append(c.importedRels, relation)
	c.mu.Unlock()
	return c.importErr
}

func (c *stubConverter) ExportQuery(ctx context.Context, sql, destDir, layer string) (string, error) {
	c.mu.Lock()
	c.exportSQLs = append(c.exportSQLs, sql)
	c.mu.Unlock()
	if c.exportErr != nil {
		return "", c.exportErr
	}
	shpPath := filepath.Join(destDir, layer+".shp")
	if !c.writeNoOutput {
		for _, ext := range []string{".shp", ".dbf", ".shx", ".prj"} {
			if err := os.WriteFile(filepath.Join(destDir, layer+ext), []byte(ext), 0o600); err != nil {
				return "", err
			}
		}
	}
	return shpPath, nil
}

// newTestService wires a Service around the fakes with a workspace root
// inside dir.
func newTestService(dir string, db *fakeDB, conv gis.Converter) *Service {
	cfg := &config.Config{}
	cfg.Pipeline.TargetTable = "public.site_features"
	cfg.Pipeline.StagingTable = "public.staging_site_features"
	cfg.Pipeline.IDColumn = "id"
	cfg.Pipeline.MaxUploadBytes = 1 << 20
	cfg.Pipeline.IngestWaitTimeout = 2 * time.Second
	cfg.Convert.WorkspaceRoot = dir
	return NewService(db, conv, cfg)
}
