package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRows plays a single-column result set of column names.
type fakeRows struct {
	names []string
	idx   int
	err   error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
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
	if len(dest) != 1 {
		return fmt.Errorf("scan expects 1 dest, got %d", len(dest))
	}
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

// fakeDB records the last query and returns canned rows.
type fakeDB struct {
	rows     *fakeRows
	queryErr error

	lastSQL  string
	lastArgs []any
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.lastSQL = sql
	db.lastArgs = args
	if db.queryErr != nil {
		return nil, db.queryErr
	}
	return db.rows, nil
}

func (db *fakeDB) Ping(ctx context.Context) error { return nil }

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		relation   string
		wantSchema string
		wantTable  string
		wantErr    bool
	}{
		{name: "qualified", relation: "public.site_features", wantSchema: "public", wantTable: "site_features"},
		{name: "extra dot stays in table", relation: "public.a.b", wantSchema: "public", wantTable: "a.b"},
		{name: "unqualified", relation: "site_features", wantErr: true},
		{name: "empty schema", relation: ".site_features", wantErr: true},
		{name: "empty table", relation: "public.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema, table, err := Split(tt.relation)
			if tt.wantErr {
				if !errors.Is(err, ErrNotQualified) {
					t.Fatalf("Split(%q) error = %v, want ErrNotQualified", tt.relation, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Split(%q) error = %v", tt.relation, err)
			}
			if schema != tt.wantSchema || table != tt.wantTable {
				t.Errorf("Split(%q) = (%q, %q), want (%q, %q)",
					tt.relation, schema, table, tt.wantSchema, tt.wantTable)
			}
		})
	}
}

func TestColumnsBindsSchemaAndTable(t *testing.T) {
	db := &fakeDB{rows: &fakeRows{names: []string{"id", "nama", "geom"}}}

	cols, err := Columns(context.Background(), db, "public.site_features")
	if err != nil {
		t.Fatalf("Columns() error = %v", err)
	}

	want := []string{"id", "nama", "geom"}
	if len(cols) != len(want) {
		t.Fatalf("Columns() = %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("Columns()[%d] = %q, want %q", i, cols[i], want[i])
		}
	}

	if len(db.lastArgs) != 2 || db.lastArgs[0] != "public" || db.lastArgs[1] != "site_features" {
		t.Errorf("query args = %v, want [public site_features]", db.lastArgs)
	}
}

func TestColumnsMissingRelationIsEmpty(t *testing.T) {
	db := &fakeDB{rows: &fakeRows{}}

	cols, err := Columns(context.Background(), db, "public.nope")
	if err != nil {
		t.Fatalf("Columns() error = %v", err)
	}
	if len(cols) != 0 {
		t.Errorf("Columns() = %v, want empty", cols)
	}
}

func TestColumnsUnqualifiedName(t *testing.T) {
	db := &fakeDB{rows: &fakeRows{}}

	_, err := Columns(context.Background(), db, "site_features")
	if !errors.Is(err, ErrNotQualified) {
		t.Fatalf("Columns() error = %v, want ErrNotQualified", err)
	}
	if db.lastSQL != "" {
		t.Errorf("query was issued for an unqualified name: %q", db.lastSQL)
	}
}

func TestColumnsQueryFailure(t *testing.T) {
	dbErr := errors.New("connection refused")
	db := &fakeDB{queryErr: dbErr}

	_, err := Columns(context.Background(), db, "public.site_features")
	if !errors.Is(err, dbErr) {
		t.Fatalf("Columns() error = %v, want wrapped %v", err, dbErr)
	}
}
