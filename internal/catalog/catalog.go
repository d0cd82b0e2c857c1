// Package catalog introspects relation schemas through the database
// catalog views.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geostage/shpgate/internal/database"
)

// ErrNotQualified is returned when a relation name lacks its schema
// qualifier. All relation names in this service are schema-qualified.
var ErrNotQualified = errors.New("relation name is not schema-qualified")

// columnsSQL lists a relation's columns in declared order. Parameters
// are bound, never spliced.
const columnsSQL = `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

// Split separates a schema-qualified relation name into its schema and
// table parts. Names with more than one dot keep the remainder in the
// table part, matching how the relation was configured.
func Split(relation string) (schema, table string, err error) {
	schema, table, found := strings.Cut(relation, ".")
	if !found || schema == "" || table == "" {
		return "", "", fmt.Errorf("%w: %q", ErrNotQualified, relation)
	}
	return schema, table, nil
}

// Columns returns the ordered column names of a schema-qualified
// relation. A relation that does not exist yields an empty slice, not
// an error; callers decide whether that is fatal.
func Columns(ctx context.Context, db database.DB, relation string) ([]string, error) {
	schema, table, err := Split(relation)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, columnsSQL, schema, table)
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", relation, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("introspect %s: %w", relation, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("introspect %s: %w", relation, err)
	}
	return cols, nil
}
