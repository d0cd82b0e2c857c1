package core

// reconcile.go is the algorithmic heart of the service: the
// column-mapped merge of the staging relation into the target relation.
//
// The staging relation mirrors whatever the last import produced, so
// its schema can differ from the target's in column set, ordering, and
// casing. The merge maps columns by case-insensitive name, fills target
// columns with no staging counterpart with NULL, skips the target's
// identifier column, and moves all rows in one INSERT ... SELECT
// statement so the merge is atomic.

import (
	"context"
	"fmt"
	"strings"

	"github.com/geostage/shpgate/internal/catalog"
)

// quoteIdentifier wraps a name in double quotes for safe use in SQL.
// Escapes any embedded quotes by doubling them.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteRelation quotes each part of a schema-qualified relation name.
func quoteRelation(relation string) string {
	schema, table, err := catalog.Split(relation)
	if err != nil {
		return quoteIdentifier(relation)
	}
	return quoteIdentifier(schema) + "." + quoteIdentifier(table)
}

// BuildMerge assembles the single INSERT ... SELECT statement that moves
// every staging row into the target relation.
//
// Mapping rules, applied to target columns in their declared order:
//   - the identifier column (matched by exact name) is skipped; the
//     engine assigns it;
//   - a staging column whose lowercased name matches the target column's
//     lowercased name is selected under its original casing and aliased
//     to the target name;
//   - a target column with no staging match selects NULL.
//
// When staging holds two columns differing only by case, the later one
// in declared order wins the lookup. Returns ErrNothingToInsert when the
// target has no columns besides the identifier.
func BuildMerge(target, staging string, targetCols, stagingCols []string, idCol string) (string, error) {
	stagingByLower := make(map[string]string, len(stagingCols))
	for _, col := range stagingCols {
		stagingByLower[strings.ToLower(col)] = col
	}

	var insertCols, selectExprs []string
	for _, col := range targetCols {
		if col == idCol {
			continue
		}
		insertCols = append(insertCols, quoteIdentifier(col))
		if src, ok := stagingByLower[strings.ToLower(col)]; ok {
			selectExprs = append(selectExprs, quoteIdentifier(src)+" AS "+quoteIdentifier(col))
		} else {
			selectExprs = append(selectExprs, "NULL AS "+quoteIdentifier(col))
		}
	}

	if len(insertCols) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNothingToInsert, target)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		quoteRelation(target),
		strings.Join(insertCols, ", "),
		strings.Join(selectExprs, ", "),
		quoteRelation(staging),
	)
	return sql, nil
}

// Reconcile merges all staging rows into the target relation and
// returns the number of rows inserted.
//
// Both relations are introspected fresh on every call since each import
// reshapes staging. An empty column list for either relation means it
// does not exist, which aborts the merge. The row count comes from the
// engine's command tag; an unparseable tag yields zero, not a failure —
// the count is informational.
func (s *Service) Reconcile(ctx context.Context) (int64, error) {
	targetCols, err := catalog.Columns(ctx, s.db, s.targetTable)
	if err != nil {
		return 0, err
	}
	if len(targetCols) == 0 {
		return 0, fmt.Errorf("%w: target %s", ErrMissingRelation, s.targetTable)
	}

	stagingCols, err := catalog.Columns(ctx, s.db, s.stagingTable)
	if err != nil {
		return 0, err
	}
	if len(stagingCols) == 0 {
		return 0, fmt.Errorf("%w: staging %s", ErrMissingRelation, s.stagingTable)
	}

	sql, err := BuildMerge(s.targetTable, s.stagingTable, targetCols, stagingCols, s.idColumn)
	if err != nil {
		return 0, err
	}

	tag, err := s.db.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("merge %s into %s: %w", s.stagingTable, s.targetTable, err)
	}
	return tag.RowsAffected(), nil
}

// TruncateStaging empties the staging relation while keeping its
// structure. Must run immediately after a successful reconcile so an
// aborted retry cannot double-merge previously staged rows.
func (s *Service) TruncateStaging(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "TRUNCATE TABLE "+quoteRelation(s.stagingTable)); err != nil {
		return fmt.Errorf("truncate %s: %w", s.stagingTable, err)
	}
	return nil
}
