package schema

import (
	"fmt"
	"strings"

	"relstore/internal/dialect"
)

// Reader runs a read-only statement and returns every row as text cells.
type Reader interface {
	QueryRows(query string, args ...any) ([]Row, error)
}

// Exists reports whether table is present on the backend.
func Exists(r Reader, d dialect.Dialect, table string) (bool, error) {
	rows, err := r.QueryRows(d.TableExistsQuery(), table)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return len(rows) > 0, nil
}

// Analyze reads the live column structure of table. The result is never
// cached: the backend is the source of truth for every migration decision.
//
// A native type that has no portable tag maps to dialect.Unknown; the raw
// spelling stays available in ColumnDefinition.Native.
func Analyze(r Reader, d dialect.Dialect, table string) ([]ColumnDefinition, error) {
	ok, err := Exists(r, d, table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewError(NotFound, table)
	}

	rows, err := r.QueryRows(d.ColumnsQuery(), table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", table, err)
	}

	cols := make([]ColumnDefinition, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			return nil, fmt.Errorf("column query for %s returned %d cells, want 3", table, len(row))
		}
		name, native, pk := row[0], row[1], row[2]
		if !name.Valid {
			continue
		}

		cols = append(cols, ColumnDefinition{
			Name:    name.String,
			Type:    d.ColumnType(native.String),
			Primary: pkFlag(pk.String),
			Native:  native.String,
		})
	}
	return cols, nil
}

// pkFlag reads the key column of ColumnsQuery. Backends report it as an
// ordinal, a 0/1 flag or a boolean.
func pkFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "f":
		return false
	}
	return true
}
