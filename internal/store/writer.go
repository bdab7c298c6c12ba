package store

import (
	"context"
	"database/sql"
	"fmt"

	"relstore/internal/schema"
)

// execer is satisfied by both *sql.Conn and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Writer is a handle on an open write section. Statements issued through it
// run one after another on the same connection (and transaction, if any).
// A Writer must not be used after the function it was passed to returns.
type Writer struct {
	s *Store
	x execer
}

// RowsUnknown is the affected-row count of a statement that succeeded on a
// driver that cannot report one.
const RowsUnknown int64 = -1

// Exec runs a statement and returns the number of affected rows, or
// RowsUnknown if the driver does not report it.
func (w *Writer) Exec(st Statement) (int64, error) {
	res, err := w.x.ExecContext(context.Background(), st.Text, st.Args...)
	if err != nil {
		return 0, w.s.failed(st, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return RowsUnknown, nil
	}
	return n, nil
}

// QueryRows reads through the write section's connection, so it sees the
// section's own uncommitted changes.
func (w *Writer) QueryRows(query string, args ...any) ([]schema.Row, error) {
	st := Statement{Text: query, Args: bindAll(args)}
	rows, err := w.x.QueryContext(context.Background(), st.Text, st.Args...)
	if err != nil {
		return nil, w.s.failed(st, err)
	}
	defer rows.Close()
	_, out, err := scanRows(rows)
	if err != nil {
		return nil, w.s.failed(st, err)
	}
	return out, nil
}

func (w *Writer) TableExists(table string) (bool, error) {
	if err := w.s.checkTable(table); err != nil {
		return false, err
	}
	return schema.Exists(w, w.s.dialect, table)
}

func (w *Writer) GetLiveColumns(table string) ([]schema.ColumnDefinition, error) {
	if err := w.s.checkTable(table); err != nil {
		return nil, err
	}
	return w.s.analyze(w, table)
}

// CreateTable fails with an AlreadyExists SchemaError if the table is
// already there.
func (w *Writer) CreateTable(table string, cols []schema.ColumnDefinition) error {
	if err := w.s.checkTable(table); err != nil {
		return err
	}
	if err := schema.Validate(table, cols); err != nil {
		return err
	}
	exists, err := schema.Exists(w, w.s.dialect, table)
	if err != nil {
		return err
	}
	if exists {
		return schema.NewError(schema.AlreadyExists, table)
	}
	_, err = w.Exec(w.s.b.createTable(table, cols))
	return err
}

func (w *Writer) DropTable(table string) error {
	if err := w.s.checkTable(table); err != nil {
		return err
	}
	exists, err := schema.Exists(w, w.s.dialect, table)
	if err != nil {
		return err
	}
	if !exists {
		return schema.NewError(schema.NotFound, table)
	}
	_, err = w.Exec(w.s.b.dropTable(table))
	return err
}

// RenameTable renames through an intermediate name so that renames that only
// change letter case also work.
func (w *Writer) RenameTable(from, to string) error {
	tmp := to + RenameSuffix
	if err := w.s.checkTable(from, to, tmp); err != nil {
		return err
	}
	if _, err := w.Exec(w.s.b.renameTable(from, tmp)); err != nil {
		return err
	}
	_, err := w.Exec(w.s.b.renameTable(tmp, to))
	return err
}

// CopyAllRows copies every row of src into dst. Both tables must have the
// same column order.
func (w *Writer) CopyAllRows(src, dst string) (int64, error) {
	if err := w.s.checkTable(src, dst); err != nil {
		return 0, err
	}
	return w.Exec(w.s.b.copyRows(src, dst, nil, nil))
}

// CopyColumns copies srcCols of every src row into dstCols of dst.
func (w *Writer) CopyColumns(src, dst string, srcCols, dstCols []string) (int64, error) {
	if len(srcCols) != len(dstCols) || len(srcCols) == 0 {
		return 0, fmt.Errorf("copy %s -> %s: %d source columns for %d destination columns",
			src, dst, len(srcCols), len(dstCols))
	}
	if err := w.s.checkTable(src, dst); err != nil {
		return 0, err
	}
	srcCols, err := checkColumns(srcCols)
	if err != nil {
		return 0, err
	}
	dstCols, err = checkColumns(dstCols)
	if err != nil {
		return 0, err
	}
	return w.Exec(w.s.b.copyRows(src, dst, srcCols, dstCols))
}

// Insert adds one row by position; values must match the live column order.
func (w *Writer) Insert(table string, values ...any) error {
	if err := w.s.checkTable(table); err != nil {
		return err
	}
	_, err := w.Exec(w.s.b.insert(table, nil, values))
	return err
}

// InsertColumns adds one row with an explicit column list.
func (w *Writer) InsertColumns(table string, cols []string, values []any) error {
	cols, err := w.s.checkWrite(table, cols, values)
	if err != nil {
		return err
	}
	_, err = w.Exec(w.s.b.insert(table, cols, values))
	return err
}

// Replace inserts the row or overwrites the row with the same key, in one
// statement.
func (w *Writer) Replace(table string, cols []string, values []any) error {
	cols, err := w.s.checkWrite(table, cols, values)
	if err != nil {
		return err
	}

	var keys []string
	if w.s.dialect.UpsertNeedsKeys() {
		live, err := w.s.analyze(w, table)
		if err != nil {
			return err
		}
		keys = schema.PrimaryKeys(live)
		for _, k := range keys {
			if schema.Find(toColumns(cols), k) < 0 {
				return fmt.Errorf("replace into %s: key column %s missing from %v", table, k, cols)
			}
		}
	}
	_, err = w.Exec(w.s.b.upsert(table, cols, keys, values))
	return err
}

// Update sets setCols on the rows matching keyCols. With no key columns it
// updates every row.
func (w *Writer) Update(table string, setCols []string, setVals []any, keyCols []string, keyVals []any) (int64, error) {
	setCols, err := w.s.checkWrite(table, setCols, setVals)
	if err != nil {
		return 0, err
	}
	where, err := w.s.checkWhere(Eq(keyCols, keyVals))
	if err != nil {
		return 0, err
	}
	return w.Exec(w.s.b.update(table, setCols, setVals, where))
}

// Delete removes the rows matching keyCols. An empty key list removes every
// row of the table.
func (w *Writer) Delete(table string, keyCols []string, keyVals []any) (int64, error) {
	return w.DeleteWhere(table, Eq(keyCols, keyVals))
}

// DeleteWhere removes the rows matching where. A raw predicate must not be
// blank; it fails with ErrEmptyPredicate rather than matching every row.
func (w *Writer) DeleteWhere(table string, where Where) (int64, error) {
	if err := w.s.checkTable(table); err != nil {
		return 0, err
	}
	where, err := w.s.checkWhere(where)
	if err != nil {
		return 0, err
	}
	return w.Exec(w.s.b.delete(table, where))
}

// DeleteByExpiry removes rows whose column holds a time before the backend's
// current local time.
func (w *Writer) DeleteByExpiry(table, column string) (int64, error) {
	cols, err := checkColumns([]string{column})
	if err != nil {
		return 0, err
	}
	return w.DeleteWhere(table, Raw(w.s.dialect.ExpiredCondition(cols[0])))
}

func toColumns(names []string) []schema.ColumnDefinition {
	cols := make([]schema.ColumnDefinition, len(names))
	for i, n := range names {
		cols[i].Name = n
	}
	return cols
}
