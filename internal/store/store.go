package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"relstore/internal/dialect"
	"relstore/internal/schema"
)

const (
	// StagingSuffix names the transient copy of a table during a rebuild.
	StagingSuffix = "__temp"
	// RenameSuffix names the intermediate table of RenameTable.
	RenameSuffix = "_renametemp"
)

type Options struct {
	Driver string
	// DSN is handed to the driver as is.
	DSN string
	// Dialect overrides the one picked from Driver.
	Dialect dialect.Dialect
	Logger  *slog.Logger
	// Tables, when set, is the allow-list of table names statements may touch.
	Tables []string
}

// Store is the data-access layer over one backend target.
//
// Table and column names are concatenated into statement text, so they must
// come from the application's own catalog. They are checked against a strict
// identifier pattern and, when configured, an allow-list. Projections, raw
// predicates and ordering clauses are trusted as given. Values are always
// bound.
type Store struct {
	acc     *Accessor
	dialect dialect.Dialect
	b       builder
	log     *slog.Logger

	mu    sync.RWMutex
	allow map[string]bool
}

// Open connects to the backend once and keeps the logical handle until Close.
func Open(opts Options) (*Store, error) {
	d := opts.Dialect
	if d == nil {
		var err error
		if d, err = dialect.GetDialect(opts.Driver); err != nil {
			return nil, err
		}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	acc, err := openAccessor(opts.Driver, opts.DSN)
	if err != nil {
		return nil, err
	}

	s := &Store{
		acc:     acc,
		dialect: d,
		b:       builder{d: d},
		log:     log.With("component", "store", "dialect", d.Name()),
	}
	if len(opts.Tables) > 0 {
		s.allow = make(map[string]bool, len(opts.Tables))
		s.Allow(opts.Tables...)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.acc.Close()
}

func (s *Store) Dialect() dialect.Dialect { return s.dialect }

// Allow extends the allow-list. Without a configured list every valid
// identifier is accepted and Allow does nothing.
func (s *Store) Allow(tables ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allow == nil {
		return
	}
	for _, t := range tables {
		s.allow[strings.ToLower(t)] = true
	}
}

// WithWriter runs fn inside one write section. When transactional is set the
// statements run in a single transaction that is rolled back if fn fails.
func (s *Store) WithWriter(transactional bool, fn func(*Writer) error) error {
	if transactional {
		return s.acc.WriteTx(func(tx *sql.Tx) error {
			return fn(&Writer{s: s, x: tx})
		})
	}
	return s.acc.Write(func(c *sql.Conn) error {
		return fn(&Writer{s: s, x: c})
	})
}

func (s *Store) failed(st Statement, err error) error {
	s.log.Warn("statement failed", "statement", st.Text, "err", err)
	return &ExecutionError{Statement: st.Text, Err: err}
}

// --- identifier checks ---

func stripQuotes(name string) string {
	return strings.ReplaceAll(name, "`", "")
}

func (s *Store) checkTable(tables ...string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range tables {
		if !schema.ValidIdentifier(t) {
			return fmt.Errorf("%w: table %q", ErrIdentifier, t)
		}
		if s.allow == nil {
			continue
		}
		key := strings.ToLower(t)
		base := strings.TrimSuffix(strings.TrimSuffix(key, StagingSuffix), RenameSuffix)
		if !s.allow[key] && !s.allow[base] {
			return fmt.Errorf("%w: table %q is not in the catalog", ErrIdentifier, t)
		}
	}
	return nil
}

// checkColumns validates column names and returns them without backticks.
func checkColumns(cols []string) ([]string, error) {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = stripQuotes(c)
		if !schema.ValidIdentifier(out[i]) {
			return nil, fmt.Errorf("%w: column %q", ErrIdentifier, c)
		}
	}
	return out, nil
}

func (s *Store) checkWrite(table string, cols []string, vals []any) ([]string, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}
	if len(cols) == 0 || len(cols) != len(vals) {
		return nil, fmt.Errorf("%s: %d columns for %d values", table, len(cols), len(vals))
	}
	return checkColumns(cols)
}

func (s *Store) checkWhere(w Where) (Where, error) {
	if w.raw || w.Clause != "" {
		if strings.TrimSpace(w.Clause) == "" {
			return w, ErrEmptyPredicate
		}
		return w, nil
	}
	if len(w.Keys) != len(w.Values) {
		return w, fmt.Errorf("predicate has %d keys for %d values", len(w.Keys), len(w.Values))
	}
	keys, err := checkColumns(w.Keys)
	if err != nil {
		return w, err
	}
	return Where{Keys: keys, Values: w.Values}, nil
}

// --- reads ---

func (s *Store) query(st Statement) ([]string, []schema.Row, error) {
	var (
		cols []string
		out  []schema.Row
	)
	err := s.acc.Read(func(c *sql.Conn) error {
		rows, err := c.QueryContext(context.Background(), st.Text, st.Args...)
		if err != nil {
			return s.failed(st, err)
		}
		defer rows.Close()
		if cols, out, err = scanRows(rows); err != nil {
			return s.failed(st, err)
		}
		return nil
	})
	return cols, out, err
}

// QueryRows runs a trusted read-only statement.
func (s *Store) QueryRows(query string, args ...any) ([]schema.Row, error) {
	_, rows, err := s.query(Statement{Text: query, Args: bindAll(args)})
	return rows, err
}

// Select reads rows of one table.
func (s *Store) Select(sel Select) ([]schema.Row, error) {
	_, rows, err := s.selectRows(sel)
	return rows, err
}

// SelectColumns is Select that also returns the result's column names.
func (s *Store) SelectColumns(sel Select) ([]string, []schema.Row, error) {
	return s.selectRows(sel)
}

func (s *Store) selectRows(sel Select) ([]string, []schema.Row, error) {
	if err := s.checkTable(sel.Table); err != nil {
		return nil, nil, err
	}
	where, err := s.checkWhere(sel.Where)
	if err != nil {
		return nil, nil, err
	}
	sel.Where = where
	return s.query(s.b.selectStmt(sel))
}

func flatten(rows []schema.Row) []sql.NullString {
	var out []sql.NullString
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

// Query returns every cell of projection for rows where keyCol equals keyVal,
// flattened row by row. An empty keyCol selects the whole table.
func (s *Store) Query(keyCol string, keyVal any, table, projection string) ([]sql.NullString, error) {
	return s.QueryOrdered(keyCol, keyVal, table, projection, "")
}

func (s *Store) QueryOrdered(keyCol string, keyVal any, table, projection, orderBy string) ([]sql.NullString, error) {
	var where Where
	if keyCol != "" {
		where = Eq([]string{keyCol}, []any{keyVal})
	}
	rows, err := s.Select(Select{Table: table, Projection: projection, Where: where, OrderBy: orderBy})
	return flatten(rows), err
}

// QueryKeys matches on several key columns at once.
func (s *Store) QueryKeys(keyCols []string, keyVals []any, table, projection string) ([]sql.NullString, error) {
	rows, err := s.Select(Select{Table: table, Projection: projection, Where: Eq(keyCols, keyVals)})
	return flatten(rows), err
}

// QueryWhere filters with a raw, trusted clause.
func (s *Store) QueryWhere(clause, table, projection string) ([]sql.NullString, error) {
	rows, err := s.Select(Select{Table: table, Projection: projection, Where: Raw(clause)})
	return flatten(rows), err
}

// QueryNames groups the result by column name.
func (s *Store) QueryNames(keyCols []string, keyVals []any, table, projection string) (map[string][]sql.NullString, error) {
	cols, rows, err := s.selectRows(Select{Table: table, Projection: projection, Where: Eq(keyCols, keyVals)})
	if err != nil {
		return nil, err
	}
	out := make(map[string][]sql.NullString, len(cols))
	for _, c := range cols {
		out[c] = []sql.NullString{}
	}
	for _, r := range rows {
		for i, c := range cols {
			out[c] = append(out[c], r[i])
		}
	}
	return out, nil
}

func (s *Store) Count(table string) (int64, error) {
	if err := s.checkTable(table); err != nil {
		return 0, err
	}
	_, rows, err := s.query(s.b.count(table))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, fmt.Errorf("count %s: empty result", table)
	}
	return strconv.ParseInt(rows[0][0].String, 10, 64)
}

func (s *Store) TableExists(table string) (bool, error) {
	if err := s.checkTable(table); err != nil {
		return false, err
	}
	return schema.Exists(s, s.dialect, table)
}

// GetLiveColumns introspects table; it fails with a NotFound SchemaError if
// the table does not exist.
func (s *Store) GetLiveColumns(table string) ([]schema.ColumnDefinition, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}
	return s.analyze(s, table)
}

// analyze wraps schema.Analyze and logs the columns whose native type has no
// portable tag.
func (s *Store) analyze(r schema.Reader, table string) ([]schema.ColumnDefinition, error) {
	cols, err := schema.Analyze(r, s.dialect, table)
	if err != nil {
		return nil, err
	}
	for _, c := range cols {
		if c.Type == dialect.Unknown {
			s.log.Debug("unmapped native type",
				"table", table, "column", c.Name, "native", c.Native,
				"err", schema.ErrUnrecognizedType)
		}
	}
	return cols, nil
}

// --- writes: each verb is one write section ---

func (s *Store) CreateTable(table string, cols []schema.ColumnDefinition) error {
	return s.WithWriter(false, func(w *Writer) error {
		return w.CreateTable(table, cols)
	})
}

func (s *Store) DropTable(table string) error {
	return s.WithWriter(false, func(w *Writer) error {
		return w.DropTable(table)
	})
}

func (s *Store) RenameTable(from, to string) error {
	return s.WithWriter(false, func(w *Writer) error {
		return w.RenameTable(from, to)
	})
}

func (s *Store) CopyAllRows(src, dst string) (n int64, err error) {
	err = s.WithWriter(false, func(w *Writer) error {
		n, err = w.CopyAllRows(src, dst)
		return err
	})
	return n, err
}

func (s *Store) Insert(table string, values ...any) error {
	return s.WithWriter(false, func(w *Writer) error {
		return w.Insert(table, values...)
	})
}

func (s *Store) InsertColumns(table string, cols []string, values []any) error {
	return s.WithWriter(false, func(w *Writer) error {
		return w.InsertColumns(table, cols, values)
	})
}

// InsertBatch inserts rows one statement at a time inside a single write
// section. It stops at the first failure and reports how many rows went in.
func (s *Store) InsertBatch(table string, cols []string, rows [][]any) (n int, err error) {
	err = s.WithWriter(false, func(w *Writer) error {
		for _, r := range rows {
			if err := w.InsertColumns(table, cols, r); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) Replace(table string, cols []string, values []any) error {
	return s.WithWriter(false, func(w *Writer) error {
		return w.Replace(table, cols, values)
	})
}

// ReplaceBatch is InsertBatch for Replace.
func (s *Store) ReplaceBatch(table string, cols []string, rows [][]any) (n int, err error) {
	err = s.WithWriter(false, func(w *Writer) error {
		for _, r := range rows {
			if err := w.Replace(table, cols, r); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) Update(table string, setCols []string, setVals []any, keyCols []string, keyVals []any) (n int64, err error) {
	err = s.WithWriter(false, func(w *Writer) error {
		n, err = w.Update(table, setCols, setVals, keyCols, keyVals)
		return err
	})
	return n, err
}

// Delete with an empty key list empties the table.
func (s *Store) Delete(table string, keyCols []string, keyVals []any) (n int64, err error) {
	err = s.WithWriter(false, func(w *Writer) error {
		n, err = w.Delete(table, keyCols, keyVals)
		return err
	})
	return n, err
}

func (s *Store) DeleteWhere(table string, where Where) (n int64, err error) {
	err = s.WithWriter(false, func(w *Writer) error {
		n, err = w.DeleteWhere(table, where)
		return err
	})
	return n, err
}

func (s *Store) DeleteByExpiry(table, column string) (n int64, err error) {
	err = s.WithWriter(false, func(w *Writer) error {
		n, err = w.DeleteByExpiry(table, column)
		return err
	})
	return n, err
}
