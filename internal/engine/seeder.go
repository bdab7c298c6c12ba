package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"relstore/internal/schema"
	"relstore/internal/store"
)

// Result is the outcome of seeding one table.
type Result struct {
	Table  string
	Target int
	Actual int64
	Status string
	Err    string
}

// Seeder fills catalog tables with fake rows through the store's verbs.
type Seeder struct {
	st  *store.Store
	gen *Generator
	log *slog.Logger

	// pool holds the key values of already seeded tables, keyed by
	// lower(table) + "." + lower(column).
	pool map[string][]string
}

func NewSeeder(st *store.Store, gen *Generator, log *slog.Logger) *Seeder {
	if gen == nil {
		gen = NewGenerator(0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Seeder{
		st:   st,
		gen:  gen,
		log:  log.With("component", "seed"),
		pool: make(map[string][]string),
	}
}

// Seed inserts count rows into each table, in the order given. Tables should
// come parents first (see schema.SortByDependencies) so that referencing
// columns can pick existing keys. Rows that fail to insert are retried with
// fresh values, up to ten attempts per requested row.
func (s *Seeder) Seed(tables []schema.TableSchema, count int, onProgress func()) ([]Result, error) {
	byName := make(map[string]schema.TableSchema, len(tables))
	for _, t := range tables {
		byName[strings.ToLower(t.Name)] = t
	}

	var results []Result
	for _, t := range tables {
		res, err := s.seedTable(t, byName, count, onProgress)
		if err != nil {
			return results, fmt.Errorf("seeding %s: %w", t.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Seeder) seedTable(t schema.TableSchema, catalog map[string]schema.TableSchema, count int, onProgress func()) (Result, error) {
	log := s.log.With("table", t.Name)

	initial, err := s.st.Count(t.Name)
	if err != nil {
		return Result{}, err
	}

	refs := make([][]string, len(t.Columns))
	for i, c := range t.Columns {
		refs[i], err = s.references(t, c, catalog)
		if err != nil {
			return Result{}, err
		}
	}

	cols := schema.Names(t.Columns)
	keys := schema.PrimaryKeys(t.Columns)
	used := make(map[string]bool)

	inserted, attempts := 0, 0
	err = s.st.WithWriter(false, func(w *store.Writer) error {
		for inserted < count && attempts < count*10 {
			attempts++
			values, key := s.row(t, refs, attempts)

			// Client-side check for repeated key combinations.
			if len(keys) > 0 {
				if used[key] {
					continue
				}
				used[key] = true
			}

			if err := w.InsertColumns(t.Name, cols, values); err != nil {
				if attempts <= 3 {
					log.Debug("insert failed", "attempt", attempts, "err", err)
				}
				continue
			}
			inserted++
			if onProgress != nil {
				onProgress()
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	final, err := s.st.Count(t.Name)
	if err != nil {
		return Result{}, err
	}
	res := Result{Table: t.Name, Target: count, Actual: final - initial, Status: "OK"}
	if res.Actual < int64(count) {
		res.Status = "MISSING DATA"
		if inserted == 0 && attempts > 0 {
			res.Err = "failed to insert any rows, see debug log"
		} else {
			res.Err = fmt.Sprintf("only inserted %d out of %d", res.Actual, count)
		}
	}
	log.Info("seeded table", "target", count, "actual", res.Actual, "attempts", attempts)

	if err := s.collectKeys(t); err != nil {
		return res, err
	}
	return res, nil
}

// row builds one row of values plus a string form of its key columns.
func (s *Seeder) row(t schema.TableSchema, refs [][]string, index int) ([]any, string) {
	values := make([]any, len(t.Columns))
	var key []string
	for i, c := range t.Columns {
		if pool := refs[i]; len(pool) > 0 {
			values[i] = pool[(index-1)%len(pool)]
		} else {
			values[i] = s.gen.Value(c, index)
		}
		if c.Primary {
			key = append(key, fmt.Sprint(values[i]))
		}
	}
	return values, strings.Join(key, "|")
}

// references returns the key values col should draw from when it refers to
// a key of one of the table's dependencies. A column refers to a parent key
// when it has the key's name, or the parent's name (singular or plural) and
// the key joined by an underscore, e.g. users.id <- sessions.user_id.
func (s *Seeder) references(t schema.TableSchema, col schema.ColumnDefinition, catalog map[string]schema.TableSchema) ([]string, error) {
	name := strings.ToLower(col.Name)
	for _, dep := range t.DependsOn {
		parent, ok := catalog[strings.ToLower(dep)]
		if !ok {
			continue
		}
		for _, key := range schema.PrimaryKeys(parent.Columns) {
			k := strings.ToLower(key)
			d := strings.ToLower(dep)
			if name != k && name != d+"_"+k && name != strings.TrimSuffix(d, "s")+"_"+k {
				continue
			}
			poolKey := d + "." + k
			if _, loaded := s.pool[poolKey]; !loaded {
				if err := s.loadKeys(parent.Name, key); err != nil {
					return nil, err
				}
			}
			return s.pool[poolKey], nil
		}
	}
	return nil, nil
}

// collectKeys refreshes the pool with t's key values once it is seeded.
func (s *Seeder) collectKeys(t schema.TableSchema) error {
	for _, key := range schema.PrimaryKeys(t.Columns) {
		if err := s.loadKeys(t.Name, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) loadKeys(table, key string) error {
	poolKey := strings.ToLower(table) + "." + strings.ToLower(key)
	cells, err := s.st.Query("", nil, table, key)
	if errors.Is(err, store.ErrIdentifier) {
		return err
	}
	if err != nil {
		// The parent may not exist yet; its columns fall back to fake values.
		s.log.Debug("no keys to reference", "table", table, "key", key, "err", err)
		s.pool[poolKey] = nil
		return nil
	}
	vals := make([]string, 0, len(cells))
	for _, c := range cells {
		if c.Valid {
			vals = append(vals, c.String)
		}
	}
	s.pool[poolKey] = vals
	return nil
}

// Verify re-counts every seeded table.
func (s *Seeder) Verify(results []Result) []Result {
	out := make([]Result, 0, len(results))
	for _, res := range results {
		n, err := s.st.Count(res.Table)
		status := "OK"
		if err != nil {
			status = fmt.Sprintf("VERIFY_FAIL: %v", err)
		} else if n < int64(res.Target) {
			status = fmt.Sprintf("PARTIAL: %d/%d", n, res.Target)
		}
		out = append(out, Result{
			Table:  res.Table,
			Target: res.Target,
			Actual: n,
			Status: status,
			Err:    res.Err,
		})
	}
	return out
}
