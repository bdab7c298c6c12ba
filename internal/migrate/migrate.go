// Package migrate brings live tables in line with the catalog.
//
// A table whose live shape differs from the desired one is rebuilt: its rows
// are parked in a staging table, the table is re-created with the desired
// columns, and the values of retained columns are copied back. On backends
// that can roll back DDL the whole rebuild is one transaction. Elsewhere a
// marker row records how far the rebuild got so that Reconcile can repair a
// crash on the next start.
//
// Two UpdateTable calls on the same table at the same time are not supported.
package migrate

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"relstore/internal/dialect"
	"relstore/internal/schema"
	"relstore/internal/store"
)

type Operation int

const (
	NoOp Operation = iota
	Create
	Update
)

func (o Operation) String() string {
	switch o {
	case NoOp:
		return "noop"
	case Create:
		return "create"
	case Update:
		return "update"
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// ErrInterrupted means an earlier rebuild of the table did not finish and
// Reconcile has to run first.
var ErrInterrupted = errors.New("interrupted migration pending")

// Rebuild phases, recorded in the marker table on backends without
// transactional DDL.
const (
	phaseStarted   = "started"
	phaseStaged    = "staged"
	phaseDropped   = "dropped"
	phaseRecreated = "recreated"
	phaseCopied    = "copied"
)

type Migrator struct {
	st  *store.Store
	d   dialect.Dialect
	log *slog.Logger

	// afterPhase lets tests stop a rebuild part way through.
	afterPhase func(phase string) error
}

func New(st *store.Store, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}
	st.Allow(MarkerTable)
	return &Migrator{
		st:  st,
		d:   st.Dialect(),
		log: log.With("component", "migrate"),
	}
}

// DetermineOperation compares the live table against desired. The live
// structure is read fresh on every call.
func (m *Migrator) DetermineOperation(desired schema.TableSchema) (Operation, error) {
	live, err := m.st.GetLiveColumns(desired.Name)
	if errors.Is(err, schema.ErrNotFound) {
		return Create, nil
	}
	if err != nil {
		return NoOp, err
	}
	if schema.SameShape(m.d, live, desired.Columns) {
		return NoOp, nil
	}
	return Update, nil
}

// ExecuteOperation applies op to bring the table to desired.
func (m *Migrator) ExecuteOperation(op Operation, desired schema.TableSchema) error {
	switch op {
	case NoOp:
		return nil
	case Create:
		return m.CreateTable(desired.Name, desired.Columns)
	case Update:
		return m.UpdateTable(desired.Name, desired.Columns, desired.Renames)
	}
	return fmt.Errorf("unknown operation %d", int(op))
}

// CreateTable fails with an AlreadyExists SchemaError if the table exists.
func (m *Migrator) CreateTable(table string, cols []schema.ColumnDefinition) error {
	if err := m.st.CreateTable(table, cols); err != nil {
		return err
	}
	m.log.Info("created table", "table", table, "columns", len(cols), "keys", schema.PrimaryKeys(cols))
	return nil
}

// UpdateTable rebuilds table with the desired columns unless it already has
// that shape. Values move by column name, or from the old name of a column
// listed in renames. Live columns that are neither kept nor renamed are
// dropped together with their data.
func (m *Migrator) UpdateTable(table string, desired []schema.ColumnDefinition, renames schema.RenameMap) error {
	if err := (schema.TableSchema{Name: table, Columns: desired, Renames: renames}).Validate(); err != nil {
		return err
	}

	tx := m.d.TransactionalDDL()
	if !tx {
		if err := m.ensureMarkerTable(); err != nil {
			return err
		}
	}

	return m.st.WithWriter(tx, func(w *store.Writer) error {
		if !tx {
			if err := checkPending(w, m.d, table); err != nil {
				return err
			}
		}
		live, err := w.GetLiveColumns(table)
		if err != nil {
			return err
		}
		if schema.SameShape(m.d, live, desired) {
			m.log.Debug("table up to date", "table", table)
			return nil
		}

		r := &rebuild{
			m:       m,
			w:       w,
			table:   table,
			staging: table + store.StagingSuffix,
			marker:  !tx,
			fp:      schema.TableSchema{Name: table, Columns: desired, Renames: renames}.Fingerprint(),
		}
		return r.run(live, desired, renames)
	})
}

type rebuild struct {
	m              *Migrator
	w              *store.Writer
	table, staging string
	marker         bool
	fp             string
}

func (r *rebuild) run(live, desired []schema.ColumnDefinition, renames schema.RenameMap) error {
	log := r.m.log.With("table", r.table, "staging", r.staging)

	// A staging table without a marker is left over from a finished rebuild.
	if ok, err := r.w.TableExists(r.staging); err != nil {
		return err
	} else if ok {
		log.Warn("dropping stale staging table")
		if err := r.w.DropTable(r.staging); err != nil {
			return err
		}
	}

	if err := r.start(); err != nil {
		return err
	}

	// 1. Staging mirrors the live columns exactly, without a key.
	staging := make([]schema.ColumnDefinition, len(live))
	for i, c := range live {
		staging[i] = schema.ColumnDefinition{Name: c.Name, Type: c.Type, Native: c.Native}
	}
	if err := r.w.CreateTable(r.staging, staging); err != nil {
		return err
	}

	// 2.
	n, err := r.w.CopyAllRows(r.table, r.staging)
	if err != nil {
		return err
	}
	if err := r.phase(phaseStaged); err != nil {
		return err
	}

	// 3.
	if err := r.w.DropTable(r.table); err != nil {
		return err
	}
	if err := r.phase(phaseDropped); err != nil {
		return err
	}

	// 4.
	if err := r.w.CreateTable(r.table, desired); err != nil {
		return err
	}
	if err := r.phase(phaseRecreated); err != nil {
		return err
	}

	// 5, 6. Columns with no source keep the backend default.
	src, dst := retained(live, desired, renames)
	if len(src) > 0 {
		if _, err := r.w.CopyColumns(r.staging, r.table, src, dst); err != nil {
			return err
		}
	}
	if err := r.phase(phaseCopied); err != nil {
		return err
	}

	// 7.
	if err := r.w.DropTable(r.staging); err != nil {
		return err
	}
	if err := r.finish(); err != nil {
		return err
	}

	log.Info("rebuilt table",
		"rows", n,
		"retained", len(src),
		"dropped", dropped(live, src),
		"transactional", !r.marker,
		"fingerprint", r.fp)
	return nil
}

func (r *rebuild) phase(p string) error {
	if r.marker {
		if err := setPhase(r.w, r.table, p); err != nil {
			return err
		}
	}
	if r.m.afterPhase != nil {
		return r.m.afterPhase(p)
	}
	return nil
}

func (r *rebuild) start() error {
	if r.marker {
		if err := insertMarker(r.w, r.table, r.staging, r.fp); err != nil {
			return err
		}
	}
	if r.m.afterPhase != nil {
		return r.m.afterPhase(phaseStarted)
	}
	return nil
}

func (r *rebuild) finish() error {
	if !r.marker {
		return nil
	}
	return deleteMarker(r.w, r.table)
}

// retained pairs every desired column that has a source in the live table
// with that source. A rename entry wins over a same-named live column.
func retained(live, desired []schema.ColumnDefinition, renames schema.RenameMap) (src, dst []string) {
	for _, c := range desired {
		source := ""
		for from, to := range renames {
			if strings.EqualFold(to, c.Name) {
				if i := schema.Find(live, from); i >= 0 {
					source = live[i].Name
				}
			}
		}
		if source == "" {
			if i := schema.Find(live, c.Name); i >= 0 {
				source = live[i].Name
			}
		}
		if source != "" {
			src = append(src, source)
			dst = append(dst, c.Name)
		}
	}
	return src, dst
}

// dropped lists live columns whose values did not survive.
func dropped(live []schema.ColumnDefinition, src []string) []string {
	var out []string
	for _, c := range live {
		kept := false
		for _, s := range src {
			if strings.EqualFold(s, c.Name) {
				kept = true
				break
			}
		}
		if !kept {
			out = append(out, c.Name)
		}
	}
	return out
}
