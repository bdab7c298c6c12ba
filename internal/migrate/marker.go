package migrate

import (
	"errors"
	"fmt"
	"time"

	"relstore/internal/dialect"
	"relstore/internal/schema"
	"relstore/internal/store"
)

// MarkerTable holds one row per table whose rebuild is in progress on
// backends where DDL commits implicitly.
const MarkerTable = "relstore_migrations"

var markerColumns = []schema.ColumnDefinition{
	{Name: "table_name", Type: dialect.String128, Primary: true},
	{Name: "staging_table", Type: dialect.String128},
	{Name: "phase", Type: dialect.String16},
	{Name: "fingerprint", Type: dialect.String32},
	{Name: "started_at", Type: dialect.DateTime},
}

func (m *Migrator) ensureMarkerTable() error {
	err := m.st.CreateTable(MarkerTable, markerColumns)
	if errors.Is(err, schema.ErrAlreadyExists) {
		return nil
	}
	return err
}

// checkPending fails with ErrInterrupted if table has a marker row.
func checkPending(w *store.Writer, d dialect.Dialect, table string) error {
	rows, err := w.QueryRows(
		fmt.Sprintf("SELECT phase FROM %s WHERE table_name = %s", MarkerTable, d.Placeholder(0)), table)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return fmt.Errorf("%s: %w (phase %s)", table, ErrInterrupted, rows[0][0].String)
	}
	return nil
}

func insertMarker(w *store.Writer, table, staging, fingerprint string) error {
	return w.InsertColumns(MarkerTable,
		[]string{"table_name", "staging_table", "phase", "fingerprint", "started_at"},
		[]any{table, staging, phaseStarted, fingerprint, time.Now()})
}

func setPhase(w *store.Writer, table, phase string) error {
	_, err := w.Update(MarkerTable, []string{"phase"}, []any{phase}, []string{"table_name"}, []any{table})
	return err
}

func deleteMarker(w *store.Writer, table string) error {
	_, err := w.Delete(MarkerTable, []string{"table_name"}, []any{table})
	return err
}

// Reconcile repairs rebuilds that were cut off before they finished and
// returns the tables it touched.
//
// The decision rests on which tables exist, not on the recorded phase alone:
// the crash may have come between a DDL statement and the phase update that
// follows it. When the live table is gone, or was dropped and recreated, the
// staging table holds the only complete copy of the old data and is renamed
// back into place. The restored table has the old columns but no primary
// key, so the next migration rebuilds it. Otherwise the live table is intact
// and only the staging table is removed.
func (m *Migrator) Reconcile() ([]string, error) {
	ok, err := m.st.TableExists(MarkerTable)
	if err != nil || !ok {
		return nil, err
	}
	rows, err := m.st.Select(store.Select{
		Table:      MarkerTable,
		Projection: "table_name, staging_table, phase",
	})
	if err != nil {
		return nil, err
	}

	var repaired []string
	for _, row := range rows {
		table, staging, phase := row[0].String, row[1].String, row[2].String
		m.st.Allow(table)
		err := m.st.WithWriter(false, func(w *store.Writer) error {
			return m.repair(w, table, staging, phase)
		})
		if err != nil {
			return repaired, err
		}
		repaired = append(repaired, table)
	}
	return repaired, nil
}

func (m *Migrator) repair(w *store.Writer, table, staging, phase string) error {
	log := m.log.With("table", table, "staging", staging, "phase", phase)

	stagingExists, err := w.TableExists(staging)
	if err != nil {
		return err
	}
	liveExists, err := w.TableExists(table)
	if err != nil {
		return err
	}
	replaced := phase == phaseDropped || phase == phaseRecreated

	switch {
	case stagingExists && (!liveExists || replaced):
		if liveExists {
			if err := w.DropTable(table); err != nil {
				return err
			}
		}
		if err := w.RenameTable(staging, table); err != nil {
			return err
		}
		log.Warn("restored table from staging after interrupted rebuild", "live_existed", liveExists)
	case stagingExists:
		if err := w.DropTable(staging); err != nil {
			return err
		}
		log.Warn("removed staging table of interrupted rebuild")
	case !liveExists || replaced:
		log.Error("staging table missing, cannot restore", "live_exists", liveExists)
		return schema.NewError(schema.NotFound, staging)
	default:
		log.Warn("cleared marker of interrupted rebuild")
	}
	return deleteMarker(w, table)
}
