package migrate

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"relstore/internal/dialect"
	"relstore/internal/schema"
	"relstore/internal/store"
)

// sqliteNoTxDDL behaves like a backend whose DDL commits implicitly, which
// sends rebuilds down the marker path.
type sqliteNoTxDDL struct{ dialect.SQLiteDialect }

func (*sqliteNoTxDDL) TransactionalDDL() bool { return false }

func newTestMigrator(t *testing.T, d dialect.Dialect) (*Migrator, *store.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", filepath.Join(t.TempDir(), "migrate.db"))
	st, err := store.Open(store.Options{Driver: "sqlite3", DSN: dsn, Dialect: d})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, nil), st
}

func col(name string, ct dialect.ColumnType, primary bool) schema.ColumnDefinition {
	return schema.ColumnDefinition{Name: name, Type: ct, Primary: primary}
}

var (
	usersV1 = []schema.ColumnDefinition{
		col("id", dialect.String36, true),
		col("name", dialect.String64, false),
	}
	usersV2 = []schema.ColumnDefinition{
		col("id", dialect.String36, true),
		col("name", dialect.String64, false),
		col("age", dialect.Integer11, false),
	}
)

// values reads projection over the whole table, ordered by its first key
// column.
func values(t *testing.T, st *store.Store, table, projection string) []string {
	t.Helper()
	order := "id"
	if table == "stock" {
		order = "owner"
	}
	cells, err := st.QueryOrdered("", nil, table, projection, order)
	if err != nil {
		t.Fatalf("query %s.%s: %v", table, projection, err)
	}
	out := make([]string, len(cells))
	for i, c := range cells {
		if c.Valid {
			out[i] = c.String
		} else {
			out[i] = "<null>"
		}
	}
	return out
}

func TestEndToEnd(t *testing.T) {
	m, st := newTestMigrator(t, &dialect.SQLiteDialect{})

	if err := m.CreateTable("users", usersV1); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	if err := st.Insert("users", "u1", "Alice"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	got, err := st.Query("id", "u1", "users", "name")
	if err != nil || len(got) != 1 || got[0].String != "Alice" {
		t.Fatalf("Expected [Alice], got %v (%v)", got, err)
	}

	if err := m.UpdateTable("users", usersV2, schema.RenameMap{}); err != nil {
		t.Fatalf("UpdateTable failed: %v", err)
	}
	got, err = st.Query("id", "u1", "users", "age")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != (sql.NullString{}) {
		t.Errorf("Expected [null], got %v", got)
	}
}

func TestUpdateTable_IdempotentOnShape(t *testing.T) {
	m, st := newTestMigrator(t, &dialect.SQLiteDialect{})
	if err := m.CreateTable("users", usersV1); err != nil {
		t.Fatal(err)
	}
	_ = st.Insert("users", "u1", "Alice")
	_ = st.Insert("users", "u2", "Bob")

	if err := m.UpdateTable("users", usersV2, nil); err != nil {
		t.Fatal(err)
	}
	_, _ = st.Update("users", []string{"age"}, []any{30}, []string{"id"}, []any{"u1"})

	desired := schema.TableSchema{Name: "users", Columns: usersV2}
	op, err := m.DetermineOperation(desired)
	if err != nil {
		t.Fatal(err)
	}
	if op != NoOp {
		t.Fatalf("Expected NoOp after migrating, got %s", op)
	}

	if err := m.UpdateTable("users", usersV2, nil); err != nil {
		t.Fatal(err)
	}
	if got := values(t, st, "users", "age"); fmt.Sprint(got) != "[30 <null>]" {
		t.Errorf("Second update should leave data untouched, got %v", got)
	}
}

func TestSupersetLaw(t *testing.T) {
	m, st := newTestMigrator(t, &dialect.SQLiteDialect{})
	_ = m.CreateTable("users", usersV1)
	for i := 1; i <= 3; i++ {
		_ = st.Insert("users", fmt.Sprintf("u%d", i), fmt.Sprintf("name%d", i))
	}

	withMore := append(usersV2[:3:3], col("bio", dialect.Text, false))
	if err := m.UpdateTable("users", withMore, nil); err != nil {
		t.Fatal(err)
	}

	if got := values(t, st, "users", "id"); fmt.Sprint(got) != "[u1 u2 u3]" {
		t.Errorf("ids changed: %v", got)
	}
	if got := values(t, st, "users", "name"); fmt.Sprint(got) != "[name1 name2 name3]" {
		t.Errorf("names changed: %v", got)
	}
	if got := values(t, st, "users", "age, bio"); fmt.Sprint(got) != "[<null> <null> <null> <null> <null> <null>]" {
		t.Errorf("new columns should be null: %v", got)
	}
}

func TestRenameLaw(t *testing.T) {
	m, st := newTestMigrator(t, &dialect.SQLiteDialect{})
	old := []schema.ColumnDefinition{
		col("id", dialect.String36, true),
		col("fullname", dialect.String64, false),
	}
	_ = m.CreateTable("users", old)
	_ = st.Insert("users", "u1", "Alice Smith")

	if err := m.UpdateTable("users", usersV1, schema.RenameMap{"fullname": "name"}); err != nil {
		t.Fatal(err)
	}

	if got := values(t, st, "users", "name"); fmt.Sprint(got) != "[Alice Smith]" {
		t.Errorf("Expected renamed values, got %v", got)
	}
	live, _ := st.GetLiveColumns("users")
	if schema.Find(live, "fullname") >= 0 {
		t.Error("old column should be gone")
	}
}

func TestDropLaw(t *testing.T) {
	m, st := newTestMigrator(t, &dialect.SQLiteDialect{})
	_ = m.CreateTable("users", usersV2)
	_ = st.Insert("users", "u1", "Alice", 30)
	_ = st.Insert("users", "u2", "Bob", 40)

	if err := m.UpdateTable("users", usersV1, nil); err != nil {
		t.Fatal(err)
	}

	live, _ := st.GetLiveColumns("users")
	if schema.Find(live, "age") >= 0 {
		t.Error("age should be dropped")
	}
	if n, _ := st.Count("users"); n != 2 {
		t.Errorf("Row count changed: %d", n)
	}
}

func TestUpdateTable_TypeAndKeyChanges(t *testing.T) {
	m, st := newTestMigrator(t, &dialect.SQLiteDialect{})
	_ = m.CreateTable("stock", []schema.ColumnDefinition{
		col("owner", dialect.String36, true),
		col("item", dialect.String36, false),
		col("qty", dialect.Integer11, false),
	})
	_ = st.Insert("stock", "a", "apple", 3)

	composite := []schema.ColumnDefinition{
		col("owner", dialect.String36, true),
		col("item", dialect.String64, true),
		col("qty", dialect.Integer30, false),
	}
	op, _ := m.DetermineOperation(schema.TableSchema{Name: "stock", Columns: composite})
	if op != Update {
		t.Fatalf("Expected Update, got %s", op)
	}
	if err := m.UpdateTable("stock", composite, nil); err != nil {
		t.Fatal(err)
	}

	live, _ := st.GetLiveColumns("stock")
	if keys := schema.PrimaryKeys(live); fmt.Sprint(keys) != "[owner item]" {
		t.Errorf("Expected composite key, got %v", keys)
	}
	if got := values(t, st, "stock", "owner, item, qty"); fmt.Sprint(got) != "[a apple 3]" {
		t.Errorf("Row not carried over: %v", got)
	}
	op, _ = m.DetermineOperation(schema.TableSchema{Name: "stock", Columns: composite})
	if op != NoOp {
		t.Errorf("Expected NoOp, got %s", op)
	}
}

func TestCollapsedTypesDoNotRebuild(t *testing.T) {
	m, _ := newTestMigrator(t, &dialect.SQLiteDialect{})
	// Text renders as VARCHAR(512) on sqlite and reads back as String512.
	cols := []schema.ColumnDefinition{col("id", dialect.Integer11, true), col("body", dialect.Text, false)}
	_ = m.CreateTable("notes", cols)

	op, err := m.DetermineOperation(schema.TableSchema{Name: "notes", Columns: cols})
	if err != nil || op != NoOp {
		t.Errorf("Expected NoOp, got %s (%v)", op, err)
	}
}

func TestSchemaErrors(t *testing.T) {
	m, _ := newTestMigrator(t, &dialect.SQLiteDialect{})

	if err := m.UpdateTable("ghost", usersV1, nil); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	op, err := m.DetermineOperation(schema.TableSchema{Name: "ghost", Columns: usersV1})
	if err != nil || op != Create {
		t.Errorf("Expected Create, got %s (%v)", op, err)
	}

	_ = m.CreateTable("users", usersV1)
	if err := m.CreateTable("users", usersV1); !errors.Is(err, schema.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}

	dup := []schema.ColumnDefinition{col("a", dialect.String, false), col("A", dialect.String, false)}
	if err := m.UpdateTable("users", dup, nil); !errors.Is(err, schema.ErrInvalidDefinition) {
		t.Errorf("Expected ErrInvalidDefinition, got %v", err)
	}
}

func TestRetained(t *testing.T) {
	live := []schema.ColumnDefinition{col("id", 0, true), col("a", 0, false), col("b", 0, false), col("gone", 0, false)}
	desired := []schema.ColumnDefinition{col("ID", 0, true), col("a", 0, false), col("b", 0, false), col("c", 0, false)}

	// Swap a and b; c has no source.
	src, dst := retained(live, desired, schema.RenameMap{"a": "b", "b": "a"})
	if fmt.Sprint(src) != "[id b a]" || fmt.Sprint(dst) != "[ID a b]" {
		t.Errorf("src=%v dst=%v", src, dst)
	}
	if got := dropped(live, src); fmt.Sprint(got) != "[gone]" {
		t.Errorf("dropped=%v", got)
	}

	// A rename whose source is not live is ignored.
	src, _ = retained(live, desired, schema.RenameMap{"nope": "c"})
	if fmt.Sprint(src) != "[id a b]" {
		t.Errorf("src=%v", src)
	}
}

var errCrash = errors.New("simulated crash")

func crashAt(phase string) func(string) error {
	return func(p string) error {
		if p == phase {
			return errCrash
		}
		return nil
	}
}

func TestTransactionalRebuildRollsBack(t *testing.T) {
	m, st := newTestMigrator(t, &dialect.SQLiteDialect{})
	_ = m.CreateTable("users", usersV1)
	_ = st.Insert("users", "u1", "Alice")

	m.afterPhase = crashAt(phaseRecreated)
	if err := m.UpdateTable("users", usersV2, nil); !errors.Is(err, errCrash) {
		t.Fatalf("Expected crash, got %v", err)
	}

	live, err := st.GetLiveColumns("users")
	if err != nil {
		t.Fatal(err)
	}
	if !schema.SameShape(st.Dialect(), live, usersV1) {
		t.Errorf("Expected the old shape back, got %+v", live)
	}
	if got := values(t, st, "users", "name"); fmt.Sprint(got) != "[Alice]" {
		t.Errorf("data lost: %v", got)
	}
	if ok, _ := st.TableExists("users" + store.StagingSuffix); ok {
		t.Error("staging table should have been rolled back")
	}
}

func TestMarkerPath_Success(t *testing.T) {
	m, st := newTestMigrator(t, &sqliteNoTxDDL{})
	_ = m.CreateTable("users", usersV1)
	_ = st.Insert("users", "u1", "Alice")

	if err := m.UpdateTable("users", usersV2, nil); err != nil {
		t.Fatal(err)
	}
	if got := values(t, st, "users", "name, age"); fmt.Sprint(got) != "[Alice <null>]" {
		t.Errorf("Unexpected rows: %v", got)
	}
	if n, _ := st.Count(MarkerTable); n != 0 {
		t.Errorf("Marker should be cleared, %d rows left", n)
	}
}

func TestMarkerPath_ReconcileAfterDrop(t *testing.T) {
	m, st := newTestMigrator(t, &sqliteNoTxDDL{})
	_ = m.CreateTable("users", usersV1)
	_ = st.Insert("users", "u1", "Alice")

	m.afterPhase = crashAt(phaseDropped)
	if err := m.UpdateTable("users", usersV2, nil); !errors.Is(err, errCrash) {
		t.Fatalf("Expected crash, got %v", err)
	}
	m.afterPhase = nil

	if ok, _ := st.TableExists("users"); ok {
		t.Fatal("live table should be missing after the simulated crash")
	}
	if err := m.UpdateTable("users", usersV2, nil); !errors.Is(err, ErrInterrupted) {
		t.Errorf("Expected ErrInterrupted before reconciling, got %v", err)
	}

	repaired, err := m.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if fmt.Sprint(repaired) != "[users]" {
		t.Errorf("Expected [users] repaired, got %v", repaired)
	}
	if got := values(t, st, "users", "id, name"); fmt.Sprint(got) != "[u1 Alice]" {
		t.Errorf("data not restored: %v", got)
	}
	if ok, _ := st.TableExists("users" + store.StagingSuffix); ok {
		t.Error("staging table should be gone")
	}

	// The restored table has no key, so the next migration rebuilds it.
	if err := m.UpdateTable("users", usersV2, nil); err != nil {
		t.Fatalf("UpdateTable after Reconcile failed: %v", err)
	}
	if got := values(t, st, "users", "name, age"); fmt.Sprint(got) != "[Alice <null>]" {
		t.Errorf("Unexpected rows: %v", got)
	}
}

func TestMarkerPath_ReconcileBeforeDrop(t *testing.T) {
	m, st := newTestMigrator(t, &sqliteNoTxDDL{})
	_ = m.CreateTable("users", usersV1)
	_ = st.Insert("users", "u1", "Alice")

	m.afterPhase = crashAt(phaseStaged)
	_ = m.UpdateTable("users", usersV2, nil)
	m.afterPhase = nil

	if _, err := m.Reconcile(); err != nil {
		t.Fatal(err)
	}
	if ok, _ := st.TableExists("users" + store.StagingSuffix); ok {
		t.Error("staging table should be dropped")
	}
	live, _ := st.GetLiveColumns("users")
	if !schema.SameShape(st.Dialect(), live, usersV1) {
		t.Errorf("live table should be untouched: %+v", live)
	}
}

// A crash between dropping the live table and recording the dropped phase
// leaves the marker at staged; the staging copy must still be restored.
func TestMarkerPath_ReconcileAfterUnrecordedDrop(t *testing.T) {
	m, st := newTestMigrator(t, &sqliteNoTxDDL{})
	_ = m.CreateTable("users", usersV1)
	_ = st.Insert("users", "u1", "Alice")

	m.afterPhase = crashAt(phaseStaged)
	if err := m.UpdateTable("users", usersV2, nil); !errors.Is(err, errCrash) {
		t.Fatalf("Expected crash, got %v", err)
	}
	m.afterPhase = nil
	if err := st.DropTable("users"); err != nil {
		t.Fatal(err)
	}

	repaired, err := m.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if fmt.Sprint(repaired) != "[users]" {
		t.Errorf("Expected [users] repaired, got %v", repaired)
	}
	if got := values(t, st, "users", "id, name"); fmt.Sprint(got) != "[u1 Alice]" {
		t.Errorf("data not restored: %v", got)
	}
	if ok, _ := st.TableExists("users" + store.StagingSuffix); ok {
		t.Error("staging table should be gone")
	}
	if n, _ := st.Count(MarkerTable); n != 0 {
		t.Errorf("Marker should be cleared, %d rows left", n)
	}
}

func TestMarkerPath_ReconcileWithoutStaging(t *testing.T) {
	m, st := newTestMigrator(t, &sqliteNoTxDDL{})
	_ = m.CreateTable("users", usersV1)
	_ = st.Insert("users", "u1", "Alice")

	m.afterPhase = crashAt(phaseDropped)
	_ = m.UpdateTable("users", usersV2, nil)
	m.afterPhase = nil
	if err := st.DropTable("users" + store.StagingSuffix); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Reconcile(); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("Expected a NotFound error, got %v", err)
	}
	if n, _ := st.Count(MarkerTable); n != 1 {
		t.Errorf("Marker must survive a failed repair, %d rows left", n)
	}
}

func TestReconcileWithoutMarkerTable(t *testing.T) {
	m, _ := newTestMigrator(t, &dialect.SQLiteDialect{})
	repaired, err := m.Reconcile()
	if err != nil || len(repaired) != 0 {
		t.Errorf("Expected nothing to do, got %v (%v)", repaired, err)
	}
}

func TestPlanAndApply(t *testing.T) {
	m, st := newTestMigrator(t, &dialect.SQLiteDialect{})
	_ = m.CreateTable("users", usersV1)
	_ = m.CreateTable("tags", []schema.ColumnDefinition{col("tag", dialect.String64, true)})
	_ = st.Insert("users", "u1", "Alice")

	catalog := &schema.Catalog{Tables: []schema.TableSchema{
		{Name: "users", Columns: usersV2},
		{Name: "tags", Columns: []schema.ColumnDefinition{col("tag", dialect.String64, true)}},
		{Name: "sessions", Columns: []schema.ColumnDefinition{
			col("user_id", dialect.String36, true),
			col("token", dialect.Char32, true),
			col("expires", dialect.DateTime, false),
		}},
	}}

	steps, err := m.Plan(catalog)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	want := []Operation{Update, NoOp, Create}
	for i, s := range steps {
		if s.Operation != want[i] {
			t.Errorf("%s: expected %s, got %s", s.Table.Name, want[i], s.Operation)
		}
		if s.Fingerprint != catalog.Tables[i].Fingerprint() {
			t.Errorf("%s: fingerprint mismatch", s.Table.Name)
		}
	}
	if Changes(steps) != 2 {
		t.Errorf("Expected 2 changes, got %d", Changes(steps))
	}

	if err := m.Apply(steps); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	steps, _ = m.Plan(catalog)
	if Changes(steps) != 0 {
		t.Errorf("Expected a clean plan after Apply, got %+v", steps)
	}
	if got := values(t, st, "users", "name"); fmt.Sprint(got) != "[Alice]" {
		t.Errorf("data lost: %v", got)
	}
}
