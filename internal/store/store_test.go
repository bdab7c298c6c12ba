package store_test

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"relstore/internal/dialect"
	"relstore/internal/schema"
	"relstore/internal/store"
)

func openTestStore(t *testing.T, tables ...string) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", filepath.Join(t.TempDir(), "test.db"))
	s, err := store.Open(store.Options{Driver: "sqlite3", DSN: dsn, Tables: tables})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var usersCols = []schema.ColumnDefinition{
	{Name: "id", Type: dialect.String36, Primary: true},
	{Name: "name", Type: dialect.String64},
}

func createUsers(t *testing.T, s *store.Store) {
	t.Helper()
	if err := s.CreateTable("users", usersCols); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
}

func strs(cells []sql.NullString) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		if !c.Valid {
			out[i] = "<null>"
			continue
		}
		out[i] = c.String
	}
	return out
}

func TestEndToEnd_CreateInsertQuery(t *testing.T) {
	s := openTestStore(t)
	createUsers(t, s)

	if err := s.Insert("users", "u1", "Alice"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	got, err := s.Query("id", "u1", "users", "name")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 1 || got[0].String != "Alice" {
		t.Errorf("Expected [Alice], got %v", strs(got))
	}
}

func TestCreateTable_LiveColumnsMatch(t *testing.T) {
	s := openTestStore(t)
	cols := []schema.ColumnDefinition{
		{Name: "region", Type: dialect.String36, Primary: true},
		{Name: "slot", Type: dialect.Integer11, Primary: true},
		{Name: "payload", Type: dialect.Blob},
		{Name: "updated", Type: dialect.DateTime},
	}
	if err := s.CreateTable("slots", cols); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	live, err := s.GetLiveColumns("slots")
	if err != nil {
		t.Fatalf("GetLiveColumns failed: %v", err)
	}
	if len(live) != len(cols) {
		t.Fatalf("Expected %d columns, got %d", len(cols), len(live))
	}
	for i := range cols {
		if live[i].Name != cols[i].Name || live[i].Primary != cols[i].Primary || live[i].Type != cols[i].Type {
			t.Errorf("Column %d: got %+v, want %+v", i, live[i], cols[i])
		}
	}

	err = s.CreateTable("slots", cols)
	if !errors.Is(err, schema.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetLiveColumns_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetLiveColumns("missing"); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := s.DropTable("missing"); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("DropTable: expected ErrNotFound, got %v", err)
	}
}

func TestReplace_Idempotent(t *testing.T) {
	s := openTestStore(t)
	createUsers(t, s)

	cols := []string{"id", "name"}
	if err := s.Replace("users", cols, []any{"k", "v1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Replace("users", cols, []any{"k", "v2"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Query("id", "k", "users", "name")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].String != "v2" {
		t.Errorf("Expected exactly [v2], got %v", strs(got))
	}
}

func TestDelete_EmptyKeysEmptiesTable(t *testing.T) {
	s := openTestStore(t)
	createUsers(t, s)
	for i := 0; i < 5; i++ {
		if err := s.Insert("users", fmt.Sprintf("u%d", i), "x"); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Delete("users", nil, nil)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 rows deleted, got %d", n)
	}
	if c, _ := s.Count("users"); c != 0 {
		t.Errorf("Expected empty table, got %d rows", c)
	}
	if ok, _ := s.TableExists("users"); !ok {
		t.Error("Schema should survive an unkeyed delete")
	}
}

func TestUpdateAndDeleteByKey(t *testing.T) {
	s := openTestStore(t)
	createUsers(t, s)
	_ = s.Insert("users", "u1", "Alice")
	_ = s.Insert("users", "u2", "Bob")

	n, err := s.Update("users", []string{"name"}, []any{"Carol"}, []string{"id"}, []any{"u2"})
	if err != nil || n != 1 {
		t.Fatalf("Update: n=%d err=%v", n, err)
	}
	got, _ := s.Query("", nil, "users", "name")
	if fmt.Sprint(strs(got)) != "[Alice Carol]" {
		t.Errorf("Unexpected names after update: %v", strs(got))
	}

	n, err = s.Delete("users", []string{"`id`"}, []any{"u1"})
	if err != nil || n != 1 {
		t.Fatalf("Delete: n=%d err=%v", n, err)
	}
	if c, _ := s.Count("users"); c != 1 {
		t.Errorf("Expected 1 row left, got %d", c)
	}
}

func TestBoundValuesAreUnescaped(t *testing.T) {
	s := openTestStore(t)
	createUsers(t, s)

	if err := s.InsertColumns("users", []string{"id", "name"}, []any{"u1", `O\'Brien said \"hi\"`}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Query("id", "u1", "users", "name")
	if len(got) != 1 || got[0].String != `O'Brien said "hi"` {
		t.Errorf("Unexpected value %v", strs(got))
	}

	// A quote in a key value is bound, never spliced into the text.
	got, err := s.Query("id", "x' OR '1'='1", "users", "name")
	if err != nil || len(got) != 0 {
		t.Errorf("Expected no match, got %v (%v)", strs(got), err)
	}
}

func TestBinaryCells(t *testing.T) {
	s := openTestStore(t)
	cols := []schema.ColumnDefinition{
		{Name: "id", Type: dialect.Integer11, Primary: true},
		{Name: "data", Type: dialect.Blob},
	}
	if err := s.CreateTable("blobs", cols); err != nil {
		t.Fatal(err)
	}
	_ = s.Insert("blobs", 1, []byte{0xff, 0xfe})
	_ = s.Insert("blobs", 2, []byte("plain"))
	_ = s.Insert("blobs", 3, nil)

	got, err := s.QueryOrdered("", nil, "blobs", "data", "id")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"//4=", "plain", "<null>"}
	if fmt.Sprint(strs(got)) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, strs(got))
	}
}

func TestDeleteByExpiry(t *testing.T) {
	s := openTestStore(t)
	cols := []schema.ColumnDefinition{
		{Name: "token", Type: dialect.Char32, Primary: true},
		{Name: "expires", Type: dialect.DateTime},
	}
	if err := s.CreateTable("tokens", cols); err != nil {
		t.Fatal(err)
	}
	_ = s.Insert("tokens", "old", "2000-01-01 00:00:00")
	_ = s.Insert("tokens", "new", "2999-01-01 00:00:00")

	n, err := s.DeleteByExpiry("tokens", "expires")
	if err != nil {
		t.Fatalf("DeleteByExpiry failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 expired row, got %d", n)
	}
	got, _ := s.Query("", nil, "tokens", "token")
	if len(got) != 1 || got[0].String != "new" {
		t.Errorf("Expected only the unexpired token, got %v", strs(got))
	}
}

func TestQueryFamily(t *testing.T) {
	s := openTestStore(t)
	cols := []schema.ColumnDefinition{
		{Name: "owner", Type: dialect.String36, Primary: true},
		{Name: "item", Type: dialect.String36, Primary: true},
		{Name: "qty", Type: dialect.Integer11},
	}
	if err := s.CreateTable("stock", cols); err != nil {
		t.Fatal(err)
	}
	rows := [][]any{{"a", "apple", 3}, {"a", "pear", 1}, {"b", "apple", 7}}
	if n, err := s.InsertBatch("stock", []string{"owner", "item", "qty"}, rows); err != nil || n != 3 {
		t.Fatalf("InsertBatch: n=%d err=%v", n, err)
	}

	got, _ := s.QueryKeys([]string{"owner", "item"}, []any{"a", "pear"}, "stock", "qty")
	if fmt.Sprint(strs(got)) != "[1]" {
		t.Errorf("QueryKeys: %v", strs(got))
	}

	got, _ = s.QueryOrdered("item", "apple", "stock", "owner, qty", "qty DESC")
	if fmt.Sprint(strs(got)) != "[b 7 a 3]" {
		t.Errorf("QueryOrdered: %v", strs(got))
	}

	got, _ = s.QueryWhere("qty > 2", "stock", "item")
	if len(got) != 2 {
		t.Errorf("QueryWhere: %v", strs(got))
	}

	names, err := s.QueryNames([]string{"owner"}, []any{"a"}, "stock", "item, qty")
	if err != nil {
		t.Fatal(err)
	}
	if len(names["item"]) != 2 || len(names["qty"]) != 2 {
		t.Errorf("QueryNames: %v", names)
	}

	sel, err := s.Select(store.Select{Table: "stock", Projection: "item", Where: store.Eq([]string{"owner"}, []any{"b"})})
	if err != nil || len(sel) != 1 || sel[0][0].String != "apple" {
		t.Errorf("Select: %v %v", sel, err)
	}
}

func TestInsertBatch_StopsAtFirstFailure(t *testing.T) {
	s := openTestStore(t)
	createUsers(t, s)

	rows := [][]any{{"a", "1"}, {"b", "2"}, {"a", "dup"}, {"c", "3"}}
	n, err := s.InsertBatch("users", []string{"id", "name"}, rows)
	var ee *store.ExecutionError
	if !errors.As(err, &ee) {
		t.Fatalf("Expected ExecutionError, got %v", err)
	}
	if ee.Statement == "" {
		t.Error("ExecutionError should carry the statement text")
	}
	if n != 2 {
		t.Errorf("Expected 2 rows before the failure, got %d", n)
	}
}

func TestWriteFailuresPropagate(t *testing.T) {
	s := openTestStore(t)
	createUsers(t, s)

	// Wrong column count for a positional insert.
	err := s.Insert("users", "only-one")
	var ee *store.ExecutionError
	if !errors.As(err, &ee) {
		t.Errorf("Expected ExecutionError, got %v", err)
	}

	if _, err := s.Update("users", []string{"nope"}, []any{1}, nil, nil); err == nil {
		t.Error("Update of a missing column should fail")
	}
}

func TestRenameAndCopy(t *testing.T) {
	s := openTestStore(t)
	createUsers(t, s)
	_ = s.Insert("users", "u1", "Alice")

	if err := s.RenameTable("users", "people"); err != nil {
		t.Fatalf("RenameTable failed: %v", err)
	}
	if ok, _ := s.TableExists("users"); ok {
		t.Error("old name should be gone")
	}

	if err := s.CreateTable("people_copy", usersCols); err != nil {
		t.Fatal(err)
	}
	n, err := s.CopyAllRows("people", "people_copy")
	if err != nil || n != 1 {
		t.Fatalf("CopyAllRows: n=%d err=%v", n, err)
	}
	got, _ := s.Query("id", "u1", "people_copy", "name")
	if len(got) != 1 || got[0].String != "Alice" {
		t.Errorf("Copied row missing: %v", strs(got))
	}
}

func TestIdentifierTrustBoundary(t *testing.T) {
	s := openTestStore(t, "users")
	createUsers(t, s)

	if _, err := s.Query("id", "u1", "users; DROP TABLE users", "name"); !errors.Is(err, store.ErrIdentifier) {
		t.Errorf("Expected ErrIdentifier for a malformed table, got %v", err)
	}
	if err := s.Insert("audit", "x"); !errors.Is(err, store.ErrIdentifier) {
		t.Errorf("Expected ErrIdentifier for a table outside the catalog, got %v", err)
	}
	if _, err := s.Delete("users", []string{"id = id OR 1"}, []any{1}); !errors.Is(err, store.ErrIdentifier) {
		t.Errorf("Expected ErrIdentifier for a malformed key column, got %v", err)
	}

	// Staging names of catalog tables are allowed.
	if err := s.CreateTable("users"+store.StagingSuffix, usersCols); err != nil {
		t.Errorf("staging table should be allowed: %v", err)
	}

	s.Allow("audit")
	if err := s.CreateTable("audit", usersCols); err != nil {
		t.Errorf("Allow should extend the list: %v", err)
	}
}

func TestDeleteWhere_RejectsEmptyClause(t *testing.T) {
	s := openTestStore(t)
	createUsers(t, s)
	_ = s.Insert("users", "u1", "Alice")
	_ = s.Insert("users", "u2", "Bob")

	for _, clause := range []string{"", "   ", "\n\t"} {
		if _, err := s.DeleteWhere("users", store.Raw(clause)); !errors.Is(err, store.ErrEmptyPredicate) {
			t.Errorf("DeleteWhere(Raw(%q)): expected ErrEmptyPredicate, got %v", clause, err)
		}
		if _, err := s.QueryWhere(clause, "users", "name"); !errors.Is(err, store.ErrEmptyPredicate) {
			t.Errorf("QueryWhere(%q): expected ErrEmptyPredicate, got %v", clause, err)
		}
	}
	if c, _ := s.Count("users"); c != 2 {
		t.Errorf("Expected both rows to survive, got %d", c)
	}

	n, err := s.DeleteWhere("users", store.Raw("name = 'Bob'"))
	if err != nil || n != 1 {
		t.Fatalf("DeleteWhere: n=%d err=%v", n, err)
	}
}

func TestGetLiveColumns_LogsUnmappedTypes(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.Join(t.TempDir(), "log.db"))
	s, err := store.Open(store.Options{Driver: "sqlite3", DSN: dsn, Logger: log})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	cols := []schema.ColumnDefinition{
		{Name: "id", Type: dialect.String36, Primary: true},
		{Name: "shape", Type: dialect.Unknown, Native: "geometry"},
	}
	if err := s.CreateTable("places", cols); err != nil {
		t.Fatal(err)
	}
	live, err := s.GetLiveColumns("places")
	if err != nil {
		t.Fatal(err)
	}
	if live[1].Type != dialect.Unknown || !strings.EqualFold(live[1].Native, "geometry") {
		t.Fatalf("Unexpected live column %+v", live[1])
	}
	if !strings.Contains(buf.String(), `"msg":"unmapped native type"`) || !strings.Contains(buf.String(), `"column":"shape"`) {
		t.Errorf("Expected a debug record for the shape column, got:\n%s", buf.String())
	}
}

// Readers racing a writer must only ever see a row before or after an update,
// never a mix.
func TestConcurrentReadsSeeWholeRows(t *testing.T) {
	s := openTestStore(t)
	cols := []schema.ColumnDefinition{
		{Name: "id", Type: dialect.Integer11, Primary: true},
		{Name: "a", Type: dialect.Integer11},
		{Name: "b", Type: dialect.Integer11},
	}
	if err := s.CreateTable("pairs", cols); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert("pairs", 1, 0, 0); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	errs := make(chan error, 16)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 1; i <= 50; i++ {
			if _, err := s.Update("pairs", []string{"a", "b"}, []any{i, i}, []string{"id"}, []any{1}); err != nil {
				errs <- err
				return
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				rows, err := s.Select(store.Select{Table: "pairs", Projection: "a, b"})
				if err != nil {
					errs <- err
					return
				}
				if len(rows) != 1 || rows[0][0].String != rows[0][1].String {
					errs <- fmt.Errorf("torn row %v", rows)
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestOpen_ConnectionError(t *testing.T) {
	_, err := store.Open(store.Options{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "no", "such", "dir", "x.db")})
	var ce *store.ConnectionError
	if !errors.As(err, &ce) {
		t.Errorf("Expected ConnectionError, got %v", err)
	}

	if _, err := store.Open(store.Options{Driver: "db2", DSN: "x"}); err == nil {
		t.Error("Expected error for an unknown driver")
	}
}

func TestPureGoSQLiteDriver(t *testing.T) {
	s, err := store.Open(store.Options{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "modernc.db")})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	createUsers(t, s)
	if err := s.Replace("users", []string{"id", "name"}, []any{"u1", "Alice"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Query("id", "u1", "users", "name")
	if err != nil || len(got) != 1 || got[0].String != "Alice" {
		t.Errorf("Expected [Alice], got %v (%v)", strs(got), err)
	}
}
