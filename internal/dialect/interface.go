package dialect

// Dialect abstracts database-specific operations.
//
// Identifiers handed to the query-generation methods are concatenated into the
// statement text unchanged. Callers must only pass names from the internal
// catalog.
type Dialect interface {
	// Name is the dialect identifier used in logs.
	Name() string

	// Metadata Queries (Schema Introspection)
	// Both take the table name as their single bound argument.
	TableExistsQuery() string
	// ColumnsQuery yields one row per column in ordinal order:
	// column name, native type, primary-key flag (non-zero when part of the key).
	ColumnsQuery() string

	// Column Type System
	NativeType(t ColumnType) string
	ColumnType(native string) ColumnType
	NormalizeType(native string) string

	// Query Generation
	Placeholder(index int) string // Returns ?, $1, @p1, :1 etc.
	UpsertQuery(table string, cols, keys []string) string
	UpsertNeedsKeys() bool
	RenameTableQuery(oldName, newName string) string
	ExpiredCondition(column string) string

	// Expression helpers for higher layers building raw predicates.
	DateTimeExpr(minutes int) string
	IfNull(field, fallback string) string
	Concat(parts ...string) string

	// TransactionalDDL reports whether CREATE/DROP can be rolled back.
	TransactionalDDL() bool
}
