package dialect

import (
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // "duckdb" driver
)

type DuckDBDialect struct{}

// DuckDB accepts VARCHAR(n) but does not keep the width, so every textual tag
// renders as plain VARCHAR.
var duckdbTypes = newTypeTable(map[ColumnType]string{
	Double:     "DOUBLE",
	Integer11:  "INTEGER",
	Integer30:  "BIGINT",
	Char32:     "VARCHAR",
	Char36:     "VARCHAR",
	String:     "VARCHAR",
	String1:    "VARCHAR",
	String2:    "VARCHAR",
	String16:   "VARCHAR",
	String32:   "VARCHAR",
	String36:   "VARCHAR",
	String45:   "VARCHAR",
	String50:   "VARCHAR",
	String64:   "VARCHAR",
	String100:  "VARCHAR",
	String128:  "VARCHAR",
	String255:  "VARCHAR",
	String512:  "VARCHAR",
	String1024: "VARCHAR",
	String8196: "VARCHAR",
	Blob:       "BLOB",
	LongBlob:   "BLOB",
	Text:       "VARCHAR",
	MediumText: "VARCHAR",
	LongText:   "VARCHAR",
	Date:       "DATE",
	DateTime:   "TIMESTAMP",
	TinyInt1:   "BOOLEAN",
	TinyInt4:   "TINYINT",
}, map[string]ColumnType{
	"int":    Integer11,
	"int4":   Integer11,
	"int8":   Integer30,
	"float8": Double,
	"text":   String,
})

func (d *DuckDBDialect) Name() string { return "duckdb" }

func (d *DuckDBDialect) TableExistsQuery() string {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND lower(table_name) = lower(?)`
}

func (d *DuckDBDialect) ColumnsQuery() string {
	return `SELECT name, type, pk FROM pragma_table_info(?) ORDER BY cid`
}

func (d *DuckDBDialect) NativeType(t ColumnType) string {
	return duckdbTypes.nativeOf(t)
}

func (d *DuckDBDialect) ColumnType(native string) ColumnType {
	return duckdbTypes.typeOf(d.NormalizeType(native))
}

func (d *DuckDBDialect) NormalizeType(sqlType string) string {
	t := DefaultNormalizeType(sqlType)
	if strings.HasPrefix(t, "varchar(") {
		return "varchar"
	}
	return t
}

func (d *DuckDBDialect) Placeholder(index int) string {
	return "?"
}

// UpsertQuery falls back to a plain INSERT for tables without a key, since
// INSERT OR REPLACE needs a conflict target.
func (d *DuckDBDialect) UpsertQuery(table string, cols, keys []string) string {
	vals := GeneratePlaceholders(len(cols), d.Placeholder)
	verb := "INSERT OR REPLACE INTO"
	if len(keys) == 0 {
		verb = "INSERT INTO"
	}
	return fmt.Sprintf("%s %s (%s) VALUES (%s)", verb, table, strings.Join(cols, ", "), vals)
}

func (d *DuckDBDialect) UpsertNeedsKeys() bool { return true }

func (d *DuckDBDialect) RenameTableQuery(oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", oldName, newName)
}

func (d *DuckDBDialect) ExpiredCondition(column string) string {
	return fmt.Sprintf("%s < CAST(now() AS TIMESTAMP)", column)
}

func (d *DuckDBDialect) DateTimeExpr(minutes int) string {
	if minutes == 0 {
		return "CAST(now() AS TIMESTAMP)"
	}
	return fmt.Sprintf("(CAST(now() AS TIMESTAMP) + to_minutes(%d))", minutes)
}

func (d *DuckDBDialect) IfNull(field, fallback string) string {
	return fmt.Sprintf("COALESCE(%s, %s)", field, fallback)
}

func (d *DuckDBDialect) Concat(parts ...string) string {
	return strings.Join(parts, " || ")
}

func (d *DuckDBDialect) TransactionalDDL() bool { return true }
