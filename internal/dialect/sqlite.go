package dialect

import (
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // "sqlite3" driver
	_ "modernc.org/sqlite"          // "sqlite" driver, cgo-free
)

type SQLiteDialect struct{}

var sqliteTypes = newTypeTable(map[ColumnType]string{
	Double:     "DOUBLE",
	Integer11:  "INT(11)",
	Integer30:  "INT(30)",
	Char32:     "CHAR(32)",
	Char36:     "CHAR(36)",
	String:     "TEXT",
	String1:    "VARCHAR(1)",
	String2:    "VARCHAR(2)",
	String16:   "VARCHAR(16)",
	String32:   "VARCHAR(32)",
	String36:   "VARCHAR(36)",
	String45:   "VARCHAR(45)",
	String50:   "VARCHAR(50)",
	String64:   "VARCHAR(64)",
	String100:  "VARCHAR(100)",
	String128:  "VARCHAR(128)",
	String255:  "VARCHAR(255)",
	String512:  "VARCHAR(512)",
	String1024: "VARCHAR(1024)",
	String8196: "VARCHAR(8196)",
	Blob:       "BLOB",
	LongBlob:   "BLOB",
	Text:       "VARCHAR(512)",
	MediumText: "VARCHAR(512)",
	LongText:   "VARCHAR(512)",
	Date:       "DATE",
	DateTime:   "DATETIME",
	TinyInt1:   "TINYINT(1)",
	TinyInt4:   "TINYINT(4)",
}, map[string]ColumnType{
	"integer": Integer11,
	"int":     Integer11,
})

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) TableExistsQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND lower(name) = lower(?)`
}

func (d *SQLiteDialect) ColumnsQuery() string {
	// pragma_table_info returns no rows for a missing table.
	return `SELECT name, type, pk FROM pragma_table_info(?) ORDER BY cid`
}

func (d *SQLiteDialect) NativeType(t ColumnType) string {
	return sqliteTypes.nativeOf(t)
}

func (d *SQLiteDialect) ColumnType(native string) ColumnType {
	return sqliteTypes.typeOf(d.NormalizeType(native))
}

func (d *SQLiteDialect) NormalizeType(sqlType string) string {
	return DefaultNormalizeType(sqlType)
}

func (d *SQLiteDialect) Placeholder(index int) string {
	return "?"
}

func (d *SQLiteDialect) UpsertQuery(table string, cols, keys []string) string {
	vals := GeneratePlaceholders(len(cols), d.Placeholder)
	return fmt.Sprintf("REPLACE INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), vals)
}

func (d *SQLiteDialect) UpsertNeedsKeys() bool { return false }

func (d *SQLiteDialect) RenameTableQuery(oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", oldName, newName)
}

func (d *SQLiteDialect) ExpiredCondition(column string) string {
	return fmt.Sprintf("%s < datetime('now', 'localtime')", column)
}

func (d *SQLiteDialect) DateTimeExpr(minutes int) string {
	if minutes == 0 {
		return "datetime('now', 'localtime')"
	}
	return fmt.Sprintf("datetime('now', 'localtime', '%+d minutes')", minutes)
}

func (d *SQLiteDialect) IfNull(field, fallback string) string {
	return fmt.Sprintf("IFNULL(%s, %s)", field, fallback)
}

func (d *SQLiteDialect) Concat(parts ...string) string {
	return strings.Join(parts, " || ")
}

func (d *SQLiteDialect) TransactionalDDL() bool { return true }
