package dialect

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

type MysqlDialect struct{}

var mysqlTypes = newTypeTable(map[ColumnType]string{
	Double:     "DOUBLE",
	Integer11:  "INT(11)",
	Integer30:  "BIGINT",
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
	LongBlob:   "LONGBLOB",
	Text:       "TEXT",
	MediumText: "MEDIUMTEXT",
	LongText:   "LONGTEXT",
	Date:       "DATE",
	DateTime:   "DATETIME",
	TinyInt1:   "TINYINT(1)",
	TinyInt4:   "TINYINT(4)",
}, map[string]ColumnType{
	// MySQL 8 drops the display width from COLUMN_TYPE except for tinyint(1).
	"int":        Integer11,
	"bigint(20)": Integer30,
	"tinyint":    TinyInt4,
})

func (d *MysqlDialect) Name() string { return "mysql" }

func (d *MysqlDialect) TableExistsQuery() string {
	return `SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`
}

func (d *MysqlDialect) ColumnsQuery() string {
	return `SELECT COLUMN_NAME, COLUMN_TYPE, CASE WHEN COLUMN_KEY = 'PRI' THEN 1 ELSE 0 END FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`
}

func (d *MysqlDialect) NativeType(t ColumnType) string {
	return mysqlTypes.nativeOf(t)
}

func (d *MysqlDialect) ColumnType(native string) ColumnType {
	return mysqlTypes.typeOf(d.NormalizeType(native))
}

func (d *MysqlDialect) NormalizeType(sqlType string) string {
	t := DefaultNormalizeType(sqlType)
	return strings.TrimSuffix(t, " unsigned")
}

func (d *MysqlDialect) Placeholder(index int) string {
	return "?"
}

func (d *MysqlDialect) UpsertQuery(table string, cols, keys []string) string {
	vals := GeneratePlaceholders(len(cols), d.Placeholder)
	return fmt.Sprintf("REPLACE INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), vals)
}

func (d *MysqlDialect) UpsertNeedsKeys() bool { return false }

func (d *MysqlDialect) RenameTableQuery(oldName, newName string) string {
	return fmt.Sprintf("RENAME TABLE %s TO %s", oldName, newName)
}

func (d *MysqlDialect) ExpiredCondition(column string) string {
	return fmt.Sprintf("%s < NOW()", column)
}

func (d *MysqlDialect) DateTimeExpr(minutes int) string {
	if minutes == 0 {
		return "NOW()"
	}
	return fmt.Sprintf("(NOW() + INTERVAL %d MINUTE)", minutes)
}

func (d *MysqlDialect) IfNull(field, fallback string) string {
	return fmt.Sprintf("IFNULL(%s, %s)", field, fallback)
}

func (d *MysqlDialect) Concat(parts ...string) string {
	return fmt.Sprintf("CONCAT(%s)", strings.Join(parts, ", "))
}

// DDL statements commit implicitly in MySQL.
func (d *MysqlDialect) TransactionalDDL() bool { return false }
