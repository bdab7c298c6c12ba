package dialect

import (
	"fmt"
	"strings"

	_ "github.com/sijms/go-ora/v2" // "oracle" driver
)

type OracleDialect struct{}

// VARCHAR2 is capped at 4000 bytes without MAX_STRING_SIZE=EXTENDED, so the
// unbounded and wider tags map to CLOB.
var oracleTypes = newTypeTable(map[ColumnType]string{
	Double:     "BINARY_DOUBLE",
	Integer11:  "NUMBER(11)",
	Integer30:  "NUMBER(30)",
	Char32:     "CHAR(32)",
	Char36:     "CHAR(36)",
	String:     "CLOB",
	String1:    "VARCHAR2(1)",
	String2:    "VARCHAR2(2)",
	String16:   "VARCHAR2(16)",
	String32:   "VARCHAR2(32)",
	String36:   "VARCHAR2(36)",
	String45:   "VARCHAR2(45)",
	String50:   "VARCHAR2(50)",
	String64:   "VARCHAR2(64)",
	String100:  "VARCHAR2(100)",
	String128:  "VARCHAR2(128)",
	String255:  "VARCHAR2(255)",
	String512:  "VARCHAR2(512)",
	String1024: "VARCHAR2(1024)",
	String8196: "CLOB",
	Blob:       "BLOB",
	LongBlob:   "BLOB",
	Text:       "CLOB",
	MediumText: "CLOB",
	LongText:   "CLOB",
	Date:       "DATE",
	DateTime:   "TIMESTAMP",
	TinyInt1:   "NUMBER(1)",
	TinyInt4:   "NUMBER(4)",
}, map[string]ColumnType{
	"number":  Integer11,
	"integer": Integer11,
})

func (d *OracleDialect) Name() string { return "oracle" }

func (d *OracleDialect) TableExistsQuery() string {
	return `SELECT TABLE_NAME FROM USER_TABLES WHERE TABLE_NAME = UPPER(:1)`
}

func (d *OracleDialect) ColumnsQuery() string {
	// Widths are rendered back so the result matches the DDL spelling.
	return `
SELECT
    t.COLUMN_NAME,
    t.DATA_TYPE || CASE
        WHEN t.DATA_TYPE IN ('VARCHAR2', 'NVARCHAR2', 'CHAR', 'NCHAR') THEN '(' || t.CHAR_LENGTH || ')'
        WHEN t.DATA_TYPE = 'NUMBER' AND t.DATA_PRECISION IS NOT NULL THEN '(' || t.DATA_PRECISION || ')'
        ELSE ''
    END,
    CASE WHEN p.COLUMN_NAME IS NOT NULL THEN 1 ELSE 0 END
FROM USER_TAB_COLUMNS t
LEFT JOIN (
    SELECT cc.TABLE_NAME, cc.COLUMN_NAME
    FROM USER_CONS_COLUMNS cc
    JOIN USER_CONSTRAINTS uc ON cc.CONSTRAINT_NAME = uc.CONSTRAINT_NAME
    WHERE uc.CONSTRAINT_TYPE = 'P'
) p ON t.TABLE_NAME = p.TABLE_NAME AND t.COLUMN_NAME = p.COLUMN_NAME
WHERE t.TABLE_NAME = UPPER(:1)
ORDER BY t.COLUMN_ID`
}

func (d *OracleDialect) NativeType(t ColumnType) string {
	return oracleTypes.nativeOf(t)
}

func (d *OracleDialect) ColumnType(native string) ColumnType {
	return oracleTypes.typeOf(d.NormalizeType(native))
}

// NormalizeType drops fractional-second precision, e.g. TIMESTAMP(6).
func (d *OracleDialect) NormalizeType(sqlType string) string {
	t := DefaultNormalizeType(sqlType)
	if strings.HasPrefix(t, "timestamp(") {
		return "timestamp"
	}
	return t
}

func (d *OracleDialect) Placeholder(index int) string {
	// Oracle uses :1, :2, etc. (1-based index)
	return fmt.Sprintf(":%d", index+1)
}

func (d *OracleDialect) UpsertQuery(table string, cols, keys []string) string {
	if len(keys) == 0 {
		vals := GeneratePlaceholders(len(cols), d.Placeholder)
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), vals)
	}
	src := fmt.Sprintf("(SELECT %s FROM dual)", aliasedPlaceholders(cols, d.Placeholder))
	return mergeQuery(table, src, cols, keys, "")
}

func (d *OracleDialect) UpsertNeedsKeys() bool { return true }

func (d *OracleDialect) RenameTableQuery(oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", oldName, newName)
}

func (d *OracleDialect) ExpiredCondition(column string) string {
	return fmt.Sprintf("%s < LOCALTIMESTAMP", column)
}

func (d *OracleDialect) DateTimeExpr(minutes int) string {
	if minutes == 0 {
		return "LOCALTIMESTAMP"
	}
	return fmt.Sprintf("(LOCALTIMESTAMP + NUMTODSINTERVAL(%d, 'MINUTE'))", minutes)
}

func (d *OracleDialect) IfNull(field, fallback string) string {
	return fmt.Sprintf("NVL(%s, %s)", field, fallback)
}

func (d *OracleDialect) Concat(parts ...string) string {
	return strings.Join(parts, " || ")
}

// In Oracle, DDL (CREATE/DROP/ALTER) implicitly commits the transaction.
func (d *OracleDialect) TransactionalDDL() bool { return false }
