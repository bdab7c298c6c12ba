package dialect

import (
	"fmt"
	"strings"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server Driver
)

type MSSQLDialect struct{}

// NVARCHAR tops out at 4000 characters; wider tags use NVARCHAR(MAX).
var mssqlTypes = newTypeTable(map[ColumnType]string{
	Double:     "FLOAT",
	Integer11:  "INT",
	Integer30:  "BIGINT",
	Char32:     "CHAR(32)",
	Char36:     "CHAR(36)",
	String:     "NVARCHAR(MAX)",
	String1:    "NVARCHAR(1)",
	String2:    "NVARCHAR(2)",
	String16:   "NVARCHAR(16)",
	String32:   "NVARCHAR(32)",
	String36:   "NVARCHAR(36)",
	String45:   "NVARCHAR(45)",
	String50:   "NVARCHAR(50)",
	String64:   "NVARCHAR(64)",
	String100:  "NVARCHAR(100)",
	String128:  "NVARCHAR(128)",
	String255:  "NVARCHAR(255)",
	String512:  "NVARCHAR(512)",
	String1024: "NVARCHAR(1024)",
	String8196: "NVARCHAR(MAX)",
	Blob:       "VARBINARY(MAX)",
	LongBlob:   "VARBINARY(MAX)",
	Text:       "NVARCHAR(MAX)",
	MediumText: "NVARCHAR(MAX)",
	LongText:   "NVARCHAR(MAX)",
	Date:       "DATE",
	DateTime:   "DATETIME",
	TinyInt1:   "BIT",
	TinyInt4:   "TINYINT",
}, map[string]ColumnType{
	"datetime2": DateTime,
	"real":      Double,
})

func (d *MSSQLDialect) Name() string { return "mssql" }

func (d *MSSQLDialect) TableExistsQuery() string {
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @p1`
}

func (d *MSSQLDialect) ColumnsQuery() string {
	// CHARACTER_MAXIMUM_LENGTH is -1 for (MAX) columns.
	return `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE + CASE
				WHEN c.CHARACTER_MAXIMUM_LENGTH = -1 THEN '(max)'
				WHEN c.CHARACTER_MAXIMUM_LENGTH IS NOT NULL THEN '(' + CAST(c.CHARACTER_MAXIMUM_LENGTH AS VARCHAR(10)) + ')'
				ELSE ''
			END,
			CASE WHEN pk.COLUMN_NAME IS NOT NULL THEN 1 ELSE 0 END
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT kcu.TABLE_NAME, kcu.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
				ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_SCHEMA = SCHEMA_NAME()
		) pk ON c.TABLE_NAME = pk.TABLE_NAME AND c.COLUMN_NAME = pk.COLUMN_NAME
		WHERE c.TABLE_SCHEMA = SCHEMA_NAME() AND c.TABLE_NAME = @p1
		ORDER BY c.ORDINAL_POSITION
	`
}

func (d *MSSQLDialect) NativeType(t ColumnType) string {
	return mssqlTypes.nativeOf(t)
}

func (d *MSSQLDialect) ColumnType(native string) ColumnType {
	return mssqlTypes.typeOf(d.NormalizeType(native))
}

func (d *MSSQLDialect) NormalizeType(sqlType string) string {
	return DefaultNormalizeType(sqlType)
}

func (d *MSSQLDialect) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index+1)
}

func (d *MSSQLDialect) UpsertQuery(table string, cols, keys []string) string {
	if len(keys) == 0 {
		vals := GeneratePlaceholders(len(cols), d.Placeholder)
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), vals)
	}
	src := fmt.Sprintf("(SELECT %s)", aliasedPlaceholders(cols, d.Placeholder))
	// T-SQL requires MERGE to be terminated by a semicolon.
	return mergeQuery(table, src, cols, keys, ";")
}

func (d *MSSQLDialect) UpsertNeedsKeys() bool { return true }

func (d *MSSQLDialect) RenameTableQuery(oldName, newName string) string {
	return fmt.Sprintf("EXEC sp_rename '%s', '%s'", oldName, newName)
}

func (d *MSSQLDialect) ExpiredCondition(column string) string {
	return fmt.Sprintf("%s < GETDATE()", column)
}

func (d *MSSQLDialect) DateTimeExpr(minutes int) string {
	if minutes == 0 {
		return "GETDATE()"
	}
	return fmt.Sprintf("DATEADD(minute, %d, GETDATE())", minutes)
}

func (d *MSSQLDialect) IfNull(field, fallback string) string {
	return fmt.Sprintf("ISNULL(%s, %s)", field, fallback)
}

func (d *MSSQLDialect) Concat(parts ...string) string {
	return strings.Join(parts, " + ")
}

func (d *MSSQLDialect) TransactionalDDL() bool { return true }
