package dialect

import (
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // "pgx" driver
	_ "github.com/lib/pq"              // "postgres" driver
)

type PostgresDialect struct{}

var postgresTypes = newTypeTable(map[ColumnType]string{
	Double:     "DOUBLE PRECISION",
	Integer11:  "INTEGER",
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
	Blob:       "BYTEA",
	LongBlob:   "BYTEA",
	Text:       "TEXT",
	MediumText: "TEXT",
	LongText:   "TEXT",
	Date:       "DATE",
	DateTime:   "TIMESTAMP",
	TinyInt1:   "SMALLINT",
	TinyInt4:   "SMALLINT",
}, map[string]ColumnType{
	"int4":   Integer11,
	"int8":   Integer30,
	"int2":   TinyInt4,
	"float8": Double,
})

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) TableExistsQuery() string {
	// Unquoted identifiers are folded to lower case by Postgres.
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = lower($1)`
}

func (d *PostgresDialect) ColumnsQuery() string {
	// format_type renders the declared width, e.g. "character varying(36)".
	return `SELECT
    a.attname,
    format_type(a.atttypid, a.atttypmod),
    CASE WHEN EXISTS (
        SELECT 1 FROM pg_index i
        WHERE i.indrelid = a.attrelid AND i.indisprimary AND a.attnum = ANY(i.indkey)
    ) THEN 1 ELSE 0 END
FROM pg_attribute a
WHERE a.attrelid = to_regclass($1) AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`
}

func (d *PostgresDialect) NativeType(t ColumnType) string {
	return postgresTypes.nativeOf(t)
}

func (d *PostgresDialect) ColumnType(native string) ColumnType {
	return postgresTypes.typeOf(d.NormalizeType(native))
}

func (d *PostgresDialect) NormalizeType(sqlType string) string {
	t := DefaultNormalizeType(sqlType)
	switch {
	case strings.HasPrefix(t, "character varying"):
		return "varchar" + strings.TrimPrefix(t, "character varying")
	case strings.HasPrefix(t, "character("):
		return "char" + strings.TrimPrefix(t, "character")
	case strings.HasPrefix(t, "timestamp"):
		if strings.Contains(t, "with time zone") && !strings.Contains(t, "without") {
			return "timestamptz"
		}
		return "timestamp"
	}
	return t
}

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index+1)
}

func (d *PostgresDialect) UpsertQuery(table string, cols, keys []string) string {
	vals := GeneratePlaceholders(len(cols), d.Placeholder)
	base := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), vals)
	if len(keys) == 0 {
		return base
	}

	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[strings.ToLower(k)] = true
	}
	var set []string
	for _, c := range cols {
		if !isKey[strings.ToLower(c)] {
			set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	if len(set) == 0 {
		return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", base, strings.Join(keys, ", "))
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s", base, strings.Join(keys, ", "), strings.Join(set, ", "))
}

func (d *PostgresDialect) UpsertNeedsKeys() bool { return true }

func (d *PostgresDialect) RenameTableQuery(oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", oldName, newName)
}

func (d *PostgresDialect) ExpiredCondition(column string) string {
	return fmt.Sprintf("%s < LOCALTIMESTAMP", column)
}

func (d *PostgresDialect) DateTimeExpr(minutes int) string {
	if minutes == 0 {
		return "LOCALTIMESTAMP"
	}
	return fmt.Sprintf("(LOCALTIMESTAMP + INTERVAL '%d minutes')", minutes)
}

func (d *PostgresDialect) IfNull(field, fallback string) string {
	return fmt.Sprintf("COALESCE(%s, %s)", field, fallback)
}

func (d *PostgresDialect) Concat(parts ...string) string {
	return strings.Join(parts, " || ")
}

func (d *PostgresDialect) TransactionalDDL() bool { return true }
