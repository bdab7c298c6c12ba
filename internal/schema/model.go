package schema

import (
	"database/sql"
	"regexp"
	"strings"

	"relstore/internal/dialect"
)

// ColumnDefinition describes one column. Names compare case-insensitively.
type ColumnDefinition struct {
	Name    string             `yaml:"name"`
	Type    dialect.ColumnType `yaml:"type"`
	Primary bool               `yaml:"primary,omitempty"`

	// Native is the backend's own spelling of the type. Only set on columns
	// read back from a live table.
	Native string `yaml:"-"`
}

// RenameMap maps an old column name to its new name. Only consulted while
// rebuilding a table.
type RenameMap map[string]string

// TableSchema is the desired end state of one table as declared in the catalog.
type TableSchema struct {
	Name      string             `yaml:"name"`
	Columns   []ColumnDefinition `yaml:"columns"`
	Renames   RenameMap          `yaml:"renames,omitempty"`
	DependsOn []string           `yaml:"depends_on,omitempty"`
}

// Row is one result row. An invalid NullString is a SQL NULL.
type Row []sql.NullString

// Strings returns the cells with NULLs as empty strings.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = c.String
	}
	return out
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to concatenate into statement text.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// PrimaryKeys returns the names of the primary-flagged columns in declaration order.
func PrimaryKeys(cols []ColumnDefinition) []string {
	var keys []string
	for _, c := range cols {
		if c.Primary {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

// Names returns the column names in order.
func Names(cols []ColumnDefinition) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// Find returns the index of the column called name, or -1.
func Find(cols []ColumnDefinition, name string) int {
	for i, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// SameShape reports whether live and desired have the same columns in the
// same order with the same types and key flags, as rendered on d.
func SameShape(d dialect.Dialect, live, desired []ColumnDefinition) bool {
	if len(live) != len(desired) {
		return false
	}
	for i := range live {
		l, w := live[i], desired[i]
		if !strings.EqualFold(l.Name, w.Name) || l.Primary != w.Primary {
			return false
		}
		if !sameType(d, l, w) {
			return false
		}
	}
	return true
}

func sameType(d dialect.Dialect, live, desired ColumnDefinition) bool {
	// A live type we could not map is compared by its native spelling.
	if live.Type == dialect.Unknown && live.Native != "" {
		return d.NormalizeType(live.Native) == d.NormalizeType(d.NativeType(desired.Type))
	}
	return dialect.SameNativeType(d, live.Type, desired.Type)
}

// Validate checks a column set before it is used to build DDL.
func Validate(table string, cols []ColumnDefinition) error {
	if !ValidIdentifier(table) {
		return invalid(table, "invalid table name %q", table)
	}
	if len(cols) == 0 {
		return invalid(table, "no columns")
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if !ValidIdentifier(c.Name) {
			return invalid(table, "invalid column name %q", c.Name)
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return invalid(table, "duplicate column %q", c.Name)
		}
		seen[key] = true
		// Columns copied from a live table may carry only their native spelling.
		if !c.Type.Valid() && c.Native == "" {
			return invalid(table, "column %q has no known type", c.Name)
		}
	}
	return nil
}

// Validate checks the table's columns and rename entries.
func (ts TableSchema) Validate() error {
	if err := Validate(ts.Name, ts.Columns); err != nil {
		return err
	}
	targets := make(map[string]bool, len(ts.Renames))
	for from, to := range ts.Renames {
		if !ValidIdentifier(from) || !ValidIdentifier(to) {
			return invalid(ts.Name, "invalid rename %q -> %q", from, to)
		}
		if Find(ts.Columns, to) < 0 {
			return invalid(ts.Name, "rename target %q is not a column", to)
		}
		if targets[strings.ToLower(to)] {
			return invalid(ts.Name, "column %q is the target of more than one rename", to)
		}
		targets[strings.ToLower(to)] = true
	}
	return nil
}
