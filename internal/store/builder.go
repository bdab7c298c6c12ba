package store

import (
	"fmt"
	"strings"

	"relstore/internal/dialect"
	"relstore/internal/schema"
)

// Statement is statement text plus its bound arguments. Values only ever
// travel in Args.
type Statement struct {
	Text string
	Args []any
}

// Where is either a set of equality pairs ANDed together or a raw clause.
// The zero value matches every row; a raw clause never does by being empty.
type Where struct {
	Keys   []string
	Values []any
	Clause string

	raw bool
}

// Eq builds an equality predicate; keys and values pair up by position.
func Eq(keys []string, values []any) Where {
	return Where{Keys: keys, Values: values}
}

// Raw wraps a trusted, pre-built predicate such as one from ExpiredCondition.
func Raw(clause string) Where {
	return Where{Clause: clause, raw: true}
}

// Select describes a read. Projection defaults to "*".
type Select struct {
	Table      string
	Projection string
	Where      Where
	OrderBy    string
}

type builder struct {
	d dialect.Dialect
}

// predicate renders w with placeholders numbered from offset.
func (b builder) predicate(w Where, offset int) (string, []any) {
	if w.Clause != "" {
		return w.Clause, nil
	}
	if len(w.Keys) == 0 {
		return "", nil
	}
	parts := make([]string, len(w.Keys))
	args := make([]any, len(w.Keys))
	for i, k := range w.Keys {
		parts[i] = fmt.Sprintf("%s = %s", k, b.d.Placeholder(offset+i))
		args[i] = bind(w.Values[i])
	}
	return strings.Join(parts, " AND "), args
}

func (b builder) selectStmt(s Select) Statement {
	proj := s.Projection
	if proj == "" {
		proj = "*"
	}
	text := fmt.Sprintf("SELECT %s FROM %s", proj, s.Table)
	pred, args := b.predicate(s.Where, 0)
	if pred != "" {
		text += " WHERE " + pred
	}
	if s.OrderBy != "" {
		text += " ORDER BY " + s.OrderBy
	}
	return Statement{Text: text, Args: args}
}

func (b builder) count(table string) Statement {
	return Statement{Text: fmt.Sprintf("SELECT COUNT(*) FROM %s", table)}
}

// insert leaves out the column list when cols is empty; values then have to
// line up with the live column order.
func (b builder) insert(table string, cols []string, vals []any) Statement {
	ph := dialect.GeneratePlaceholders(len(vals), b.d.Placeholder)
	text := fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, ph)
	if len(cols) > 0 {
		text = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), ph)
	}
	return Statement{Text: text, Args: bindAll(vals)}
}

func (b builder) upsert(table string, cols, keys []string, vals []any) Statement {
	return Statement{Text: b.d.UpsertQuery(table, cols, keys), Args: bindAll(vals)}
}

// update with no key columns touches every row.
func (b builder) update(table string, setCols []string, setVals []any, w Where) Statement {
	sets := make([]string, len(setCols))
	for i, c := range setCols {
		sets[i] = fmt.Sprintf("%s = %s", c, b.d.Placeholder(i))
	}
	text := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", "))
	args := bindAll(setVals)

	pred, keyArgs := b.predicate(w, len(setCols))
	if pred != "" {
		text += " WHERE " + pred
		args = append(args, keyArgs...)
	}
	return Statement{Text: text, Args: args}
}

func (b builder) delete(table string, w Where) Statement {
	text := fmt.Sprintf("DELETE FROM %s", table)
	pred, args := b.predicate(w, 0)
	if pred != "" {
		text += " WHERE " + pred
	}
	return Statement{Text: text, Args: args}
}

// createTable emits an inline PRIMARY KEY for a single key column and a
// trailing PRIMARY KEY(...) clause for a composite key.
func (b builder) createTable(table string, cols []schema.ColumnDefinition) Statement {
	keys := schema.PrimaryKeys(cols)
	defs := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		typ := c.Native
		if typ == "" {
			typ = b.d.NativeType(c.Type)
		}
		def := c.Name + " " + typ
		if len(keys) == 1 && c.Primary {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	if len(keys) > 1 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY(%s)", strings.Join(keys, ", ")))
	}
	return Statement{Text: fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))}
}

func (b builder) dropTable(table string) Statement {
	return Statement{Text: "DROP TABLE " + table}
}

func (b builder) renameTable(from, to string) Statement {
	return Statement{Text: b.d.RenameTableQuery(from, to)}
}

// copyRows copies src into dst. With no column lists it is a full-row copy in
// column order; otherwise srcCols[i] lands in dstCols[i].
func (b builder) copyRows(src, dst string, srcCols, dstCols []string) Statement {
	if len(dstCols) == 0 {
		return Statement{Text: fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", dst, src)}
	}
	proj := make([]string, len(srcCols))
	for i := range srcCols {
		proj[i] = fmt.Sprintf("%s AS %s", srcCols[i], dstCols[i])
	}
	return Statement{Text: fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		dst, strings.Join(dstCols, ", "), strings.Join(proj, ", "), src)}
}

// unescaper undoes the backslash quoting applied by upstream callers.
var unescaper = strings.NewReplacer(`\'`, `'`, `\"`, `"`)

func bind(v any) any {
	if s, ok := v.(string); ok {
		return unescaper.Replace(s)
	}
	return v
}

func bindAll(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = bind(v)
	}
	return out
}
