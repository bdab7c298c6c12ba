package dialect

import (
	"fmt"
	"strings"
)

// GeneratePlaceholders is a helper function to create a slice of placeholder strings.
// It takes the number of placeholders needed and a function that returns the placeholder for a given index.
// It returns a comma-separated string of the generated placeholders.
func GeneratePlaceholders(count int, placeholderFunc func(int) string) string {
	placeholders := make([]string, count)
	for i := 0; i < count; i++ {
		placeholders[i] = placeholderFunc(i)
	}
	return strings.Join(placeholders, ", ")
}

// DefaultNormalizeType is a default implementation for type normalization
// (lowercase, no inner whitespace around parentheses).
func DefaultNormalizeType(sqlType string) string {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	t = strings.ReplaceAll(t, " (", "(")
	return strings.ReplaceAll(t, ", ", ",")
}

// mergeQuery renders a single MERGE upsert. src is the row source, e.g.
// "(SELECT @p1 AS a, @p2 AS b)" or "(SELECT :1 AS a FROM dual)".
func mergeQuery(table, src string, cols, keys []string, terminator string) string {
	var on, set []string
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[strings.ToLower(k)] = true
		on = append(on, fmt.Sprintf("tgt.%s = src.%s", k, k))
	}
	for _, c := range cols {
		if !isKey[strings.ToLower(c)] {
			set = append(set, fmt.Sprintf("tgt.%s = src.%s", c, c))
		}
	}
	srcCols := make([]string, len(cols))
	for i, c := range cols {
		srcCols[i] = "src." + c
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s tgt USING %s src ON (%s)", table, src, strings.Join(on, " AND "))
	if len(set) > 0 {
		fmt.Fprintf(&b, " WHEN MATCHED THEN UPDATE SET %s", strings.Join(set, ", "))
	}
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)%s",
		strings.Join(cols, ", "), strings.Join(srcCols, ", "), terminator)
	return b.String()
}

// aliasedPlaceholders renders "p1 AS a, p2 AS b" for MERGE sources.
func aliasedPlaceholders(cols []string, placeholderFunc func(int) string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s AS %s", placeholderFunc(i), c)
	}
	return strings.Join(parts, ", ")
}
