package schema

import (
	"log/slog"
	"strings"
)

// SortByDependencies orders tables so that every table comes after the
// tables it depends on. Cycles are broken by picking the table with the
// fewest unmet dependencies, preferring tables that take part in the cycle,
// then by name. Seeding walks this order; cleaning walks it backwards.
func SortByDependencies(tables []TableSchema) []TableSchema {
	sorted := make([]TableSchema, 0, len(tables))
	processed := make(map[string]bool, len(tables))
	byName := make(map[string]TableSchema, len(tables))
	for _, t := range tables {
		byName[strings.ToLower(t.Name)] = t
	}

	unmet := func(t TableSchema) int {
		n := 0
		for _, dep := range t.DependsOn {
			key := strings.ToLower(dep)
			if _, known := byName[key]; known && !processed[key] {
				n++
			}
		}
		return n
	}

	for len(sorted) < len(tables) {
		added := false

		for _, t := range tables {
			key := strings.ToLower(t.Name)
			if processed[key] || unmet(t) > 0 {
				continue
			}
			sorted = append(sorted, t)
			processed[key] = true
			added = true
		}
		if added {
			continue
		}

		// Every remaining table waits on another one.
		best, bestScore := -1, 0
		for i, t := range tables {
			if processed[strings.ToLower(t.Name)] {
				continue
			}
			score := -100 * unmet(t)
			if inCycle(t, byName, processed) {
				score += 500
			}
			if best < 0 || score > bestScore || (score == bestScore && t.Name < tables[best].Name) {
				best, bestScore = i, score
			}
		}
		slog.Debug("breaking dependency cycle", "table", tables[best].Name, "score", bestScore)
		sorted = append(sorted, tables[best])
		processed[strings.ToLower(tables[best].Name)] = true
	}
	return sorted
}

// inCycle reports whether one of t's unprocessed dependencies depends back on t.
func inCycle(t TableSchema, byName map[string]TableSchema, processed map[string]bool) bool {
	for _, dep := range t.DependsOn {
		key := strings.ToLower(dep)
		if processed[key] {
			continue
		}
		for _, back := range byName[key].DependsOn {
			if strings.EqualFold(back, t.Name) {
				return true
			}
		}
	}
	return false
}
