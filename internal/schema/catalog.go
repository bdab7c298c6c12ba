package schema

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"
)

// Catalog is the application's list of desired tables, in declaration order.
type Catalog struct {
	Tables []TableSchema `yaml:"tables"`
}

// LoadCatalog reads a YAML catalog file:
//
//	tables:
//	  - name: users
//	    columns:
//	      - {name: id, type: String36, primary: true}
//	      - {name: name, type: String64}
//	    renames: {fullname: name}
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from our own config
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		if err := t.Validate(); err != nil {
			return err
		}
		key := strings.ToLower(t.Name)
		if seen[key] {
			return invalid(t.Name, "declared twice in catalog")
		}
		seen[key] = true
	}
	for _, t := range c.Tables {
		for _, dep := range t.DependsOn {
			if !seen[strings.ToLower(dep)] {
				return invalid(t.Name, "depends on unknown table %q", dep)
			}
		}
	}
	return nil
}

// Table looks up a table by name, case-insensitively.
func (c *Catalog) Table(name string) (TableSchema, bool) {
	for _, t := range c.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return TableSchema{}, false
}

// Names returns every table name in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Tables))
	for i, t := range c.Tables {
		names[i] = t.Name
	}
	return names
}

// Fingerprint hashes the table's desired shape and renames. Two schemas with
// the same fingerprint build the same table.
func (ts TableSchema) Fingerprint() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(ts.Name))
	for _, c := range ts.Columns {
		fmt.Fprintf(&b, "|%s:%s:%t", strings.ToLower(c.Name), c.Type, c.Primary)
	}

	// Map iteration order is random; sort for a stable hash.
	from := make([]string, 0, len(ts.Renames))
	for k := range ts.Renames {
		from = append(from, k)
	}
	sort.Strings(from)
	for _, k := range from {
		fmt.Fprintf(&b, "|%s>%s", strings.ToLower(k), strings.ToLower(ts.Renames[k]))
	}
	return fmt.Sprintf("%016x", xxh3.HashString(b.String()))
}
