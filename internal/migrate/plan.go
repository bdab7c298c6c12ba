package migrate

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"relstore/internal/schema"
)

// Step is the planned operation for one catalog table.
type Step struct {
	Table       schema.TableSchema
	Operation   Operation
	Fingerprint string
}

// Plan determines the operation for every catalog table. The lookups only
// read, so they run concurrently.
func (m *Migrator) Plan(c *schema.Catalog) ([]Step, error) {
	steps := make([]Step, len(c.Tables))

	var g errgroup.Group
	g.SetLimit(4)
	for i, t := range c.Tables {
		g.Go(func() error {
			op, err := m.DetermineOperation(t)
			if err != nil {
				return fmt.Errorf("planning %s: %w", t.Name, err)
			}
			steps[i] = Step{Table: t, Operation: op, Fingerprint: t.Fingerprint()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return steps, nil
}

// Apply executes the steps one at a time, in order, and stops at the first
// failure.
func (m *Migrator) Apply(steps []Step) error {
	for _, s := range steps {
		if err := m.ExecuteOperation(s.Operation, s.Table); err != nil {
			return fmt.Errorf("%s %s: %w", s.Operation, s.Table.Name, err)
		}
	}
	return nil
}

// Changes counts the steps that are not NoOp.
func Changes(steps []Step) int {
	n := 0
	for _, s := range steps {
		if s.Operation != NoOp {
			n++
		}
	}
	return n
}
