package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"relstore/internal/migrate"
)

var migrateDryRun bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the live tables in line with the schema catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCatalog(); err != nil {
			return err
		}
		fmt.Printf("Connected to %s (%s)\n", Target.Name, Target.Driver)

		m := migrate.New(Store, Logger)

		if !migrateDryRun {
			repaired, err := m.Reconcile()
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			for _, t := range repaired {
				fmt.Printf("Repaired interrupted migration of %s\n", t)
			}
		}

		steps, err := m.Plan(Catalog)
		if err != nil {
			return err
		}

		fmt.Println("\nMigration plan:")
		for i, s := range steps {
			fmt.Printf("[%02d/%02d] %-24s %-6s %s\n", i+1, len(steps), s.Table.Name, s.Operation, s.Fingerprint)
		}
		changes := migrate.Changes(steps)
		if changes == 0 {
			fmt.Println("Schema is up to date.")
			return nil
		}
		if migrateDryRun {
			fmt.Printf("[SIMULATION] %d table(s) would change.\n", changes)
			return nil
		}

		start := time.Now()
		if err := m.Apply(steps); err != nil {
			return err
		}
		fmt.Printf("Migrated %d table(s) in %s\n", changes, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Print the plan without changing anything")
}
