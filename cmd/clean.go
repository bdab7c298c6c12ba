package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"relstore/internal/schema"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete every row of the catalog tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCatalog(); err != nil {
			return err
		}
		fmt.Printf("Connected to %s (%s)\n", Target.Name, Target.Driver)

		targetTables, err := selectTables()
		if err != nil {
			return err
		}
		return cleanTables(targetTables)
	},
}

func init() {
	RootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().StringSliceVarP(&tables, "tables", "t", []string{}, "Specific tables to clean (comma-separated)")
}

// cleanTables empties tables in reverse dependency order, so children go
// before their parents. A table that cannot be cleaned is reported and
// skipped.
func cleanTables(tables []schema.TableSchema) error {
	total := len(tables)
	done := 0
	for i := len(tables) - 1; i >= 0; i-- {
		t := tables[i]
		n, err := Store.Delete(t.Name, nil, nil)
		if err != nil {
			Logger.Warn("failed to clean table, continuing", "table", t.Name, "err", err)
			continue
		}
		done++
		Logger.Info("cleaned table", "table", t.Name, "rows", n)
		if done%5 == 0 || done == total {
			fmt.Printf("Cleaned %d/%d tables...\n", done, total)
		}
	}
	if done < total {
		return fmt.Errorf("cleaned %d of %d tables", done, total)
	}
	fmt.Println("Tables Cleaned Successfully!")
	return nil
}
