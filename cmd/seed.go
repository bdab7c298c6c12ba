package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"relstore/internal/engine"
	"relstore/internal/schema"
)

var (
	count   int
	seedVal int64
	clean   bool
	dryRun  bool
	tables  []string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the catalog tables with fake rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCatalog(); err != nil {
			return err
		}
		fmt.Printf("Connected to %s (%s)\n", Target.Name, Target.Driver)

		// Flag > Config > Default
		targetCount := viper.GetInt("settings.default_count")
		if count > 0 {
			targetCount = count
		}

		targetTables, err := selectTables()
		if err != nil {
			return err
		}

		if clean {
			if err := cleanTables(targetTables); err != nil {
				return err
			}
		}

		if dryRun {
			fmt.Println("[SIMULATION] Dry-Run Mode Active: No data will be written.")
			for i, t := range targetTables {
				fmt.Printf("[%02d] %s (Dependencies: %v)\n", i+1, t.Name, t.DependsOn)
			}
			return nil
		}

		Logger.Info("starting seed", "count", targetCount, "tables", len(targetTables))
		start := time.Now()

		uiprogress.Start()
		bar := uiprogress.AddBar(targetCount * len(targetTables)).AppendCompleted().PrependElapsed()
		bar.PrependFunc(func(b *uiprogress.Bar) string {
			return "Seeding: "
		})

		seeder := engine.NewSeeder(Store, engine.NewGenerator(seedVal), Logger)
		results, err := seeder.Seed(targetTables, targetCount, func() {
			bar.Incr()
		})

		uiprogress.Stop()

		if err != nil {
			return err
		}

		verified := seeder.Verify(results)

		fmt.Println("\nSummary Report (Dependency Order):")
		var total int64
		for i, r := range verified {
			icon := "✓"
			if r.Status != "OK" {
				icon = "!"
			}
			fmt.Printf("[%s] [%02d/%02d] %-20s : %d rows (Target: %d) - %s\n",
				icon, i+1, len(verified), r.Table, r.Actual, r.Target, r.Status)
			if r.Err != "" {
				fmt.Printf("    └ Error: %s\n", r.Err)
			}
			total += r.Actual
		}
		fmt.Println("--------------------------------------------------")
		fmt.Printf("Total Rows: %d\n", total)
		Logger.Info("seed done", "elapsed", time.Since(start))
		return nil
	},
}

// selectTables applies --tables, then settings.tables, to the catalog and
// returns the result in dependency order.
func selectTables() ([]schema.TableSchema, error) {
	names := tables
	if len(names) == 0 {
		names = viper.GetStringSlice("settings.tables")
	}

	all := schema.SortByDependencies(Catalog.Tables)
	if len(names) == 0 {
		return all, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(n)] = true
	}
	var out []schema.TableSchema
	for _, t := range all {
		if wanted[strings.ToLower(t.Name)] {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no matching tables found for inputs: %v", names)
	}
	return out, nil
}

func init() {
	RootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntVar(&count, "count", 0, "Number of rows to generate per table (overrides config)")
	seedCmd.Flags().Int64Var(&seedVal, "seed", 0, "Random seed (0 picks one)")
	seedCmd.Flags().BoolVar(&clean, "clean", false, "Empty the tables before seeding")
	seedCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the table order without writing")
	seedCmd.Flags().StringSliceVarP(&tables, "tables", "t", []string{}, "Specific tables to seed (comma-separated)")

	viper.SetDefault("settings.default_count", 100)
}
