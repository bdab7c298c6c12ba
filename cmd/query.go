package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"relstore/internal/schema"
	"relstore/internal/store"
)

var (
	queryKey     string
	queryValue   string
	queryColumns string
	queryOrder   string
)

var queryCmd = &cobra.Command{
	Use:   "query <table>",
	Short: "Print rows of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkProjection(queryColumns); err != nil {
			return err
		}
		if err := checkOrder(queryOrder); err != nil {
			return err
		}
		sel := store.Select{Table: args[0], Projection: queryColumns, OrderBy: queryOrder}
		if queryKey != "" {
			sel.Where = store.Eq([]string{queryKey}, []any{queryValue})
		}
		cols, rows, err := Store.SelectColumns(sel)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, strings.Join(cols, "\t"))
		for _, r := range rows {
			cells := make([]string, len(r))
			for i, c := range r {
				if c.Valid {
					cells[i] = c.String
				} else {
					cells[i] = "NULL"
				}
			}
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("(%d rows)\n", len(rows))
		return nil
	},
}

// checkProjection accepts "*" or a comma separated list of column names.
func checkProjection(cols string) error {
	if strings.TrimSpace(cols) == "*" {
		return nil
	}
	for _, c := range strings.Split(cols, ",") {
		if name := strings.TrimSpace(c); !schema.ValidIdentifier(name) {
			return fmt.Errorf("invalid --columns entry %q", name)
		}
	}
	return nil
}

// checkOrder accepts a comma separated list of column names, each optionally
// followed by ASC or DESC.
func checkOrder(order string) error {
	if strings.TrimSpace(order) == "" {
		return nil
	}
	for _, term := range strings.Split(order, ",") {
		fields := strings.Fields(term)
		if len(fields) == 0 || len(fields) > 2 || !schema.ValidIdentifier(fields[0]) {
			return fmt.Errorf("invalid --order term %q", strings.TrimSpace(term))
		}
		if len(fields) == 2 {
			if dir := strings.ToUpper(fields[1]); dir != "ASC" && dir != "DESC" {
				return fmt.Errorf("invalid --order direction %q", fields[1])
			}
		}
	}
	return nil
}

func init() {
	RootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVar(&queryKey, "key", "", "Key column to match")
	queryCmd.Flags().StringVar(&queryValue, "value", "", "Value the key column must equal")
	queryCmd.Flags().StringVar(&queryColumns, "columns", "*", "Projection, e.g. \"id, name\"")
	queryCmd.Flags().StringVar(&queryOrder, "order", "", "Sort columns, e.g. \"name DESC, id\"")
}
