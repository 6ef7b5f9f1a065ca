package main

import (
	"fmt"
	"strings"

	"github.com/raine/marktplatz-bot/internal/category"
	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	var req category.Request

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve free-text category guesses against the category tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			source, err := current.categorySource(ctx)
			if err != nil {
				return err
			}
			nodes, err := source.LoadCategories(ctx)
			if err != nil {
				return fmt.Errorf("failed to load categories: %w", err)
			}

			tree := category.NewTree(nodes)
			loc := current.cfg.Locale
			res := category.NewResolver(tree, current.tables.CategoryTables(), loc).Resolve(req)

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "status: %s\n", res.Status)
			if id, ok := res.Selection.CategoryID(); ok {
				fmt.Fprintf(w, "category: %s (%s)\n", tree.PathLabel(id, loc), id)
			}
			for _, a := range res.Trace {
				mark := "-"
				if a.Matched {
					mark = "+"
				}
				line := fmt.Sprintf("  %s level %d %-9s", mark, a.Level, a.Tier)
				if a.NodeID != "" {
					line += " " + a.NodeID
				}
				fmt.Fprintln(w, strings.TrimRight(line, " "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Category, "category", "", "top-level category guess")
	cmd.Flags().StringVar(&req.Subcategory, "subcategory", "", "subcategory guess")
	cmd.Flags().StringVar(&req.Text, "text", "", "item title and description")
	return cmd
}
