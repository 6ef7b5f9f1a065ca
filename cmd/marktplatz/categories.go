package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/raine/marktplatz-bot/internal/category"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newCategoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage the local category store",
	}
	cmd.AddCommand(newCategoriesImportCmd())
	cmd.AddCommand(newCategoriesListCmd())
	return cmd
}

func newCategoriesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Replace the local category tree with the nodes in a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read categories: %w", err)
			}
			var nodes []category.Node
			if err := json.Unmarshal(data, &nodes); err != nil {
				return fmt.Errorf("failed to parse categories: %w", err)
			}

			if indexed := category.NewTree(nodes).Len(); indexed < len(nodes) {
				log.Warn().Int("skipped", len(nodes)-indexed).Msg("some categories are malformed and will be ignored")
			}

			if err := current.store.ReplaceCategories(nodes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d categories\n", len(nodes))
			return nil
		},
	}
}

func newCategoriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the local category tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := current.store.LoadCategories(cmd.Context())
			if err != nil {
				return err
			}
			tree := category.NewTree(nodes)
			if tree.Len() == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no categories")
				return nil
			}
			printTree(cmd, tree, tree.Roots(), current.cfg.Locale)
			return nil
		},
	}
}

func printTree(cmd *cobra.Command, tree *category.Tree, nodes []*category.Node, loc string) {
	for _, n := range nodes {
		indent := strings.Repeat("  ", n.Level-1)
		fmt.Fprintf(cmd.OutOrStdout(), "%s%s [%s] %s\n", indent, n.Label(loc), n.ID, n.Slug)
		printTree(cmd, tree, tree.Children(n), loc)
	}
}
