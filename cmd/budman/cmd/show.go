package cmd

import (
	"github.com/spf13/cobra"

	"budman/internal/category"
	"budman/pkg/errors"
	"budman/pkg/logger"
)

var showLevel int

// showCmd inspects the budget store and catalogs
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Inspect the budget store, workbooks and categories",
}

var showStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Show the budget store overview",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		g, err := newGenerator()
		if err != nil {
			return err
		}
		return g.StoreSummary(st, cmd.OutOrStdout())
	},
}

var showWorkbooksCmd = &cobra.Command{
	Use:   "workbooks",
	Short: "List registered workbooks",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		g, err := newGenerator()
		if err != nil {
			return err
		}
		return g.Workbooks(st, Settings().FI, cmd.OutOrStdout())
	},
}

var showCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Show an institution's category tree",
	Long: `Show categories renders the hierarchical category tree of an
institution's catalog, down to --level (1-3).

Examples:
  budman show categories --fi boa
  budman show categories --fi boa --level 2
  budman show categories --fi boa --output-format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fiKey := Settings().FI
		if fiKey == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, "fi", "", nil).
				WithSuggestion("pass --fi to pick the institution catalog")
		}

		catalogs := category.NewManager(Settings().CatalogPath(), logger.GetGlobalLogger())
		catalog, err := catalogs.Catalog(fiKey)
		if err != nil {
			return err
		}

		g, err := newGenerator()
		if err != nil {
			return err
		}
		return g.Categories(catalog, showLevel, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.AddCommand(showStoreCmd)
	showCmd.AddCommand(showWorkbooksCmd)
	showCmd.AddCommand(showCategoriesCmd)

	showCategoriesCmd.Flags().IntVar(&showLevel, "level", 3, "deepest category level to render (1-3)")
}
