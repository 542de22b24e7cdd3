package commands

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dbpipeline/internal/store"
	datatable "github.com/JonMunkholm/dbpipeline/internal/table"
)

// FetchOptions holds options for the fetch command.
type FetchOptions struct {
	Limit  int
	Format string
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand() *cobra.Command {
	opts := &FetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch <table>",
		Short: "Print a saved table",
		Long: `Read a table back from the store with the column types it was saved
with. Datetimes print as RFC 3339 and missing cells as NULL.`,
		Example: `  # First five rows of the flights table
  dbpipeline fetch nyflights --limit 5

  # Whole table as CSV
  dbpipeline fetch nyflights --format csv > nyflights.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "Maximum rows to print (0 for all)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", formatTable, "Output format (table|csv|json)")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return formats, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runFetch(cmd *cobra.Command, name string, opts *FetchOptions) error {
	format, err := checkFormat(opts.Format)
	if err != nil {
		return err
	}
	if err := store.ValidateTableName(name); err != nil {
		return err
	}

	app, err := appFromContext(cmd.Context())
	if err != nil {
		return err
	}

	t, err := app.Service.Fetch(cmd.Context(), name, opts.Limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case formatCSV:
		return datatable.WriteCSV(out, t)
	case formatJSON:
		return renderJSON(out, t)
	default:
		return renderDataTable(out, t)
	}
}
