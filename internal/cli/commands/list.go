package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dbpipeline/internal/store"
)

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "tables",
		Short:   "List saved tables",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			tables, err := app.Service.Tables(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if tables == nil {
					tables = []store.TableInfo{}
				}
				return renderJSON(out, tables)
			}
			if len(tables) == 0 {
				_, _ = fmt.Fprintln(out, "(no tables)")
				return nil
			}

			tw := newWriter(out)
			tw.AppendHeader(table.Row{"Name", "Columns", "Rows", "Saved"})
			for _, t := range tables {
				tw.AppendRow(table.Row{t.Name, len(t.Columns), t.Rows, formatTime(t.SavedAt)})
			}
			tw.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the run log, newest first",
		Example: `  # Last 20 runs
  dbpipeline runs

  # Last run as JSON
  dbpipeline runs --limit 1 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := app.Service.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if runs == nil {
					runs = []store.Run{}
				}
				return renderJSON(out, runs)
			}
			if len(runs) == 0 {
				_, _ = fmt.Fprintln(out, "(no runs)")
				return nil
			}

			tw := newWriter(out)
			tw.AppendHeader(table.Row{"Run", "Table", "Status", "Rows in", "Rows out", "Source", "Started", "Error"})
			for _, r := range runs {
				tw.AppendRow(table.Row{
					r.ID.String()[:8],
					r.Table,
					r.Status,
					r.RowsIn,
					r.RowsOut,
					r.Source,
					formatTime(r.StartedAt),
					truncate(r.Error, 60),
				})
			}
			tw.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
