package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dbpipeline/internal/core"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	DataPath     string
	MetadataPath string
	Sheet        string
	Table        string
	Coercion     string
	Encoding     string
	JSONOutput   bool
	Quiet        bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Clean a dataset with its metadata sheet and save the result",
		Long: `Run the pipeline once: load the dataset and the column metadata, clean
and type every column, check null tolerances and key uniqueness, derive
the flight features, and save the result to the store.

Paths default to PIPELINE_DATA_PATH and PIPELINE_METADATA_PATH.`,
		Example: `  # Run with the configured inputs
  dbpipeline run

  # Run explicit files, nulling values that cannot be cast
  dbpipeline run --data data/flights.csv --metadata data/metadados.xlsx --coercion null

  # Save under another table name and print the result as JSON
  dbpipeline run --table voos_limpos --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.DataPath, "data", "d", "", "CSV dataset to clean")
	cmd.Flags().StringVarP(&opts.MetadataPath, "metadata", "m", "", "Metadata sheet (.xlsx, .csv or .yaml)")
	cmd.Flags().StringVar(&opts.Sheet, "sheet", "", "Worksheet of an .xlsx metadata file")
	cmd.Flags().StringVar(&opts.Table, "table", "", "Table name to save under")
	cmd.Flags().StringVar(&opts.Coercion, "coercion", "", "Cast failures: fail or null")
	cmd.Flags().StringVar(&opts.Encoding, "encoding", "", "Dataset encoding: utf-8, latin1 or windows-1252")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Do not print progress")

	_ = cmd.RegisterFlagCompletionFunc("coercion", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"fail", "null"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	app, err := appFromContext(cmd.Context())
	if err != nil {
		return err
	}

	req := core.RunRequest{
		DataPath:      opts.DataPath,
		MetadataPath:  opts.MetadataPath,
		MetadataSheet: opts.Sheet,
		TableName:     opts.Table,
		Coercion:      opts.Coercion,
		Encoding:      opts.Encoding,
	}
	if !opts.Quiet {
		req.OnProgress = phasePrinter(cmd.ErrOrStderr())
	}

	ctx := core.ContextWithSource(cmd.Context(), core.SourceCLI)
	result, err := app.Service.Run(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.JSONOutput {
		return renderJSON(out, result)
	}
	renderRunResult(out, result)
	return nil
}

// phasePrinter prints one line per phase change.
func phasePrinter(w io.Writer) core.ProgressCallback {
	var last core.RunPhase
	return func(p core.RunProgress) {
		if p.Phase == last {
			return
		}
		last = p.Phase
		switch p.Phase {
		case core.PhaseFailed:
			_, _ = fmt.Fprintf(w, "%-9s %s\n", p.Phase, p.Error)
		case core.PhaseComplete:
			_, _ = fmt.Fprintf(w, "%-9s %d rows\n", p.Phase, p.Rows)
		default:
			_, _ = fmt.Fprintf(w, "%-9s %s\n", p.Phase, p.Table)
		}
	}
}

func renderRunResult(w io.Writer, r *core.RunResult) {
	tw := newWriter(w)
	tw.SetTitle("Run " + r.RunID.String())
	tw.AppendRows([]table.Row{
		{"Table", r.Table},
		{"Rows in", r.RowsIn},
		{"Rows out", r.RowsOut},
		{"Dropped rows", r.DroppedRows},
		{"Nulled cells", r.NulledCells},
		{"Duplicate keys", r.DuplicateKeys},
		{"Columns", len(r.Columns)},
		{"Bytes read", r.BytesRead},
		{"Duration", r.Duration.Round(time.Millisecond)},
	})
	tw.Render()

	if len(r.NullChecks) == 0 {
		return
	}
	nw := newWriter(w)
	nw.SetTitle("Null checks")
	nw.AppendHeader(table.Row{"Column", "Nulls", "Ratio", "Tolerance", "Status"})
	for _, c := range r.NullChecks {
		status := "ok"
		if c.Exceeded {
			status = "over tolerance"
		}
		nw.AppendRow(table.Row{
			c.Column,
			c.Nulls,
			fmt.Sprintf("%.2f%%", c.Ratio*100),
			fmt.Sprintf("%.2f%%", c.Tolerance*100),
			status,
		})
	}
	nw.Render()
}
