package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	datatable "github.com/JonMunkholm/dbpipeline/internal/table"
)

// Output formats shared by the read commands.
const (
	formatTable = "table"
	formatCSV   = "csv"
	formatJSON  = "json"
)

var formats = []string{formatTable, formatCSV, formatJSON}

func checkFormat(f string) (string, error) {
	f = strings.ToLower(strings.TrimSpace(f))
	for _, ok := range formats {
		if f == ok {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (want %s)", f, strings.Join(formats, ", "))
}

func newWriter(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// renderDataTable prints a saved table as a box table, with NULL for
// missing cells.
func renderDataTable(w io.Writer, t *datatable.Table) error {
	if t.NumRows() == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	tw := newWriter(w)
	header := make(table.Row, t.NumCols())
	for i, name := range t.Names() {
		header[i] = name
	}
	tw.AppendHeader(header)

	for r := 0; r < t.NumRows(); r++ {
		values := t.Row(r)
		row := make(table.Row, len(values))
		for i, v := range values {
			if v.Null {
				row[i] = "NULL"
			} else {
				row[i] = v.String()
			}
		}
		tw.AppendRow(row)
	}

	tw.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", t.NumRows())
	return nil
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
