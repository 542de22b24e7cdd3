package table

import (
	"encoding/json"
	"math"
)

type jsonColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type jsonTable struct {
	Name    string       `json:"name"`
	Columns []jsonColumn `json:"columns"`
	Rows    [][]any      `json:"rows"`
}

// MarshalJSON encodes the table as {name, columns[{name,type}], rows[[...]]}.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := jsonTable{
		Name:    t.Name,
		Columns: make([]jsonColumn, len(t.cols)),
		Rows:    make([][]any, t.rows),
	}
	for i, c := range t.cols {
		out.Columns[i] = jsonColumn{Name: c.Name, Type: c.Kind.String()}
	}
	for r := 0; r < t.rows; r++ {
		row := make([]any, len(t.cols))
		for j, c := range t.cols {
			v := c.Values[r]
			if v.Kind == KindFloat && !v.Null && (math.IsNaN(v.Float) || math.IsInf(v.Float, 0)) {
				continue
			}
			row[j] = v.Any()
		}
		out.Rows[r] = row
	}
	return json.Marshal(out)
}
