package core

// validation.go holds the quality checks run between cleaning and feature
// derivation.
//
// Checks never fail the pipeline: a column over its null tolerance or a
// duplicated key is logged and reported back to the caller, which decides
// what to do. Only a missing column is an error.

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/JonMunkholm/dbpipeline/internal/table"
)

// NullReport is the null ratio of one column against its tolerance.
type NullReport struct {
	Column    string  `json:"column"`
	Nulls     int     `json:"nulls"`
	Rows      int     `json:"rows"`
	Ratio     float64 `json:"ratio"`
	Tolerance float64 `json:"tolerance"`
	Exceeded  bool    `json:"exceeded"`
}

func (r NullReport) String() string {
	return fmt.Sprintf("%s: %.2f%% null (tolerance %.2f%%)", r.Column, r.Ratio*100, r.Tolerance*100)
}

// NullCheck compares the null ratio of every column in tolerance against
// its limit. Reports come back sorted by column name. A column that is not
// in the table yields ErrColumnMismatch.
func NullCheck(t *table.Table, tolerance map[string]float64, log *slog.Logger) ([]NullReport, error) {
	if log == nil {
		log = slog.Default()
	}

	names := make([]string, 0, len(tolerance))
	for name := range tolerance {
		names = append(names, name)
	}
	sort.Strings(names)

	var missing []string
	reports := make([]NullReport, 0, len(names))
	for _, name := range names {
		col, err := t.Column(name)
		if err != nil {
			missing = append(missing, name)
			continue
		}

		r := NullReport{
			Column:    name,
			Nulls:     col.NullCount(),
			Rows:      t.NumRows(),
			Tolerance: tolerance[name],
		}
		if r.Rows > 0 {
			r.Ratio = float64(r.Nulls) / float64(r.Rows)
		}
		r.Exceeded = r.Ratio > r.Tolerance

		if r.Exceeded {
			log.Error("null tolerance exceeded", "column", name, "ratio", r.Ratio, "tolerance", r.Tolerance)
		} else {
			log.Info("null check passed", "column", name, "ratio", r.Ratio, "tolerance", r.Tolerance)
		}
		reports = append(reports, r)
	}
	if err := missingColumns("null check", missing); err != nil {
		return nil, err
	}
	return reports, nil
}

// KeysCheck counts rows whose key tuple already appeared earlier in the
// table. With no keys it returns 0.
func KeysCheck(t *table.Table, keys []string, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(keys) == 0 {
		return 0, nil
	}

	cols := make([]*table.Column, 0, len(keys))
	var missing []string
	for _, k := range keys {
		c, err := t.Column(k)
		if err != nil {
			missing = append(missing, k)
			continue
		}
		cols = append(cols, c)
	}
	if err := missingColumns("keys check", missing); err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, t.NumRows())
	dups := 0
	var b strings.Builder
	for row := 0; row < t.NumRows(); row++ {
		b.Reset()
		for _, c := range cols {
			v := c.Values[row]
			if v.Null {
				b.WriteString("\x00null")
			} else {
				b.WriteString(v.String())
			}
			b.WriteByte('\x1f')
		}
		key := b.String()
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}

	if dups > 0 {
		log.Info("duplicate keys found", "keys", strings.Join(keys, ","), "duplicates", dups)
	} else {
		log.Info("keys check passed", "keys", strings.Join(keys, ","))
	}
	return dups, nil
}
