package core

// clean.go applies the metadata rules to a raw table.
//
// DataClean never drops rows. Rows with null keys are removed beforehand by
// DropNullKeys so that the row count contract of DataClean holds.

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/dbpipeline/internal/table"
)

// CoercionPolicy decides what happens to a value that cannot be cast.
type CoercionPolicy int

const (
	// PolicyFail stops at the first bad value with a *CoercionError.
	PolicyFail CoercionPolicy = iota
	// PolicyNull replaces bad values with null and counts them.
	PolicyNull
)

// ParseCoercionPolicy accepts "fail" and "null".
func ParseCoercionPolicy(s string) (CoercionPolicy, error) {
	switch s {
	case "", "fail":
		return PolicyFail, nil
	case "null":
		return PolicyNull, nil
	default:
		return PolicyFail, fmt.Errorf("%w: unknown coercion policy %q (want fail or null)", ErrInvalidOption, s)
	}
}

func (p CoercionPolicy) String() string {
	if p == PolicyNull {
		return "null"
	}
	return "fail"
}

// CleanOptions tunes DataClean.
type CleanOptions struct {
	Policy CoercionPolicy

	// DateColumn is derived from YearColumn, MonthColumn and DayColumn when
	// all three exist. Empty disables the derivation.
	DateColumn  string
	YearColumn  string
	MonthColumn string
	DayColumn   string

	Hour HourOptions

	Logger *slog.Logger
}

// DefaultCleanOptions returns the options used for the flights dataset.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{
		Policy:      PolicyFail,
		DateColumn:  "data_voo",
		YearColumn:  "year",
		MonthColumn: "month",
		DayColumn:   "day",
		Hour:        HourOptions{SplitShortHours: true},
	}
}

func (o CleanOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// CleanStats summarizes a DataClean call.
type CleanStats struct {
	Rows        int
	Columns     int
	NulledCells int
	DateColumn  string // set when the date column was derived
}

// DataClean casts, selects, renames and standardizes t according to md.
// The input table is not modified. The result has the same row count.
func DataClean(t *table.Table, md *Metadata, opts CleanOptions) (*table.Table, CleanStats, error) {
	var stats CleanStats
	log := opts.logger()

	work := t.Clone()

	// flight date, derived first so metadata may list it as an original column
	dateCol := ""
	if opts.DateColumn != "" && !work.Has(opts.DateColumn) &&
		work.Has(opts.YearColumn) && work.Has(opts.MonthColumn) && work.Has(opts.DayColumn) {
		col, nulled, err := deriveDate(work, opts)
		if err != nil {
			return nil, stats, err
		}
		if err := work.AddColumn(col); err != nil {
			return nil, stats, err
		}
		stats.NulledCells += nulled
		dateCol = opts.DateColumn
		stats.DateColumn = dateCol
	} else if opts.DateColumn != "" && work.Has(opts.DateColumn) {
		dateCol = opts.DateColumn
	}

	var missing []string
	for _, name := range md.OriginalColumns() {
		if !work.Has(name) {
			missing = append(missing, name)
		}
	}
	if err := missingColumns("data clean", missing); err != nil {
		return nil, stats, err
	}

	// cast to the raw types
	for _, rule := range md.Rules {
		col, _ := work.Column(rule.Original)
		cast, nulled, err := castColumn(col, rule.OriginalType, opts.Policy)
		if err != nil {
			return nil, stats, err
		}
		stats.NulledCells += nulled
		if err := work.SetColumn(cast); err != nil {
			return nil, stats, err
		}
	}

	// select and rename
	name := t.Name
	if md.Table() != "" {
		name = md.Table()
	}
	out, _ := table.New(name)
	outDate := ""
	for _, rule := range md.Rules {
		col, _ := work.Column(rule.Original)
		values := make([]table.Value, len(col.Values))
		copy(values, col.Values)
		if err := out.AddColumn(table.NewColumn(rule.Renamed, col.Kind, values)); err != nil {
			return nil, stats, fmt.Errorf("rename %q to %q: %w", rule.Original, rule.Renamed, err)
		}
		if dateCol != "" && rule.Original == dateCol {
			outDate = rule.Renamed
		}
	}
	if dateCol != "" && outDate == "" {
		col, _ := work.Column(dateCol)
		if err := out.AddColumn(col); err != nil {
			return nil, stats, err
		}
		outDate = dateCol
	}

	for _, name := range md.StdStr() {
		col, _ := out.Column(name)
		if err := out.SetColumn(standardizeColumn(col)); err != nil {
			return nil, stats, err
		}
	}

	var dates *table.Column
	if outDate != "" {
		if c, err := out.Column(outDate); err == nil && c.Kind == table.KindDatetime {
			dates = c
		}
	}
	for _, name := range md.CorrectHour() {
		col, _ := out.Column(name)
		fixed, nulled, err := correctHourColumn(col, dates, opts.Hour, opts.Policy)
		if err != nil {
			return nil, stats, err
		}
		stats.NulledCells += nulled
		if err := out.SetColumn(fixed); err != nil {
			return nil, stats, err
		}
	}

	stats.Rows = out.NumRows()
	stats.Columns = out.NumCols()
	log.Info("data clean completed",
		"table", out.Name,
		"rows", stats.Rows,
		"columns", stats.Columns,
		"nulled_cells", stats.NulledCells,
	)
	return out, stats, nil
}

// DropNullKeys removes rows where any of the key columns is null and
// returns the number of dropped rows.
func DropNullKeys(t *table.Table, keys []string) (*table.Table, int, error) {
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
	if err := missingColumns("null keys", missing); err != nil {
		return nil, 0, err
	}

	out := t.FilterRows(func(row int) bool {
		for _, c := range cols {
			if c.Values[row].Null {
				return false
			}
		}
		return true
	})
	return out, t.NumRows() - out.NumRows(), nil
}

// castColumn converts every cell of col to typeName.
func castColumn(col *table.Column, typeName string, policy CoercionPolicy) (*table.Column, int, error) {
	def, ok := LookupType(typeName)
	if !ok {
		return nil, 0, fmt.Errorf("%w: column %q has unknown type %q", ErrInvalidMetadata, col.Name, typeName)
	}

	nulled := 0
	values := make([]table.Value, len(col.Values))
	for i, v := range col.Values {
		if v.Kind == table.KindText && !v.Null && CleanCell(v.Str) == "" {
			values[i] = table.NullOf(def.Kind)
			continue
		}
		out, ok := CastValue(v, def)
		if !ok {
			if policy == PolicyFail {
				return nil, 0, &CoercionError{Column: col.Name, Row: i, Value: v.String(), Target: def.Name}
			}
			out = table.NullOf(def.Kind)
			nulled++
		}
		values[i] = out
	}
	return table.NewColumn(col.Name, def.Kind, values), nulled, nil
}

func standardizeColumn(col *table.Column) *table.Column {
	values := make([]table.Value, len(col.Values))
	for i, v := range col.Values {
		if v.Null {
			values[i] = table.NullOf(table.KindText)
			continue
		}
		values[i] = table.Text(StandardizeString(v.String()))
	}
	return table.NewColumn(col.Name, table.KindText, values)
}

// correctHourColumn rewrites HHMM readings as "HH:MM". When dates is given
// the result is a datetime on that day; otherwise it stays text.
func correctHourColumn(col, dates *table.Column, opts HourOptions, policy CoercionPolicy) (*table.Column, int, error) {
	kind := table.KindText
	if dates != nil {
		kind = table.KindDatetime
	}

	nulled := 0
	values := make([]table.Value, len(col.Values))
	for i, v := range col.Values {
		if v.Null || (dates != nil && dates.Values[i].Null) {
			values[i] = table.NullOf(kind)
			continue
		}
		if v.Kind == table.KindDatetime {
			values[i] = v
			continue
		}

		hhmm, err := CorrectHour(v.String(), opts)
		var out table.Value
		if err == nil {
			out = table.Text(hhmm)
			if dates != nil {
				var ts time.Time
				ts, err = CombineDateHour(dates.Values[i].Time, hhmm)
				out = table.Time(ts)
			}
		}
		if err != nil {
			if policy == PolicyFail {
				return nil, 0, &CoercionError{Column: col.Name, Row: i, Value: v.String(), Target: "hour"}
			}
			out = table.NullOf(kind)
			nulled++
		}
		values[i] = out
	}
	return table.NewColumn(col.Name, kind, values), nulled, nil
}

// deriveDate builds the date column from year, month and day parts.
func deriveDate(t *table.Table, opts CleanOptions) (*table.Column, int, error) {
	years, _ := t.Column(opts.YearColumn)
	months, _ := t.Column(opts.MonthColumn)
	days, _ := t.Column(opts.DayColumn)

	nulled := 0
	values := make([]table.Value, t.NumRows())
	for i := range values {
		y, m, d := years.Values[i], months.Values[i], days.Values[i]
		if y.Null || m.Null || d.Null {
			values[i] = table.NullOf(table.KindDatetime)
			continue
		}
		yy, okY := ToInt(y.String())
		mm, okM := ToInt(m.String())
		dd, okD := ToInt(d.String())
		valid := okY && okM && okD && mm >= 1 && mm <= 12 && dd >= 1 && dd <= 31
		var date time.Time
		if valid {
			date = time.Date(int(yy), time.Month(mm), int(dd), 0, 0, 0, 0, time.UTC)
			// time.Date normalizes 2013-02-30 into March
			valid = date.Day() == int(dd)
		}
		if !valid {
			if opts.Policy == PolicyFail {
				return nil, 0, &CoercionError{
					Column: opts.DateColumn,
					Row:    i,
					Value:  fmt.Sprintf("%s-%s-%s", y.String(), m.String(), d.String()),
					Target: "date",
				}
			}
			values[i] = table.NullOf(table.KindDatetime)
			nulled++
			continue
		}
		values[i] = table.Time(date)
	}
	return table.NewColumn(opts.DateColumn, table.KindDatetime, values), nulled, nil
}
