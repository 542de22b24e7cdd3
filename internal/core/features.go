package core

// features.go derives the engineered flight columns from a cleaned table.
//
//	tempo_voo_esperado  scheduled duration in hours (arrival - departure)
//	dia_semana          weekday of the flight date, Monday=0
//	horario             MADRUGADA, MANHA, TARDE or NOITE from the departure hour
//	tempo_voo_hr        air time converted from minutes to hours
//	atraso              tempo_voo_hr - tempo_voo_esperado
//	flg_status          ATRASO when atraso exceeds the threshold, else ONTIME

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/JonMunkholm/dbpipeline/internal/table"
)

// Derived column names.
const (
	ColExpectedHours = "tempo_voo_esperado"
	ColWeekday       = "dia_semana"
	ColDayPeriod     = "horario"
	ColAirTimeHours  = "tempo_voo_hr"
	ColDelay         = "atraso"
	ColStatus        = "flg_status"
)

// Day periods and flight statuses.
const (
	PeriodDawn      = "MADRUGADA"
	PeriodMorning   = "MANHA"
	PeriodAfternoon = "TARDE"
	PeriodNight     = "NOITE"

	StatusDelayed = "ATRASO"
	StatusOnTime  = "ONTIME"
)

// FeatureOptions names the input columns FeatEng reads.
type FeatureOptions struct {
	DateColumn      string
	DepartureColumn string
	ArrivalColumn   string
	AirTimeColumn   string

	// DelayThreshold is the delay in hours above which a flight is ATRASO.
	DelayThreshold float64

	Hour   HourOptions
	Policy CoercionPolicy
	Logger *slog.Logger
}

// DefaultFeatureOptions returns the column names of the flights dataset.
func DefaultFeatureOptions() FeatureOptions {
	return FeatureOptions{
		DateColumn:      "data_voo",
		DepartureColumn: "datetime_partida",
		ArrivalColumn:   "datetime_chegada",
		AirTimeColumn:   "tempo_voo",
		DelayThreshold:  0.5,
		Hour:            HourOptions{SplitShortHours: true},
	}
}

func (o FeatureOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// FeatEng finalizes the formatted columns of t and appends the derived
// columns. Existing columns are never removed. The input is not modified.
//
// stdStr columns are standardized and correctHour columns still holding
// text are hour-corrected, so a table that skipped DataClean works too.
// Every column in formattedTypes is then cast to its type. A derived column
// whose inputs are missing is skipped.
func FeatEng(t *table.Table, correctHour, stdStr []string, formattedTypes map[string]string, opts FeatureOptions) (*table.Table, error) {
	log := opts.logger()

	var missing []string
	for _, name := range append(append([]string{}, stdStr...), correctHour...) {
		if !t.Has(name) {
			missing = append(missing, name)
		}
	}
	for name := range formattedTypes {
		if !t.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, missingColumns("feature engineering", dedupe(missing))
	}

	out := t.Clone()

	for _, name := range stdStr {
		col, _ := out.Column(name)
		if err := out.SetColumn(standardizeColumn(col)); err != nil {
			return nil, err
		}
	}

	var dates *table.Column
	if c, err := out.Column(opts.DateColumn); err == nil && c.Kind == table.KindDatetime {
		dates = c
	}
	for _, name := range correctHour {
		col, _ := out.Column(name)
		if col.Kind == table.KindDatetime {
			continue
		}
		fixed, _, err := correctHourColumn(normalizeClock(col), dates, opts.Hour, opts.Policy)
		if err != nil {
			return nil, err
		}
		if err := out.SetColumn(fixed); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(formattedTypes))
	for name := range formattedTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		col, _ := out.Column(name)
		cast, nulled, err := castColumn(col, formattedTypes[name], opts.Policy)
		if err != nil {
			return nil, err
		}
		if nulled > 0 {
			log.Warn("values nulled during cast", "column", name, "type", formattedTypes[name], "count", nulled)
		}
		if err := out.SetColumn(cast); err != nil {
			return nil, err
		}
	}

	derivers := []struct {
		name string
		fn   func(*table.Table, FeatureOptions) (*table.Column, error)
	}{
		{ColExpectedHours, deriveExpectedHours},
		{ColWeekday, deriveWeekday},
		{ColDayPeriod, deriveDayPeriod},
		{ColAirTimeHours, deriveAirTimeHours},
		{ColDelay, deriveDelay},
		{ColStatus, deriveStatus},
	}
	var added []string
	for _, d := range derivers {
		col, err := d.fn(out, opts)
		if err != nil {
			log.Debug("derived column skipped", "column", d.name, "reason", err.Error())
			continue
		}
		if err := out.SetColumn(col); err != nil {
			return nil, err
		}
		added = append(added, d.name)
	}

	log.Info("feature engineering completed",
		"table", out.Name,
		"rows", out.NumRows(),
		"derived", strings.Join(added, ","),
	)
	return out, nil
}

// ClassifyHour maps an hour of day to its period.
func ClassifyHour(hour int) string {
	switch {
	case hour >= 0 && hour < 6:
		return PeriodDawn
	case hour >= 6 && hour < 12:
		return PeriodMorning
	case hour >= 12 && hour < 18:
		return PeriodAfternoon
	default:
		return PeriodNight
	}
}

// FlightStatus classifies a delay in hours.
func FlightStatus(delay, threshold float64) string {
	if delay > threshold {
		return StatusDelayed
	}
	return StatusOnTime
}

// normalizeClock turns "HH:MM" text back into HHMM so CorrectHour accepts
// columns that were already corrected without a date.
func normalizeClock(col *table.Column) *table.Column {
	values := make([]table.Value, len(col.Values))
	for i, v := range col.Values {
		if !v.Null && v.Kind == table.KindText && strings.Contains(v.Str, ":") {
			v = table.Text(strings.ReplaceAll(v.Str, ":", ""))
		}
		values[i] = v
	}
	return table.NewColumn(col.Name, col.Kind, values)
}

func requireKind(t *table.Table, name string, kinds ...table.Kind) (*table.Column, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	for _, k := range kinds {
		if col.Kind == k {
			return col, nil
		}
	}
	return nil, fmt.Errorf("column %q is %s", name, col.Kind)
}

func deriveExpectedHours(t *table.Table, opts FeatureOptions) (*table.Column, error) {
	dep, err := requireKind(t, opts.DepartureColumn, table.KindDatetime)
	if err != nil {
		return nil, err
	}
	arr, err := requireKind(t, opts.ArrivalColumn, table.KindDatetime)
	if err != nil {
		return nil, err
	}
	values := make([]table.Value, t.NumRows())
	for i := range values {
		d, a := dep.Values[i], arr.Values[i]
		if d.Null || a.Null {
			values[i] = table.NullOf(table.KindFloat)
			continue
		}
		values[i] = table.Float(a.Time.Sub(d.Time).Hours())
	}
	return table.NewColumn(ColExpectedHours, table.KindFloat, values), nil
}

func deriveWeekday(t *table.Table, opts FeatureOptions) (*table.Column, error) {
	dates, err := requireKind(t, opts.DateColumn, table.KindDatetime)
	if err != nil {
		return nil, err
	}
	values := make([]table.Value, t.NumRows())
	for i, v := range dates.Values {
		if v.Null {
			values[i] = table.NullOf(table.KindInt)
			continue
		}
		values[i] = table.Int(int64((v.Time.Weekday() + 6) % 7))
	}
	return table.NewColumn(ColWeekday, table.KindInt, values), nil
}

func deriveDayPeriod(t *table.Table, opts FeatureOptions) (*table.Column, error) {
	dep, err := requireKind(t, opts.DepartureColumn, table.KindDatetime)
	if err != nil {
		return nil, err
	}
	values := make([]table.Value, t.NumRows())
	for i, v := range dep.Values {
		if v.Null {
			values[i] = table.NullOf(table.KindText)
			continue
		}
		values[i] = table.Text(ClassifyHour(v.Time.Hour()))
	}
	return table.NewColumn(ColDayPeriod, table.KindText, values), nil
}

func deriveAirTimeHours(t *table.Table, opts FeatureOptions) (*table.Column, error) {
	air, err := requireKind(t, opts.AirTimeColumn, table.KindInt, table.KindFloat)
	if err != nil {
		return nil, err
	}
	values := make([]table.Value, t.NumRows())
	for i, v := range air.Values {
		switch {
		case v.Null:
			values[i] = table.NullOf(table.KindFloat)
		case v.Kind == table.KindInt:
			values[i] = table.Float(float64(v.Int) / 60)
		default:
			values[i] = table.Float(v.Float / 60)
		}
	}
	return table.NewColumn(ColAirTimeHours, table.KindFloat, values), nil
}

func deriveDelay(t *table.Table, _ FeatureOptions) (*table.Column, error) {
	hours, err := requireKind(t, ColAirTimeHours, table.KindFloat)
	if err != nil {
		return nil, err
	}
	expected, err := requireKind(t, ColExpectedHours, table.KindFloat)
	if err != nil {
		return nil, err
	}
	values := make([]table.Value, t.NumRows())
	for i := range values {
		h, e := hours.Values[i], expected.Values[i]
		if h.Null || e.Null {
			values[i] = table.NullOf(table.KindFloat)
			continue
		}
		values[i] = table.Float(h.Float - e.Float)
	}
	return table.NewColumn(ColDelay, table.KindFloat, values), nil
}

func deriveStatus(t *table.Table, opts FeatureOptions) (*table.Column, error) {
	delay, err := requireKind(t, ColDelay, table.KindFloat)
	if err != nil {
		return nil, err
	}
	values := make([]table.Value, t.NumRows())
	for i, v := range delay.Values {
		if v.Null {
			values[i] = table.NullOf(table.KindText)
			continue
		}
		values[i] = table.Text(FlightStatus(v.Float, opts.DelayThreshold))
	}
	return table.NewColumn(ColStatus, table.KindText, values), nil
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
