package core

// metadata.go reads the column-metadata sheet that drives cleaning.
//
// The sheet has one row per source column:
//
//	tabela | cols_originais | cols_renamed | tipo_original | tipo_formatted | key | raw_null_tolerance | std_str | corrige_hr
//
// It can be an .xlsx workbook (first sheet unless one is named), a CSV with
// the same header, or a YAML document with the same keys under "columns".

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/dbpipeline/internal/table"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Metadata sheet headers.
const (
	MetaTable         = "tabela"
	MetaOriginal      = "cols_originais"
	MetaRenamed       = "cols_renamed"
	MetaOriginalType  = "tipo_original"
	MetaFormattedType = "tipo_formatted"
	MetaKey           = "key"
	MetaNullTolerance = "raw_null_tolerance"
	MetaStdStr        = "std_str"
	MetaCorrectHour   = "corrige_hr"
)

// ColumnRule is one metadata row.
type ColumnRule struct {
	Table         string
	Original      string
	Renamed       string
	OriginalType  string
	FormattedType string
	Key           bool
	NullTolerance float64
	StdStr        bool
	CorrectHour   bool
}

// Metadata is the parsed metadata sheet, rules in sheet order.
type Metadata struct {
	Rules []ColumnRule
}

// Table returns the first table name declared in the sheet, or "".
func (m *Metadata) Table() string {
	for _, r := range m.Rules {
		if r.Table != "" {
			return r.Table
		}
	}
	return ""
}

// Tables returns the distinct table names in sheet order.
func (m *Metadata) Tables() []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range m.Rules {
		if r.Table != "" && !seen[r.Table] {
			seen[r.Table] = true
			out = append(out, r.Table)
		}
	}
	return out
}

func (m *Metadata) OriginalColumns() []string {
	out := make([]string, len(m.Rules))
	for i, r := range m.Rules {
		out[i] = r.Original
	}
	return out
}

func (m *Metadata) RenamedColumns() []string {
	out := make([]string, len(m.Rules))
	for i, r := range m.Rules {
		out[i] = r.Renamed
	}
	return out
}

// OriginalTypes maps original column names to their raw types.
func (m *Metadata) OriginalTypes() map[string]string {
	out := make(map[string]string, len(m.Rules))
	for _, r := range m.Rules {
		out[r.Original] = r.OriginalType
	}
	return out
}

// FormattedTypes maps renamed columns to their final types.
func (m *Metadata) FormattedTypes() map[string]string {
	out := make(map[string]string, len(m.Rules))
	for _, r := range m.Rules {
		out[r.Renamed] = r.FormattedType
	}
	return out
}

func (m *Metadata) KeyColumns() []string {
	var out []string
	for _, r := range m.Rules {
		if r.Key {
			out = append(out, r.Original)
		}
	}
	return out
}

func (m *Metadata) RenamedKeyColumns() []string {
	var out []string
	for _, r := range m.Rules {
		if r.Key {
			out = append(out, r.Renamed)
		}
	}
	return out
}

// NullTolerance maps renamed columns to the maximum accepted null ratio.
func (m *Metadata) NullTolerance() map[string]float64 {
	out := make(map[string]float64, len(m.Rules))
	for _, r := range m.Rules {
		out[r.Renamed] = r.NullTolerance
	}
	return out
}

// StdStr lists renamed columns that get string standardization.
func (m *Metadata) StdStr() []string {
	var out []string
	for _, r := range m.Rules {
		if r.StdStr {
			out = append(out, r.Renamed)
		}
	}
	return out
}

// CorrectHour lists renamed columns that get hour correction.
func (m *Metadata) CorrectHour() []string {
	var out []string
	for _, r := range m.Rules {
		if r.CorrectHour {
			out = append(out, r.Renamed)
		}
	}
	return out
}

// Validate checks the rules for duplicates, unknown types and bad tolerances.
// All problems are reported together.
func (m *Metadata) Validate() error {
	var errs []string

	if len(m.Rules) == 0 {
		errs = append(errs, "no column rules")
	}

	originals := make(map[string]bool)
	renamed := make(map[string]bool)
	for i, r := range m.Rules {
		row := i + 2 // header is row 1
		if r.Original == "" {
			errs = append(errs, fmt.Sprintf("row %d: %s is empty", row, MetaOriginal))
			continue
		}
		if originals[r.Original] {
			errs = append(errs, fmt.Sprintf("row %d: duplicate %s %q", row, MetaOriginal, r.Original))
		}
		originals[r.Original] = true
		if renamed[r.Renamed] {
			errs = append(errs, fmt.Sprintf("row %d: duplicate %s %q", row, MetaRenamed, r.Renamed))
		}
		renamed[r.Renamed] = true

		if _, ok := LookupType(r.OriginalType); !ok {
			errs = append(errs, fmt.Sprintf("row %d: unknown %s %q", row, MetaOriginalType, r.OriginalType))
		}
		if _, ok := LookupType(r.FormattedType); !ok {
			errs = append(errs, fmt.Sprintf("row %d: unknown %s %q", row, MetaFormattedType, r.FormattedType))
		}
		if r.NullTolerance < 0 || r.NullTolerance > 1 {
			errs = append(errs, fmt.Sprintf("row %d: %s %v must be within 0-1", row, MetaNullTolerance, r.NullTolerance))
		}
		if r.CorrectHour {
			if def, ok := LookupType(r.FormattedType); ok && def.Kind != table.KindDatetime && def.Kind != table.KindText {
				errs = append(errs, fmt.Sprintf("row %d: %s column %q must be formatted as datetime or string, got %q", row, MetaCorrectHour, r.Original, r.FormattedType))
			}
		}
		if r.StdStr && r.CorrectHour {
			errs = append(errs, fmt.Sprintf("row %d: %q cannot be both %s and %s", row, r.Original, MetaStdStr, MetaCorrectHour))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidMetadata, strings.Join(errs, "\n  - "))
	}
	return nil
}

// MetadataFormat returns "xlsx", "csv" or "yaml" from the file extension of
// name, or "" when the extension is not supported.
func MetadataFormat(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return "xlsx"
	case ".csv":
		return "csv"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}

// LoadMetadata reads and validates a metadata file. sheet selects the xlsx
// worksheet; empty means the first one.
func LoadMetadata(path, sheet string) (*Metadata, error) {
	format := MetadataFormat(path)
	if format == "" {
		return nil, fmt.Errorf("%w: unsupported metadata file %q", ErrInvalidMetadata, filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()

	return ReadMetadata(f, format, sheet)
}

// ReadMetadata parses and validates metadata in the given format.
func ReadMetadata(r io.Reader, format, sheet string) (*Metadata, error) {
	var (
		md  *Metadata
		err error
	)
	switch format {
	case "xlsx":
		md, err = readMetadataXLSX(r, sheet)
	case "csv":
		md, err = ReadMetadataCSV(r)
	case "yaml":
		md, err = ReadMetadataYAML(r)
	default:
		return nil, fmt.Errorf("%w: unsupported metadata file format %q", ErrInvalidMetadata, format)
	}
	if err != nil {
		return nil, err
	}

	if err := md.Validate(); err != nil {
		return nil, err
	}
	return md, nil
}

func readMetadataXLSX(r io.Reader, sheet string) (*Metadata, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrInvalidMetadata, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", ErrInvalidMetadata)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrInvalidMetadata, sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q is empty", ErrInvalidMetadata, sheet)
	}
	return ParseMetadataRows(rows[0], rows[1:])
}

// ReadMetadataCSV parses a metadata sheet exported as CSV.
func ReadMetadataCSV(r io.Reader) (*Metadata, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty metadata csv", ErrInvalidMetadata)
	}
	return ParseMetadataRows(records[0], records[1:])
}

type yamlMetadata struct {
	Table   string           `yaml:"tabela"`
	Columns []map[string]any `yaml:"columns"`
}

// ReadMetadataYAML parses metadata written as YAML:
//
//	tabela: nyflights
//	columns:
//	  - cols_originais: dep_time
//	    cols_renamed: datetime_partida
//	    tipo_original: string
//	    tipo_formatted: datetime
//	    corrige_hr: 1
func ReadMetadataYAML(r io.Reader) (*Metadata, error) {
	var doc yamlMetadata
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty metadata yaml", ErrInvalidMetadata)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	header := []string{MetaTable, MetaOriginal, MetaRenamed, MetaOriginalType, MetaFormattedType,
		MetaKey, MetaNullTolerance, MetaStdStr, MetaCorrectHour}
	rows := make([][]string, len(doc.Columns))
	for i, col := range doc.Columns {
		row := make([]string, len(header))
		for j, h := range header {
			if v, ok := col[h]; ok && v != nil {
				row[j] = fmt.Sprint(v)
			}
		}
		if row[0] == "" {
			row[0] = doc.Table
		}
		rows[i] = row
	}
	return ParseMetadataRows(header, rows)
}

// ParseMetadataRows builds Metadata from a header row and data rows.
// cols_originais and tipo_original are required; cols_renamed defaults to
// the original name and tipo_formatted to tipo_original.
func ParseMetadataRows(header []string, rows [][]string) (*Metadata, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(CleanCell(h))] = i
	}
	var missing []string
	for _, required := range []string{MetaOriginal, MetaOriginalType} {
		if _, ok := idx[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required column %s", ErrInvalidMetadata, strings.Join(missing, ", "))
	}

	cell := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return CleanCell(row[i])
	}

	md := &Metadata{}
	for n, row := range rows {
		original := cell(row, MetaOriginal)
		if original == "" && isEmptyRow(row) {
			continue
		}

		rule := ColumnRule{
			Table:         cell(row, MetaTable),
			Original:      original,
			Renamed:       cell(row, MetaRenamed),
			OriginalType:  cell(row, MetaOriginalType),
			FormattedType: cell(row, MetaFormattedType),
			NullTolerance: 1,
		}
		if rule.Renamed == "" {
			rule.Renamed = rule.Original
		}
		if rule.FormattedType == "" {
			rule.FormattedType = rule.OriginalType
		}

		var err error
		if rule.Key, err = parseFlag(cell(row, MetaKey)); err != nil {
			return nil, fmt.Errorf("%w: row %d %s: %v", ErrInvalidMetadata, n+2, MetaKey, err)
		}
		if rule.StdStr, err = parseFlag(cell(row, MetaStdStr)); err != nil {
			return nil, fmt.Errorf("%w: row %d %s: %v", ErrInvalidMetadata, n+2, MetaStdStr, err)
		}
		if rule.CorrectHour, err = parseFlag(cell(row, MetaCorrectHour)); err != nil {
			return nil, fmt.Errorf("%w: row %d %s: %v", ErrInvalidMetadata, n+2, MetaCorrectHour, err)
		}
		if tol := cell(row, MetaNullTolerance); tol != "" {
			f, ok := ToFloat(tol)
			if !ok {
				return nil, fmt.Errorf("%w: row %d %s: invalid number %q", ErrInvalidMetadata, n+2, MetaNullTolerance, tol)
			}
			rule.NullTolerance = f
		}

		md.Rules = append(md.Rules, rule)
	}
	return md, nil
}

// parseFlag reads the 0/1 marker columns. Empty means false.
func parseFlag(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	if b, ok := ToBool(s); ok {
		return b, nil
	}
	if strings.EqualFold(s, "x") {
		return true, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0, nil
	}
	return false, fmt.Errorf("invalid flag %q", s)
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
