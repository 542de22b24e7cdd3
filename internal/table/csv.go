package table

// csv.go reads and writes tables as CSV.
//
// Raw input is messy: Windows exports carry a UTF-8 BOM, files coming from
// older spreadsheet tools are Latin-1, and missing values show up as "NA",
// "NaN" or "null" depending on who wrote them. ReadCSV normalizes all of that
// into an all-text table where missing cells are null. Type coercion happens
// later, driven by metadata.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrEmptyCSV is returned when the input has no header row.
var ErrEmptyCSV = errors.New("empty csv: no header row")

// DefaultNullTokens are cell values read as null (compared after trimming).
var DefaultNullTokens = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "None"}

// CSVOptions controls ReadCSV.
type CSVOptions struct {
	// Name is assigned to the resulting table.
	Name string

	// Encoding of the input: "utf-8" (default), "latin1" or "windows-1252".
	Encoding string

	// Comma is the field delimiter (default ',').
	Comma rune

	// NullTokens overrides DefaultNullTokens when non-nil.
	NullTokens []string
}

// NewDecodingReader wraps r so that it yields UTF-8.
// For UTF-8 input a leading BOM is dropped and invalid sequences become U+FFFD.
func NewDecodingReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
	case "latin1", "latin-1", "iso-8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// ReadCSV reads a CSV with a header row into an all-text table.
func ReadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	decoded, err := NewDecodingReader(r, opts.Encoding)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(decoded)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}

	nullTokens := opts.NullTokens
	if nullTokens == nil {
		nullTokens = DefaultNullTokens
	}
	nulls := make(map[string]bool, len(nullTokens))
	for _, tok := range nullTokens {
		nulls[tok] = true
	}

	names := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := cleanHeader(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("invalid csv header: %w: %q", ErrDuplicateColumn, name)
		}
		seen[name] = true
		names[i] = name
	}

	values := make([][]Value, len(names))
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("invalid csv at line %d: %w", line, err)
		}
		if isBlank(record) {
			continue
		}
		for i, raw := range record {
			cell := strings.TrimSpace(raw)
			if nulls[cell] {
				values[i] = append(values[i], NullOf(KindText))
			} else {
				values[i] = append(values[i], Text(cell))
			}
		}
	}

	cols := make([]*Column, len(names))
	for i, name := range names {
		if values[i] == nil {
			values[i] = []Value{}
		}
		cols[i] = NewColumn(name, KindText, values[i])
	}
	return New(opts.Name, cols...)
}

// WriteCSV writes the table with a header row. Null cells are written empty.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}
	record := make([]string, t.NumCols())
	for i := 0; i < t.NumRows(); i++ {
		for j, v := range t.Row(i) {
			record[j] = v.String()
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// cleanHeader strips whitespace, surrounding quotes and an Excel formula prefix.
func cleanHeader(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	}
	return strings.TrimSpace(strings.Trim(s, `"'`))
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
