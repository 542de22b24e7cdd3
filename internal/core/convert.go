package core

// convert.go provides the text parsers behind every type cast.
//
// These functions handle the messy reality of exported flight data:
//   - Integers written as floats ("517.0") by spreadsheet round trips
//   - Thousand separators and currency symbols in numbers
//   - Multiple date and timestamp formats (ISO, US, EU)
//   - Various boolean representations (yes/no, sim/nao, 1/0)
//   - Excel formula prefixes (="value")
//
// All To* functions return ok=false for empty or unparsable input; the caller
// decides whether that becomes a null or a CoercionError.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date and timestamp layouts split by year format for proper 2-digit year handling.
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02",
		"2006/01/02", "2006.01.02",
		"1/2/2006 15:04", "01/02/2006 15:04:05",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}

// normalizeNumber strips currency symbols and thousands separators and turns
// accounting negatives "(123.45)" into "-123.45". Returns "" if the result is
// not a plain number.
func normalizeNumber(s string) string {
	s = CleanCell(s)
	if s == "" {
		return ""
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return ""
	}
	return s
}

// ToFloat parses a number. Scientific notation is accepted.
func ToFloat(s string) (float64, bool) {
	n := normalizeNumber(s)
	if n == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ToInt parses an integer. Integral float text such as "517.0" is accepted;
// "517.5" is not.
func ToInt(s string) (int64, bool) {
	n := normalizeNumber(s)
	if n == "" {
		return 0, false
	}
	if i, err := strconv.ParseInt(n, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(n, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return floatToInt(f)
}

// floatToInt truncates f toward zero. NaN, infinities and values outside
// the int64 range are rejected.
func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || f >= 1<<63 || f < -(1<<63) {
		return 0, false
	}
	return int64(f), true
}

// ToBool accepts true/false, yes/no, sim/nao, t/f, y/n, s/n and 1/0.
func ToBool(s string) (bool, bool) {
	s = strings.ToLower(CleanCell(s))
	switch s {
	case "true", "t", "yes", "y", "sim", "s", "1", "1.0":
		return true, true
	case "false", "f", "no", "n", "nao", "não", "0", "0.0":
		return false, true
	default:
		return false, false
	}
}

// ToDatetime parses a date or timestamp. Values without a zone are UTC.
// 2-digit years are resolved with TwoDigitYearPivot.
func ToDatetime(s string) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), true
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	currentYear := time.Now().Year()
	pivotYear := currentYear + TwoDigitYearPivot

	for _, layout := range twoDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}
