package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StandardizeString uppercases s, folds accented letters to ASCII and drops
// everything outside [A-Z0-9]. "São Paulo - GRU" becomes "SAOPAULOGRU".
// The result is stable: applying it twice gives the same string.
func StandardizeString(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToUpper(folded) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HourOptions tunes CorrectHour.
type HourOptions struct {
	// SplitShortHours reads two-digit values up to 12 as hour digit plus
	// tens of minutes: "12" is "01:20" and "05" is "00:50". Without it they
	// are plain minutes ("12" is "00:12").
	SplitShortHours bool
}

// CorrectHour turns an HHMM clock reading ("517", "517.0", "2400", "5")
// into "HH:MM". "2400" is midnight. Values outside 00:00-23:59 are errors.
func CorrectHour(raw string, opts HourOptions) (string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != float64(int64(f)) {
			return "", fmt.Errorf("invalid hour %q", raw)
		}
		s = strconv.FormatInt(int64(f), 10)
	}
	if s == "" || len(s) > 4 {
		return "", fmt.Errorf("invalid hour %q", raw)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid hour %q", raw)
		}
	}

	if s == "2400" {
		return "00:00", nil
	}

	var hhmm string
	if opts.SplitShortHours && len(s) == 2 {
		if n, _ := strconv.Atoi(s); n <= 12 {
			hhmm = "0" + s + "0"
		}
	}
	if hhmm == "" {
		hhmm = strings.Repeat("0", 4-len(s)) + s
	}

	hh, _ := strconv.Atoi(hhmm[:2])
	mm, _ := strconv.Atoi(hhmm[2:])
	if hh > 23 || mm > 59 {
		return "", fmt.Errorf("invalid hour %q", raw)
	}
	return hhmm[:2] + ":" + hhmm[2:], nil
}

// CombineDateHour places an "HH:MM" clock reading on the calendar day of date.
func CombineDateHour(date time.Time, hhmm string) (time.Time, error) {
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hour %q: %w", hhmm, err)
	}
	y, m, d := date.UTC().Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, time.UTC), nil
}
