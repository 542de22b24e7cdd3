package core

import (
	"testing"
	"time"
)

func TestStandardizeString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"São Paulo - GRU", "SAOPAULOGRU"},
		{"United Air Lines Inc.", "UNITEDAIRLINESINC"},
		{"ewr", "EWR"},
		{"Conceição", "CONCEICAO"},
		{"N14228", "N14228"},
		{"  ", ""},
		{"", ""},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := StandardizeString(tt.input)
			if got != tt.want {
				t.Errorf("StandardizeString(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if again := StandardizeString(got); again != got {
				t.Errorf("StandardizeString not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestCorrectHour(t *testing.T) {
	split := HourOptions{SplitShortHours: true}
	plain := HourOptions{}

	tests := []struct {
		name    string
		input   string
		opts    HourOptions
		want    string
		wantErr bool
	}{
		{name: "four digits", input: "1517", opts: plain, want: "15:17"},
		{name: "three digits", input: "517", opts: plain, want: "05:17"},
		{name: "float text", input: "517.0", opts: plain, want: "05:17"},
		{name: "one digit", input: "5", opts: plain, want: "00:05"},
		{name: "two digits plain", input: "12", opts: plain, want: "00:12"},
		{name: "two digits split", input: "12", opts: split, want: "01:20"},
		{name: "two digits split small", input: "05", opts: split, want: "00:50"},
		{name: "two digits above 12 split", input: "45", opts: split, want: "00:45"},
		{name: "midnight as 2400", input: "2400", opts: plain, want: "00:00"},
		{name: "midnight as 2400 float", input: "2400.0", opts: split, want: "00:00"},
		{name: "whitespace", input: " 830 ", opts: plain, want: "08:30"},
		{name: "empty", input: "", opts: plain, wantErr: true},
		{name: "hour out of range", input: "2517", opts: plain, wantErr: true},
		{name: "minute out of range", input: "1275", opts: plain, wantErr: true},
		{name: "fractional", input: "517.5", opts: plain, wantErr: true},
		{name: "too long", input: "12345", opts: plain, wantErr: true},
		{name: "letters", input: "5h17", opts: plain, wantErr: true},
		{name: "negative", input: "-517", opts: plain, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CorrectHour(tt.input, tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Errorf("CorrectHour(%q) = %q, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CorrectHour(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("CorrectHour(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCombineDateHour(t *testing.T) {
	date := time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := CombineDateHour(date, "05:17")
	if err != nil {
		t.Fatalf("CombineDateHour() unexpected error: %v", err)
	}
	want := time.Date(2013, 1, 1, 5, 17, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("CombineDateHour() = %v, want %v", got, want)
	}

	if _, err := CombineDateHour(date, "5h17"); err == nil {
		t.Error("CombineDateHour() with bad clock should fail")
	}
}
