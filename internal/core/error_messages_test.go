package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "missing metadata header",
			err:         fmt.Errorf("%w: missing required column tipo_original", ErrInvalidMetadata),
			wantCode:    "META001",
			wantMessage: "The metadata sheet is missing a required column",
		},
		{
			name:        "unsupported metadata file",
			err:         fmt.Errorf("%w: unsupported metadata file \"meta.txt\"", ErrInvalidMetadata),
			wantCode:    "META002",
			wantMessage: "Unsupported metadata file",
		},
		{
			name:        "invalid metadata",
			err:         fmt.Errorf("%w: row 2: unknown tipo_original \"blob\"", ErrInvalidMetadata),
			wantCode:    "META003",
			wantMessage: "The metadata sheet is invalid",
		},
		{
			name:        "column mismatch",
			err:         &ColumnMismatchError{Stage: "data clean", Missing: []string{"dep_time"}},
			wantCode:    "VAL001",
			wantMessage: "A column listed in the metadata is missing from the data",
		},
		{
			name:        "coercion error",
			err:         &CoercionError{Column: "distance", Row: 3, Value: "abc", Target: "int"},
			wantCode:    "VAL002",
			wantMessage: "A value could not be converted to its declared type",
		},
		{
			name:        "wrapped coercion error",
			err:         fmt.Errorf("run: %w", &CoercionError{Column: "distance", Value: "abc", Target: "int"}),
			wantCode:    "VAL002",
			wantMessage: "A value could not be converted to its declared type",
		},
		{
			name:        "ragged csv",
			err:         errors.New("invalid csv at line 4: wrong number of fields"),
			wantCode:    "VAL004",
			wantMessage: "The data file is not a valid CSV",
		},
		{
			name:        "table not found",
			err:         errors.New("fetch \"voos\": table not found"),
			wantCode:    "STORE001",
			wantMessage: "Table not found",
		},
		{
			name:        "sqlite busy",
			err:         errors.New("database is locked (5) (SQLITE_BUSY)"),
			wantCode:    "STORE003",
			wantMessage: "The store is busy",
		},
		{
			name:        "too many runs",
			err:         ErrTooManyRuns,
			wantCode:    "RUN001",
			wantMessage: "System is busy processing other runs",
		},
		{
			name:        "deadline",
			err:         context.DeadlineExceeded,
			wantCode:    "RUN002",
			wantMessage: "The run timed out",
		},
		{
			name:        "missing metadata input",
			err:         fmt.Errorf("metadata: %w", ErrNoInput),
			wantCode:    "RUN003",
			wantMessage: "A data or metadata file is missing",
		},
		{
			name:        "unknown coercion policy",
			err:         fmt.Errorf("%w: unknown coercion policy %q", ErrInvalidOption, "drop"),
			wantCode:    "RUN004",
			wantMessage: "An option has an unsupported value",
		},
		{
			name:        "upload too large",
			err:         errors.New("invalid multipart form: http: request body too large"),
			wantCode:    "UPL001",
			wantMessage: "The upload is too large",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("TABLE NOT FOUND"),
			wantCode:    "STORE001",
			wantMessage: "Table not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(errors.New("table not found"))

	expected := "Table not found (Code: STORE001). Verify the table name or run the pipeline first"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", ErrCoercion, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := &CoercionError{Column: "air_time", Row: 0, Value: "x", Target: "float"}
		userErr := NewUserError(techErr)

		if userErr.Error() != "A value could not be converted to its declared type" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrCoercion) {
			t.Error("Unwrap() should expose the coercion error")
		}
	})
}
