package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrColumnMismatch is returned when metadata names columns the table lacks.
	ErrColumnMismatch = errors.New("column mismatch")

	// ErrCoercion is returned when a value cannot be cast to its target type.
	ErrCoercion = errors.New("coercion failed")

	// ErrInvalidMetadata is returned when the metadata sheet is malformed.
	ErrInvalidMetadata = errors.New("invalid metadata")

	// ErrInvalidOption is returned for an unknown run option value.
	ErrInvalidOption = errors.New("invalid option")
)

// ColumnMismatchError lists the columns referenced by metadata (or by a rule
// parameter) that are absent from the table.
type ColumnMismatchError struct {
	Stage   string
	Missing []string
}

func (e *ColumnMismatchError) Error() string {
	return fmt.Sprintf("%s: column not found in table: %s", e.Stage, strings.Join(e.Missing, ", "))
}

func (e *ColumnMismatchError) Is(target error) bool {
	return target == ErrColumnMismatch
}

// CoercionError reports the first value that failed to cast.
// Row is 0-based within the table being cleaned.
type CoercionError struct {
	Column string
	Row    int
	Value  string
	Target string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("coercion failed: column %q row %d: cannot cast %q to %s", e.Column, e.Row, e.Value, e.Target)
}

func (e *CoercionError) Is(target error) bool {
	return target == ErrCoercion
}

func missingColumns(stage string, missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return &ColumnMismatchError{Stage: stage, Missing: missing}
}
