package core

// error_messages.go maps technical pipeline errors to user-facing messages
// with codes for support reference.
//
// # Error Codes Reference
//
// # Metadata Errors (META001-META099)
//
//	META001 - Missing metadata column: the sheet lacks cols_originais or tipo_original
//	          Patterns: "missing required column"
//
//	META002 - Unsupported metadata file: not .xlsx, .csv or .yaml
//	          Patterns: "unsupported metadata file"
//
//	META003 - Invalid metadata: duplicates, unknown types or bad tolerances
//	          Patterns: "invalid metadata"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Column mismatch: metadata names a column the data does not have
//	         Patterns: "column not found in table"
//
//	VAL002 - Coercion failed: a value cannot be cast to its declared type
//	         Patterns: "coercion failed"
//
//	VAL003 - Empty file: the data file has no header row
//	         Patterns: "empty csv"
//
//	VAL004 - Invalid CSV: malformed or ragged rows, unsupported encoding
//	         Patterns: "invalid csv", "unsupported encoding"
//
// # Store Errors (STORE001-STORE099)
//
//	STORE001 - Table not found: nothing was saved under that name
//	           Patterns: "table not found"
//
//	STORE002 - Invalid table name: only letters, digits and underscores
//	           Patterns: "invalid table name"
//
//	STORE003 - Store unavailable: the database is locked or unreachable
//	           Patterns: "database is locked", "connection refused"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - System busy: too many pipeline runs in progress
//	         Patterns: "too many concurrent runs"
//
//	RUN002 - Run cancelled or timed out
//	         Patterns: "context canceled", "context deadline exceeded"
//
//	RUN003 - Missing input: no data or metadata file was given
//	         Patterns: "no input given"
//
//	RUN004 - Invalid option: unknown coercion policy or output format
//	         Patterns: "invalid option"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - Upload too large: the request exceeds UPLOAD_MAX_FILE_SIZE
//	         Patterns: "request body too large"
//
//	UPL002 - Not a multipart upload
//	         Patterns: "multipart"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check the logs for the
// original error.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Metadata (META001-META003)
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "The metadata sheet is missing a required column",
			Action:  "Make sure the sheet has cols_originais and tipo_original headers",
			Code:    "META001",
		},
	},
	{
		pattern: "unsupported metadata file",
		msg: UserMessage{
			Message: "Unsupported metadata file",
			Action:  "Provide the metadata as .xlsx, .csv or .yaml",
			Code:    "META002",
		},
	},
	{
		pattern: "invalid metadata",
		msg: UserMessage{
			Message: "The metadata sheet is invalid",
			Action:  "Check for duplicate column names, unknown types and tolerances outside 0-1",
			Code:    "META003",
		},
	},

	// Validation (VAL001-VAL004)
	{
		pattern: "column not found in table",
		msg: UserMessage{
			Message: "A column listed in the metadata is missing from the data",
			Action:  "Verify the data headers match cols_originais exactly",
			Code:    "VAL001",
		},
	},
	{
		pattern: "coercion failed",
		msg: UserMessage{
			Message: "A value could not be converted to its declared type",
			Action:  "Fix the value or run with the null coercion policy",
			Code:    "VAL002",
		},
	},
	{
		pattern: "empty csv",
		msg: UserMessage{
			Message: "The data file is empty",
			Action:  "Upload a CSV file with a header row",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "The data file is not a valid CSV",
			Action:  "Ensure the file is comma-separated with consistent columns",
			Code:    "VAL004",
		},
	},
	{
		pattern: "unsupported encoding",
		msg: UserMessage{
			Message: "The file encoding is not supported",
			Action:  "Use utf-8, latin1 or windows-1252",
			Code:    "VAL004",
		},
	},

	// Store (STORE001-STORE003)
	{
		pattern: "table not found",
		msg: UserMessage{
			Message: "Table not found",
			Action:  "Verify the table name or run the pipeline first",
			Code:    "STORE001",
		},
	},
	{
		pattern: "invalid table name",
		msg: UserMessage{
			Message: "Invalid table name",
			Action:  "Use letters, digits and underscores, starting with a letter",
			Code:    "STORE002",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "The store is busy",
			Action:  "Please try again in a few moments",
			Code:    "STORE003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the store",
			Action:  "Please try again in a few moments",
			Code:    "STORE003",
		},
	},

	// Runs (RUN001-RUN004)
	{
		pattern: "too many concurrent runs",
		msg: UserMessage{
			Message: "System is busy processing other runs",
			Action:  "Please wait a moment and try again",
			Code:    "RUN001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Please try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The run timed out",
			Action:  "Try a smaller file or raise PIPELINE_TIMEOUT",
			Code:    "RUN002",
		},
	},
	{
		pattern: "no input given",
		msg: UserMessage{
			Message: "A data or metadata file is missing",
			Action:  "Provide both files or set PIPELINE_DATA_PATH and PIPELINE_METADATA_PATH",
			Code:    "RUN003",
		},
	},
	{
		pattern: "invalid option",
		msg: UserMessage{
			Message: "An option has an unsupported value",
			Action:  "Use coercion fail or null, and format json or csv",
			Code:    "RUN004",
		},
	},

	// Uploads (UPL001-UPL002)
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "The upload is too large",
			Action:  "Split the file or raise UPLOAD_MAX_FILE_SIZE",
			Code:    "UPL001",
		},
	},
	{
		pattern: "multipart",
		msg: UserMessage{
			Message: "The request is not a valid file upload",
			Action:  "Send the data and metadata files as multipart/form-data",
			Code:    "UPL002",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first matching pattern, or ERR000 when nothing matches.
//
// Example:
//
//	msg := MapError(store.ErrTableNotFound)
//	// msg.Code == "STORE001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern, i.e. is not ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
