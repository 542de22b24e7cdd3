package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err), or respondErrorStatus with a fixed code
//  3. Error is mapped via core.MapError to get a user-facing message
//  4. Technical error and context are logged with the request ID
//  5. The user message is returned as JSON

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/dbpipeline/internal/core"
	"github.com/JonMunkholm/dbpipeline/internal/logging"
	"github.com/JonMunkholm/dbpipeline/internal/store"
	"github.com/JonMunkholm/dbpipeline/internal/table"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError picks the status code from err and writes the JSON error.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	respondErrorStatus(w, r, err, statusFor(err))
}

// respondErrorStatus logs the technical error server-side and returns the
// user-facing message.
func respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	writeJSON(w, statusCode, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusFor maps pipeline and store errors to HTTP status codes.
func statusFor(err error) int {
	var parseErr *csv.ParseError
	switch {
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, store.ErrInvalidTableName),
		errors.Is(err, core.ErrInvalidMetadata),
		errors.Is(err, core.ErrInvalidOption),
		errors.Is(err, core.ErrNoInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrColumnMismatch),
		errors.Is(err, core.ErrCoercion),
		errors.Is(err, table.ErrEmptyCSV),
		errors.Is(err, table.ErrDuplicateColumn),
		errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	}

	code := core.MapError(err).Code
	if strings.HasPrefix(code, "VAL") || strings.HasPrefix(code, "META") {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
