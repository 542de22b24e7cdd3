package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/dbpipeline/internal/core"
	"github.com/JonMunkholm/dbpipeline/internal/logging"
	"github.com/JonMunkholm/dbpipeline/internal/store"
	"github.com/JonMunkholm/dbpipeline/internal/table"
)

// multipartMemory is the part of an upload kept in memory; the rest spills
// to temporary files.
const multipartMemory = 32 << 20

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status string                `json:"status"`
	Runs   core.RunLimiterStatus `json:"runs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Runs:   s.service.LimiterStatus(),
	})
}

// handleListTables returns the saved tables with their columns and row counts.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.service.Tables(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if tables == nil {
		tables = []store.TableInfo{}
	}
	writeJSON(w, http.StatusOK, tables)
}

// handleFetchTable returns a saved table as JSON, or as CSV with ?format=csv.
// ?limit=N keeps the first N rows.
func (s *Server) handleFetchTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := store.ValidateTableName(name); err != nil {
		respondError(w, r, err)
		return
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format != "" && format != "json" && format != "csv" {
		respondError(w, r, fmt.Errorf("%w: unsupported format %q", core.ErrInvalidOption, format))
		return
	}

	t, err := s.service.Fetch(r.Context(), name, parseIntParam(r, "limit", 0))
	if err != nil {
		respondError(w, r, err)
		return
	}

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
		if err := table.WriteCSV(w, t); err != nil {
			logging.FromContext(r.Context()).Error("csv write error", "table", name, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleListRuns returns the run log, newest first. ?limit=N (default 20).
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.Runs(r.Context(), parseIntParam(r, "limit", 20))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleRunPipeline runs the pipeline on an uploaded data file and metadata
// sheet. Multipart fields:
//
//   - data: the CSV dataset (required)
//   - metadata: the column sheet, .xlsx, .csv or .yaml (required)
//   - table, coercion, encoding, sheet: optional overrides
//
// The run is synchronous; the response is the RunResult.
func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		respondErrorStatus(w, r, fmt.Errorf("invalid multipart form: %w", err), status)
		return
	}
	defer r.MultipartForm.RemoveAll()

	data, dataHeader, err := r.FormFile("data")
	if err != nil {
		respondError(w, r, fmt.Errorf("data: %w", core.ErrNoInput))
		return
	}
	defer data.Close()

	meta, metaHeader, err := r.FormFile("metadata")
	if err != nil {
		respondError(w, r, fmt.Errorf("metadata: %w", core.ErrNoInput))
		return
	}
	defer meta.Close()

	format := core.MetadataFormat(metaHeader.Filename)
	if format == "" {
		respondError(w, r, fmt.Errorf("%w: unsupported metadata file %q", core.ErrInvalidMetadata, metaHeader.Filename))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	logging.FromContext(ctx).Info("pipeline upload received",
		"data", dataHeader.Filename,
		"data_size", dataHeader.Size,
		"metadata", metaHeader.Filename,
	)

	result, err := s.service.Run(ctx, core.RunRequest{
		Data:           data,
		DataSize:       dataHeader.Size,
		Metadata:       meta,
		MetadataFormat: format,
		MetadataSheet:  r.FormValue("sheet"),
		TableName:      r.FormValue("table"),
		Coercion:       r.FormValue("coercion"),
		Encoding:       r.FormValue("encoding"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}
