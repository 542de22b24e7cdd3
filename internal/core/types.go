package core

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// RunPhase indicates the current stage of a pipeline run.
type RunPhase string

const (
	PhaseStarting RunPhase = "starting"
	PhaseLoading  RunPhase = "loading"
	PhaseCleaning RunPhase = "cleaning"
	PhaseChecking RunPhase = "checking"
	PhaseFeatures RunPhase = "features"
	PhaseSaving   RunPhase = "saving"
	PhaseComplete RunPhase = "complete"
	PhaseFailed   RunPhase = "failed"
)

// RunProgress represents the current state of a pipeline run.
type RunProgress struct {
	RunID string
	Table string
	Phase RunPhase
	Rows  int
	Error string // Non-empty if Phase is PhaseFailed

	// Byte-based progress while the data file is being read.
	BytesRead  int64
	BytesTotal int64
}

// Percent returns the load progress as a percentage (0-100). After loading
// it is 100; without a known size it is 0.
func (p RunProgress) Percent() int {
	switch p.Phase {
	case PhaseStarting, PhaseLoading:
	default:
		return 100
	}
	if p.BytesTotal > 0 {
		pct := int((p.BytesRead * 100) / p.BytesTotal)
		if pct > 100 {
			pct = 100
		}
		return pct
	}
	return 0
}

// ProgressCallback is called at every phase change of a run.
type ProgressCallback func(RunProgress)

// RunRequest describes one pipeline execution. Readers take precedence over
// paths; a nil reader falls back to the matching path.
type RunRequest struct {
	DataPath string
	Data     io.Reader
	DataSize int64 // Optional, for progress

	MetadataPath   string
	Metadata       io.Reader
	MetadataFormat string // "xlsx", "csv" or "yaml"; required with Metadata
	MetadataSheet  string

	// TableName overrides the metadata tabela and the configured default.
	TableName string

	// Coercion is "fail" or "null"; empty uses the configured policy.
	Coercion string

	// Encoding of the data file; empty uses the configured encoding.
	Encoding string

	OnProgress ProgressCallback
}

// RunResult contains the outcome of a successful run.
type RunResult struct {
	RunID         uuid.UUID     `json:"run_id"`
	Table         string        `json:"table"`
	RowsIn        int           `json:"rows_in"`
	RowsOut       int           `json:"rows_out"`
	DroppedRows   int           `json:"dropped_rows"`
	NulledCells   int           `json:"nulled_cells"`
	DuplicateKeys int           `json:"duplicate_keys"`
	Columns       []string      `json:"columns"`
	NullChecks    []NullReport  `json:"null_checks"`
	BytesRead     int64         `json:"bytes_read"`
	Duration      time.Duration `json:"-"`
	DurationMS    int64         `json:"duration_ms"`
}
