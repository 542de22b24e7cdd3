// Package store persists tables by name and reads them back.
//
// Two backends implement Store: SQLiteStore, a single file (the default,
// data/NyflightsDB.db), and PostgresStore for a shared server. Saving a
// table replaces whatever was stored under its name. Column kinds are kept
// in a catalog table so a fetched table equals the saved one.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/dbpipeline/internal/config"
	"github.com/JonMunkholm/dbpipeline/internal/logging"
	"github.com/JonMunkholm/dbpipeline/internal/table"
)

var (
	// ErrTableNotFound is returned when fetching a name that was never saved.
	ErrTableNotFound = errors.New("table not found")

	// ErrInvalidTableName is returned for names that are not plain identifiers
	// or that collide with the store's own bookkeeping tables.
	ErrInvalidTableName = errors.New("invalid table name")

	// ErrClosed is returned when using a store after Close.
	ErrClosed = errors.New("store is closed")
)

// DefaultBatchSize is the number of rows per insert statement.
const DefaultBatchSize = 500

var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reserved names are the store's own tables.
var reserved = map[string]bool{
	"pipeline_tables":  true,
	"pipeline_runs":    true,
	"goose_db_version": true,
}

// Store saves and fetches named tables.
type Store interface {
	// Save replaces the table stored under t.Name.
	Save(ctx context.Context, t *table.Table) error
	// Fetch returns the named table or ErrTableNotFound.
	Fetch(ctx context.Context, name string) (*table.Table, error)
	// Tables lists the saved tables, sorted by name.
	Tables(ctx context.Context) ([]TableInfo, error)
	// RecordRun stores the outcome of a pipeline run.
	RecordRun(ctx context.Context, run Run) error
	// Runs returns the most recent runs, newest first.
	Runs(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

// ColumnInfo is a catalog entry for one column.
type ColumnInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// TableInfo describes a saved table.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
	Rows    int64        `json:"rows"`
	SavedAt time.Time    `json:"saved_at"`
}

// RunStatus is the outcome of a pipeline run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one pipeline execution as recorded in the run log.
type Run struct {
	ID            uuid.UUID `json:"id"`
	Table         string    `json:"table"`
	Status        RunStatus `json:"status"`
	RowsIn        int       `json:"rows_in"`
	RowsOut       int       `json:"rows_out"`
	DroppedRows   int       `json:"dropped_rows"`
	NulledCells   int       `json:"nulled_cells"`
	DuplicateKeys int       `json:"duplicate_keys"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	Error         string    `json:"error,omitempty"`
	// Source identifies who started the run, e.g. "cli" or "http 10.0.0.7".
	Source string `json:"source,omitempty"`
}

// Open picks the backend from cfg.URL: postgres:// and postgresql:// URLs
// use PostgresStore, anything else is a SQLite file path.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	if cfg.IsPostgres() {
		return OpenPostgres(ctx, cfg.URL, cfg.MaxConns, cfg.BatchSize)
	}
	return OpenSQLite(ctx, cfg.URL, cfg.BatchSize)
}

// SaveData persists t under its name, replacing any previous content.
func SaveData(ctx context.Context, st Store, t *table.Table) error {
	log := logging.WithFields(ctx, "table", t.Name)
	start := time.Now()

	if err := st.Save(ctx, t); err != nil {
		log.Error("save failed", "error", err)
		return fmt.Errorf("save %q: %w", t.Name, err)
	}

	log.Info("data saved",
		"rows", t.NumRows(),
		"columns", t.NumCols(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// FetchData reads the named table back.
func FetchData(ctx context.Context, st Store, name string) (*table.Table, error) {
	t, err := st.Fetch(ctx, name)
	if err != nil {
		if !errors.Is(err, ErrTableNotFound) {
			logging.FromContext(ctx).Error("fetch failed", "table", name, "error", err)
		}
		return nil, fmt.Errorf("fetch %q: %w", name, err)
	}
	logging.FromContext(ctx).Debug("data fetched", "table", name, "rows", t.NumRows())
	return t, nil
}

// ValidateTableName checks that name is a plain identifier that the store
// does not use itself.
func ValidateTableName(name string) error {
	if !tableNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	lower := strings.ToLower(name)
	if reserved[lower] || strings.HasPrefix(lower, "sqlite_") || strings.HasPrefix(lower, "pg_") {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidTableName, name)
	}
	return nil
}

// quoteIdent quotes an identifier for both SQLite and PostgreSQL.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func columnInfos(t *table.Table) []ColumnInfo {
	cols := t.Columns()
	out := make([]ColumnInfo, len(cols))
	for i, c := range cols {
		out[i] = ColumnInfo{Name: c.Name, Kind: c.Kind.String()}
	}
	return out
}

// kindFromDeclType maps a declared SQL column type to a kind, following
// SQLite's affinity rules. Used for tables the store did not write.
func kindFromDeclType(decl string) table.Kind {
	d := strings.ToUpper(decl)
	switch {
	case strings.Contains(d, "BOOL"):
		return table.KindBool
	case strings.Contains(d, "INT"):
		return table.KindInt
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"),
		strings.Contains(d, "NUMERIC"), strings.Contains(d, "DECIMAL"):
		return table.KindFloat
	case strings.Contains(d, "DATE"), strings.Contains(d, "TIME"):
		return table.KindDatetime
	default:
		return table.KindText
	}
}

// timeFormat is fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// toValue converts a driver value into a cell of the given kind.
func toValue(kind table.Kind, raw any) (table.Value, error) {
	if raw == nil {
		return table.NullOf(kind), nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	switch kind {
	case table.KindText:
		switch v := raw.(type) {
		case string:
			return table.Text(v), nil
		case time.Time:
			return table.Text(v.UTC().Format(timeFormat)), nil
		default:
			return table.Text(fmt.Sprint(v)), nil
		}

	case table.KindInt:
		switch v := raw.(type) {
		case int64:
			return table.Int(v), nil
		case int32:
			return table.Int(int64(v)), nil
		case int:
			return table.Int(int64(v)), nil
		case float64:
			return table.Int(int64(v)), nil
		case bool:
			if v {
				return table.Int(1), nil
			}
			return table.Int(0), nil
		}

	case table.KindFloat:
		switch v := raw.(type) {
		case float64:
			return table.Float(v), nil
		case float32:
			return table.Float(float64(v)), nil
		case int64:
			return table.Float(float64(v)), nil
		case int32:
			return table.Float(float64(v)), nil
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return table.Float(f), nil
			}
		}

	case table.KindBool:
		switch v := raw.(type) {
		case bool:
			return table.Bool(v), nil
		case int64:
			return table.Bool(v != 0), nil
		case string:
			switch strings.ToLower(v) {
			case "1", "true", "t":
				return table.Bool(true), nil
			case "0", "false", "f":
				return table.Bool(false), nil
			}
		}

	case table.KindDatetime:
		switch v := raw.(type) {
		case time.Time:
			return table.Time(v), nil
		case string:
			if t, ok := parseTime(v); ok {
				return table.Time(t), nil
			}
		case int64:
			return table.Time(time.Unix(v, 0)), nil
		}
	}
	return table.Value{}, fmt.Errorf("cannot read %T value %v as %s", raw, raw, kind)
}

// toDB converts a cell into a driver argument. Times are written as
// RFC 3339 text in SQLite and as timestamptz in PostgreSQL. SQLite turns a
// NaN REAL into NULL, so non-finite floats are written there as text.
func toDB(v table.Value, sqlite bool) any {
	if v.Null {
		return nil
	}
	if sqlite {
		switch {
		case v.Kind == table.KindDatetime:
			return v.Time.UTC().Format(timeFormat)
		case v.Kind == table.KindFloat && (math.IsNaN(v.Float) || math.IsInf(v.Float, 0)):
			return strconv.FormatFloat(v.Float, 'g', -1, 64)
		}
	}
	return v.Any()
}

func storeLogger(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx).With("component", "store")
}
