package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/dbpipeline/internal/table"
)

// sqliteMaxVars is SQLite's default SQLITE_MAX_VARIABLE_NUMBER.
const sqliteMaxVars = 32766

// SQLiteStore keeps tables in a single SQLite file.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	batchSize int
}

// OpenSQLite opens (creating if needed) the SQLite file at path and runs
// the store migrations. Use ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string, batchSize int) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one connection: ":memory:" is per connection and SQLite has one writer
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := newSQLiteStore(db, path, batchSize)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	storeLogger(ctx).Debug("sqlite store opened", "path", path)
	return s, nil
}

func newSQLiteStore(db *sql.DB, path string, batchSize int) *SQLiteStore {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SQLiteStore{db: db, path: path, batchSize: batchSize}
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func sqliteType(k table.Kind) string {
	switch k {
	case table.KindInt:
		return "INTEGER"
	case table.KindFloat:
		return "REAL"
	case table.KindDatetime:
		return "TIMESTAMP"
	case table.KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// Save replaces the table t.Name inside one transaction: drop, create,
// batched inserts and catalog upsert. On any error nothing changes.
func (s *SQLiteStore) Save(ctx context.Context, t *table.Table) error {
	if s.db == nil {
		return ErrClosed
	}
	if err := ValidateTableName(t.Name); err != nil {
		return err
	}
	if t.NumCols() == 0 {
		return fmt.Errorf("table %q has no columns", t.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if already committed

	name := quoteIdent(t.Name)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}

	cols := t.Columns()
	defs := make([]string, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c.Name)
		defs[i] = quoted[i] + " " + sqliteType(c.Kind)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	batch := s.batchSize
	if max := sqliteMaxVars / len(cols); batch > max {
		batch = max
	}
	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", name, strings.Join(quoted, ", "))

	for start := 0; start < t.NumRows(); start += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batch
		if end > t.NumRows() {
			end = t.NumRows()
		}

		placeholders := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*len(cols))
		for row := start; row < end; row++ {
			placeholders = append(placeholders, rowPlaceholder)
			for _, c := range cols {
				args = append(args, toDB(c.Values[row], true))
			}
		}
		if _, err := tx.ExecContext(ctx, prefix+strings.Join(placeholders, ", "), args...); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
		}
	}

	catalog, err := json.Marshal(columnInfos(t))
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	// SQLite identifiers ignore case, so the DROP above also removed any
	// entry saved under another spelling of the name.
	if _, err := tx.ExecContext(ctx, `DELETE FROM pipeline_tables WHERE name = ? COLLATE NOCASE`, t.Name); err != nil {
		return fmt.Errorf("update catalog: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO pipeline_tables (name, columns, row_count, saved_at) VALUES (?, ?, ?, ?)`,
		t.Name, string(catalog), t.NumRows(), time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("update catalog: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Fetch reads the named table. Kinds come from the catalog, or from the
// declared column types for tables written by other tools.
func (s *SQLiteStore) Fetch(ctx context.Context, name string) (*table.Table, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if err := ValidateTableName(name); err != nil {
		return nil, err
	}

	cols, fromCatalog, err := s.columns(ctx, name)
	if err != nil {
		return nil, err
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(name))
	if fromCatalog {
		query += " ORDER BY rowid"
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query table: %w", err)
	}
	defer rows.Close()

	return scanTable(name, cols, func(dest []any) (bool, error) {
		if !rows.Next() {
			return false, rows.Err()
		}
		return true, rows.Scan(dest...)
	})
}

// columns resolves the column list of name. The bool reports whether it
// came from the catalog.
func (s *SQLiteStore) columns(ctx context.Context, name string) ([]ColumnInfo, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT columns FROM pipeline_tables WHERE name = ? COLLATE NOCASE`, name).Scan(&raw)
	switch {
	case err == nil:
		var cols []ColumnInfo
		if err := json.Unmarshal([]byte(raw), &cols); err != nil {
			return nil, false, fmt.Errorf("decode catalog for %q: %w", name, err)
		}
		return cols, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("read catalog: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(name)))
	if err != nil {
		return nil, false, fmt.Errorf("read table info: %w", err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			cid       int
			colName   string
			declType  string
			notNull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &colName, &declType, &notNull, &dfltValue, &pk); err != nil {
			return nil, false, fmt.Errorf("scan table info: %w", err)
		}
		cols = append(cols, ColumnInfo{Name: colName, Kind: kindFromDeclType(declType).String()})
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(cols) == 0 {
		return nil, false, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	return cols, false, nil
}

// Tables lists the catalog, sorted by name.
func (s *SQLiteStore) Tables(ctx context.Context) ([]TableInfo, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, columns, row_count, saved_at FROM pipeline_tables ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []TableInfo
	for rows.Next() {
		var (
			info    TableInfo
			cols    string
			savedAt string
		)
		if err := rows.Scan(&info.Name, &cols, &info.Rows, &savedAt); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		if err := json.Unmarshal([]byte(cols), &info.Columns); err != nil {
			return nil, fmt.Errorf("decode catalog for %q: %w", info.Name, err)
		}
		info.SavedAt, _ = parseTime(savedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

// RecordRun appends a run to the run log.
func (s *SQLiteStore) RecordRun(ctx context.Context, run Run) error {
	if s.db == nil {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, table_name, status, rows_in, rows_out, dropped_rows,
			nulled_cells, duplicate_keys, started_at, completed_at, error, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.Table, string(run.Status), run.RowsIn, run.RowsOut, run.DroppedRows,
		run.NulledCells, run.DuplicateKeys,
		run.StartedAt.UTC().Format(timeFormat), run.CompletedAt.UTC().Format(timeFormat),
		nullString(run.Error), nullString(run.Source),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Runs returns up to limit runs, newest first. limit <= 0 means 20.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, table_name, status, rows_in, rows_out, dropped_rows, nulled_cells,
			duplicate_keys, started_at, completed_at, error, source
		FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run                  Run
			id, status           string
			startedAt, completed string
			errMsg, source       sql.NullString
		)
		if err := rows.Scan(&id, &run.Table, &status, &run.RowsIn, &run.RowsOut, &run.DroppedRows,
			&run.NulledCells, &run.DuplicateKeys, &startedAt, &completed, &errMsg, &source); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.ID, _ = uuid.Parse(id)
		run.Status = RunStatus(status)
		run.StartedAt, _ = parseTime(startedAt)
		run.CompletedAt, _ = parseTime(completed)
		run.Error = errMsg.String
		run.Source = source.String
		out = append(out, run)
	}
	return out, rows.Err()
}

// scanTable builds a table from a row iterator. next fills dest and
// reports false once the rows are exhausted.
func scanTable(name string, cols []ColumnInfo, next func(dest []any) (bool, error)) (*table.Table, error) {
	kinds := make([]table.Kind, len(cols))
	values := make([][]table.Value, len(cols))
	for i, c := range cols {
		k, err := table.ParseKind(c.Kind)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		kinds[i] = k
	}

	raw := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}

	for row := 0; ; row++ {
		ok, err := next(dest)
		if err != nil {
			return nil, fmt.Errorf("scan row %d: %w", row, err)
		}
		if !ok {
			break
		}
		for i := range cols {
			v, err := toValue(kinds[i], raw[i])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", row, cols[i].Name, err)
			}
			values[i] = append(values[i], v)
		}
	}

	out, err := table.New(name)
	if err != nil {
		return nil, err
	}
	for i, c := range cols {
		if values[i] == nil {
			values[i] = []table.Value{}
		}
		if err := out.AddColumn(table.NewColumn(c.Name, kinds[i], values[i])); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
