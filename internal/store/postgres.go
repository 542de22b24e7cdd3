package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/JonMunkholm/dbpipeline/internal/table"
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresStore keeps tables in a PostgreSQL schema (the connection's
// current schema). Rows are loaded with COPY.
type PostgresStore struct {
	pool      *pgxpool.Pool
	batchSize int
}

// OpenPostgres connects a pool to url and runs the store migrations.
func OpenPostgres(ctx context.Context, url string, maxConns, batchSize int) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, batchSize: batchSize}
	if err := s.Migrate(); err != nil {
		pool.Close()
		return nil, err
	}

	storeLogger(ctx).Debug("postgres store opened", "database", poolConfig.ConnConfig.Database)
	return s, nil
}

// Migrate runs all pending migrations through a database/sql handle on
// the same pool.
func (s *PostgresStore) Migrate() error {
	if s.pool == nil {
		return ErrClosed
	}
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()
	return migrate(db, "postgres", "migrations/postgres")
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}

func postgresType(k table.Kind) string {
	switch k {
	case table.KindInt:
		return "BIGINT"
	case table.KindFloat:
		return "DOUBLE PRECISION"
	case table.KindDatetime:
		return "TIMESTAMPTZ"
	case table.KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// Save replaces the table t.Name inside one transaction.
func (s *PostgresStore) Save(ctx context.Context, t *table.Table) error {
	if s.pool == nil {
		return ErrClosed
	}
	if err := ValidateTableName(t.Name); err != nil {
		return err
	}
	if t.NumCols() == 0 {
		return fmt.Errorf("table %q has no columns", t.Name)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	name := quoteIdent(t.Name)
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}

	cols := t.Columns()
	names := make([]string, len(cols))
	defs := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		defs[i] = quoteIdent(c.Name) + " " + postgresType(c.Kind)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{t.Name}, names,
		pgx.CopyFromSlice(t.NumRows(), func(row int) ([]any, error) {
			values := make([]any, len(cols))
			for i, c := range cols {
				values[i] = toDB(c.Values[row], false)
			}
			return values, nil
		}))
	if err != nil {
		return fmt.Errorf("copy rows: %w", err)
	}
	if copied != int64(t.NumRows()) {
		return fmt.Errorf("copy rows: wrote %d of %d", copied, t.NumRows())
	}

	if err := upsertCatalog(ctx, tx, t); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsertCatalog(ctx context.Context, db DBTX, t *table.Table) error {
	catalog, err := json.Marshal(columnInfos(t))
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO pipeline_tables (name, columns, row_count, saved_at) VALUES ($1, $2::jsonb, $3, now())
		ON CONFLICT (name) DO UPDATE SET columns = EXCLUDED.columns, row_count = EXCLUDED.row_count, saved_at = EXCLUDED.saved_at`,
		t.Name, string(catalog), t.NumRows(),
	)
	if err != nil {
		return fmt.Errorf("update catalog: %w", err)
	}
	return nil
}

// Fetch reads the named table.
func (s *PostgresStore) Fetch(ctx context.Context, name string) (*table.Table, error) {
	if s.pool == nil {
		return nil, ErrClosed
	}
	if err := ValidateTableName(name); err != nil {
		return nil, err
	}

	cols, err := pgColumns(ctx, s.pool, name)
	if err != nil {
		return nil, err
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c.Name)
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(name)))
	if err != nil {
		return nil, fmt.Errorf("query table: %w", err)
	}
	defer rows.Close()

	return scanTable(name, cols, func(dest []any) (bool, error) {
		if !rows.Next() {
			return false, rows.Err()
		}
		values, err := rows.Values()
		if err != nil {
			return false, err
		}
		for i, v := range values {
			*(dest[i].(*any)) = normalizePg(v)
		}
		return true, nil
	})
}

// pgColumns resolves the column list from the catalog, falling back to
// information_schema for tables the store did not write.
func pgColumns(ctx context.Context, db DBTX, name string) ([]ColumnInfo, error) {
	var raw string
	err := db.QueryRow(ctx, `SELECT columns::text FROM pipeline_tables WHERE name = $1`, name).Scan(&raw)
	switch {
	case err == nil:
		var cols []ColumnInfo
		if err := json.Unmarshal([]byte(raw), &cols); err != nil {
			return nil, fmt.Errorf("decode catalog for %q: %w", name, err)
		}
		return cols, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	rows, err := db.Query(ctx, `
		SELECT column_name, data_type FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, name)
	if err != nil {
		return nil, fmt.Errorf("read table info: %w", err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var colName, dataType string
		if err := rows.Scan(&colName, &dataType); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		cols = append(cols, ColumnInfo{Name: colName, Kind: kindFromDeclType(dataType).String()})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	return cols, nil
}

// normalizePg maps pgx decoded values onto the plain types toValue reads.
func normalizePg(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(x).String()
	case int16:
		return int64(x)
	default:
		return v
	}
}

// Tables lists the catalog, sorted by name.
func (s *PostgresStore) Tables(ctx context.Context) ([]TableInfo, error) {
	if s.pool == nil {
		return nil, ErrClosed
	}

	rows, err := s.pool.Query(ctx, `SELECT name, columns::text, row_count, saved_at FROM pipeline_tables ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []TableInfo
	for rows.Next() {
		var (
			info TableInfo
			cols string
		)
		if err := rows.Scan(&info.Name, &cols, &info.Rows, &info.SavedAt); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		if err := json.Unmarshal([]byte(cols), &info.Columns); err != nil {
			return nil, fmt.Errorf("decode catalog for %q: %w", info.Name, err)
		}
		info.SavedAt = info.SavedAt.UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// RecordRun appends a run to the run log.
func (s *PostgresStore) RecordRun(ctx context.Context, run Run) error {
	if s.pool == nil {
		return ErrClosed
	}

	var errMsg, source *string
	if run.Error != "" {
		errMsg = &run.Error
	}
	if run.Source != "" {
		source = &run.Source
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_runs (id, table_name, status, rows_in, rows_out, dropped_rows,
			nulled_cells, duplicate_keys, started_at, completed_at, error, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID.String(), run.Table, string(run.Status), run.RowsIn, run.RowsOut, run.DroppedRows,
		run.NulledCells, run.DuplicateKeys, run.StartedAt, run.CompletedAt, errMsg, source,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Runs returns up to limit runs, newest first. limit <= 0 means 20.
func (s *PostgresStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	if s.pool == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, table_name, status, rows_in, rows_out, dropped_rows, nulled_cells,
			duplicate_keys, started_at, completed_at, error, source
		FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run        Run
			id, status string
			started    time.Time
			completed  time.Time
			errMsg     pgtype.Text
			source     pgtype.Text
		)
		if err := rows.Scan(&id, &run.Table, &status, &run.RowsIn, &run.RowsOut, &run.DroppedRows,
			&run.NulledCells, &run.DuplicateKeys, &started, &completed, &errMsg, &source); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.ID, _ = uuid.Parse(id)
		run.Status = RunStatus(status)
		run.StartedAt = started.UTC()
		run.CompletedAt = completed.UTC()
		run.Error = errMsg.String
		run.Source = source.String
		out = append(out, run)
	}
	return out, rows.Err()
}
