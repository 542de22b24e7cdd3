package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/dbpipeline/internal/config"
	"github.com/JonMunkholm/dbpipeline/internal/logging"
	"github.com/JonMunkholm/dbpipeline/internal/store"
	"github.com/JonMunkholm/dbpipeline/internal/table"
)

// DefaultRunTimeout is the maximum duration of a run when the config sets none.
const DefaultRunTimeout = 10 * time.Minute

// ErrNoInput is returned when a run has neither a reader nor a path for its
// data or metadata.
var ErrNoInput = errors.New("no input given")

// Service runs the pipeline against a store.
type Service struct {
	store   store.Store
	limiter *RunLimiter
	cfg     config.PipelineConfig
	table   string
}

// NewService creates a Service saving into st. A nil cfg uses defaults.
func NewService(st store.Store, cfg *config.Config) *Service {
	var pc config.PipelineConfig
	defaultTable := "nyflights"
	if cfg != nil {
		pc = cfg.Pipeline
		if cfg.Store.Table != "" {
			defaultTable = cfg.Store.Table
		}
	}
	if pc.MaxConcurrent <= 0 {
		pc.MaxConcurrent = DefaultMaxConcurrentRuns
	}
	if pc.MaxWaitTime <= 0 {
		pc.MaxWaitTime = DefaultMaxWaitTime
	}
	if pc.Timeout <= 0 {
		pc.Timeout = DefaultRunTimeout
	}

	return &Service{
		store:   st,
		limiter: NewRunLimiter(pc.MaxConcurrent, pc.MaxWaitTime),
		cfg:     pc,
		table:   defaultTable,
	}
}

// Store returns the underlying store.
func (s *Service) Store() store.Store {
	return s.store
}

// Run executes one pipeline run: load data and metadata, drop rows with
// null keys, clean, check, derive features and save. The outcome is written
// to the run log whether it succeeds or not.
//
// Returns ErrTooManyRuns if no run slot frees up within the configured wait.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	runID := uuid.New()
	runCtx = logging.WithRunID(runCtx, runID.String())

	r := &run{
		id:      runID,
		started: time.Now(),
		req:     req,
		log:     logging.FromContext(runCtx),
	}
	r.log.Info("run started",
		"data", req.DataPath,
		"metadata", req.MetadataPath,
		"source", SourceFromContext(ctx),
		"user_agent", GetUserAgentFromContext(ctx),
	)

	result, err := s.execute(runCtx, r)
	s.record(runCtx, r, err)

	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("run timed out after %s: %w", s.cfg.Timeout, err)
		}
		r.log.Error("run failed", "table", r.table, "phase", r.phase, "error", err)
		r.progress(PhaseFailed, err)
		return nil, err
	}

	r.log.Info("run completed",
		"table", result.Table,
		"rows_in", result.RowsIn,
		"rows_out", result.RowsOut,
		"duration_ms", result.DurationMS,
	)
	r.progress(PhaseComplete, nil)
	return result, nil
}

// run carries the state of one execution between phases.
type run struct {
	id      uuid.UUID
	started time.Time
	req     RunRequest
	log     *slog.Logger

	phase  RunPhase
	table  string
	rows   int
	data   *CountingReader
	result RunResult
}

func (r *run) progress(phase RunPhase, err error) {
	r.phase = phase
	if r.req.OnProgress == nil {
		return
	}
	p := RunProgress{
		RunID: r.id.String(),
		Table: r.table,
		Phase: phase,
		Rows:  r.rows,
	}
	if r.data != nil {
		p.BytesRead = r.data.BytesRead()
		p.BytesTotal = r.data.Total
	}
	if err != nil {
		p.Error = err.Error()
	}
	r.req.OnProgress(p)
}

func (s *Service) execute(ctx context.Context, r *run) (*RunResult, error) {
	r.progress(PhaseStarting, nil)

	policy, err := s.policy(r.req.Coercion)
	if err != nil {
		return nil, err
	}

	raw, md, err := s.load(ctx, r)
	if err != nil {
		return nil, err
	}
	r.table = s.tableName(r.req.TableName, md)
	if err := store.ValidateTableName(r.table); err != nil {
		return nil, err
	}
	r.log = r.log.With("table", r.table)
	r.rows = raw.NumRows()
	r.result.RowsIn = raw.NumRows()
	r.result.BytesRead = r.data.BytesRead()
	r.log.Info("inputs loaded", "rows", raw.NumRows(), "columns", raw.NumCols(), "bytes", r.result.BytesRead)

	r.progress(PhaseCleaning, nil)
	kept, dropped, err := DropNullKeys(raw, md.KeyColumns())
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		r.log.Info("rows with null keys dropped", "dropped", dropped)
	}
	r.result.DroppedRows = dropped

	cleanOpts := DefaultCleanOptions()
	cleanOpts.Policy = policy
	cleanOpts.Logger = r.log
	cleaned, stats, err := DataClean(kept, md, cleanOpts)
	if err != nil {
		return nil, err
	}
	r.rows = cleaned.NumRows()
	r.result.NulledCells = stats.NulledCells

	r.progress(PhaseChecking, nil)
	reports, err := NullCheck(cleaned, md.NullTolerance(), r.log)
	if err != nil {
		return nil, err
	}
	r.result.NullChecks = reports
	dups, err := KeysCheck(cleaned, md.RenamedKeyColumns(), r.log)
	if err != nil {
		return nil, err
	}
	r.result.DuplicateKeys = dups

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.progress(PhaseFeatures, nil)
	featOpts := DefaultFeatureOptions()
	featOpts.Policy = policy
	featOpts.Logger = r.log
	out, err := FeatEng(cleaned, md.CorrectHour(), md.StdStr(), md.FormattedTypes(), featOpts)
	if err != nil {
		return nil, err
	}
	out.Name = r.table

	r.progress(PhaseSaving, nil)
	if err := store.SaveData(ctx, s.store, out); err != nil {
		return nil, err
	}

	r.result.RunID = r.id
	r.result.Table = r.table
	r.result.RowsOut = out.NumRows()
	r.result.Columns = out.Names()
	r.result.Duration = time.Since(r.started)
	r.result.DurationMS = r.result.Duration.Milliseconds()

	result := r.result
	return &result, nil
}

// load reads the data file and the metadata concurrently.
func (s *Service) load(ctx context.Context, r *run) (*table.Table, *Metadata, error) {
	dataPath := r.req.DataPath
	if dataPath == "" {
		dataPath = s.cfg.DataPath
	}
	dataReader, dataSize, closeData, err := openInput(r.req.Data, dataPath, r.req.DataSize)
	if err != nil {
		return nil, nil, fmt.Errorf("data: %w", err)
	}
	defer closeData()

	g, gctx := errgroup.WithContext(ctx)
	r.data = WrapForLoading(gctx, dataReader, dataSize)

	encoding := r.req.Encoding
	if encoding == "" {
		encoding = s.cfg.CSVEncoding
	}
	sheet := r.req.MetadataSheet
	if sheet == "" {
		sheet = s.cfg.MetadataSheet
	}

	r.progress(PhaseLoading, nil)

	var (
		raw *table.Table
		md  *Metadata
	)
	g.Go(func() error {
		t, err := table.ReadCSV(r.data, table.CSVOptions{Encoding: encoding})
		if err != nil {
			return fmt.Errorf("data: %w", err)
		}
		raw = t
		return nil
	})
	g.Go(func() error {
		m, err := s.loadMetadata(r.req, sheet)
		if err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
		md = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return raw, md, nil
}

func (s *Service) loadMetadata(req RunRequest, sheet string) (*Metadata, error) {
	if req.Metadata != nil {
		return ReadMetadata(req.Metadata, req.MetadataFormat, sheet)
	}
	path := req.MetadataPath
	if path == "" {
		path = s.cfg.MetadataPath
	}
	if path == "" {
		return nil, ErrNoInput
	}
	return LoadMetadata(path, sheet)
}

// openInput returns r when set, otherwise opens path. The returned close
// function is always safe to call.
func openInput(r io.Reader, path string, size int64) (io.Reader, int64, func(), error) {
	if r != nil {
		return r, size, func() {}, nil
	}
	if path == "" {
		return nil, 0, func() {}, ErrNoInput
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, func() {}, err
	}
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	return f, size, func() { f.Close() }, nil
}

// tableName picks the request override, then the metadata tabela, then the
// configured default.
func (s *Service) tableName(override string, md *Metadata) string {
	if override != "" {
		return override
	}
	if md != nil && md.Table() != "" {
		return md.Table()
	}
	return s.table
}

func (s *Service) policy(override string) (CoercionPolicy, error) {
	p := override
	if p == "" {
		p = s.cfg.Coercion
	}
	return ParseCoercionPolicy(p)
}

// record writes the run log entry. A failure here is logged, never returned.
func (s *Service) record(ctx context.Context, r *run, runErr error) {
	entry := store.Run{
		ID:            r.id,
		Table:         r.table,
		Status:        store.RunStatusCompleted,
		RowsIn:        r.result.RowsIn,
		RowsOut:       r.result.RowsOut,
		DroppedRows:   r.result.DroppedRows,
		NulledCells:   r.result.NulledCells,
		DuplicateKeys: r.result.DuplicateKeys,
		StartedAt:     r.started,
		CompletedAt:   time.Now(),
		Source:        SourceFromContext(ctx),
	}
	if runErr != nil {
		entry.Status = store.RunStatusFailed
		entry.Error = runErr.Error()
		entry.RowsOut = 0
	}

	// the run context may already be cancelled or timed out
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.RecordRun(recCtx, entry); err != nil {
		r.log.Warn("failed to record run", "error", err)
	}
}

// Fetch returns the named table. A positive limit keeps the first limit rows.
func (s *Service) Fetch(ctx context.Context, name string, limit int) (*table.Table, error) {
	t, err := store.FetchData(ctx, s.store, name)
	if err != nil {
		return nil, err
	}
	if limit > 0 && t.NumRows() > limit {
		t = t.FilterRows(func(row int) bool { return row < limit })
	}
	return t, nil
}

// Tables lists the saved tables.
func (s *Service) Tables(ctx context.Context) ([]store.TableInfo, error) {
	return s.store.Tables(ctx)
}

// Runs returns the most recent runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	return s.store.Runs(ctx, limit)
}

// LimiterStatus returns the current run slot usage.
func (s *Service) LimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// WaitForRuns blocks until all active runs finish or ctx is done.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
