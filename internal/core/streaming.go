package core

// streaming.go provides the reader wrappers used while loading run inputs.
//
//   - CountingReader: tracks bytes read for progress reporting
//   - contextReader: stops a long CSV parse when the run is cancelled
//
// BOM stripping and charset decoding live in table.NewDecodingReader.

import (
	"context"
	"io"
	"sync/atomic"
)

// CountingReader wraps an io.Reader to track bytes read. BytesRead is safe
// to call from another goroutine.
type CountingReader struct {
	reader io.Reader
	read   atomic.Int64
	Total  int64 // If known (0 if unknown)
}

// NewCountingReader creates a counting reader with optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (r *CountingReader) BytesRead() int64 {
	return r.read.Load()
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	pct := int(r.BytesRead() * 100 / r.Total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// contextReader fails reads once ctx is done.
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.reader.Read(p)
}

// WrapForLoading makes r cancellable with ctx and counts the bytes read.
func WrapForLoading(ctx context.Context, r io.Reader, totalSize int64) *CountingReader {
	return NewCountingReader(&contextReader{ctx: ctx, reader: r}, totalSize)
}
