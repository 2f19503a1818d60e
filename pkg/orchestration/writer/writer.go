// Package writer implements the two buffered background writers named by
// SPEC_FULL.md §4.9: a Trace Writer and a Query Log Writer. Both share the
// same lock-guarded bounded-queue/periodic-flush shape, grounded on
// hector's pkg/observability span exporter for the "batch, timer-or-full
// triggers flush, best-effort on failure" pattern.
package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Repository is the persistence boundary a buffered writer flushes into.
// Concrete implementations live behind lib/pq and mattn/go-sqlite3 (picked
// by config per SPEC_FULL.md §11).
type Repository[T any] interface {
	BulkInsert(ctx context.Context, records []T) error
}

// Buffered is a generic lock-guarded queue with size- and time-triggered
// flushing, shared by Trace Writer and Query Log Writer.
type Buffered[T any] struct {
	mu        sync.Mutex
	buf       []T
	batchSize int
	repo      Repository[T]
	log       *slog.Logger
	name      string

	onFlush func(ctx context.Context, flushed []T)

	stop chan struct{}
	done chan struct{}
}

// NewBuffered creates a buffered writer. Start must be called to begin the
// periodic flusher.
func NewBuffered[T any](name string, batchSize int, repo Repository[T], log *slog.Logger, onFlush func(ctx context.Context, flushed []T)) *Buffered[T] {
	return &Buffered[T]{
		name: name, batchSize: batchSize, repo: repo, log: log, onFlush: onFlush,
		stop: make(chan struct{}), done: make(chan struct{}),
	}
}

// Start launches the periodic flush loop at the given interval. Call Stop
// at shutdown to cancel it and perform a final flush.
func (b *Buffered[T]) Start(ctx context.Context, interval time.Duration) {
	go func() {
		defer close(b.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.Flush(ctx)
			case <-b.stop:
				b.Flush(ctx)
				return
			}
		}
	}()
}

// Stop cancels the periodic flusher and blocks until its final flush
// completes.
func (b *Buffered[T]) Stop() {
	close(b.stop)
	<-b.done
}

// Enqueue appends record to the buffer. A full buffer triggers an
// immediate flush before the caller returns, providing implicit
// backpressure from the repository.
func (b *Buffered[T]) Enqueue(ctx context.Context, record T) {
	b.mu.Lock()
	b.buf = append(b.buf, record)
	full := len(b.buf) >= b.batchSize
	b.mu.Unlock()

	if full {
		b.Flush(ctx)
	}
}

// Flush drains every pending record and bulk-inserts it. Failures are
// logged and dropped: SPEC_FULL.md §4.9 names this as at-most-once
// delivery, with a dead-letter queue left as a future extension.
func (b *Buffered[T]) Flush(ctx context.Context) {
	b.mu.Lock()
	if len(b.buf) == 0 {
		b.mu.Unlock()
		return
	}
	flushed := b.buf
	b.buf = nil
	b.mu.Unlock()

	if err := b.repo.BulkInsert(ctx, flushed); err != nil {
		b.log.Error("buffered writer flush failed", "writer", b.name, "count", len(flushed), "error", err)
		return
	}
	if b.onFlush != nil {
		b.onFlush(ctx, flushed)
	}
}
