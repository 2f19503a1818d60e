package writer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// QueryLogBatchSize, QueryLogFlushInterval and FAQSyncEveryNFlushes are the
// Query Log Writer's fixed parameters, per SPEC_FULL.md §4.9.
const (
	QueryLogBatchSize    = 50
	QueryLogFlushInterval = 10 * time.Second
	FAQSyncEveryNFlushes = 5
	FAQMinFrequency      = 3
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// QueryLogRecord is one logged query, persisted as a row and folded into
// the aggregate table for FAQ discovery.
type QueryLogRecord struct {
	QueryText       string
	NormalizedHash  string
	UserID          string
	SessionID       string
	AgentKind       string
	IntentType      string
	Category        string
	Language        string
	ExecutionTimeMS int64
	Success         bool
	ResponseSummary string
	Timestamp       time.Time
}

// QueryAggregate tracks how often a normalized query has been asked, the
// raw material for FAQ synchronization.
type QueryAggregate struct {
	NormalizedHash string
	SampleQuery    string
	Count          int
	FirstSeen      time.Time
	LastSeen       time.Time
	UniqueUsers    map[string]struct{}
}

// AggregateStore upserts per-query-hash aggregates.
type AggregateStore interface {
	Upsert(ctx context.Context, rec QueryLogRecord) error
	EligibleForFAQ(ctx context.Context, minFrequency int) ([]QueryAggregate, error)
}

// FAQSyncer turns eligible aggregates into dynamic-FAQ items.
type FAQSyncer interface {
	Sync(ctx context.Context, eligible []QueryAggregate) error
}

// QueryLogWriter buffers query-log rows, bulk-inserts them, upserts the
// normalized-query aggregate per record, and periodically synchronizes
// dynamic-FAQ items from frequently-asked aggregates.
type QueryLogWriter struct {
	*Buffered[QueryLogRecord]
	aggregates AggregateStore
	faq        FAQSyncer
	log        *slog.Logger

	flushCount atomic.Int64
	syncMu     sync.Mutex
}

// NewQueryLogWriter creates a QueryLogWriter. faq may be nil, in which case
// FAQ synchronization is skipped entirely.
func NewQueryLogWriter(repo Repository[QueryLogRecord], aggregates AggregateStore, faq FAQSyncer, log *slog.Logger) *QueryLogWriter {
	w := &QueryLogWriter{aggregates: aggregates, faq: faq, log: log}
	w.Buffered = NewBuffered[QueryLogRecord]("query_log", QueryLogBatchSize, repo, log, w.afterFlush)
	return w
}

// Log enqueues rec for background persistence, stamping its normalized
// hash and timestamp.
func (w *QueryLogWriter) Log(ctx context.Context, rec QueryLogRecord) {
	rec.NormalizedHash = normalizeHash(rec.QueryText)
	rec.Timestamp = time.Now()
	w.Enqueue(ctx, rec)
}

func (w *QueryLogWriter) afterFlush(ctx context.Context, flushed []QueryLogRecord) {
	for _, rec := range flushed {
		if err := w.aggregates.Upsert(ctx, rec); err != nil {
			w.log.Error("query aggregate upsert failed", "error", err)
		}
	}

	if w.faq == nil {
		return
	}
	if w.flushCount.Add(1)%FAQSyncEveryNFlushes != 0 {
		return
	}

	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	eligible, err := w.aggregates.EligibleForFAQ(ctx, FAQMinFrequency)
	if err != nil {
		w.log.Error("faq eligibility query failed", "error", err)
		return
	}
	if len(eligible) == 0 {
		return
	}
	if err := w.faq.Sync(ctx, eligible); err != nil {
		w.log.Error("faq sync failed", "error", err)
	}
}

// normalizeHash lowercases, collapses whitespace, and hashes a query so
// that trivially-different phrasings of the same question aggregate
// together.
func normalizeHash(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	normalized = whitespaceRun.ReplaceAllString(normalized, " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
