// Package faq synchronizes frequently-asked queries surfaced by the query
// log into a dynamic FAQ item store, per SPEC_FULL.md §4.9/§12's
// "Query log → FAQ sync" supplemented feature.
package faq

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kbagents/orchestrator/pkg/orchestration/writer"
)

// Item is one dynamic FAQ entry, derived from a query-log aggregate once
// it crosses the eligibility threshold.
type Item struct {
	NormalizedHash string
	Question       string
	Answer         string
	Frequency      int
	UniqueUsers    int
	FirstSeen      time.Time
	LastSeen       time.Time
	UpdatedAt      time.Time
}

// Store persists FAQ items. A concrete implementation lives behind
// whichever SQL driver pkg/config selects, matching writer.Repository's
// storage-agnostic shape.
type Store interface {
	Upsert(ctx context.Context, item Item) error
}

// AggregateSource supplies eligible query aggregates on demand, satisfied
// by writer.AggregateStore.
type AggregateSource interface {
	EligibleForFAQ(ctx context.Context, minFrequency int) ([]writer.QueryAggregate, error)
}

// Syncer turns eligible query aggregates into FAQ items. It implements
// writer.FAQSyncer, so the Query Log Writer's flush loop can drive it
// directly every FAQSyncEveryNFlushes flushes.
type Syncer struct {
	store  Store
	source AggregateSource
	log    *slog.Logger
}

func NewSyncer(store Store, source AggregateSource, log *slog.Logger) *Syncer {
	return &Syncer{store: store, source: source, log: log}
}

// Sync upserts a FAQ item per eligible aggregate, satisfying
// writer.FAQSyncer. Individual upsert failures are logged and collected,
// not allowed to abort the rest of the batch.
func (s *Syncer) Sync(ctx context.Context, eligible []writer.QueryAggregate) error {
	var errs []error
	for _, agg := range eligible {
		item := Item{
			NormalizedHash: agg.NormalizedHash,
			Question:       agg.SampleQuery,
			Frequency:      agg.Count,
			UniqueUsers:    len(agg.UniqueUsers),
			FirstSeen:      agg.FirstSeen,
			LastSeen:       agg.LastSeen,
			UpdatedAt:      time.Now(),
		}
		if err := s.store.Upsert(ctx, item); err != nil {
			s.log.Error("faq item upsert failed", "hash", agg.NormalizedHash, "error", err)
			errs = append(errs, err)
			continue
		}
	}
	return errors.Join(errs...)
}

// SyncEligible is a standalone entry point (an admin endpoint or a
// one-off CLI invocation) that queries for eligible aggregates itself
// rather than waiting on the Query Log Writer's flush cadence. It
// returns the number of items it attempted to sync.
func (s *Syncer) SyncEligible(ctx context.Context, minFrequency int) (int, error) {
	eligible, err := s.source.EligibleForFAQ(ctx, minFrequency)
	if err != nil {
		return 0, err
	}
	if len(eligible) == 0 {
		return 0, nil
	}
	return len(eligible), s.Sync(ctx, eligible)
}
