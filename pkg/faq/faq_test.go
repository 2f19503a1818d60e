package faq

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbagents/orchestrator/pkg/orchestration/writer"
)

type fakeStore struct {
	upserted []Item
	failOn   string
}

func (f *fakeStore) Upsert(ctx context.Context, item Item) error {
	if item.NormalizedHash == f.failOn {
		return errors.New("upsert failed")
	}
	f.upserted = append(f.upserted, item)
	return nil
}

type fakeSource struct {
	aggregates []writer.QueryAggregate
}

func (f *fakeSource) EligibleForFAQ(ctx context.Context, minFrequency int) ([]writer.QueryAggregate, error) {
	var out []writer.QueryAggregate
	for _, a := range f.aggregates {
		if a.Count >= minFrequency {
			out = append(out, a)
		}
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(noopWriter{}, nil))
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestSyncer_Sync_UpsertsEachEligibleAggregate(t *testing.T) {
	store := &fakeStore{}
	syncer := NewSyncer(store, &fakeSource{}, discardLogger())

	eligible := []writer.QueryAggregate{
		{NormalizedHash: "h1", SampleQuery: "how do I reset my password", Count: 5, UniqueUsers: map[string]struct{}{"u1": {}, "u2": {}}},
		{NormalizedHash: "h2", SampleQuery: "what is the refund policy", Count: 3, UniqueUsers: map[string]struct{}{"u3": {}}},
	}

	err := syncer.Sync(context.Background(), eligible)
	require.NoError(t, err)
	require.Len(t, store.upserted, 2)
	assert.Equal(t, "h1", store.upserted[0].NormalizedHash)
	assert.Equal(t, 5, store.upserted[0].Frequency)
	assert.Equal(t, 2, store.upserted[0].UniqueUsers)
}

func TestSyncer_Sync_CollectsErrorsWithoutAbortingBatch(t *testing.T) {
	store := &fakeStore{failOn: "h1"}
	syncer := NewSyncer(store, &fakeSource{}, discardLogger())

	eligible := []writer.QueryAggregate{
		{NormalizedHash: "h1", SampleQuery: "bad one", Count: 4, UniqueUsers: map[string]struct{}{}},
		{NormalizedHash: "h2", SampleQuery: "good one", Count: 4, UniqueUsers: map[string]struct{}{}},
	}

	err := syncer.Sync(context.Background(), eligible)
	assert.Error(t, err)
	require.Len(t, store.upserted, 1)
	assert.Equal(t, "h2", store.upserted[0].NormalizedHash)
}

func TestSyncer_SyncEligible_QueriesSourceThenSyncs(t *testing.T) {
	store := &fakeStore{}
	source := &fakeSource{aggregates: []writer.QueryAggregate{
		{NormalizedHash: "h1", SampleQuery: "popular question", Count: 10, LastSeen: time.Now()},
		{NormalizedHash: "h2", SampleQuery: "rare question", Count: 1},
	}}
	syncer := NewSyncer(store, source, discardLogger())

	n, err := syncer.SyncEligible(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, store.upserted, 1)
	assert.Equal(t, "h1", store.upserted[0].NormalizedHash)
}

func TestSyncer_SyncEligible_NoEligibleAggregatesIsNoop(t *testing.T) {
	store := &fakeStore{}
	source := &fakeSource{aggregates: []writer.QueryAggregate{
		{NormalizedHash: "h1", Count: 1},
	}}
	syncer := NewSyncer(store, source, discardLogger())

	n, err := syncer.SyncEligible(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, store.upserted)
}
