// Package sqlstore is the database/sql-backed persistence layer behind the
// Trace Writer and Query Log Writer (SPEC_FULL.md §4.9/§11), grounded on
// hector's pkg/agent/task_service_sql.go dialect-aware query pattern
// (postgres uses $N placeholders, sqlite uses ?).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kbagents/orchestrator/pkg/faq"
	"github.com/kbagents/orchestrator/pkg/orchestration/writer"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS traces (
	trace_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	dag_json TEXT,
	events_json TEXT,
	start_time TIMESTAMP NOT NULL,
	end_time TIMESTAMP NOT NULL,
	total_time_ms BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS query_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query_text TEXT NOT NULL,
	normalized_hash TEXT NOT NULL,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	agent_kind TEXT NOT NULL,
	intent_type TEXT NOT NULL,
	category TEXT NOT NULL,
	language TEXT NOT NULL,
	execution_time_ms BIGINT NOT NULL,
	success BOOLEAN NOT NULL,
	response_summary TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_logs_hash ON query_logs(normalized_hash);

CREATE TABLE IF NOT EXISTS query_aggregates (
	normalized_hash TEXT PRIMARY KEY,
	sample_query TEXT NOT NULL,
	hit_count INTEGER NOT NULL,
	unique_users_json TEXT NOT NULL,
	first_seen TIMESTAMP NOT NULL,
	last_seen TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS faq_items (
	normalized_hash TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	answer TEXT,
	frequency INTEGER NOT NULL,
	unique_users INTEGER NOT NULL,
	first_seen TIMESTAMP NOT NULL,
	last_seen TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Store is a single database/sql handle exercised as the Repository
// implementation both the Trace Writer and Query Log Writer bulk-insert
// into, the AggregateStore behind the Query Log Writer's FAQ-eligibility
// check, and the faq.Store items are upserted into.
type Store struct {
	db      *sql.DB
	dialect string
}

// New wraps db (opened and pooled by config.DBPool) as a Store, creating
// its schema if absent. dialect is "postgres" or "sqlite".
func New(ctx context.Context, db *sql.DB, dialect string) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	schema := schemaSQL
	if dialect == "postgres" {
		// AUTOINCREMENT is SQLite syntax; postgres uses SERIAL.
		schema = strings.Replace(schema, "INTEGER PRIMARY KEY AUTOINCREMENT", "SERIAL PRIMARY KEY", 1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("sqlstore: schema init: %w", err)
	}
	return s, nil
}

func (s *Store) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// BulkInsertTraces backs TraceRepository, the
// writer.Repository[writer.TraceRecord] adapter.
func (s *Store) BulkInsertTraces(ctx context.Context, records []writer.TraceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(
		"INSERT INTO traces (trace_id, session_id, user_id, dag_json, events_json, start_time, end_time, total_time_ms) VALUES (%s, %s, %s, %s, %s, %s, %s, %s)",
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6), s.placeholder(7), s.placeholder(8),
	)

	for _, rec := range records {
		dagJSON, err := json.Marshal(rec.DAG)
		if err != nil {
			return fmt.Errorf("sqlstore: marshal dag: %w", err)
		}
		eventsJSON, err := json.Marshal(rec.Events)
		if err != nil {
			return fmt.Errorf("sqlstore: marshal events: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, rec.TraceID, rec.SessionID, rec.UserID, dagJSON, eventsJSON, rec.StartTime, rec.EndTime, rec.TotalTime.Milliseconds()); err != nil {
			return fmt.Errorf("sqlstore: insert trace %s: %w", rec.TraceID, err)
		}
	}
	return tx.Commit()
}

// BulkInsertQueryLogs backs QueryLogRepository, the
// writer.Repository[writer.QueryLogRecord] adapter.
func (s *Store) BulkInsertQueryLogs(ctx context.Context, records []writer.QueryLogRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(
		"INSERT INTO query_logs (query_text, normalized_hash, user_id, session_id, agent_kind, intent_type, category, language, execution_time_ms, success, response_summary, created_at) VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)",
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6),
		s.placeholder(7), s.placeholder(8), s.placeholder(9), s.placeholder(10), s.placeholder(11), s.placeholder(12),
	)

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, query,
			rec.QueryText, rec.NormalizedHash, rec.UserID, rec.SessionID, rec.AgentKind, rec.IntentType,
			rec.Category, rec.Language, rec.ExecutionTimeMS, rec.Success, rec.ResponseSummary, rec.Timestamp,
		); err != nil {
			return fmt.Errorf("sqlstore: insert query log: %w", err)
		}
	}
	return tx.Commit()
}

// Upsert satisfies writer.AggregateStore.
func (s *Store) Upsert(ctx context.Context, rec writer.QueryLogRecord) error {
	var uniqueJSON string
	var count int
	var firstSeen time.Time

	selectQuery := fmt.Sprintf("SELECT unique_users_json, hit_count, first_seen FROM query_aggregates WHERE normalized_hash = %s", s.placeholder(1))
	err := s.db.QueryRowContext(ctx, selectQuery, rec.NormalizedHash).Scan(&uniqueJSON, &count, &firstSeen)

	users := map[string]struct{}{}
	switch {
	case err == sql.ErrNoRows:
		firstSeen = rec.Timestamp
	case err != nil:
		return fmt.Errorf("sqlstore: select aggregate: %w", err)
	default:
		if err := json.Unmarshal([]byte(uniqueJSON), &users); err != nil {
			return fmt.Errorf("sqlstore: unmarshal unique_users: %w", err)
		}
	}
	if rec.UserID != "" {
		users[rec.UserID] = struct{}{}
	}
	usersJSON, err := json.Marshal(users)
	if err != nil {
		return err
	}

	if count == 0 {
		insertQuery := fmt.Sprintf(
			"INSERT INTO query_aggregates (normalized_hash, sample_query, hit_count, unique_users_json, first_seen, last_seen) VALUES (%s, %s, %s, %s, %s, %s)",
			s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6),
		)
		_, err = s.db.ExecContext(ctx, insertQuery, rec.NormalizedHash, rec.QueryText, 1, usersJSON, firstSeen, rec.Timestamp)
		return err
	}

	updateQuery := fmt.Sprintf(
		"UPDATE query_aggregates SET hit_count = %s, unique_users_json = %s, last_seen = %s WHERE normalized_hash = %s",
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
	)
	_, err = s.db.ExecContext(ctx, updateQuery, count+1, usersJSON, rec.Timestamp, rec.NormalizedHash)
	return err
}

// EligibleForFAQ satisfies writer.AggregateStore.
func (s *Store) EligibleForFAQ(ctx context.Context, minFrequency int) ([]writer.QueryAggregate, error) {
	query := fmt.Sprintf("SELECT normalized_hash, sample_query, hit_count, unique_users_json, first_seen, last_seen FROM query_aggregates WHERE hit_count >= %s", s.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, minFrequency)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []writer.QueryAggregate
	for rows.Next() {
		var agg writer.QueryAggregate
		var usersJSON string
		if err := rows.Scan(&agg.NormalizedHash, &agg.SampleQuery, &agg.Count, &usersJSON, &agg.FirstSeen, &agg.LastSeen); err != nil {
			return nil, err
		}
		agg.UniqueUsers = map[string]struct{}{}
		if err := json.Unmarshal([]byte(usersJSON), &agg.UniqueUsers); err != nil {
			return nil, fmt.Errorf("sqlstore: unmarshal unique_users: %w", err)
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

// UpsertFAQItem backs FAQStore, the faq.Store adapter.
func (s *Store) UpsertFAQItem(ctx context.Context, item faq.Item) error {
	var exists int
	checkQuery := fmt.Sprintf("SELECT 1 FROM faq_items WHERE normalized_hash = %s", s.placeholder(1))
	err := s.db.QueryRowContext(ctx, checkQuery, item.NormalizedHash).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		insertQuery := fmt.Sprintf(
			"INSERT INTO faq_items (normalized_hash, question, answer, frequency, unique_users, first_seen, last_seen, updated_at) VALUES (%s, %s, %s, %s, %s, %s, %s, %s)",
			s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6), s.placeholder(7), s.placeholder(8),
		)
		_, err = s.db.ExecContext(ctx, insertQuery, item.NormalizedHash, item.Question, item.Answer, item.Frequency, item.UniqueUsers, item.FirstSeen, item.LastSeen, item.UpdatedAt)
		return err
	case err != nil:
		return fmt.Errorf("sqlstore: check faq item: %w", err)
	default:
		updateQuery := fmt.Sprintf(
			"UPDATE faq_items SET question = %s, frequency = %s, unique_users = %s, last_seen = %s, updated_at = %s WHERE normalized_hash = %s",
			s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6),
		)
		_, err = s.db.ExecContext(ctx, updateQuery, item.Question, item.Frequency, item.UniqueUsers, item.LastSeen, item.UpdatedAt, item.NormalizedHash)
		return err
	}
}

// TraceRepository adapts Store to writer.Repository[writer.TraceRecord].
type TraceRepository struct{ *Store }

func (r TraceRepository) BulkInsert(ctx context.Context, records []writer.TraceRecord) error {
	return r.BulkInsertTraces(ctx, records)
}

// QueryLogRepository adapts Store to writer.Repository[writer.QueryLogRecord].
type QueryLogRepository struct{ *Store }

func (r QueryLogRepository) BulkInsert(ctx context.Context, records []writer.QueryLogRecord) error {
	return r.BulkInsertQueryLogs(ctx, records)
}

// FAQStore adapts Store to faq.Store.
type FAQStore struct{ *Store }

func (r FAQStore) Upsert(ctx context.Context, item faq.Item) error {
	return r.UpsertFAQItem(ctx, item)
}
