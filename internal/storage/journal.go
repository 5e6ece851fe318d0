package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/saaga0h/jeeves-anticipation/internal/feedback"
	"github.com/saaga0h/jeeves-anticipation/internal/learning"
	"github.com/saaga0h/jeeves-anticipation/pkg/postgres"
)

// DefaultJournalBuffer is the number of entries queued before new ones are dropped
const DefaultJournalBuffer = 256

// drainTimeout bounds how long queued entries are flushed after shutdown
const drainTimeout = 5 * time.Second

// JournalSchema creates the journal tables
const JournalSchema = `
CREATE TABLE IF NOT EXISTS feedback_events (
	id               UUID PRIMARY KEY,
	user_id          TEXT NOT NULL,
	kind             TEXT NOT NULL,
	timestamp        TIMESTAMPTZ NOT NULL,
	suggestion_id    TEXT,
	rating           DOUBLE PRECISION,
	original_content TEXT,
	edited_content   TEXT,
	item_kind        TEXT,
	item_id          TEXT,
	comment          TEXT,
	context          JSONB
);

CREATE INDEX IF NOT EXISTS feedback_events_user_time_idx ON feedback_events (user_id, timestamp);

CREATE TABLE IF NOT EXISTS adaptation_records (
	id          BIGSERIAL PRIMARY KEY,
	user_id     TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	dimension   TEXT NOT NULL,
	delta       DOUBLE PRECISION NOT NULL,
	reason      TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	feedback_id TEXT
);

CREATE INDEX IF NOT EXISTS adaptation_records_user_time_idx ON adaptation_records (user_id, timestamp);
`

type journalEntry struct {
	feedback   *feedback.Feedback
	adaptation *learning.AdaptationRecord
}

// Journal writes feedback and adaptation records to Postgres from a single
// background writer. Recording never blocks; entries are dropped when the
// queue is full.
type Journal struct {
	db      postgres.Execer
	userID  string
	queue   chan journalEntry
	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
	logger  *slog.Logger
}

// JournalStats reports writer counters
type JournalStats struct {
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
	Queued  int   `json:"queued"`
}

// NewJournal creates a journal writing to db
func NewJournal(db postgres.Execer, userID string, buffer int, logger *slog.Logger) *Journal {
	if buffer <= 0 {
		buffer = DefaultJournalBuffer
	}
	return &Journal{
		db:     db,
		userID: userID,
		queue:  make(chan journalEntry, buffer),
		logger: logger,
	}
}

// EnsureSchema creates the journal tables if they do not exist
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, JournalSchema); err != nil {
		return fmt.Errorf("%w: create journal schema: %w", ErrPersistence, err)
	}
	return nil
}

// RecordFeedback queues a feedback item. It returns false if the item was dropped.
func (j *Journal) RecordFeedback(f feedback.Feedback) bool {
	f = f.Clone()
	return j.enqueue(journalEntry{feedback: &f})
}

// RecordAdaptation queues an adaptation record. It returns false if the record was dropped.
func (j *Journal) RecordAdaptation(r learning.AdaptationRecord) bool {
	return j.enqueue(journalEntry{adaptation: &r})
}

func (j *Journal) enqueue(e journalEntry) bool {
	select {
	case j.queue <- e:
		return true
	default:
		if n := j.dropped.Add(1); n == 1 || n%100 == 0 {
			j.logger.Warn("Journal queue full, dropping entries", "dropped_total", n)
		}
		return false
	}
}

// Run writes queued entries until ctx is cancelled, then flushes what is left
func (j *Journal) Run(ctx context.Context) error {
	j.logger.Info("Journal writer started", "buffer", cap(j.queue))

	for {
		select {
		case e := <-j.queue:
			j.write(ctx, e)
		case <-ctx.Done():
			j.drain()
			j.logger.Info("Journal writer stopped",
				"written", j.written.Load(),
				"dropped", j.dropped.Load(),
				"failed", j.failed.Load())
			return nil
		}
	}
}

func (j *Journal) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case e := <-j.queue:
			j.write(ctx, e)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, e journalEntry) {
	var err error
	switch {
	case e.feedback != nil:
		err = j.writeFeedback(ctx, *e.feedback)
	case e.adaptation != nil:
		err = j.writeAdaptation(ctx, *e.adaptation)
	}

	if err != nil {
		j.failed.Add(1)
		j.logger.Error("Failed to write journal entry", "error", err)
		return
	}
	j.written.Add(1)
}

func (j *Journal) writeFeedback(ctx context.Context, f feedback.Feedback) error {
	contextJSON, err := json.Marshal(f.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback context: %w", err)
	}

	query := `
		INSERT INTO feedback_events (
			id, user_id, kind, timestamp, suggestion_id, rating,
			original_content, edited_content, item_kind, item_id, comment, context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = j.db.Exec(ctx, query,
		f.ID,
		j.userID,
		string(f.Kind),
		f.Timestamp,
		nullString(f.SuggestionID),
		f.Rating,
		nullString(f.OriginalContent),
		nullString(f.EditedContent),
		nullString(f.ItemKind),
		nullString(f.ItemID),
		nullString(f.Comment),
		contextJSON,
	)
	if err != nil {
		return fmt.Errorf("%w: insert feedback %s: %w", ErrPersistence, f.ID, err)
	}
	return nil
}

func (j *Journal) writeAdaptation(ctx context.Context, r learning.AdaptationRecord) error {
	query := `
		INSERT INTO adaptation_records (
			user_id, timestamp, dimension, delta, reason, confidence, feedback_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := j.db.Exec(ctx, query,
		j.userID,
		r.Timestamp,
		string(r.Dimension),
		r.Delta,
		r.Reason,
		r.Confidence,
		nullString(r.FeedbackID),
	)
	if err != nil {
		return fmt.Errorf("%w: insert adaptation: %w", ErrPersistence, err)
	}
	return nil
}

// Stats returns the writer counters
func (j *Journal) Stats() JournalStats {
	return JournalStats{
		Written: j.written.Load(),
		Dropped: j.dropped.Load(),
		Failed:  j.failed.Load(),
		Queued:  len(j.queue),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
