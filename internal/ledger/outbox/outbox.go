// Package outbox implements the durable journal of local mutations that
// have not yet been confirmed by the remote document store.
//
// Entries are append-only: the record store enqueues one entry per local
// mutation inside the same transaction that applies the mutation, and the
// sync engine is the only consumer. An entry leaves the queue only on
// confirmed remote success. Failed attempts are counted; once an entry
// reaches MaxAttempts it stays in place as "failed" and is excluded from
// batches until a caller explicitly retries it.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/db"
	"github.com/centavo-app/centavo/internal/ledger/model"
)

// MaxAttempts is the retry cap per entry. A small fixed cap, not backoff:
// a frequently backgrounded client cannot run timers indefinitely, so
// resolving a failed entry is pushed to an explicit user-triggered retry.
const MaxAttempts = 3

// Entry is one journaled mutation awaiting remote confirmation.
type Entry struct {
	ID            int64
	Kind          model.EntityKind
	Op            model.Operation
	RecordID      int64
	Payload       json.RawMessage
	EnqueuedAt    time.Time
	Attempts      int
	LastAttemptAt *time.Time
	LastError     string
}

// Failed reports whether the entry has exhausted its attempts.
func (e *Entry) Failed() bool {
	return e.Attempts >= MaxAttempts
}

// DeletePayload is the journal payload for delete entries: just the remote
// id to soft-delete. Deletes of never-synced records are not journaled at
// all, so a delete entry always carries a remote id in practice.
type DeletePayload struct {
	RemoteID string `json:"remote_id"`
}

// Summary is the sync-health snapshot surfaced to callers.
type Summary struct {
	Pending int `json:"pending_count"`
	Failed  int `json:"failed_count"`
}

// Queue provides access to the sync_queue table.
type Queue struct {
	db *db.DB
}

// New creates a Queue on top of an opened ledger database.
func New(database *db.DB) *Queue {
	return &Queue{db: database}
}

// EnqueueTx appends an entry within the caller's transaction. The record
// store uses this to pair every local mutation with its journal entry
// atomically; the pair commits or rolls back together.
//
// On success the entry's ID and EnqueuedAt are filled in.
func (q *Queue) EnqueueTx(ctx context.Context, tx *sql.Tx, e *Entry) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("invalid entity kind %q", e.Kind)
	}
	if !e.Op.Valid() {
		return fmt.Errorf("invalid operation %q", e.Op)
	}

	now := time.Now().UTC()
	var payload any
	if e.Payload != nil {
		payload = string(e.Payload)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sync_queue (entity_kind, operation, record_id, payload, enqueued_at, attempts)
		VALUES (?, ?, ?, ?, ?, 0)`,
		string(e.Kind), string(e.Op), e.RecordID, payload, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s %s: %w", e.Op, e.Kind, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read entry id: %w", err)
	}

	e.ID = id
	e.EnqueuedAt = now
	return nil
}

// PeekBatch returns up to limit entries still under the attempt cap,
// oldest first. FIFO order is load-bearing: a create must reach the remote
// before any later update to the same record, otherwise remote state
// desynchronizes.
func (q *Queue) PeekBatch(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := q.db.RawDB().QueryContext(ctx, `
		SELECT id, entity_kind, operation, record_id, payload,
		       enqueued_at, attempts, last_attempt_at, last_error
		FROM sync_queue
		WHERE attempts < ?
		ORDER BY enqueued_at ASC, id ASC
		LIMIT ?`,
		MaxAttempts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// MarkSucceeded removes an entry after confirmed remote success.
// This is the only way an entry ever leaves the queue.
func (q *Queue) MarkSucceeded(ctx context.Context, id int64) error {
	if _, err := q.db.RawDB().ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove entry %d: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed attempt and returns the new attempt count.
// The entry stays queued; once the count reaches MaxAttempts it is excluded
// from PeekBatch until RetryFailed resets it.
func (q *Queue) MarkFailed(ctx context.Context, id int64, cause error) (int, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	_, err := q.db.RawDB().ExecContext(ctx, `
		UPDATE sync_queue
		SET attempts = attempts + 1, last_attempt_at = ?, last_error = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), msg, id,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record failure for entry %d: %w", id, err)
	}

	var attempts int
	err = q.db.RawDB().QueryRowContext(ctx, `SELECT attempts FROM sync_queue WHERE id = ?`, id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("failed to read attempts for entry %d: %w", id, err)
	}
	return attempts, nil
}

// RetryFailed resets the attempt counter on all failed entries so the next
// drain picks them up again. Returns the number of entries reset.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	res, err := q.db.RawDB().ExecContext(ctx, `
		UPDATE sync_queue SET attempts = 0, last_error = NULL
		WHERE attempts >= ?`,
		MaxAttempts,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset entries: %w", err)
	}
	return int(n), nil
}

// ListFailed returns entries at or over the attempt cap, oldest first.
// These stay parked until RetryFailed resets them.
func (q *Queue) ListFailed(ctx context.Context) ([]Entry, error) {
	rows, err := q.db.RawDB().QueryContext(ctx, `
		SELECT id, entity_kind, operation, record_id, payload,
		       enqueued_at, attempts, last_attempt_at, last_error
		FROM sync_queue
		WHERE attempts >= ?
		ORDER BY enqueued_at ASC, id ASC`,
		MaxAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Summary returns the pending/failed counts for sync-health display.
func (q *Queue) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	err := q.db.RawDB().QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN attempts < ? THEN 1 END),
			COUNT(CASE WHEN attempts >= ? THEN 1 END)
		FROM sync_queue`,
		MaxAttempts, MaxAttempts,
	).Scan(&s.Pending, &s.Failed)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize sync queue: %w", err)
	}
	return s, nil
}

// Get retrieves a single entry by id. Returns model.ErrNotFound if it has
// already been removed.
func (q *Queue) Get(ctx context.Context, id int64) (*Entry, error) {
	rows, err := q.db.RawDB().QueryContext(ctx, `
		SELECT id, entity_kind, operation, record_id, payload,
		       enqueued_at, attempts, last_attempt_at, last_error
		FROM sync_queue
		WHERE id = ?`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entry %d: %w", id, err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, model.ErrNotFound
	}
	return &entries[0], nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry

	for rows.Next() {
		var e Entry
		var kind, op string
		var payload, lastAttemptAt, lastError sql.NullString
		var enqueuedAt string

		err := rows.Scan(&e.ID, &kind, &op, &e.RecordID, &payload,
			&enqueuedAt, &e.Attempts, &lastAttemptAt, &lastError)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		e.Kind = model.EntityKind(kind)
		e.Op = model.Operation(op)
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		if t, err := time.Parse(time.RFC3339Nano, enqueuedAt); err == nil {
			e.EnqueuedAt = t
		}
		if lastAttemptAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, lastAttemptAt.String); err == nil {
				e.LastAttemptAt = &t
			}
		}
		if lastError.Valid {
			e.LastError = lastError.String
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, nil
}
