// Package store implements the record store: durable, owner-scoped CRUD for
// users, expenses, receipts and category budgets, with every local mutation
// atomically paired with its outbox entry.
//
// The store is the only writer of the entity tables. The sync engine
// consumes the outbox and reports outcomes back through RemoteID,
// MarkSynced and MarkSyncFailed; it never touches entity rows directly.
//
// Transactional pairing is the core contract: a row write and its journal
// entry commit or roll back together, so the outbox can never drift out of
// sync with the table it journals. Any engine-level failure inside the pair
// surfaces as *model.StorageError with nothing partially applied.
package store

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/db"
	"github.com/centavo-app/centavo/internal/ledger/model"
	"github.com/centavo-app/centavo/internal/ledger/outbox"
)

// Store owns all entity rows and the write side of the outbox.
type Store struct {
	db     *db.DB
	queue  *outbox.Queue
	logger *log.Logger

	onMutate func()
}

// New creates a Store. The database must be opened and have its schema
// initialized. If logger is nil, a default stderr logger is used.
func New(database *db.DB, queue *outbox.Queue, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &Store{
		db:     database,
		queue:  queue,
		logger: logger,
	}
}

// SetNotify registers a callback invoked after every committed mutation
// that journaled an outbox entry. The sync engine registers its trigger
// here; components stay injectable with no ambient coupling.
func (s *Store) SetNotify(fn func()) {
	s.onMutate = fn
}

// notifyMutate fires the mutation callback, if any. Called only after a
// successful commit.
func (s *Store) notifyMutate() {
	if s.onMutate != nil {
		s.onMutate()
	}
}

// Queue exposes the outbox for consumers that only need read access to
// sync health (Summary) or explicit retry.
func (s *Store) Queue() *outbox.Queue {
	return s.queue
}

// withTx runs fn inside a transaction. Rollback on any error; commit
// failures surface like any other storage failure. op names the operation
// for error reporting.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.RawDB().BeginTx(ctx, nil)
	if err != nil {
		return &model.StorageError{Op: op, Err: err}
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &model.StorageError{Op: op, Err: err}
	}
	return nil
}

// storageErr wraps engine-level failures, passing through the errors the
// API contract defines (not-found, validation).
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == model.ErrNotFound || model.IsValidation(err) {
		return err
	}
	return &model.StorageError{Op: op, Err: err}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func formatDate(t time.Time) string {
	return t.Format(model.DateFormat)
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(model.DateFormat, s)
	return t
}

func timeToNullString(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*t), Valid: true}
}
