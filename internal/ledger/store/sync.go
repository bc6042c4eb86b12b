package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/centavo-app/centavo/internal/ledger/model"
)

// tableFor maps an entity kind to its table. Category budgets are
// local-only and deliberately absent.
func tableFor(kind model.EntityKind) (string, error) {
	switch kind {
	case model.KindUser:
		return "users", nil
	case model.KindExpense:
		return "expenses", nil
	case model.KindReceipt:
		return "receipts", nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
}

// RemoteID returns the remote id of a record, or "" if the record has not
// been synced yet. Returns model.ErrNotFound if the row no longer exists
// (e.g. it was deleted locally after the outbox entry was written).
func (s *Store) RemoteID(ctx context.Context, kind model.EntityKind, recordID int64) (string, error) {
	table, err := tableFor(kind)
	if err != nil {
		return "", err
	}

	var remoteID sql.NullString
	err = s.db.RawDB().QueryRowContext(ctx,
		`SELECT remote_id FROM `+table+` WHERE id = ?`, recordID).Scan(&remoteID)
	if err == sql.ErrNoRows {
		return "", model.ErrNotFound
	}
	if err != nil {
		return "", storageErr("remote id", err)
	}

	return remoteID.String, nil
}

// MarkSynced records a confirmed remote write: sync_status becomes synced
// and, on first sync, the remote id is stored. A remote id already present
// is never overwritten - it is immutable for the life of the local record.
func (s *Store) MarkSynced(ctx context.Context, kind model.EntityKind, recordID int64, remoteID string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	_, err = s.db.RawDB().ExecContext(ctx, `
		UPDATE `+table+`
		SET sync_status = ?,
		    remote_id = COALESCE(NULLIF(remote_id, ''), ?)
		WHERE id = ?`,
		string(model.StatusSynced), remoteID, recordID,
	)
	if err != nil {
		return storageErr("mark synced", err)
	}
	return nil
}

// MarkSyncFailed flags a record whose outbox entry exhausted its attempts.
// The row's data is untouched; only its sync health changes.
func (s *Store) MarkSyncFailed(ctx context.Context, kind model.EntityKind, recordID int64) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	_, err = s.db.RawDB().ExecContext(ctx,
		`UPDATE `+table+` SET sync_status = ? WHERE id = ?`,
		string(model.StatusFailed), recordID,
	)
	if err != nil {
		return storageErr("mark sync failed", err)
	}
	return nil
}

// ResetFailedSync flips failed records back to pending across all synced
// tables. Paired with outbox.RetryFailed for the explicit user retry path.
func (s *Store) ResetFailedSync(ctx context.Context) error {
	for _, table := range []string{"users", "expenses", "receipts"} {
		_, err := s.db.RawDB().ExecContext(ctx,
			`UPDATE `+table+` SET sync_status = ? WHERE sync_status = ?`,
			string(model.StatusPending), string(model.StatusFailed),
		)
		if err != nil {
			return storageErr("reset failed sync", err)
		}
	}
	return nil
}
