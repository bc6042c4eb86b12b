package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/model"
	"github.com/centavo-app/centavo/internal/ledger/outbox"
)

// CreateUser persists a new user and journals a create entry in the same
// transaction. Called on first launch or explicit sign-up.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	u.Active = true
	u.SyncStatus = model.StatusPending
	u.RemoteID = ""
	if u.Currency == "" {
		u.Currency = "USD"
	}

	err := s.withTx(ctx, "create user", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO users (email, display_name, currency, active, created_at, updated_at, sync_status)
			VALUES (?, ?, ?, 1, ?, ?, ?)`,
			u.Email, u.DisplayName, u.Currency, formatTime(now), formatTime(now), string(u.SyncStatus),
		)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read user id: %w", err)
		}
		u.ID = id

		payload, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed to snapshot user: %w", err)
		}

		return s.queue.EnqueueTx(ctx, tx, &outbox.Entry{
			Kind:     model.KindUser,
			Op:       model.OpCreate,
			RecordID: id,
			Payload:  payload,
		})
	})
	if err != nil {
		return storageErr("create user", err)
	}

	s.notifyMutate()
	s.logger.Printf("Created user %d (%s)", u.ID, u.Email)
	return nil
}

// UserUpdate is a partial profile update; nil fields are left untouched.
type UserUpdate struct {
	DisplayName *string
	Currency    *string
}

// UpdateUser merges the profile patch, resets sync status to pending and
// journals an update entry with the merged snapshot.
func (s *Store) UpdateUser(ctx context.Context, id int64, patch UserUpdate) (*model.User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.DisplayName != nil {
		u.DisplayName = *patch.DisplayName
	}
	if patch.Currency != nil {
		u.Currency = *patch.Currency
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	u.UpdatedAt = time.Now().UTC()
	u.SyncStatus = model.StatusPending

	if err := s.writeUser(ctx, u); err != nil {
		return nil, err
	}

	s.notifyMutate()
	s.logger.Printf("Updated user %d", id)
	return u, nil
}

// DeactivateUser flags the user inactive instead of deleting the row.
// Users are never hard-deleted; the deactivation syncs as an update so the
// remote document survives for auditability.
func (s *Store) DeactivateUser(ctx context.Context, id int64) error {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if !u.Active {
		return nil
	}

	u.Active = false
	u.UpdatedAt = time.Now().UTC()
	u.SyncStatus = model.StatusPending

	if err := s.writeUser(ctx, u); err != nil {
		return err
	}

	s.notifyMutate()
	s.logger.Printf("Deactivated user %d", id)
	return nil
}

// writeUser persists the full user row plus an update journal entry.
func (s *Store) writeUser(ctx context.Context, u *model.User) error {
	err := s.withTx(ctx, "update user", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE users
			SET display_name = ?, currency = ?, active = ?, updated_at = ?, sync_status = ?
			WHERE id = ?`,
			u.DisplayName, u.Currency, u.Active, formatTime(u.UpdatedAt), string(u.SyncStatus), u.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update user %d: %w", u.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}

		payload, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed to snapshot user: %w", err)
		}

		return s.queue.EnqueueTx(ctx, tx, &outbox.Entry{
			Kind:     model.KindUser,
			Op:       model.OpUpdate,
			RecordID: u.ID,
			Payload:  payload,
		})
	})
	return storageErr("update user", err)
}

const userColumns = `id, remote_id, email, display_name, currency, active,
       created_at, updated_at, sync_status`

// GetUser retrieves a user by local id.
func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.RawDB().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUserRow(row)
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.RawDB().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUserRow(row)
}

// EnsureUser returns the user with the given email, creating it on first
// launch if it doesn't exist yet.
func (s *Store) EnsureUser(ctx context.Context, email, displayName string) (*model.User, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if err != model.ErrNotFound {
		return nil, err
	}

	u = &model.User{Email: email, DisplayName: displayName}
	if err := s.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func scanUserRow(row rowScanner) (*model.User, error) {
	var u model.User
	var remoteID sql.NullString
	var createdAt, updatedAt, status string

	err := row.Scan(&u.ID, &remoteID, &u.Email, &u.DisplayName, &u.Currency, &u.Active,
		&createdAt, &updatedAt, &status)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get user", err)
	}

	if remoteID.Valid {
		u.RemoteID = remoteID.String
	}
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	u.SyncStatus = model.SyncStatus(status)

	return &u, nil
}
