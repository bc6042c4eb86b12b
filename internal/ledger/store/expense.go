package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/model"
	"github.com/centavo-app/centavo/internal/ledger/outbox"
	"github.com/shopspring/decimal"
)

// CreateExpense validates and persists a new expense, journaling a create
// entry in the same transaction. On return the expense carries its assigned
// local ID, timestamps and pending sync status.
func (s *Store) CreateExpense(ctx context.Context, e *model.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	e.SyncStatus = model.StatusPending
	e.RemoteID = ""

	err := s.withTx(ctx, "create expense", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO expenses (owner_id, amount, category, merchant, description,
			                      expense_date, recurring, created_at, updated_at, sync_status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.OwnerID, e.Amount.String(), e.Category, e.Merchant, e.Description,
			formatDate(e.Date), e.Recurring, formatTime(now), formatTime(now), string(e.SyncStatus),
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read expense id: %w", err)
		}
		e.ID = id

		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to snapshot expense: %w", err)
		}

		return s.queue.EnqueueTx(ctx, tx, &outbox.Entry{
			Kind:     model.KindExpense,
			Op:       model.OpCreate,
			RecordID: id,
			Payload:  payload,
		})
	})
	if err != nil {
		return storageErr("create expense", err)
	}

	s.notifyMutate()
	s.logger.Printf("Created expense %d (%s %s)", e.ID, e.Category, e.Amount)
	return nil
}

// ExpenseUpdate is a partial update; nil fields are left untouched.
type ExpenseUpdate struct {
	Amount      *decimal.Decimal
	Category    *string
	Merchant    *string
	Description *string
	Date        *time.Time
	Recurring   *bool
}

// UpdateExpense merges the patch into the caller's expense, bumps
// updated_at, resets sync status to pending and journals an update entry
// carrying the merged snapshot. Returns model.ErrNotFound if the record
// does not exist or belongs to another owner.
func (s *Store) UpdateExpense(ctx context.Context, ownerID, id int64, patch ExpenseUpdate) (*model.Expense, error) {
	e, err := s.GetExpense(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if patch.Amount != nil {
		e.Amount = *patch.Amount
	}
	if patch.Category != nil {
		e.Category = *patch.Category
	}
	if patch.Merchant != nil {
		e.Merchant = *patch.Merchant
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.Date != nil {
		e.Date = *patch.Date
	}
	if patch.Recurring != nil {
		e.Recurring = *patch.Recurring
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}

	e.UpdatedAt = time.Now().UTC()
	e.SyncStatus = model.StatusPending

	err = s.withTx(ctx, "update expense", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE expenses
			SET amount = ?, category = ?, merchant = ?, description = ?,
			    expense_date = ?, recurring = ?, updated_at = ?, sync_status = ?
			WHERE id = ? AND owner_id = ?`,
			e.Amount.String(), e.Category, e.Merchant, e.Description,
			formatDate(e.Date), e.Recurring, formatTime(e.UpdatedAt), string(e.SyncStatus),
			id, ownerID,
		)
		if err != nil {
			return fmt.Errorf("failed to update expense %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}

		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to snapshot expense: %w", err)
		}

		return s.queue.EnqueueTx(ctx, tx, &outbox.Entry{
			Kind:     model.KindExpense,
			Op:       model.OpUpdate,
			RecordID: id,
			Payload:  payload,
		})
	})
	if err != nil {
		return nil, storageErr("update expense", err)
	}

	s.notifyMutate()
	s.logger.Printf("Updated expense %d", id)
	return e, nil
}

// DeleteExpense removes the row immediately. If the record was ever synced
// (has a remote_id) a delete entry carrying that remote_id is journaled so
// the remote copy gets soft-deleted; an unsynced record is a pure local
// removal with nothing to reconcile, so no entry is written.
func (s *Store) DeleteExpense(ctx context.Context, ownerID, id int64) error {
	e, err := s.GetExpense(ctx, ownerID, id)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, "delete expense", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND owner_id = ?`, id, ownerID)
		if err != nil {
			return fmt.Errorf("failed to delete expense %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}

		if e.RemoteID == "" {
			return nil
		}

		payload, err := json.Marshal(outbox.DeletePayload{RemoteID: e.RemoteID})
		if err != nil {
			return fmt.Errorf("failed to encode delete payload: %w", err)
		}

		return s.queue.EnqueueTx(ctx, tx, &outbox.Entry{
			Kind:     model.KindExpense,
			Op:       model.OpDelete,
			RecordID: id,
			Payload:  payload,
		})
	})
	if err != nil {
		return storageErr("delete expense", err)
	}

	if e.RemoteID != "" {
		s.notifyMutate()
	}
	s.logger.Printf("Deleted expense %d", id)
	return nil
}

const expenseColumns = `id, owner_id, remote_id, amount, category, merchant,
       description, expense_date, recurring, created_at, updated_at, sync_status`

// GetExpense retrieves a single expense scoped to its owner.
func (s *Store) GetExpense(ctx context.Context, ownerID, id int64) (*model.Expense, error) {
	row := s.db.RawDB().QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND owner_id = ?`, id, ownerID)

	e, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get expense", err)
	}
	return e, nil
}

// ListExpensesByDateRange returns the owner's expenses with a date in
// [start, end], ordered by date then id.
func (s *Store) ListExpensesByDateRange(ctx context.Context, ownerID int64, start, end time.Time) ([]*model.Expense, error) {
	rows, err := s.db.RawDB().QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE owner_id = ? AND expense_date >= ? AND expense_date <= ?
		ORDER BY expense_date ASC, id ASC`,
		ownerID, formatDate(start), formatDate(end),
	)
	if err != nil {
		return nil, storageErr("list expenses", err)
	}
	defer rows.Close()

	return scanExpenses(rows)
}

// ListExpensesByCategory returns the owner's expenses in the given category.
func (s *Store) ListExpensesByCategory(ctx context.Context, ownerID int64, category string) ([]*model.Expense, error) {
	rows, err := s.db.RawDB().QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE owner_id = ? AND category = ?
		ORDER BY expense_date ASC, id ASC`,
		ownerID, category,
	)
	if err != nil {
		return nil, storageErr("list expenses", err)
	}
	defer rows.Close()

	return scanExpenses(rows)
}

// CategoryTotals sums expense amounts per category over an optional date
// range. The result is computed from the table at call time - never cached,
// never stored - and summed with decimal arithmetic so totals stay exact.
func (s *Store) CategoryTotals(ctx context.Context, ownerID int64, start, end *time.Time) (map[string]decimal.Decimal, error) {
	query := `SELECT category, amount FROM expenses WHERE owner_id = ?`
	args := []interface{}{ownerID}

	if start != nil {
		query += ` AND expense_date >= ?`
		args = append(args, formatDate(*start))
	}
	if end != nil {
		query += ` AND expense_date <= ?`
		args = append(args, formatDate(*end))
	}

	rows, err := s.db.RawDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("category totals", err)
	}
	defer rows.Close()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var category, amount string
		if err := rows.Scan(&category, &amount); err != nil {
			return nil, storageErr("category totals", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, storageErr("category totals", fmt.Errorf("bad amount %q: %w", amount, err))
		}
		totals[category] = totals[category].Add(d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("category totals", err)
	}

	return totals, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(row rowScanner) (*model.Expense, error) {
	var e model.Expense
	var remoteID sql.NullString
	var amount, date, createdAt, updatedAt, status string

	err := row.Scan(&e.ID, &e.OwnerID, &remoteID, &amount, &e.Category, &e.Merchant,
		&e.Description, &date, &e.Recurring, &createdAt, &updatedAt, &status)
	if err != nil {
		return nil, err
	}

	if remoteID.Valid {
		e.RemoteID = remoteID.String
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("bad amount %q on expense %d: %w", amount, e.ID, err)
	}
	e.Amount = d
	e.Date = parseDate(date)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	e.SyncStatus = model.SyncStatus(status)

	return &e, nil
}

func scanExpenses(rows *sql.Rows) ([]*model.Expense, error) {
	var expenses []*model.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, storageErr("scan expense", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan expenses", err)
	}
	return expenses, nil
}
