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

// CreateReceipt persists a new receipt and journals a create entry in the
// same transaction. Line items are serialized as a JSON blob.
func (s *Store) CreateReceipt(ctx context.Context, r *model.Receipt) error {
	if err := r.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.SyncStatus = model.StatusPending
	r.RemoteID = ""

	items, err := json.Marshal(r.Items)
	if err != nil {
		return storageErr("create receipt", fmt.Errorf("failed to marshal items: %w", err))
	}

	err = s.withTx(ctx, "create receipt", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO receipts (owner_id, image_ref, merchant, total, receipt_date,
			                      ocr_confidence, processed, items, created_at, updated_at, sync_status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.OwnerID, r.ImageRef, r.Merchant, r.Total.String(), receiptDate(r.Date),
			r.OCRConfidence, r.Processed, string(items), formatTime(now), formatTime(now), string(r.SyncStatus),
		)
		if err != nil {
			return fmt.Errorf("failed to insert receipt: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read receipt id: %w", err)
		}
		r.ID = id

		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to snapshot receipt: %w", err)
		}

		return s.queue.EnqueueTx(ctx, tx, &outbox.Entry{
			Kind:     model.KindReceipt,
			Op:       model.OpCreate,
			RecordID: id,
			Payload:  payload,
		})
	})
	if err != nil {
		return storageErr("create receipt", err)
	}

	s.notifyMutate()
	s.logger.Printf("Created receipt %d (%s)", r.ID, r.ImageRef)
	return nil
}

// ReceiptUpdate is a partial update; nil fields are left untouched.
type ReceiptUpdate struct {
	Merchant      *string
	Total         *decimal.Decimal
	Date          *time.Time
	OCRConfidence *float64
	Processed     *bool
	Items         *[]model.ReceiptItem
}

// UpdateReceipt merges the patch, resets sync status to pending and
// journals an update entry with the merged snapshot.
func (s *Store) UpdateReceipt(ctx context.Context, ownerID, id int64, patch ReceiptUpdate) (*model.Receipt, error) {
	r, err := s.GetReceipt(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if patch.Merchant != nil {
		r.Merchant = *patch.Merchant
	}
	if patch.Total != nil {
		r.Total = *patch.Total
	}
	if patch.Date != nil {
		r.Date = *patch.Date
	}
	if patch.OCRConfidence != nil {
		r.OCRConfidence = *patch.OCRConfidence
	}
	if patch.Processed != nil {
		r.Processed = *patch.Processed
	}
	if patch.Items != nil {
		r.Items = *patch.Items
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	r.UpdatedAt = time.Now().UTC()
	r.SyncStatus = model.StatusPending

	items, err := json.Marshal(r.Items)
	if err != nil {
		return nil, storageErr("update receipt", fmt.Errorf("failed to marshal items: %w", err))
	}

	err = s.withTx(ctx, "update receipt", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE receipts
			SET merchant = ?, total = ?, receipt_date = ?, ocr_confidence = ?,
			    processed = ?, items = ?, updated_at = ?, sync_status = ?
			WHERE id = ? AND owner_id = ?`,
			r.Merchant, r.Total.String(), receiptDate(r.Date), r.OCRConfidence,
			r.Processed, string(items), formatTime(r.UpdatedAt), string(r.SyncStatus),
			id, ownerID,
		)
		if err != nil {
			return fmt.Errorf("failed to update receipt %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}

		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to snapshot receipt: %w", err)
		}

		return s.queue.EnqueueTx(ctx, tx, &outbox.Entry{
			Kind:     model.KindReceipt,
			Op:       model.OpUpdate,
			RecordID: id,
			Payload:  payload,
		})
	})
	if err != nil {
		return nil, storageErr("update receipt", err)
	}

	s.notifyMutate()
	s.logger.Printf("Updated receipt %d", id)
	return r, nil
}

// DeleteReceipt removes the row and, if the receipt was ever synced,
// journals a delete entry carrying its remote id.
func (s *Store) DeleteReceipt(ctx context.Context, ownerID, id int64) error {
	r, err := s.GetReceipt(ctx, ownerID, id)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, "delete receipt", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM receipts WHERE id = ? AND owner_id = ?`, id, ownerID)
		if err != nil {
			return fmt.Errorf("failed to delete receipt %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}

		if r.RemoteID == "" {
			return nil
		}

		payload, err := json.Marshal(outbox.DeletePayload{RemoteID: r.RemoteID})
		if err != nil {
			return fmt.Errorf("failed to encode delete payload: %w", err)
		}

		return s.queue.EnqueueTx(ctx, tx, &outbox.Entry{
			Kind:     model.KindReceipt,
			Op:       model.OpDelete,
			RecordID: id,
			Payload:  payload,
		})
	})
	if err != nil {
		return storageErr("delete receipt", err)
	}

	if r.RemoteID != "" {
		s.notifyMutate()
	}
	s.logger.Printf("Deleted receipt %d", id)
	return nil
}

const receiptColumns = `id, owner_id, remote_id, image_ref, merchant, total, receipt_date,
       ocr_confidence, processed, items, created_at, updated_at, sync_status`

// GetReceipt retrieves a single receipt scoped to its owner.
func (s *Store) GetReceipt(ctx context.Context, ownerID, id int64) (*model.Receipt, error) {
	row := s.db.RawDB().QueryRowContext(ctx,
		`SELECT `+receiptColumns+` FROM receipts WHERE id = ? AND owner_id = ?`, id, ownerID)

	r, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get receipt", err)
	}
	return r, nil
}

// ListReceiptsByDateRange returns the owner's receipts dated within
// [start, end], ordered by date then id.
func (s *Store) ListReceiptsByDateRange(ctx context.Context, ownerID int64, start, end time.Time) ([]*model.Receipt, error) {
	rows, err := s.db.RawDB().QueryContext(ctx, `
		SELECT `+receiptColumns+`
		FROM receipts
		WHERE owner_id = ? AND receipt_date >= ? AND receipt_date <= ?
		ORDER BY receipt_date ASC, id ASC`,
		ownerID, formatDate(start), formatDate(end),
	)
	if err != nil {
		return nil, storageErr("list receipts", err)
	}
	defer rows.Close()

	var receipts []*model.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, storageErr("scan receipt", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan receipts", err)
	}
	return receipts, nil
}

func receiptDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(t), Valid: true}
}

func scanReceipt(row rowScanner) (*model.Receipt, error) {
	var r model.Receipt
	var remoteID, date, items sql.NullString
	var total, createdAt, updatedAt, status string

	err := row.Scan(&r.ID, &r.OwnerID, &remoteID, &r.ImageRef, &r.Merchant, &total, &date,
		&r.OCRConfidence, &r.Processed, &items, &createdAt, &updatedAt, &status)
	if err != nil {
		return nil, err
	}

	if remoteID.Valid {
		r.RemoteID = remoteID.String
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("bad total %q on receipt %d: %w", total, r.ID, err)
	}
	r.Total = d
	if date.Valid {
		r.Date = parseDate(date.String)
	}
	if items.Valid && items.String != "" && items.String != "null" {
		if err := json.Unmarshal([]byte(items.String), &r.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal items on receipt %d: %w", r.ID, err)
		}
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	r.SyncStatus = model.SyncStatus(status)

	return &r, nil
}
