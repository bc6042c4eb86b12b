// Package model defines the entity types persisted by the centavo ledger
// and the validation rules applied before anything touches storage.
//
// All monetary values use shopspring/decimal so that amounts survive
// round-trips through storage and the remote gateway without float drift.
// Calendar dates (expense date, receipt date) carry no time component and
// are formatted as "2006-01-02".
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the storage format for calendar dates.
const DateFormat = "2006-01-02"

// SyncStatus tracks whether the latest local state of a record has been
// mirrored to the remote document store.
type SyncStatus string

const (
	// StatusPending means the record has local changes not yet confirmed remotely.
	StatusPending SyncStatus = "pending"
	// StatusSynced means the latest local write has been confirmed remotely.
	StatusSynced SyncStatus = "synced"
	// StatusFailed means sync attempts for the record exhausted the retry cap.
	StatusFailed SyncStatus = "failed"
)

// EntityKind identifies which table an outbox entry journals.
// Category budgets are local-only and never appear here.
type EntityKind string

const (
	KindUser    EntityKind = "user"
	KindExpense EntityKind = "expense"
	KindReceipt EntityKind = "receipt"
)

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case KindUser, KindExpense, KindReceipt:
		return true
	}
	return false
}

// Operation is the mutation type recorded in an outbox entry.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// User is the device owner's identity and profile.
//
// Users are never hard-deleted; deactivation flips Active and syncs as an
// update. This keeps the remote document history intact.
type User struct {
	ID          int64      `json:"id"`
	RemoteID    string     `json:"remote_id,omitempty"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name,omitempty"`
	Currency    string     `json:"currency,omitempty"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SyncStatus  SyncStatus `json:"sync_status"`
}

// Validate checks the fields a user row must carry before storage.
func (u *User) Validate() error {
	if u.Email == "" {
		return &ValidationError{Field: "email", Reason: "is required"}
	}
	return nil
}

// Expense is a single spend record owned by a user.
type Expense struct {
	ID          int64           `json:"id"`
	OwnerID     int64           `json:"owner_id"`
	RemoteID    string          `json:"remote_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Merchant    string          `json:"merchant,omitempty"`
	Description string          `json:"description,omitempty"`
	Date        time.Time       `json:"date"`
	Recurring   bool            `json:"recurring"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	SyncStatus  SyncStatus      `json:"sync_status"`
}

// Validate enforces the expense invariants: positive amount, non-empty
// category, and a real calendar date.
func (e *Expense) Validate() error {
	if e.OwnerID == 0 {
		return &ValidationError{Field: "owner_id", Reason: "is required"}
	}
	if !e.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: fmt.Sprintf("must be positive (got %s)", e.Amount)}
	}
	if e.Category == "" {
		return &ValidationError{Field: "category", Reason: "is required"}
	}
	if e.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	return nil
}

// ReceiptItem is one line item parsed from a receipt.
type ReceiptItem struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Receipt is a scanned receipt. It shares the expense lifecycle (pending ->
// synced, hard-delete locally, soft-delete remotely) and adds the OCR
// artifacts. A receipt and the expense created from the same scan are
// independent records; the store does not link them.
type Receipt struct {
	ID            int64           `json:"id"`
	OwnerID       int64           `json:"owner_id"`
	RemoteID      string          `json:"remote_id,omitempty"`
	ImageRef      string          `json:"image_ref"`
	Merchant      string          `json:"merchant,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Date          time.Time       `json:"date"`
	OCRConfidence float64         `json:"ocr_confidence"`
	Processed     bool            `json:"processed"`
	Items         []ReceiptItem   `json:"items,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	SyncStatus    SyncStatus      `json:"sync_status"`
}

// Validate checks receipt fields before storage.
func (r *Receipt) Validate() error {
	if r.OwnerID == 0 {
		return &ValidationError{Field: "owner_id", Reason: "is required"}
	}
	if r.ImageRef == "" {
		return &ValidationError{Field: "image_ref", Reason: "is required"}
	}
	if r.OCRConfidence < 0 || r.OCRConfidence > 1 {
		return &ValidationError{Field: "ocr_confidence", Reason: fmt.Sprintf("must be in [0,1] (got %g)", r.OCRConfidence)}
	}
	return nil
}

// CategoryBudget is a per-category monthly spending limit.
//
// Budgets are local-only configuration: they are never journaled to the
// outbox and carry no sync status. The "spent" figure is never stored;
// callers get it from Store.CategoryTotals so it can't go stale.
type CategoryBudget struct {
	ID            int64           `json:"id"`
	OwnerID       int64           `json:"owner_id"`
	Name          string          `json:"name"`
	MonthlyBudget decimal.Decimal `json:"monthly_budget"`
	Color         string          `json:"color,omitempty"`
	Icon          string          `json:"icon,omitempty"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Validate checks budget fields before storage.
func (b *CategoryBudget) Validate() error {
	if b.OwnerID == 0 {
		return &ValidationError{Field: "owner_id", Reason: "is required"}
	}
	if b.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if b.MonthlyBudget.IsNegative() {
		return &ValidationError{Field: "monthly_budget", Reason: fmt.Sprintf("must not be negative (got %s)", b.MonthlyBudget)}
	}
	return nil
}
