package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validExpense() *Expense {
	return &Expense{
		OwnerID:  1,
		Amount:   decimal.RequireFromString("12.50"),
		Category: "food",
		Date:     time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
	}
}

func TestExpenseValidate(t *testing.T) {
	if err := validExpense().Validate(); err != nil {
		t.Fatalf("valid expense rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Expense)
		field  string
	}{
		{"missing owner", func(e *Expense) { e.OwnerID = 0 }, "owner_id"},
		{"zero amount", func(e *Expense) { e.Amount = decimal.Zero }, "amount"},
		{"negative amount", func(e *Expense) { e.Amount = decimal.RequireFromString("-5") }, "amount"},
		{"missing category", func(e *Expense) { e.Category = "" }, "category"},
		{"missing date", func(e *Expense) { e.Date = time.Time{} }, "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validExpense()
			tt.mutate(e)

			err := e.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestReceiptValidate(t *testing.T) {
	r := &Receipt{
		OwnerID:       1,
		ImageRef:      "img://scan-1",
		Total:         decimal.RequireFromString("34.20"),
		OCRConfidence: 0.95,
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("valid receipt rejected: %v", err)
	}

	r.OCRConfidence = 1.5
	if err := r.Validate(); err == nil {
		t.Error("expected error for confidence > 1")
	}

	r.OCRConfidence = 0.5
	r.ImageRef = ""
	if err := r.Validate(); err == nil {
		t.Error("expected error for missing image_ref")
	}

	r.ImageRef = "img://scan-1"
	r.OwnerID = 0
	if err := r.Validate(); err == nil {
		t.Error("expected error for missing owner")
	}
}

func TestUserValidate(t *testing.T) {
	u := &User{Email: "ada@example.com"}
	if err := u.Validate(); err != nil {
		t.Fatalf("valid user rejected: %v", err)
	}

	u.Email = ""
	if err := u.Validate(); err == nil {
		t.Error("expected error for missing email")
	}
}

func TestCategoryBudgetValidate(t *testing.T) {
	b := &CategoryBudget{OwnerID: 1, Name: "food", MonthlyBudget: decimal.RequireFromString("300")}
	if err := b.Validate(); err != nil {
		t.Fatalf("valid budget rejected: %v", err)
	}

	// Zero is a legal limit; it means "flag everything".
	b.MonthlyBudget = decimal.Zero
	if err := b.Validate(); err != nil {
		t.Errorf("zero budget rejected: %v", err)
	}

	b.MonthlyBudget = decimal.RequireFromString("-1")
	if err := b.Validate(); err == nil {
		t.Error("expected error for negative budget")
	}

	b.MonthlyBudget = decimal.RequireFromString("300")
	b.Name = ""
	if err := b.Validate(); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestEntityKindValid(t *testing.T) {
	for _, k := range []EntityKind{KindUser, KindExpense, KindReceipt} {
		if !k.Valid() {
			t.Errorf("expected %q to be valid", k)
		}
	}
	if EntityKind("budget").Valid() {
		t.Error("budgets must not be a journaled kind")
	}
}

func TestOperationValid(t *testing.T) {
	for _, op := range []Operation{OpCreate, OpUpdate, OpDelete} {
		if !op.Valid() {
			t.Errorf("expected %q to be valid", op)
		}
	}
	if Operation("upsert").Valid() {
		t.Error("expected upsert to be invalid")
	}
}

func TestIsValidation(t *testing.T) {
	err := validExpense().Validate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := validExpense()
	e.Category = ""
	if !IsValidation(e.Validate()) {
		t.Error("expected IsValidation to report true")
	}
	if IsValidation(ErrNotFound) {
		t.Error("ErrNotFound is not a validation error")
	}
}
