package store

import (
	"context"
	"fmt"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/model"
	"github.com/shopspring/decimal"
)

// SetBudget inserts or updates the budget for a category. Budgets are
// local-only configuration, so no outbox entry is journaled.
func (s *Store) SetBudget(ctx context.Context, b *model.CategoryBudget) error {
	if err := b.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	b.UpdatedAt = now
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}

	res, err := s.db.RawDB().ExecContext(ctx, `
		INSERT INTO category_budgets (owner_id, name, monthly_budget, color, icon, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, name) DO UPDATE SET
			monthly_budget = excluded.monthly_budget,
			color = excluded.color,
			icon = excluded.icon,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		b.OwnerID, b.Name, b.MonthlyBudget.String(), b.Color, b.Icon, b.Description,
		formatTime(b.CreatedAt), formatTime(now),
	)
	if err != nil {
		return storageErr("set budget", fmt.Errorf("failed to upsert budget %q: %w", b.Name, err))
	}

	if id, err := res.LastInsertId(); err == nil && id > 0 {
		b.ID = id
	}

	s.logger.Printf("Set budget %q = %s", b.Name, b.MonthlyBudget)
	return nil
}

// DeleteBudget removes a category budget. Purely local.
func (s *Store) DeleteBudget(ctx context.Context, ownerID int64, name string) error {
	res, err := s.db.RawDB().ExecContext(ctx,
		`DELETE FROM category_budgets WHERE owner_id = ? AND name = ?`, ownerID, name)
	if err != nil {
		return storageErr("delete budget", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ListBudgets returns the owner's budgets ordered by name.
func (s *Store) ListBudgets(ctx context.Context, ownerID int64) ([]*model.CategoryBudget, error) {
	rows, err := s.db.RawDB().QueryContext(ctx, `
		SELECT id, owner_id, name, monthly_budget, color, icon, description, created_at, updated_at
		FROM category_budgets
		WHERE owner_id = ?
		ORDER BY name ASC`, ownerID,
	)
	if err != nil {
		return nil, storageErr("list budgets", err)
	}
	defer rows.Close()

	var budgets []*model.CategoryBudget
	for rows.Next() {
		var b model.CategoryBudget
		var budget, createdAt, updatedAt string

		err := rows.Scan(&b.ID, &b.OwnerID, &b.Name, &budget, &b.Color, &b.Icon,
			&b.Description, &createdAt, &updatedAt)
		if err != nil {
			return nil, storageErr("scan budget", err)
		}

		d, err := decimal.NewFromString(budget)
		if err != nil {
			return nil, storageErr("scan budget", fmt.Errorf("bad monthly_budget %q: %w", budget, err))
		}
		b.MonthlyBudget = d
		b.CreatedAt = parseTime(createdAt)
		b.UpdatedAt = parseTime(updatedAt)

		budgets = append(budgets, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan budgets", err)
	}

	return budgets, nil
}

// BudgetUsage pairs a budget with live spending over a date range.
// Spent is always derived from the expenses table at call time.
type BudgetUsage struct {
	Budget *model.CategoryBudget
	Spent  decimal.Decimal
}

// BudgetUsageForRange reports every budget with the amount spent in its
// category between start and end (inclusive).
func (s *Store) BudgetUsageForRange(ctx context.Context, ownerID int64, start, end time.Time) ([]BudgetUsage, error) {
	budgets, err := s.ListBudgets(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	totals, err := s.CategoryTotals(ctx, ownerID, &start, &end)
	if err != nil {
		return nil, err
	}

	usage := make([]BudgetUsage, 0, len(budgets))
	for _, b := range budgets {
		usage = append(usage, BudgetUsage{Budget: b, Spent: totals[b.Name]})
	}
	return usage, nil
}
