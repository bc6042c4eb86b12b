package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/model"
	"github.com/centavo-app/centavo/internal/ledger/store"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// dateParser resolves natural language like "yesterday" or "last monday"
// alongside plain 2006-01-02 dates.
var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDateArg accepts an exact date or a natural language phrase. Empty
// means today.
func parseDateArg(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	if t, err := time.Parse(model.DateFormat, s); err == nil {
		return t, nil
	}
	r, err := dateParser.Parse(s, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q (try 2006-01-02 or \"yesterday\")", s)
	}
	return r.Time, nil
}

var addCmd = &cobra.Command{
	Use:     "add AMOUNT CATEGORY [DESCRIPTION]",
	GroupID: "records",
	Short:   "Record an expense",
	Long: `Record an expense. The write is local and immediate; sync to the
backend happens in the background.

Example usage:
  centavo add 12.50 food "lunch"
  centavo add 899 rent --date "first of march" --merchant "Acme Property"
  centavo add 9.99 subscriptions --recurring`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[0])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[0], err)
		}

		dateStr, _ := cmd.Flags().GetString("date")
		date, err := parseDateArg(dateStr)
		if err != nil {
			return err
		}

		merchant, _ := cmd.Flags().GetString("merchant")
		recurring, _ := cmd.Flags().GetBool("recurring")

		description := ""
		if len(args) == 3 {
			description = args[2]
		}

		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		e := &model.Expense{
			OwnerID:     env.user.ID,
			Amount:      amount,
			Category:    args[1],
			Merchant:    merchant,
			Description: description,
			Date:        date,
			Recurring:   recurring,
		}
		if err := env.store.CreateExpense(cmd.Context(), e); err != nil {
			return err
		}

		fmt.Printf("Added expense %d: %s %s on %s\n", e.ID, e.Amount, e.Category, e.Date.Format(model.DateFormat))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "records",
	Short:   "List expenses",
	Long: `List expenses in a date range (default: the current month), optionally
filtered by category.

Example usage:
  centavo list
  centavo list --from 2026-08-01 --to 2026-08-31
  centavo list --category food`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		category, _ := cmd.Flags().GetString("category")

		var expenses []*model.Expense
		if category != "" {
			expenses, err = env.store.ListExpensesByCategory(cmd.Context(), env.user.ID, category)
		} else {
			start, end, rerr := rangeFlags(cmd)
			if rerr != nil {
				return rerr
			}
			expenses, err = env.store.ListExpensesByDateRange(cmd.Context(), env.user.ID, start, end)
		}
		if err != nil {
			return err
		}

		if len(expenses) == 0 {
			fmt.Println("No expenses found.")
			return nil
		}

		for _, e := range expenses {
			marker := " "
			switch e.SyncStatus {
			case model.StatusPending:
				marker = "~"
			case model.StatusFailed:
				marker = "!"
			}
			line := fmt.Sprintf("%s %4d  %s  %8s  %-14s", marker, e.ID, e.Date.Format(model.DateFormat), e.Amount, e.Category)
			if e.Merchant != "" {
				line += "  " + e.Merchant
			}
			if e.Description != "" {
				line += "  " + e.Description
			}
			fmt.Println(line)
		}
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:     "edit ID",
	GroupID: "records",
	Short:   "Edit an expense",
	Long: `Edit fields of an existing expense. Only the flags you pass change.

Example usage:
  centavo edit 42 --amount 15.00
  centavo edit 42 --category transport --date yesterday`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid expense id %q", args[0])
		}

		var patch store.ExpenseUpdate
		if cmd.Flags().Changed("amount") {
			s, _ := cmd.Flags().GetString("amount")
			d, err := decimal.NewFromString(s)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", s, err)
			}
			patch.Amount = &d
		}
		if cmd.Flags().Changed("category") {
			v, _ := cmd.Flags().GetString("category")
			patch.Category = &v
		}
		if cmd.Flags().Changed("merchant") {
			v, _ := cmd.Flags().GetString("merchant")
			patch.Merchant = &v
		}
		if cmd.Flags().Changed("description") {
			v, _ := cmd.Flags().GetString("description")
			patch.Description = &v
		}
		if cmd.Flags().Changed("date") {
			s, _ := cmd.Flags().GetString("date")
			t, err := parseDateArg(s)
			if err != nil {
				return err
			}
			patch.Date = &t
		}
		if cmd.Flags().Changed("recurring") {
			v, _ := cmd.Flags().GetBool("recurring")
			patch.Recurring = &v
		}

		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		e, err := env.store.UpdateExpense(cmd.Context(), env.user.ID, id, patch)
		if err != nil {
			return err
		}

		fmt.Printf("Updated expense %d: %s %s on %s\n", e.ID, e.Amount, e.Category, e.Date.Format(model.DateFormat))
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm ID",
	GroupID: "records",
	Short:   "Delete an expense",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid expense id %q", args[0])
		}

		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.store.DeleteExpense(cmd.Context(), env.user.ID, id); err != nil {
			return err
		}

		fmt.Printf("Deleted expense %d\n", id)
		return nil
	},
}

// rangeFlags resolves --from/--to, defaulting to the current month.
func rangeFlags(cmd *cobra.Command) (time.Time, time.Time, error) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, -1)

	if cmd.Flags().Changed("from") {
		s, _ := cmd.Flags().GetString("from")
		t, err := parseDateArg(s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = t
	}
	if cmd.Flags().Changed("to") {
		s, _ := cmd.Flags().GetString("to")
		t, err := parseDateArg(s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = t
	}
	return start, end, nil
}

func init() {
	addCmd.Flags().String("date", "", "expense date (default: today)")
	addCmd.Flags().String("merchant", "", "merchant name")
	addCmd.Flags().Bool("recurring", false, "mark as recurring")

	listCmd.Flags().String("from", "", "range start (default: first of this month)")
	listCmd.Flags().String("to", "", "range end (default: last of this month)")
	listCmd.Flags().String("category", "", "filter by category")

	editCmd.Flags().String("amount", "", "new amount")
	editCmd.Flags().String("category", "", "new category")
	editCmd.Flags().String("merchant", "", "new merchant")
	editCmd.Flags().String("description", "", "new description")
	editCmd.Flags().String("date", "", "new date")
	editCmd.Flags().Bool("recurring", false, "new recurring flag")

	rootCmd.AddCommand(addCmd, listCmd, editCmd, rmCmd)
}
