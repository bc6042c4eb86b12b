package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var budgetCmd = &cobra.Command{
	Use:     "budget",
	GroupID: "records",
	Short:   "Manage category budgets",
	Long: `Manage monthly category budgets. Budgets are device-local configuration
and are never synced to the backend.`,
}

var budgetSetCmd = &cobra.Command{
	Use:   "set NAME AMOUNT",
	Short: "Set or update a monthly budget for a category",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}

		color, _ := cmd.Flags().GetString("color")
		icon, _ := cmd.Flags().GetString("icon")
		description, _ := cmd.Flags().GetString("description")

		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		b := &model.CategoryBudget{
			OwnerID:       env.user.ID,
			Name:          args[0],
			MonthlyBudget: amount,
			Color:         color,
			Icon:          icon,
			Description:   description,
		}
		if err := env.store.SetBudget(cmd.Context(), b); err != nil {
			return err
		}

		fmt.Printf("Budget %q set to %s/month\n", b.Name, b.MonthlyBudget)
		return nil
	},
}

var budgetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List budgets with this month's spending",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		now := time.Now()
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end := start.AddDate(0, 1, -1)

		usage, err := env.store.BudgetUsageForRange(cmd.Context(), env.user.ID, start, end)
		if err != nil {
			return err
		}

		if len(usage) == 0 {
			fmt.Println("No budgets configured.")
			return nil
		}

		for _, u := range usage {
			marker := " "
			if u.Spent.GreaterThan(u.Budget.MonthlyBudget) {
				marker = "!"
			}
			fmt.Printf("%s %-14s %8s spent of %8s\n", marker, u.Budget.Name, u.Spent, u.Budget.MonthlyBudget)
		}
		return nil
	},
}

var budgetRmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Delete a budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.store.DeleteBudget(cmd.Context(), env.user.ID, args[0]); err != nil {
			return err
		}

		fmt.Printf("Deleted budget %q\n", args[0])
		return nil
	},
}

var totalsCmd = &cobra.Command{
	Use:     "totals",
	GroupID: "records",
	Short:   "Show spending per category",
	Long: `Show total spending per category over a date range (default: the
current month). Totals are computed from the expense table at query time.

Example usage:
  centavo totals
  centavo totals --from 2026-01-01 --to 2026-12-31`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		start, end, err := rangeFlags(cmd)
		if err != nil {
			return err
		}

		totals, err := env.store.CategoryTotals(cmd.Context(), env.user.ID, &start, &end)
		if err != nil {
			return err
		}

		if len(totals) == 0 {
			fmt.Println("No expenses in range.")
			return nil
		}

		categories := make([]string, 0, len(totals))
		for c := range totals {
			categories = append(categories, c)
		}
		sort.Strings(categories)

		sum := decimal.Zero
		for _, c := range categories {
			fmt.Printf("%-14s %10s\n", c, totals[c])
			sum = sum.Add(totals[c])
		}
		fmt.Printf("%-14s %10s\n", "TOTAL", sum)
		return nil
	},
}

func init() {
	budgetSetCmd.Flags().String("color", "", "display color")
	budgetSetCmd.Flags().String("icon", "", "display icon")
	budgetSetCmd.Flags().String("description", "", "budget description")

	totalsCmd.Flags().String("from", "", "range start (default: first of this month)")
	totalsCmd.Flags().String("to", "", "range end (default: last of this month)")

	budgetCmd.AddCommand(budgetSetCmd, budgetListCmd, budgetRmCmd)
	rootCmd.AddCommand(budgetCmd, totalsCmd)
}
