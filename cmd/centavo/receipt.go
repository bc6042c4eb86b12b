package main

import (
	"fmt"
	"strconv"

	"github.com/centavo-app/centavo/internal/ledger/model"
	"github.com/spf13/cobra"
)

var receiptCmd = &cobra.Command{
	Use:     "receipt",
	GroupID: "records",
	Short:   "Inspect scanned receipts",
	Long: `Inspect receipts ingested from the OCR inbox. Receipts are created by
the daemon's inbox watcher; drop scan results into the inbox directory to
ingest them.`,
}

var receiptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List receipts",
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

		receipts, err := env.store.ListReceiptsByDateRange(cmd.Context(), env.user.ID, start, end)
		if err != nil {
			return err
		}

		if len(receipts) == 0 {
			fmt.Println("No receipts found.")
			return nil
		}

		for _, r := range receipts {
			merchant := r.Merchant
			if merchant == "" {
				merchant = "(unknown)"
			}
			fmt.Printf("%4d  %s  %8s  %-20s  confidence %.2f\n",
				r.ID, r.Date.Format(model.DateFormat), r.Total, merchant, r.OCRConfidence)
		}
		return nil
	},
}

var receiptShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a receipt with its line items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid receipt id %q", args[0])
		}

		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		r, err := env.store.GetReceipt(cmd.Context(), env.user.ID, id)
		if err != nil {
			return err
		}

		fmt.Printf("Receipt %d\n", r.ID)
		fmt.Printf("  Image:      %s\n", r.ImageRef)
		if r.Merchant != "" {
			fmt.Printf("  Merchant:   %s\n", r.Merchant)
		}
		fmt.Printf("  Total:      %s\n", r.Total)
		if !r.Date.IsZero() {
			fmt.Printf("  Date:       %s\n", r.Date.Format(model.DateFormat))
		}
		fmt.Printf("  Confidence: %.2f\n", r.OCRConfidence)
		fmt.Printf("  Sync:       %s\n", r.SyncStatus)
		if len(r.Items) > 0 {
			fmt.Println("  Items:")
			for _, item := range r.Items {
				fmt.Printf("    %-24s %8s\n", item.Name, item.Price)
			}
		}
		return nil
	},
}

var receiptRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a receipt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid receipt id %q", args[0])
		}

		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.store.DeleteReceipt(cmd.Context(), env.user.ID, id); err != nil {
			return err
		}

		fmt.Printf("Deleted receipt %d\n", id)
		return nil
	},
}

func init() {
	receiptListCmd.Flags().String("from", "", "range start (default: first of this month)")
	receiptListCmd.Flags().String("to", "", "range end (default: last of this month)")

	receiptCmd.AddCommand(receiptListCmd, receiptShowCmd, receiptRmCmd)
	rootCmd.AddCommand(receiptCmd)
}
