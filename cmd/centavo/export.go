package main

import (
	"fmt"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/export"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:     "export FILE",
	GroupID: "advanced",
	Short:   "Export expenses and receipts to JSONL",
	Long: `Export expenses and receipts to a JSONL file, one record per line.
Use 'centavo import' on another device to load them.

Example usage:
  centavo export backup.jsonl
  centavo export q1.jsonl --from 2026-01-01 --to 2026-03-31`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		// Default to everything.
		start := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Now().AddDate(10, 0, 0)
		if cmd.Flags().Changed("from") {
			s, _ := cmd.Flags().GetString("from")
			if start, err = parseDateArg(s); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("to") {
			s, _ := cmd.Flags().GetString("to")
			if end, err = parseDateArg(s); err != nil {
				return err
			}
		}

		result, err := export.ExportFile(cmd.Context(), env.store, args[0], export.Options{
			OwnerID: env.user.ID,
			Start:   start,
			End:     end,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Exported %d expenses and %d receipts to %s\n", result.Expenses, result.Receipts, args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import FILE",
	GroupID: "advanced",
	Short:   "Import expenses and receipts from JSONL",
	Long: `Import records from a JSONL export. Imported records are created as
new local records and journaled for sync like any other mutation.

Example usage:
  centavo import backup.jsonl
  centavo import backup.jsonl --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := export.ImportFile(cmd.Context(), env.store, args[0], export.Options{
			OwnerID: env.user.ID,
			DryRun:  dryRun,
		})
		if err != nil {
			return err
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %d expenses and %d receipts\n", verb, result.Expenses, result.Receipts)
		if result.Skipped > 0 {
			fmt.Printf("Skipped %d lines:\n", result.Skipped)
			for _, e := range result.Errors {
				fmt.Printf("  %s\n", e)
			}
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("from", "", "range start (default: all)")
	exportCmd.Flags().String("to", "", "range end (default: all)")
	importCmd.Flags().Bool("dry-run", false, "parse and count without writing")

	rootCmd.AddCommand(exportCmd, importCmd)
}
