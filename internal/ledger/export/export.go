// Package export moves ledger data in and out of the local database as
// JSONL, one record per line. Used for device-to-device moves and for
// seeding a fresh install from a backup.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/model"
	"github.com/centavo-app/centavo/internal/ledger/store"
)

// Line is one exported record. Exactly one of Expense or Receipt is set,
// discriminated by Kind.
type Line struct {
	Kind    string         `json:"kind"`
	Expense *model.Expense `json:"expense,omitempty"`
	Receipt *model.Receipt `json:"receipt,omitempty"`
}

// Options configures an export or import run.
type Options struct {
	OwnerID int64
	Start   time.Time // inclusive
	End     time.Time // inclusive
	DryRun  bool      // import only: parse and count without writing
}

// Result contains statistics about an export or import run.
type Result struct {
	Expenses int
	Receipts int
	Skipped  int
	Errors   []string
}

// Export writes the owner's expenses and receipts in [Start, End] to w,
// one JSON object per line.
func Export(ctx context.Context, st *store.Store, w io.Writer, opts Options) (*Result, error) {
	result := &Result{}
	enc := json.NewEncoder(w)

	expenses, err := st.ListExpensesByDateRange(ctx, opts.OwnerID, opts.Start, opts.End)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	for _, e := range expenses {
		if err := enc.Encode(Line{Kind: "expense", Expense: e}); err != nil {
			return nil, fmt.Errorf("failed to encode expense %d: %w", e.ID, err)
		}
		result.Expenses++
	}

	receipts, err := st.ListReceiptsByDateRange(ctx, opts.OwnerID, opts.Start, opts.End)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	for _, r := range receipts {
		if err := enc.Encode(Line{Kind: "receipt", Receipt: r}); err != nil {
			return nil, fmt.Errorf("failed to encode receipt %d: %w", r.ID, err)
		}
		result.Receipts++
	}

	return result, nil
}

// ExportFile exports to a file, written atomically via a temp file so a
// crash never leaves a half-written backup.
func ExportFile(ctx context.Context, st *store.Store, path string, opts Options) (*Result, error) {
	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}

	result, err := Export(ctx, st, f, opts)
	if err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return nil, err
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to close export file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return result, nil
}

// Import reads JSONL lines from r and creates the records through the
// store, so every imported record is validated and journaled for sync
// exactly like a locally entered one. Local IDs, remote IDs and sync
// status from the source device are discarded; the records are new on
// this device. Lines that fail validation are skipped and reported.
func Import(ctx context.Context, st *store.Store, r io.Reader, opts Options) (*Result, error) {
	result := &Result{}
	dec := json.NewDecoder(r)
	lineNum := 0

	for {
		var line Line
		if err := dec.Decode(&line); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++

		switch line.Kind {
		case "expense":
			if line.Expense == nil {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: expense line with no expense", lineNum))
				continue
			}
			e := *line.Expense
			e.ID = 0
			e.RemoteID = ""
			e.OwnerID = opts.OwnerID
			if opts.DryRun {
				result.Expenses++
				continue
			}
			if err := st.CreateExpense(ctx, &e); err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
				continue
			}
			result.Expenses++

		case "receipt":
			if line.Receipt == nil {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: receipt line with no receipt", lineNum))
				continue
			}
			rec := *line.Receipt
			rec.ID = 0
			rec.RemoteID = ""
			rec.OwnerID = opts.OwnerID
			if opts.DryRun {
				result.Receipts++
				continue
			}
			if err := st.CreateReceipt(ctx, &rec); err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
				continue
			}
			result.Receipts++

		default:
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: unknown kind %q", lineNum, line.Kind))
		}
	}

	return result, nil
}

// ImportFile imports from a JSONL file.
func ImportFile(ctx context.Context, st *store.Store, path string, opts Options) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	return Import(ctx, st, f, opts)
}
