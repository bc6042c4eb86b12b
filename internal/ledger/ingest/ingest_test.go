package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/db"
	"github.com/centavo-app/centavo/internal/ledger/outbox"
	"github.com/centavo-app/centavo/internal/ledger/store"
	"github.com/shopspring/decimal"
)

func newTestWatcher(t *testing.T) (*Watcher, *store.Store, string, int64) {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	st := store.New(database, outbox.New(database), nil)
	u, err := st.EnsureUser(context.Background(), "ada@example.com", "Ada")
	if err != nil {
		t.Fatalf("failed to ensure user: %v", err)
	}

	inbox := filepath.Join(t.TempDir(), "inbox")
	if err := os.MkdirAll(inbox, 0755); err != nil {
		t.Fatalf("failed to create inbox: %v", err)
	}

	w, err := New(st, &Config{
		InboxDir:         inbox,
		OwnerID:          u.ID,
		DebounceInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	return w, st, inbox, u.ID
}

func writeScan(t *testing.T, dir, name string, scan ScanResult) string {
	t.Helper()

	data, err := json.Marshal(scan)
	if err != nil {
		t.Fatalf("failed to marshal scan: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write scan: %v", err)
	}
	return path
}

func TestIngestCreatesReceiptAndExpense(t *testing.T) {
	w, st, _, owner := newTestWatcher(t)
	ctx := context.Background()

	scan := &ScanResult{
		ImageRef:   "img://scan-1",
		Merchant:   "Grocer",
		Total:      "34.20",
		Date:       "2026-08-20",
		Category:   "groceries",
		Confidence: 0.92,
	}
	receipt, expense, err := w.Ingest(ctx, scan)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	gotReceipt, err := st.GetReceipt(ctx, owner, receipt.ID)
	if err != nil {
		t.Fatalf("failed to get receipt: %v", err)
	}
	if !gotReceipt.Total.Equal(decimal.RequireFromString("34.20")) {
		t.Errorf("expected total 34.20, got %s", gotReceipt.Total)
	}
	if !gotReceipt.Processed {
		t.Error("expected receipt marked processed")
	}

	gotExpense, err := st.GetExpense(ctx, owner, expense.ID)
	if err != nil {
		t.Fatalf("failed to get expense: %v", err)
	}
	if gotExpense.Category != "groceries" {
		t.Errorf("expected category from scan, got %s", gotExpense.Category)
	}
	if !gotExpense.Amount.Equal(gotReceipt.Total) {
		t.Errorf("expense amount %s diverges from receipt total %s", gotExpense.Amount, gotReceipt.Total)
	}

	// Both records journal for sync like any local mutation.
	summary, err := st.Queue().Summary(ctx)
	if err != nil {
		t.Fatalf("failed to summarize: %v", err)
	}
	if summary.Pending != 3 { // user create + receipt + expense
		t.Errorf("expected 3 journaled entries, got %d", summary.Pending)
	}
}

func TestIngestDefaultsCategoryAndDate(t *testing.T) {
	w, _, _, _ := newTestWatcher(t)

	_, expense, err := w.Ingest(context.Background(), &ScanResult{
		ImageRef:   "img://scan-2",
		Total:      "5.00",
		Confidence: 0.4,
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	if expense.Category != "Uncategorized" {
		t.Errorf("expected default category, got %s", expense.Category)
	}
	if expense.Date.IsZero() {
		t.Error("expected date defaulted to today")
	}
}

func TestIngestRejectsBadTotal(t *testing.T) {
	w, _, _, _ := newTestWatcher(t)

	_, _, err := w.Ingest(context.Background(), &ScanResult{
		ImageRef: "img://scan-3",
		Total:    "not-a-number",
	})
	if err == nil {
		t.Error("expected error for unparseable total")
	}
}

func TestIngestItems(t *testing.T) {
	w, st, _, owner := newTestWatcher(t)

	scan := &ScanResult{
		ImageRef:   "img://scan-4",
		Total:      "5.20",
		Confidence: 0.8,
	}
	scan.Items = append(scan.Items, struct {
		Name  string `json:"name"`
		Price string `json:"price"`
	}{Name: "Milk", Price: "3.20"})

	receipt, _, err := w.Ingest(context.Background(), scan)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	got, err := st.GetReceipt(context.Background(), owner, receipt.ID)
	if err != nil {
		t.Fatalf("failed to get receipt: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].Name != "Milk" {
		t.Errorf("items lost: %+v", got.Items)
	}
}

func TestWatcherProcessesDroppedFile(t *testing.T) {
	w, st, inbox, owner := newTestWatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	writeScan(t, inbox, "scan-1.json", ScanResult{
		ImageRef:   "img://scan-1",
		Total:      "12.00",
		Confidence: 0.9,
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		receipts, err := st.ListReceiptsByDateRange(ctx, owner,
			time.Now().AddDate(0, 0, -1), time.Now().AddDate(0, 0, 1))
		if err == nil && len(receipts) == 1 {
			// File must have moved to processed/.
			if _, err := os.Stat(filepath.Join(inbox, "scan-1.json")); !os.IsNotExist(err) {
				t.Fatal("expected scan file moved out of inbox")
			}
			if _, err := os.Stat(filepath.Join(inbox, "processed", "scan-1.json")); err != nil {
				t.Fatalf("expected scan file in processed/: %v", err)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("receipt not ingested before deadline")
}

func TestWatcherDrainsExistingFilesOnStart(t *testing.T) {
	w, st, inbox, owner := newTestWatcher(t)

	// File sitting in the inbox before the watcher starts.
	writeScan(t, inbox, "old.json", ScanResult{
		ImageRef:   "img://old",
		Total:      "7.00",
		Confidence: 0.7,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	receipts, err := st.ListReceiptsByDateRange(ctx, owner,
		time.Now().AddDate(0, 0, -1), time.Now().AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("failed to list receipts: %v", err)
	}
	if len(receipts) != 1 {
		t.Errorf("expected pre-existing file ingested on start, got %d receipts", len(receipts))
	}
}
