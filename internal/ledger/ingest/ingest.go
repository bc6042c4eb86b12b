// Package ingest watches a drop directory for OCR scan results and turns
// each one into a receipt plus an expense through the record store.
//
// The OCR pipeline (an external collaborator) writes one JSON file per
// scanned receipt into the inbox directory. The watcher debounces file
// events, parses each result, creates both records in the store - which
// journals them for sync like any other local mutation - and moves the
// file into a processed/ subdirectory. The receipt and the expense stay
// independent records; they are correlated only by originating from the
// same scan.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/model"
	"github.com/centavo-app/centavo/internal/ledger/store"
	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
)

// ScanResult is the JSON document the OCR pipeline drops into the inbox.
type ScanResult struct {
	ImageRef   string  `json:"image_ref"`
	Merchant   string  `json:"merchant,omitempty"`
	Total      string  `json:"total"`
	Date       string  `json:"date,omitempty"` // "2006-01-02"
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence"`
	Items      []struct {
		Name  string `json:"name"`
		Price string `json:"price"`
	} `json:"items,omitempty"`
}

// Config holds watcher configuration.
type Config struct {
	// InboxDir is the directory the OCR pipeline writes into.
	InboxDir string

	// OwnerID scopes created records.
	OwnerID int64

	// DefaultCategory is used when a scan carries no category
	// (default: "Uncategorized").
	DefaultCategory string

	// DebounceInterval batches rapid writes to the same file
	// (default: 200ms).
	DebounceInterval time.Duration

	// Logger for ingest activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultCategory:  "Uncategorized",
		DebounceInterval: 200 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[ingest] ", log.LstdFlags),
	}
}

// Watcher ingests OCR results from the inbox directory.
type Watcher struct {
	store  *store.Store
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time
	changeQueueMu sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Watcher. Start must be called to begin ingesting.
func New(st *store.Store, config *Config) (*Watcher, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.InboxDir == "" {
		return nil, fmt.Errorf("inbox directory cannot be empty")
	}
	if config.OwnerID == 0 {
		return nil, fmt.Errorf("owner id cannot be zero")
	}
	if config.DefaultCategory == "" {
		config.DefaultCategory = "Uncategorized"
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 200 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[ingest] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		store:       st,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
	}, nil
}

// Start processes any files already sitting in the inbox, then watches for
// new ones until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := os.MkdirAll(w.processedDir(), 0755); err != nil {
		return fmt.Errorf("failed to create processed directory: %w", err)
	}
	if err := w.watcher.Add(w.config.InboxDir); err != nil {
		return fmt.Errorf("failed to watch inbox %s: %w", w.config.InboxDir, err)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	if err := w.drainExisting(ctx); err != nil {
		w.config.Logger.Printf("Warning: initial inbox scan failed: %v", err)
	}

	w.wg.Add(2)
	go w.watchEvents(ctx)
	go w.processChangeQueue(ctx)

	w.config.Logger.Printf("Watching inbox: %s", w.config.InboxDir)
	return nil
}

// Stop halts the watcher and waits for its goroutines to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) processedDir() string {
	return filepath.Join(w.config.InboxDir, "processed")
}

// drainExisting ingests files that arrived while the watcher was down.
func (w *Watcher) drainExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.config.InboxDir)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(w.config.InboxDir, entry.Name())
		if err := w.ingestFile(ctx, path); err != nil {
			w.config.Logger.Printf("Warning: failed to ingest %s: %v", entry.Name(), err)
		}
	}
	return nil
}

func (w *Watcher) watchEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if filepath.Dir(event.Name) != w.config.InboxDir {
				continue
			}

			w.changeQueueMu.Lock()
			w.changeQueue[event.Name] = time.Now()
			w.changeQueueMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processChangeQueue ingests queued files once they have been quiet for a
// full debounce interval, so half-written files aren't parsed.
func (w *Watcher) processChangeQueue(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

func (w *Watcher) processPending(ctx context.Context) {
	w.changeQueueMu.Lock()
	defer w.changeQueueMu.Unlock()

	now := time.Now()
	for path, queuedAt := range w.changeQueue {
		if now.Sub(queuedAt) < w.config.DebounceInterval {
			continue
		}
		delete(w.changeQueue, path)

		if err := w.ingestFile(ctx, path); err != nil {
			w.config.Logger.Printf("Error ingesting %s: %v", path, err)
		}
	}
}

// ingestFile parses one scan result, creates the receipt and expense, and
// moves the file out of the inbox. A file that vanished (already moved or
// deleted) is not an error.
func (w *Watcher) ingestFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read scan result: %w", err)
	}

	var scan ScanResult
	if err := json.Unmarshal(data, &scan); err != nil {
		return fmt.Errorf("invalid scan result: %w", err)
	}

	receipt, expense, err := w.Ingest(ctx, &scan)
	if err != nil {
		return err
	}

	dest := filepath.Join(w.processedDir(), filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		w.config.Logger.Printf("Warning: failed to move %s to processed: %v", path, err)
	}

	w.config.Logger.Printf("Ingested %s: receipt %d, expense %d", filepath.Base(path), receipt.ID, expense.ID)
	return nil
}

// Ingest converts one scan result into a receipt and an expense. Exposed
// separately from the file watcher so callers with an in-memory scan
// result (e.g. a share-sheet handler) can use the same path.
func (w *Watcher) Ingest(ctx context.Context, scan *ScanResult) (*model.Receipt, *model.Expense, error) {
	total, err := decimal.NewFromString(scan.Total)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid total %q: %w", scan.Total, err)
	}

	date := time.Now()
	if scan.Date != "" {
		d, err := time.Parse(model.DateFormat, scan.Date)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid date %q: %w", scan.Date, err)
		}
		date = d
	}

	items := make([]model.ReceiptItem, 0, len(scan.Items))
	for _, it := range scan.Items {
		price, err := decimal.NewFromString(it.Price)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid item price %q: %w", it.Price, err)
		}
		items = append(items, model.ReceiptItem{Name: it.Name, Price: price})
	}

	receipt := &model.Receipt{
		OwnerID:       w.config.OwnerID,
		ImageRef:      scan.ImageRef,
		Merchant:      scan.Merchant,
		Total:         total,
		Date:          date,
		OCRConfidence: scan.Confidence,
		Processed:     true,
		Items:         items,
	}
	if err := w.store.CreateReceipt(ctx, receipt); err != nil {
		return nil, nil, fmt.Errorf("failed to create receipt: %w", err)
	}

	category := scan.Category
	if category == "" {
		category = w.config.DefaultCategory
	}

	expense := &model.Expense{
		OwnerID:     w.config.OwnerID,
		Amount:      total,
		Category:    category,
		Merchant:    scan.Merchant,
		Description: fmt.Sprintf("Receipt %s", scan.ImageRef),
		Date:        date,
	}
	if err := w.store.CreateExpense(ctx, expense); err != nil {
		return nil, nil, fmt.Errorf("failed to create expense: %w", err)
	}

	return receipt, expense, nil
}
