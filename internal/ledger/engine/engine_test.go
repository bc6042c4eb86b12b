package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/db"
	"github.com/centavo-app/centavo/internal/ledger/gateway"
	"github.com/centavo-app/centavo/internal/ledger/model"
	"github.com/centavo-app/centavo/internal/ledger/netmon"
	"github.com/centavo-app/centavo/internal/ledger/outbox"
	"github.com/centavo-app/centavo/internal/ledger/store"
	"github.com/shopspring/decimal"
)

type harness struct {
	store   *store.Store
	queue   *outbox.Queue
	gw      *gateway.Memory
	monitor *netmon.Manual
	engine  *Engine
	owner   int64
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	queue := outbox.New(database)
	st := store.New(database, queue, nil)
	gw := gateway.NewMemory()
	monitor := netmon.NewManual(online)

	eng := New(st, queue, gw, monitor, &Config{
		DebounceInterval: 30 * time.Millisecond,
		BatchSize:        10,
	})

	u, err := st.EnsureUser(context.Background(), "ada@example.com", "Ada")
	if err != nil {
		t.Fatalf("failed to ensure user: %v", err)
	}

	// Clear the profile's own create entry so tests observe only their
	// records.
	batch, _ := queue.PeekBatch(context.Background(), 10)
	for _, e := range batch {
		queue.MarkSucceeded(context.Background(), e.ID)
	}

	return &harness{store: st, queue: queue, gw: gw, monitor: monitor, engine: eng, owner: u.ID}
}

func (h *harness) addExpense(t *testing.T) *model.Expense {
	t.Helper()

	e := &model.Expense{
		OwnerID:  h.owner,
		Amount:   decimal.RequireFromString("12.50"),
		Category: "food",
		Date:     time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
	}
	if err := h.store.CreateExpense(context.Background(), e); err != nil {
		t.Fatalf("failed to create expense: %v", err)
	}
	return e
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSyncNowCreatesRemoteDocument(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	e := h.addExpense(t)

	r, err := h.engine.SyncNow(ctx)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if r.Synced != 1 {
		t.Fatalf("expected 1 synced, got %+v", r)
	}

	got, err := h.store.GetExpense(ctx, h.owner, e.ID)
	if err != nil {
		t.Fatalf("failed to get expense: %v", err)
	}
	if got.SyncStatus != model.StatusSynced {
		t.Errorf("expected synced status, got %s", got.SyncStatus)
	}
	if got.RemoteID == "" {
		t.Error("expected remote id assigned")
	}
	if _, ok := h.gw.Get(got.RemoteID); !ok {
		t.Error("expected document stored remotely")
	}

	summary, _ := h.queue.Summary(ctx)
	if summary.Pending != 0 || summary.Failed != 0 {
		t.Errorf("expected empty queue, got %+v", summary)
	}
}

func TestSyncNowOffline(t *testing.T) {
	h := newHarness(t, false)

	h.addExpense(t)
	if _, err := h.engine.SyncNow(context.Background()); err != ErrOffline {
		t.Errorf("expected ErrOffline, got %v", err)
	}
	if len(h.gw.Calls()) != 0 {
		t.Error("offline drain must not touch the gateway")
	}
}

func TestDrainPreservesFIFO(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	first := h.addExpense(t)
	h.addExpense(t)
	amount := decimal.RequireFromString("20")
	if _, err := h.store.UpdateExpense(ctx, h.owner, first.ID, store.ExpenseUpdate{Amount: &amount}); err != nil {
		t.Fatalf("failed to update: %v", err)
	}

	if _, err := h.engine.SyncNow(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	calls := h.gw.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %v", calls)
	}
	if calls[0] != "create expense" || calls[1] != "create expense" {
		t.Errorf("creates must come first: %v", calls)
	}
	got, _ := h.store.GetExpense(ctx, h.owner, first.ID)
	if calls[2] != "update "+got.RemoteID {
		t.Errorf("expected update of first record last, got %v", calls)
	}
}

func TestFullLifecycleCreateUpdateDelete(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	e := h.addExpense(t)
	if _, err := h.engine.SyncNow(ctx); err != nil {
		t.Fatalf("create drain failed: %v", err)
	}
	synced, _ := h.store.GetExpense(ctx, h.owner, e.ID)
	remoteID := synced.RemoteID

	amount := decimal.RequireFromString("99")
	if _, err := h.store.UpdateExpense(ctx, h.owner, e.ID, store.ExpenseUpdate{Amount: &amount}); err != nil {
		t.Fatalf("failed to update: %v", err)
	}
	if _, err := h.engine.SyncNow(ctx); err != nil {
		t.Fatalf("update drain failed: %v", err)
	}

	if err := h.store.DeleteExpense(ctx, h.owner, e.ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, err := h.engine.SyncNow(ctx); err != nil {
		t.Fatalf("delete drain failed: %v", err)
	}

	doc, ok := h.gw.Get(remoteID)
	if !ok {
		t.Fatal("soft delete must keep the remote document")
	}
	if !doc.Deleted {
		t.Error("expected remote document flagged deleted")
	}

	summary, _ := h.queue.Summary(ctx)
	if summary.Pending != 0 || summary.Failed != 0 {
		t.Errorf("expected empty queue, got %+v", summary)
	}
}

func TestRetryCapFlagsRecord(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	e := h.addExpense(t)
	h.gw.FailNext(outbox.MaxAttempts)

	for i := 0; i < outbox.MaxAttempts; i++ {
		r, err := h.engine.SyncNow(ctx)
		if err != nil {
			t.Fatalf("drain %d failed: %v", i, err)
		}
		if r.Failed != 1 {
			t.Fatalf("drain %d: expected 1 failure, got %+v", i, r)
		}
	}

	summary, _ := h.queue.Summary(ctx)
	if summary.Failed != 1 || summary.Pending != 0 {
		t.Fatalf("expected entry parked at cap, got %+v", summary)
	}

	got, _ := h.store.GetExpense(ctx, h.owner, e.ID)
	if got.SyncStatus != model.StatusFailed {
		t.Errorf("expected record flagged failed, got %s", got.SyncStatus)
	}

	// A further drain must not burn attempts on a parked entry.
	before := len(h.gw.Calls())
	if _, err := h.engine.SyncNow(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if len(h.gw.Calls()) != before {
		t.Error("parked entry must not be retried implicitly")
	}
}

func TestRetryFailedRecovers(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	e := h.addExpense(t)
	h.gw.FailNext(outbox.MaxAttempts)
	for i := 0; i < outbox.MaxAttempts; i++ {
		if _, err := h.engine.SyncNow(ctx); err != nil {
			t.Fatalf("drain failed: %v", err)
		}
	}

	n, err := h.engine.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reset entry, got %d", n)
	}

	got, _ := h.store.GetExpense(ctx, h.owner, e.ID)
	if got.SyncStatus != model.StatusPending {
		t.Errorf("expected record pending after retry, got %s", got.SyncStatus)
	}

	r, err := h.engine.SyncNow(ctx)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if r.Synced != 1 {
		t.Fatalf("expected recovery sync, got %+v", r)
	}
}

func TestUpdateWaitsForCreate(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	e := h.addExpense(t)
	amount := decimal.RequireFromString("20")
	if _, err := h.store.UpdateExpense(ctx, h.owner, e.ID, store.ExpenseUpdate{Amount: &amount}); err != nil {
		t.Fatalf("failed to update: %v", err)
	}

	// The create fails; the update behind it must be deferred, not
	// failed, and must not burn an attempt.
	h.gw.FailNext(1)
	r, err := h.engine.SyncNow(ctx)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if r.Failed != 1 || r.Skipped != 1 {
		t.Fatalf("expected 1 failed + 1 skipped, got %+v", r)
	}

	batch, _ := h.queue.PeekBatch(ctx, 10)
	if len(batch) != 2 {
		t.Fatalf("expected both entries still queued, got %d", len(batch))
	}
	if batch[1].Attempts != 0 {
		t.Errorf("skip must not count as an attempt, got %d", batch[1].Attempts)
	}

	// Next cycle both go through.
	r, err = h.engine.SyncNow(ctx)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if r.Synced != 2 {
		t.Fatalf("expected both synced, got %+v", r)
	}
}

func TestCreateOfLocallyDeletedRecordSucceedsVacuously(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	e := h.addExpense(t)
	// Deleted before the create ever synced; the delete journals nothing
	// but the create entry is still queued.
	if err := h.store.DeleteExpense(ctx, h.owner, e.ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}

	r, err := h.engine.SyncNow(ctx)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if r.Synced != 1 {
		t.Fatalf("expected vacuous success, got %+v", r)
	}
	if len(h.gw.Calls()) != 0 {
		t.Errorf("nothing should reach the gateway, got %v", h.gw.Calls())
	}
	if h.gw.Len() != 0 {
		t.Error("no remote document should exist")
	}
}

func TestDebouncedMutationTriggersDrain(t *testing.T) {
	h := newHarness(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.store.SetNotify(h.engine.Notify)
	h.engine.Start(ctx)
	defer h.engine.Stop()

	e := h.addExpense(t)

	waitFor(t, 2*time.Second, func() bool {
		got, err := h.store.GetExpense(context.Background(), h.owner, e.ID)
		return err == nil && got.SyncStatus == model.StatusSynced
	})
}

func TestRapidEditsCoalesceIntoOneCycle(t *testing.T) {
	h := newHarness(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.store.SetNotify(h.engine.Notify)
	h.engine.Start(ctx)
	defer h.engine.Stop()

	// Burst of writes inside one debounce window.
	for i := 0; i < 3; i++ {
		h.addExpense(t)
	}

	waitFor(t, 2*time.Second, func() bool {
		summary, err := h.queue.Summary(context.Background())
		return err == nil && summary.Pending == 0
	})

	if len(h.gw.Calls()) != 3 {
		t.Errorf("expected 3 creates, got %v", h.gw.Calls())
	}
}

func TestOfflineQueuesThenOnlineDrains(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.store.SetNotify(h.engine.Notify)
	h.engine.Start(ctx)
	defer h.engine.Stop()

	h.addExpense(t)
	h.addExpense(t)

	// Give the debounce window time to fire while offline.
	time.Sleep(100 * time.Millisecond)
	summary, _ := h.queue.Summary(context.Background())
	if summary.Pending != 2 {
		t.Fatalf("offline mutations must stay queued, got %+v", summary)
	}
	if len(h.gw.Calls()) != 0 {
		t.Fatal("no gateway calls while offline")
	}

	// Coming online schedules a drain without any new mutation.
	h.monitor.SetOnline(true)

	waitFor(t, 2*time.Second, func() bool {
		s, err := h.queue.Summary(context.Background())
		return err == nil && s.Pending == 0
	})

	calls := h.gw.Calls()
	if len(calls) != 2 {
		t.Errorf("expected both queued creates drained in order, got %v", calls)
	}
}

func TestHooksReceiveLifecycle(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	hooks := &recordingHooks{}
	h.engine.config.Hooks = hooks

	h.addExpense(t)
	if _, err := h.engine.SyncNow(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	if hooks.started != 1 || hooks.synced != 1 || hooks.finished != 1 {
		t.Errorf("unexpected hook counts: %+v", hooks)
	}
}

type recordingHooks struct {
	started  int
	synced   int
	skipped  int
	failed   int
	finished int
}

func (r *recordingHooks) DrainStarted(batch int)                       { r.started++ }
func (r *recordingHooks) EntrySynced(e outbox.Entry)                   { r.synced++ }
func (r *recordingHooks) EntrySkipped(e outbox.Entry)                  { r.skipped++ }
func (r *recordingHooks) EntryFailed(e outbox.Entry, n int, err error) { r.failed++ }
func (r *recordingHooks) DrainFinished(res Result)                     { r.finished++ }
