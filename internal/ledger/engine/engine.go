// Package engine implements the sync engine: a debounced scheduler that
// drains the outbox against the remote gateway whenever the device is
// online.
//
// Per cycle the engine moves Idle -> Scheduled (debounce timer armed) ->
// Draining (batch in flight) -> Idle. Rapid local edits coalesce into one
// cycle; going offline cancels an armed timer but never aborts a remote
// call already in flight. No two drains run concurrently.
//
// Gateway failures of any flavor - network faults, rejected writes,
// timeouts, auth errors - are retryable up to the outbox attempt cap.
// Alerting a human about entries stuck at the cap is the UI's job, fed by
// the outbox summary.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/gateway"
	"github.com/centavo-app/centavo/internal/ledger/model"
	"github.com/centavo-app/centavo/internal/ledger/netmon"
	"github.com/centavo-app/centavo/internal/ledger/outbox"
	"github.com/centavo-app/centavo/internal/ledger/store"
)

// ErrOffline is returned by SyncNow when the monitor reports no
// connectivity; draining would only burn retry attempts.
var ErrOffline = errors.New("device is offline")

// State is the engine's scheduling state.
type State string

const (
	// StateIdle means nothing is scheduled or running.
	StateIdle State = "idle"
	// StateScheduled means the debounce timer is armed.
	StateScheduled State = "scheduled"
	// StateDraining means a batch is in flight.
	StateDraining State = "draining"
)

// Config holds engine tuning knobs.
type Config struct {
	// DebounceInterval is the quiet period after a trigger before a
	// drain starts (default: 2s). Bursts of edits within the window
	// coalesce into one cycle.
	DebounceInterval time.Duration

	// BatchSize caps entries per drain cycle (default: 10).
	BatchSize int

	// CallTimeout bounds each gateway call so a hung request cannot
	// stall the batch (default: 15s).
	CallTimeout time.Duration

	// Logger for engine activity.
	Logger *log.Logger

	// Hooks receives sync lifecycle events (optional).
	Hooks Hooks
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 2 * time.Second,
		BatchSize:        10,
		CallTimeout:      gateway.DefaultCallTimeout,
		Logger:           log.New(os.Stderr, "[engine] ", log.LstdFlags),
	}
}

// Hooks receives engine lifecycle events, e.g. for the status dashboard.
// Implementations must not block.
type Hooks interface {
	DrainStarted(batch int)
	EntrySynced(e outbox.Entry)
	EntrySkipped(e outbox.Entry)
	EntryFailed(e outbox.Entry, attempts int, err error)
	DrainFinished(r Result)
}

// Result summarizes one drain cycle.
type Result struct {
	Synced  int
	Skipped int
	Failed  int
}

// Engine drains the outbox against the remote gateway.
type Engine struct {
	store   *store.Store
	queue   *outbox.Queue
	gw      gateway.Gateway
	monitor netmon.Monitor
	config  *Config

	notify chan struct{}

	// drainMu enforces "one drain at a time" for both scheduled cycles
	// and SyncNow.
	drainMu sync.Mutex

	mu         sync.Mutex
	state      State
	lastSyncAt time.Time

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an Engine. All collaborators are injected; nothing is
// ambient, so tests can substitute fakes for every boundary.
func New(st *store.Store, queue *outbox.Queue, gw gateway.Gateway, monitor netmon.Monitor, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 2 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = gateway.DefaultCallTimeout
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}

	return &Engine{
		store:   st,
		queue:   queue,
		gw:      gw,
		monitor: monitor,
		config:  config,
		notify:  make(chan struct{}, 1),
		state:   StateIdle,
	}
}

// Start launches the scheduling loop. Call Stop to shut down.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return
	}
	e.running = true

	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go e.run(ctx)
}

// Stop halts scheduling. An in-flight drain finishes its current batch.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
}

// Notify signals that an outbox entry was enqueued. The record store's
// mutation path calls this; bursts coalesce into one debounce window.
func (e *Engine) Notify() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// State returns the current scheduling state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastSyncAt returns when the last drain cycle completed.
func (e *Engine) LastSyncAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncAt
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// run is the scheduling loop: arm on triggers, fire on quiet, disarm when
// the device goes offline.
func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	timer := time.NewTimer(e.config.DebounceInterval)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	arm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(e.config.DebounceInterval)
		e.setState(StateScheduled)
	}
	disarm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		e.setState(StateIdle)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-e.notify:
			arm()

		case online := <-e.monitor.Events():
			if online {
				e.config.Logger.Printf("Device online, scheduling sync")
				arm()
			} else {
				e.config.Logger.Printf("Device offline, cancelling scheduled sync")
				disarm()
			}

		case <-timer.C:
			if !e.monitor.Online() {
				// Offline at fire time; the next online
				// transition re-arms.
				e.setState(StateIdle)
				continue
			}

			if _, err := e.drain(ctx); err != nil {
				e.config.Logger.Printf("Drain error: %v", err)
			}

			// Re-arm while confirmed work remains under the cap.
			summary, err := e.queue.Summary(ctx)
			if err == nil && summary.Pending > 0 {
				arm()
			}
		}
	}
}

// SyncNow drains immediately, bypassing the debounce timer but still
// honoring the one-drain-at-a-time rule. Returns ErrOffline when the
// monitor reports no connectivity.
func (e *Engine) SyncNow(ctx context.Context) (Result, error) {
	if !e.monitor.Online() {
		return Result{}, ErrOffline
	}
	return e.drain(ctx)
}

// drain processes one batch in FIFO order. One failing entry never blocks
// the rest of the batch.
func (e *Engine) drain(ctx context.Context) (Result, error) {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	e.setState(StateDraining)
	defer func() {
		e.mu.Lock()
		e.state = StateIdle
		e.lastSyncAt = time.Now().UTC()
		e.mu.Unlock()
	}()

	batch, err := e.queue.PeekBatch(ctx, e.config.BatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch batch: %w", err)
	}
	if len(batch) == 0 {
		return Result{}, nil
	}

	if e.config.Hooks != nil {
		e.config.Hooks.DrainStarted(len(batch))
	}
	e.config.Logger.Printf("Draining %d entries", len(batch))

	var r Result
	for i := range batch {
		entry := batch[i]

		outcome, err := e.syncEntry(ctx, entry)
		switch outcome {
		case outcomeSynced:
			r.Synced++
			if e.config.Hooks != nil {
				e.config.Hooks.EntrySynced(entry)
			}

		case outcomeSkipped:
			// Not failed, not dropped: left for a later cycle,
			// e.g. an update waiting on its create.
			r.Skipped++
			if e.config.Hooks != nil {
				e.config.Hooks.EntrySkipped(entry)
			}

		case outcomeFailed:
			r.Failed++
			attempts, markErr := e.queue.MarkFailed(ctx, entry.ID, err)
			if markErr != nil {
				e.config.Logger.Printf("Failed to record failure for entry %d: %v", entry.ID, markErr)
				continue
			}
			e.config.Logger.Printf("Entry %d (%s %s) failed attempt %d/%d: %v",
				entry.ID, entry.Op, entry.Kind, attempts, outbox.MaxAttempts, err)

			if attempts >= outbox.MaxAttempts && entry.Op != model.OpDelete {
				if err := e.store.MarkSyncFailed(ctx, entry.Kind, entry.RecordID); err != nil {
					e.config.Logger.Printf("Failed to flag record %s/%d: %v", entry.Kind, entry.RecordID, err)
				}
			}
			if e.config.Hooks != nil {
				e.config.Hooks.EntryFailed(entry, attempts, err)
			}
		}
	}

	e.config.Logger.Printf("Drain complete: synced=%d skipped=%d failed=%d", r.Synced, r.Skipped, r.Failed)
	if e.config.Hooks != nil {
		e.config.Hooks.DrainFinished(r)
	}

	return r, nil
}

type outcome int

const (
	outcomeSynced outcome = iota
	outcomeSkipped
	outcomeFailed
)

// syncEntry maps one outbox entry to a gateway call and records the result
// on the local record. Only gateway/storage failures return outcomeFailed;
// entries whose work has evaporated (record deleted locally, nothing to
// delete remotely) succeed vacuously.
func (e *Engine) syncEntry(ctx context.Context, entry outbox.Entry) (outcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	switch entry.Op {
	case model.OpCreate:
		remoteID, err := e.store.RemoteID(ctx, entry.Kind, entry.RecordID)
		if err == model.ErrNotFound {
			// Record was deleted locally before its create ever
			// synced; there is nothing to reconcile remotely.
			return e.succeed(ctx, entry.ID)
		}
		if err != nil {
			return outcomeFailed, err
		}
		if remoteID != "" {
			// A previous attempt created the document but the
			// entry lingered; don't create a duplicate.
			return e.succeed(ctx, entry.ID)
		}

		remoteID, err = e.gw.Create(callCtx, string(entry.Kind), entry.Payload)
		if err != nil {
			return outcomeFailed, err
		}
		if err := e.store.MarkSynced(ctx, entry.Kind, entry.RecordID, remoteID); err != nil {
			return outcomeFailed, err
		}
		return e.succeed(ctx, entry.ID)

	case model.OpUpdate:
		remoteID, err := e.store.RemoteID(ctx, entry.Kind, entry.RecordID)
		if err == model.ErrNotFound {
			// Deleted locally after this update was journaled;
			// the delete entry behind us owns the remote side.
			return e.succeed(ctx, entry.ID)
		}
		if err != nil {
			return outcomeFailed, err
		}
		if remoteID == "" {
			// The create ahead of us in FIFO order hasn't
			// succeeded yet; updating a remote object that does
			// not exist is not safe. Leave for a later cycle.
			return outcomeSkipped, nil
		}

		if err := e.gw.Update(callCtx, remoteID, entry.Payload); err != nil {
			return outcomeFailed, err
		}
		if err := e.store.MarkSynced(ctx, entry.Kind, entry.RecordID, remoteID); err != nil {
			return outcomeFailed, err
		}
		return e.succeed(ctx, entry.ID)

	case model.OpDelete:
		var p outbox.DeletePayload
		if len(entry.Payload) > 0 {
			if err := json.Unmarshal(entry.Payload, &p); err != nil {
				return outcomeFailed, fmt.Errorf("bad delete payload: %w", err)
			}
		}
		if p.RemoteID == "" {
			// Never synced; nothing to delete remotely.
			return e.succeed(ctx, entry.ID)
		}

		if err := e.gw.SoftDelete(callCtx, p.RemoteID); err != nil {
			return outcomeFailed, err
		}
		return e.succeed(ctx, entry.ID)

	default:
		return outcomeFailed, fmt.Errorf("unknown operation %q", entry.Op)
	}
}

func (e *Engine) succeed(ctx context.Context, entryID int64) (outcome, error) {
	if err := e.queue.MarkSucceeded(ctx, entryID); err != nil {
		return outcomeFailed, err
	}
	return outcomeSynced, nil
}

// RetryFailed resets entries stuck at the attempt cap (and their records'
// sync status) and kicks the scheduler. This is the explicit user-triggered
// path for resolving failed entries.
func (e *Engine) RetryFailed(ctx context.Context) (int, error) {
	n, err := e.queue.RetryFailed(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := e.store.ResetFailedSync(ctx); err != nil {
			return n, err
		}
		e.Notify()
	}
	return n, nil
}
