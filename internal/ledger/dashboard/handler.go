// Package dashboard event handling and message formatting.
package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/engine"
	"github.com/centavo-app/centavo/internal/ledger/outbox"
)

// Handler subscribes to engine and connectivity events and formats them as
// dashboard messages. It implements engine.Hooks.
type Handler struct {
	server *Server
	queue  *outbox.Queue
	logger *log.Logger
}

var _ engine.Hooks = (*Handler)(nil)

// NewHandler creates a new event handler connected to a dashboard server.
// queue may be nil; queue health broadcasts are skipped without it.
func NewHandler(server *Server, queue *outbox.Queue, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		queue:  queue,
		logger: logger,
	}
}

// DrainStarted handles the start of a drain cycle
func (h *Handler) DrainStarted(batch int) {
	h.broadcastDrain(DrainData{Phase: "started", Batch: batch})
}

// EntrySynced handles a successfully synced entry
func (h *Handler) EntrySynced(e outbox.Entry) {
	h.broadcastEntry(e, "synced", 0, nil)
}

// EntrySkipped handles an entry deferred to a later cycle
func (h *Handler) EntrySkipped(e outbox.Entry) {
	h.broadcastEntry(e, "skipped", 0, nil)
}

// EntryFailed handles a failed sync attempt
func (h *Handler) EntryFailed(e outbox.Entry, attempts int, err error) {
	h.broadcastEntry(e, "failed", attempts, err)
}

// DrainFinished handles the end of a drain cycle
func (h *Handler) DrainFinished(r engine.Result) {
	h.logger.Printf("Drain finished: synced=%d skipped=%d failed=%d", r.Synced, r.Skipped, r.Failed)
	h.broadcastDrain(DrainData{
		Phase:   "finished",
		Synced:  r.Synced,
		Skipped: r.Skipped,
		Failed:  r.Failed,
	})
	h.broadcastQueue()
}

// OnConnectivity handles online/offline transitions. Wire this to the
// connectivity monitor's event channel.
func (h *Handler) OnConnectivity(online bool) {
	if online {
		h.logger.Println("Device online")
	} else {
		h.logger.Println("Device offline")
	}

	dataJSON, err := json.Marshal(ConnectivityData{Online: online})
	if err != nil {
		h.logger.Printf("Failed to marshal connectivity data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeConnectivity,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

func (h *Handler) broadcastEntry(e outbox.Entry, outcome string, attempts int, err error) {
	data := EntryData{
		EntryID:  e.ID,
		Kind:     string(e.Kind),
		Op:       string(e.Op),
		RecordID: e.RecordID,
		Outcome:  outcome,
		Attempts: attempts,
	}
	if err != nil {
		data.Error = err.Error()
	}

	dataJSON, merr := json.Marshal(data)
	if merr != nil {
		h.logger.Printf("Failed to marshal entry data: %v", merr)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeEntry,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

func (h *Handler) broadcastDrain(data DrainData) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal drain data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeDrain,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

// broadcastQueue sends current queue health to all clients.
func (h *Handler) broadcastQueue() {
	if h.queue == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	summary, err := h.queue.Summary(ctx)
	cancel()
	if err != nil {
		h.logger.Printf("Failed to read queue summary: %v", err)
		return
	}

	dataJSON, err := json.Marshal(QueueData{
		Pending: summary.Pending,
		Failed:  summary.Failed,
	})
	if err != nil {
		h.logger.Printf("Failed to marshal queue data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeQueue,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
