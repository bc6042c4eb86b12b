package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Document is a stored document in the in-memory gateway.
type Document struct {
	Kind      string
	Payload   json.RawMessage
	Deleted   bool
	DeletedAt time.Time
	UpdatedAt time.Time
}

// Memory is an in-process Gateway. It backs tests and offline development,
// and doubles as a reference for the remote contract: last write wins,
// soft deletes keep the document around with a deleted flag.
//
// FailNext makes the next n calls fail, which is how tests script gateway
// outages. Calls are recorded in order for assertions on drain behavior.
type Memory struct {
	mu       sync.Mutex
	docs     map[string]*Document
	calls    []string
	failNext int
}

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]*Document)}
}

// FailNext makes the next n calls return an error.
func (m *Memory) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// Calls returns the operations seen so far, oldest first, formatted as
// "create kind", "update id" or "delete id".
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Get returns the stored document for a remote id.
func (m *Memory) Get(remoteID string) (*Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[remoteID]
	return doc, ok
}

// Len returns the number of stored documents, including soft-deleted ones.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *Memory) failing() error {
	if m.failNext > 0 {
		m.failNext--
		return fmt.Errorf("gateway unavailable")
	}
	return nil
}

// Create implements Gateway.Create.
func (m *Memory) Create(ctx context.Context, kind string, payload json.RawMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, "create "+kind)
	if err := m.failing(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	m.docs[id] = &Document{
		Kind:      kind,
		Payload:   append(json.RawMessage(nil), payload...),
		UpdatedAt: time.Now().UTC(),
	}
	return id, nil
}

// Update implements Gateway.Update. Unknown remote ids are an error; a
// repeated update with the same payload is a harmless overwrite.
func (m *Memory) Update(ctx context.Context, remoteID string, payload json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, "update "+remoteID)
	if err := m.failing(); err != nil {
		return err
	}

	doc, ok := m.docs[remoteID]
	if !ok {
		return fmt.Errorf("no document %s", remoteID)
	}
	doc.Payload = append(json.RawMessage(nil), payload...)
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

// SoftDelete implements Gateway.SoftDelete. Deleting an already-deleted
// document is a no-op, which is what makes retries safe.
func (m *Memory) SoftDelete(ctx context.Context, remoteID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, "delete "+remoteID)
	if err := m.failing(); err != nil {
		return err
	}

	doc, ok := m.docs[remoteID]
	if !ok {
		return fmt.Errorf("no document %s", remoteID)
	}
	if !doc.Deleted {
		doc.Deleted = true
		doc.DeletedAt = time.Now().UTC()
	}
	return nil
}
