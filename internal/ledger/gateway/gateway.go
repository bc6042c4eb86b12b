// Package gateway defines the boundary to the remote document store and
// the client implementations the sync engine drains against.
//
// The remote contract is deliberately thin: create returns a remote id,
// update overwrites the document at a remote id, and delete is a soft
// delete (the document is flagged, never removed). Update and soft-delete
// must tolerate retries - the engine delivers at-least-once.
//
// Conflict policy is last-local-write-wins: an update unconditionally
// overwrites the remote document. There is no field merge and no
// reconciliation of remote-side edits; that is a documented product
// decision, not an accident of this package.
package gateway

import (
	"context"
	"encoding/json"
)

// Gateway is the remote document store as the sync engine sees it.
type Gateway interface {
	// Create stores a new document of the given kind and returns its
	// remote id.
	Create(ctx context.Context, kind string, payload json.RawMessage) (string, error)

	// Update overwrites the document at remoteID with payload.
	// Idempotent under retry with the same payload.
	Update(ctx context.Context, remoteID string, payload json.RawMessage) error

	// SoftDelete flags the document at remoteID as deleted with a
	// timestamp. Idempotent under retry.
	SoftDelete(ctx context.Context, remoteID string) error
}
