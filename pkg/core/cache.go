package core

import "context"

// Slot names a document kept in a client cache.
type Slot string

const (
	// SlotLast holds the most recent document the client accepted, received
	// or produced locally. It is what a client shows on a cold start.
	SlotLast Slot = "last"
	// SlotPending holds a local edit made while offline, waiting to be sent.
	SlotPending Slot = "pending"
)

// Cache defines the contract for the client-side durable cache.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the document in slot. ok is false when the slot is empty.
	Get(ctx context.Context, slot Slot) (doc Document, ok bool, err error)

	// Put replaces the document in slot.
	Put(ctx context.Context, slot Slot, doc Document) error

	// Delete empties slot. Deleting an empty slot is not an error.
	Delete(ctx context.Context, slot Slot) error
}
