// Package records defines the Record Store port: owner-scoped writes and a
// push-based stream of full record-set snapshots.
package records

import (
	"context"
	"errors"

	"estoque/internal/core"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrClosed   = errors.New("record store closed")
)

// Snapshot is the complete record set of one owner at a point in time.
// Consumers replace their state with it; it is never a delta.
type Snapshot struct {
	OwnerID string
	Records []core.InventoryRecord
	Seq     uint64
}

// Ports for record store adapters.
type (
	Writer interface {
		Create(ctx context.Context, ownerID string, in core.RecordInput) (core.InventoryRecord, error)
		// Update changes only the fields present in the input.
		Update(ctx context.Context, ownerID, id string, in core.RecordInput) (core.InventoryRecord, error)
		Delete(ctx context.Context, ownerID, id string) error
	}

	Lister interface {
		List(ctx context.Context, ownerID string) ([]core.InventoryRecord, error)
		Get(ctx context.Context, ownerID, id string) (core.InventoryRecord, error)
	}

	Subscriber interface {
		// Subscribe emits the current snapshot immediately and one per change
		// afterwards, until Unsubscribe is called or ctx is done.
		Subscribe(ctx context.Context, ownerID string) (*Subscription, error)
	}

	Store interface {
		Writer
		Lister
		Subscriber
		Close() error
	}
)
