package sheets

import (
	"context"
)

// OwnerSheet is the full export of one owner's inventory, header first.
type OwnerSheet struct {
	OwnerID string
	Rows    [][]string
}

// Ports for outbound adapters.
type (
	// MirrorWriter replaces the mirrored export of an owner.
	MirrorWriter interface {
		WriteOwnerSheet(ctx context.Context, sheet OwnerSheet) (rangeRef string, err error)
	}

	// MirrorReader reads back a mirrored export.
	MirrorReader interface {
		ReadOwnerSheet(ctx context.Context, ownerID string) ([][]string, error)
	}
)
