package records

import (
	"context"
	"sync"
)

// Subscription is a live stream of snapshots for one owner. It holds at
// most one undelivered snapshot: a newer snapshot replaces an older one
// the consumer has not read yet, which loses nothing because every
// snapshot is a full replacement.
type Subscription struct {
	ownerID string
	ch      chan Snapshot
	done    chan struct{}

	mu      sync.Mutex
	closed  bool
	lastSeq uint64
	once    sync.Once
	onClose func()
}

// NewSubscription creates a subscription for ownerID. onClose runs once on
// teardown.
func NewSubscription(ownerID string, onClose func()) *Subscription {
	return &Subscription{
		ownerID: ownerID,
		ch:      make(chan Snapshot, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// BindContext tears the subscription down when ctx is done.
func (s *Subscription) BindContext(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Unsubscribe()
		case <-s.done:
		}
	}()
}

// C returns the snapshot channel. It is closed after Unsubscribe.
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Done is closed when the subscription has been torn down.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) OwnerID() string {
	return s.ownerID
}

// Deliver hands snap to the consumer without blocking. Snapshots older than
// the last delivered one are ignored. It reports whether snap was queued.
func (s *Subscription) Deliver(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || snap.Seq < s.lastSeq {
		return false
	}
	s.lastSeq = snap.Seq

	select {
	case s.ch <- snap:
	default:
		// drop the stale pending snapshot
		select {
		case <-s.ch:
		default:
		}
		s.ch <- snap
	}
	return true
}

// Unsubscribe stops delivery and closes the channel. It is idempotent.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()

		if s.onClose != nil {
			s.onClose()
		}
		close(s.done)
	})
}
