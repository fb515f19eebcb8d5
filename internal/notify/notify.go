// Package notify broadcasts "records of this owner changed" signals so that
// every process holding live subscriptions can reload the owner's snapshot.
package notify

import (
	"context"
	"sync"
)

// Signal says the records of OwnerID changed. Origin identifies the
// publisher so it can skip its own signals when they loop back.
type Signal struct {
	OwnerID string `json:"owner_id"`
	Origin  string `json:"origin,omitempty"`
}

// Notifier publishes and receives owner change signals.
type Notifier interface {
	Publish(ctx context.Context, s Signal) error
	// Listen calls handler for every signal until ctx is done.
	Listen(ctx context.Context, handler func(Signal)) error
	Close() error
}

// Local delivers signals within the current process.
type Local struct {
	mu       sync.RWMutex
	handlers map[int]func(Signal)
	next     int
	closed   bool
}

var _ Notifier = (*Local)(nil)

func NewLocal() *Local {
	return &Local{handlers: make(map[int]func(Signal))}
}

func (l *Local) Publish(ctx context.Context, s Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	handlers := make([]func(Signal), 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		h(s)
	}
	return nil
}

func (l *Local) Listen(ctx context.Context, handler func(Signal)) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	id := l.next
	l.next++
	l.handlers[id] = handler
	l.mu.Unlock()

	<-ctx.Done()

	l.mu.Lock()
	delete(l.handlers, id)
	l.mu.Unlock()
	return ctx.Err()
}

// Listeners returns the number of active Listen calls.
func (l *Local) Listeners() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.handlers = make(map[int]func(Signal))
	return nil
}
