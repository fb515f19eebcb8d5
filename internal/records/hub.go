package records

import (
	"context"
	"sync"
)

// Hub fans snapshots out to the subscriptions of each owner.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Add registers a new subscription for ownerID. It is removed from the hub
// when it is torn down.
func (h *Hub) Add(ctx context.Context, ownerID string) *Subscription {
	var sub *Subscription
	sub = NewSubscription(ownerID, func() { h.remove(ownerID, sub) })

	h.mu.Lock()
	set, ok := h.subs[ownerID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[ownerID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	sub.BindContext(ctx)
	return sub
}

func (h *Hub) remove(ownerID string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[ownerID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, ownerID)
		}
	}
}

// Publish delivers snap to every subscription of its owner.
func (h *Hub) Publish(snap Snapshot) {
	for _, sub := range h.subscribers(snap.OwnerID) {
		sub.Deliver(snap)
	}
}

// Count returns the number of live subscriptions for ownerID.
func (h *Hub) Count(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ownerID])
}

// Owners returns the owners that currently have subscribers.
func (h *Hub) Owners() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.subs))
	for id := range h.subs {
		out = append(out, id)
	}
	return out
}

// CloseAll tears down every subscription.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	var all []*Subscription
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.Unsubscribe()
	}
}

func (h *Hub) subscribers(ownerID string) []*Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[ownerID]
	out := make([]*Subscription, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	return out
}
