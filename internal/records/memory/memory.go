// Package memory is an in-process record store. Writes are visible to every
// subscriber of the same owner immediately.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"estoque/internal/core"
	"estoque/internal/records"
)

type ownerSet struct {
	order []string
	byID  map[string]core.InventoryRecord
	seq   uint64
}

// Store keeps records in memory, grouped by owner in creation order.
type Store struct {
	mu       sync.Mutex
	owners   map[string]*ownerSet
	hub      *records.Hub
	writeErr error
	closed   bool
}

// Ensure interface conformance
var _ records.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		owners: make(map[string]*ownerSet),
		hub:    records.NewHub(),
	}
}

// FailWrites makes every following write return err; nil restores normal
// behaviour. Used to simulate an unreachable backend.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *Store) Create(ctx context.Context, ownerID string, in core.RecordInput) (core.InventoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return core.InventoryRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return core.InventoryRecord{}, err
	}

	rec := in.Record()
	rec.ID = uuid.NewString()
	rec.OwnerID = ownerID

	set := s.set(ownerID)
	set.order = append(set.order, rec.ID)
	set.byID[rec.ID] = rec
	s.publishLocked(ownerID)
	return rec, nil
}

func (s *Store) Update(ctx context.Context, ownerID, id string, in core.RecordInput) (core.InventoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return core.InventoryRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return core.InventoryRecord{}, err
	}

	set := s.set(ownerID)
	rec, ok := set.byID[id]
	if !ok {
		return core.InventoryRecord{}, records.ErrNotFound
	}
	in.ApplyTo(&rec)
	set.byID[id] = rec
	s.publishLocked(ownerID)
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}

	set := s.set(ownerID)
	if _, ok := set.byID[id]; !ok {
		return records.ErrNotFound
	}
	delete(set.byID, id)
	for i, rid := range set.order {
		if rid == id {
			set.order = append(set.order[:i], set.order[i+1:]...)
			break
		}
	}
	s.publishLocked(ownerID)
	return nil
}

func (s *Store) List(ctx context.Context, ownerID string) ([]core.InventoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(ownerID), nil
}

func (s *Store) Get(ctx context.Context, ownerID, id string) (core.InventoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return core.InventoryRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.set(ownerID).byID[id]
	if !ok {
		return core.InventoryRecord{}, records.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Subscribe(ctx context.Context, ownerID string) (*records.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, records.ErrClosed
	}

	sub := s.hub.Add(ctx, ownerID)
	sub.Deliver(records.Snapshot{
		OwnerID: ownerID,
		Records: s.listLocked(ownerID),
		Seq:     s.set(ownerID).seq,
	})
	return sub, nil
}

// Owners lists every owner holding at least one record.
func (s *Store) Owners(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, set := range s.owners {
		if len(set.order) > 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Subscribers returns the number of live subscriptions for ownerID.
func (s *Store) Subscribers(ownerID string) int {
	return s.hub.Count(ownerID)
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.CloseAll()
	return nil
}

func (s *Store) writable() error {
	if s.closed {
		return records.ErrClosed
	}
	return s.writeErr
}

func (s *Store) set(ownerID string) *ownerSet {
	set, ok := s.owners[ownerID]
	if !ok {
		set = &ownerSet{byID: make(map[string]core.InventoryRecord)}
		s.owners[ownerID] = set
	}
	return set
}

func (s *Store) listLocked(ownerID string) []core.InventoryRecord {
	set := s.set(ownerID)
	out := make([]core.InventoryRecord, 0, len(set.order))
	for _, id := range set.order {
		out = append(out, set.byID[id])
	}
	return out
}

func (s *Store) publishLocked(ownerID string) {
	set := s.set(ownerID)
	set.seq++
	s.hub.Publish(records.Snapshot{
		OwnerID: ownerID,
		Records: s.listLocked(ownerID),
		Seq:     set.seq,
	})
}
