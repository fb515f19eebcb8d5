package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"estoque/internal/core"
	"estoque/internal/records"
)

func ptr[T any](v T) *T { return &v }

func recv(t *testing.T, sub *records.Subscription) records.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed")
		}
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return records.Snapshot{}
}

func TestCreateListUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	defer s.Close()

	created, err := s.Create(ctx, "o1", core.RecordInput{
		Name:              ptr("Caneca"),
		QuantityPurchased: ptr(int64(10)),
		SalePrice:         ptr(core.MoneyFromInt(25)),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.OwnerID != "o1" {
		t.Fatalf("create should assign id and owner: %+v", created)
	}
	if !created.PurchasePrice.IsZero() || created.QuantitySold != 0 {
		t.Fatalf("missing fields should be zero: %+v", created)
	}

	updated, err := s.Update(ctx, "o1", created.ID, core.RecordInput{QuantitySold: ptr(int64(3))})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.QuantitySold != 3 || updated.Name != "Caneca" || updated.QuantityPurchased != 10 {
		t.Fatalf("partial update changed other fields: %+v", updated)
	}

	list, err := s.List(ctx, "o1")
	if err != nil || len(list) != 1 || list[0].QuantitySold != 3 {
		t.Fatalf("list = %+v, err = %v", list, err)
	}

	if err := s.Delete(ctx, "o1", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "o1", created.ID); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
	if err := s.Delete(ctx, "o1", created.ID); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	defer s.Close()

	rec, _ := s.Create(ctx, "alice", core.RecordInput{Name: ptr("a")})

	if _, err := s.Update(ctx, "bob", rec.ID, core.RecordInput{Name: ptr("stolen")}); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("cross-owner update: %v", err)
	}
	if err := s.Delete(ctx, "bob", rec.ID); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("cross-owner delete: %v", err)
	}
	if list, _ := s.List(ctx, "bob"); len(list) != 0 {
		t.Fatalf("bob sees %d records", len(list))
	}
	if got, _ := s.Get(ctx, "alice", rec.ID); got.Name != "a" {
		t.Fatalf("alice's record changed: %+v", got)
	}
}

func TestSubscribeEmitsFullSnapshots(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	defer s.Close()

	first, _ := s.Create(ctx, "o1", core.RecordInput{Name: ptr("first")})

	sub, err := s.Subscribe(ctx, "o1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	initial := recv(t, sub)
	if len(initial.Records) != 1 || initial.Records[0].ID != first.ID {
		t.Fatalf("initial snapshot = %+v", initial)
	}

	if _, err := s.Create(ctx, "o1", core.RecordInput{Name: ptr("second")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	next := recv(t, sub)
	if len(next.Records) != 2 || next.Seq <= initial.Seq {
		t.Fatalf("snapshot after create = %+v", next)
	}
	if next.Records[0].Name != "first" || next.Records[1].Name != "second" {
		t.Fatalf("snapshot order = %v, %v", next.Records[0].Name, next.Records[1].Name)
	}

	// another owner's write does not reach this subscription
	_, _ = s.Create(ctx, "o2", core.RecordInput{Name: ptr("other")})
	select {
	case snap := <-sub.C():
		t.Fatalf("unexpected snapshot %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStore()
	defer s.Close()

	sub, err := s.Subscribe(ctx, "o1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	recv(t, sub)
	if s.Subscribers("o1") != 1 {
		t.Fatalf("subscribers = %d", s.Subscribers("o1"))
	}

	cancel()
	<-sub.Done()
	if s.Subscribers("o1") != 0 {
		t.Fatalf("subscribers after cancel = %d", s.Subscribers("o1"))
	}
}

func TestFailWritesLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	defer s.Close()

	rec, _ := s.Create(ctx, "o1", core.RecordInput{Name: ptr("keep")})
	boom := errors.New("backend unreachable")
	s.FailWrites(boom)

	if _, err := s.Create(ctx, "o1", core.RecordInput{Name: ptr("new")}); !errors.Is(err, boom) {
		t.Fatalf("create err = %v", err)
	}
	if _, err := s.Update(ctx, "o1", rec.ID, core.RecordInput{Name: ptr("x")}); !errors.Is(err, boom) {
		t.Fatalf("update err = %v", err)
	}
	if err := s.Delete(ctx, "o1", rec.ID); !errors.Is(err, boom) {
		t.Fatalf("delete err = %v", err)
	}

	list, _ := s.List(ctx, "o1")
	if len(list) != 1 || list[0].Name != "keep" {
		t.Fatalf("state changed after failed writes: %+v", list)
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	s := NewStore()
	sub, _ := s.Subscribe(context.Background(), "o1")
	recv(t, sub)

	_ = s.Close()

	if _, ok := <-sub.C(); ok {
		t.Fatal("expected closed channel after Close")
	}
	if _, err := s.Subscribe(context.Background(), "o1"); !errors.Is(err, records.ErrClosed) {
		t.Fatalf("subscribe after close: %v", err)
	}
}
