package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"estoque/internal/core"
	"estoque/internal/records"
	"estoque/internal/records/memory"
)

func ptr[T any](v T) *T { return &v }

// fakeSessions hands out one controllable watch channel.
type fakeSessions struct {
	owner   core.Owner
	ch      chan *core.Owner
	stopped bool
	err     error
}

func newFakeSessions(ownerID string) *fakeSessions {
	return &fakeSessions{owner: core.Owner{ID: ownerID}, ch: make(chan *core.Owner, 2)}
}

func (f *fakeSessions) Watch(_ context.Context, token string) (<-chan *core.Owner, func(), error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	o := f.owner
	f.ch <- &o
	return f.ch, func() { f.stopped = true }, nil
}

func (f *fakeSessions) signOut() {
	f.ch <- nil
	close(f.ch)
}

func build(all []core.InventoryRecord, p core.Period) core.Dashboard {
	return core.BuildDashboard(all, p, time.Now(), time.UTC)
}

func run(l *Live, ctx context.Context, views chan<- core.Dashboard) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- l.Stream(ctx, "token", core.AllTime(), func(d core.Dashboard) error {
			views <- d
			return nil
		})
	}()
	return done
}

func next(t *testing.T, views <-chan core.Dashboard) core.Dashboard {
	t.Helper()
	select {
	case v := <-views:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no dashboard emitted")
	}
	return core.Dashboard{}
}

func TestLiveRecomputesOnEverySnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memory.NewStore()
	sessions := newFakeSessions("o1")
	l := NewLive(store, sessions, build)

	views := make(chan core.Dashboard, 8)
	done := run(l, ctx, views)

	if first := next(t, views); first.RecordCount != 0 {
		t.Fatalf("initial view = %+v", first)
	}

	store.Create(ctx, "o1", core.RecordInput{
		Name: ptr("Caneca"), QuantitySold: ptr(int64(2)), SalePrice: ptr(core.MoneyFromInt(10)),
	})
	view := next(t, views)
	if view.RecordCount != 1 || !view.Summary.TotalRevenue.Equal(core.MoneyFromInt(20)) {
		t.Fatalf("view after create = %+v", view)
	}

	// Other owners' writes do not reach this stream.
	store.Create(ctx, "o2", core.RecordInput{Name: ptr("x")})
	select {
	case v := <-views:
		t.Fatalf("unexpected view %+v", v)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Stream err = %v", err)
	}
	if store.Subscribers("o1") != 0 {
		t.Error("subscription not released")
	}
	if !sessions.stopped {
		t.Error("session watch not stopped")
	}
	if l.Active() != 0 {
		t.Errorf("Active = %d", l.Active())
	}
}

func TestLiveEndsOnSignOut(t *testing.T) {
	store := memory.NewStore()
	sessions := newFakeSessions("o1")
	l := NewLive(store, sessions, build)

	views := make(chan core.Dashboard, 8)
	done := run(l, context.Background(), views)
	next(t, views)

	sessions.signOut()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSignedOut) {
			t.Fatalf("Stream err = %v, want ErrSignedOut", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end on sign-out")
	}
	if store.Subscribers("o1") != 0 {
		t.Error("subscription not released after sign-out")
	}
}

func TestLiveEndsWhenStoreCloses(t *testing.T) {
	store := memory.NewStore()
	l := NewLive(store, newFakeSessions("o1"), build)

	views := make(chan core.Dashboard, 8)
	done := run(l, context.Background(), views)
	next(t, views)

	store.Close()

	select {
	case err := <-done:
		if !errors.Is(err, records.ErrClosed) {
			t.Fatalf("Stream err = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end on store close")
	}
}

func TestLiveEmitErrorStopsStream(t *testing.T) {
	store := memory.NewStore()
	l := NewLive(store, newFakeSessions("o1"), build)
	boom := errors.New("client gone")

	err := l.Stream(context.Background(), "token", core.AllTime(), func(core.Dashboard) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Stream err = %v", err)
	}
	if store.Subscribers("o1") != 0 {
		t.Error("subscription not released")
	}
}

func TestLiveRejectsBadSession(t *testing.T) {
	sessions := newFakeSessions("o1")
	sessions.err = core.NewAuthError(core.AuthUnauthenticated, nil)
	l := NewLive(memory.NewStore(), sessions, build)

	err := l.Stream(context.Background(), "bad", core.AllTime(), func(core.Dashboard) error { return nil })
	if !core.IsAuthKind(err, core.AuthUnauthenticated) {
		t.Fatalf("Stream err = %v", err)
	}
}
