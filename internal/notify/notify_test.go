package notify

import (
	"context"
	"errors"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLocalPublishReachesListeners(t *testing.T) {
	l := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan Signal, 2)
	go l.Listen(ctx, func(s Signal) { got <- s })
	waitFor(t, func() bool { return l.Listeners() == 1 })

	if err := l.Publish(context.Background(), Signal{OwnerID: "owner-1", Origin: "repo-a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if s := <-got; s.OwnerID != "owner-1" || s.Origin != "repo-a" {
		t.Fatalf("got %+v", s)
	}

	cancel()
	waitFor(t, func() bool { return l.Listeners() == 0 })
}

func TestLocalListenAfterClose(t *testing.T) {
	l := NewLocal()
	_ = l.Close()
	if err := l.Listen(context.Background(), func(Signal) {}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisPublishReachesListener(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	n := NewRedis(client, "estoque:test:"+time.Now().Format("150405.000000"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Signal, 1)
	go n.Listen(ctx, func(s Signal) {
		select {
		case got <- s:
		default:
		}
	})

	// publish until the listener has subscribed
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case s := <-got:
			if s.OwnerID != "owner-9" || s.Origin != "repo-b" {
				t.Fatalf("got %+v", s)
			}
			return
		case <-tick.C:
			if err := n.Publish(context.Background(), Signal{OwnerID: "owner-9", Origin: "repo-b"}); err != nil {
				t.Fatalf("publish: %v", err)
			}
		case <-deadline:
			t.Fatal("no signal received")
		}
	}
}

func TestRedisListenResubscribesAfterFailure(t *testing.T) {
	// Nothing listens on port 1, so every subscription attempt fails.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	n := NewRedis(client, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var attempts []int
	n.backoff = func(attempt int) time.Duration {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, attempt)
		if len(attempts) == 3 {
			cancel()
		}
		return time.Millisecond
	}

	err := n.Listen(ctx, func(Signal) { t.Error("unexpected signal") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Listen() = %v, want context.Canceled", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(attempts, []int{0, 1, 2}) {
		t.Errorf("backoff attempts = %v, want [0 1 2]", attempts)
	}
}

func TestDecodeSignal(t *testing.T) {
	tests := []struct {
		payload string
		want    Signal
		wantErr bool
	}{
		{`{"owner_id":"o1","origin":"r1"}`, Signal{OwnerID: "o1", Origin: "r1"}, false},
		{`{"owner_id":"o2"}`, Signal{OwnerID: "o2"}, false},
		{`{"origin":"r1"}`, Signal{}, true},
		{`owner-1`, Signal{}, true},
	}
	for _, tt := range tests {
		got, err := decodeSignal(tt.payload)
		if (err != nil) != tt.wantErr {
			t.Errorf("decodeSignal(%q) err = %v, wantErr %v", tt.payload, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("decodeSignal(%q) = %+v, want %+v", tt.payload, got, tt.want)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, maxBackoff, maxBackoff}
	for attempt, w := range want {
		if got := exponentialBackoff(attempt); got != w {
			t.Errorf("exponentialBackoff(%d) = %v, want %v", attempt, got, w)
		}
	}
}
