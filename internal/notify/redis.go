package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	applog "estoque/internal/log"
)

// DefaultChannel is the pub/sub channel used for record change signals.
const DefaultChannel = "estoque:records:changed"

const maxBackoff = 30 * time.Second

var ErrClosed = errors.New("notifier closed")

// Redis fans signals out to every process subscribed to the channel.
type Redis struct {
	client  *redis.Client
	channel string

	// backoff is the wait before resubscribing after the attempt-th failure.
	backoff func(attempt int) time.Duration
}

var _ Notifier = (*Redis)(nil)

func NewRedis(client *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{client: client, channel: channel, backoff: exponentialBackoff}
}

func (r *Redis) Publish(ctx context.Context, s Signal) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change for %s: %w", s.OwnerID, err)
	}
	return nil
}

// Listen subscribes to the channel and resubscribes with backoff whenever
// the subscription fails, until ctx is done.
func (r *Redis) Listen(ctx context.Context, handler func(Signal)) error {
	attempt := 0
	for {
		delivered, err := r.listen(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			attempt = 0
		}
		wait := r.backoff(attempt)
		attempt++
		slog.WarnContext(ctx, "Record change subscription lost, retrying",
			applog.FieldComponent, applog.ComponentNotify,
			applog.FieldError, err,
			"channel", r.channel,
			"retry_in", wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// listen runs one subscription. delivered reports whether it got as far as
// a confirmed subscription.
func (r *Redis) listen(ctx context.Context, handler func(Signal)) (delivered bool, err error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	slog.InfoContext(ctx, "Listening for record changes",
		applog.FieldComponent, applog.ComponentNotify,
		"channel", r.channel)

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return true, ErrClosed
			}
			s, err := decodeSignal(msg.Payload)
			if err != nil {
				slog.WarnContext(ctx, "Dropping malformed record change signal",
					applog.FieldComponent, applog.ComponentNotify,
					applog.FieldError, err)
				continue
			}
			handler(s)
		}
	}
}

func decodeSignal(payload string) (Signal, error) {
	var s Signal
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return Signal{}, fmt.Errorf("decode signal: %w", err)
	}
	if s.OwnerID == "" {
		return Signal{}, errors.New("decode signal: missing owner id")
	}
	return s, nil
}

// exponentialBackoff returns 1s, 2s, 4s... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	return time.Second << uint(attempt)
}

// Close is a no-op: the client is owned by the caller.
func (r *Redis) Close() error {
	return nil
}
