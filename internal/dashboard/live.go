// Package dashboard keeps a dashboard view current for one signed-in owner
// by recomputing it from every record snapshot.
package dashboard

import (
	"context"
	"errors"
	"sync/atomic"

	"estoque/internal/core"
	applog "estoque/internal/log"
	"estoque/internal/records"
)

// ErrSignedOut ends a stream whose session was signed out or expired.
var ErrSignedOut = errors.New("session ended")

type (
	SnapshotSource interface {
		Subscribe(ctx context.Context, ownerID string) (*records.Subscription, error)
	}

	SessionWatcher interface {
		Watch(ctx context.Context, token string) (<-chan *core.Owner, func(), error)
	}

	// Builder computes the view for period from a full snapshot.
	Builder func(all []core.InventoryRecord, p core.Period) core.Dashboard
)

// Live runs dashboard streams.
type Live struct {
	source   SnapshotSource
	sessions SessionWatcher
	build    Builder
	active   atomic.Int64
}

func NewLive(source SnapshotSource, sessions SessionWatcher, build Builder) *Live {
	return &Live{source: source, sessions: sessions, build: build}
}

// Active returns the number of running streams.
func (l *Live) Active() int64 {
	return l.active.Load()
}

// Stream emits the dashboard for the session's owner on every snapshot until
// ctx is done, the session ends or emit fails. The record subscription is
// released on return.
func (l *Live) Stream(ctx context.Context, token string, p core.Period, emit func(core.Dashboard) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	owners, stopWatch, err := l.sessions.Watch(ctx, token)
	if err != nil {
		return err
	}
	defer stopWatch()

	owner, ok := <-owners
	if !ok || owner == nil {
		return ErrSignedOut
	}

	sub, err := l.source.Subscribe(ctx, owner.ID)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	l.active.Add(1)
	defer l.active.Add(-1)

	logger := applog.FromContext(ctx).WithComponent(applog.ComponentDashboard)
	logger.DebugContext(ctx, "Dashboard stream started",
		applog.FieldOwnerID, owner.ID,
		applog.FieldPeriod, p.String())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case o, ok := <-owners:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !ok || o == nil {
				logger.InfoContext(ctx, "Dashboard stream ended by sign-out", applog.FieldOwnerID, owner.ID)
				return ErrSignedOut
			}

		case snap, ok := <-sub.C():
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return records.ErrClosed
			}
			view := l.build(snap.Records, p)
			if err := emit(view); err != nil {
				return err
			}
			logger.DebugContext(ctx, "Dashboard emitted",
				applog.FieldOwnerID, owner.ID,
				applog.FieldSnapshotSeq, snap.Seq,
				applog.FieldRecordCount, view.RecordCount)
		}
	}
}
