// Package worker mirrors owners' inventories into the spreadsheet whenever a
// record change event arrives.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"estoque/internal/amqp"
	"estoque/internal/core"
	applog "estoque/internal/log"
	"estoque/internal/records"
	"estoque/internal/sheets"
)

const defaultConcurrency = 4

// OwnerLister enumerates owners with stored records.
type OwnerLister interface {
	Owners(ctx context.Context) ([]string, error)
}

// MirrorWorker rewrites an owner's sheet from the record store.
type MirrorWorker struct {
	records     records.Lister
	mirror      sheets.MirrorWriter
	concurrency int

	// One mirror write per owner at a time, so an older export never
	// overwrites a newer one.
	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

func NewMirrorWorker(lister records.Lister, mirror sheets.MirrorWriter, concurrency int) *MirrorWorker {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &MirrorWorker{
		records:     lister,
		mirror:      mirror,
		concurrency: concurrency,
		owners:      make(map[string]*sync.Mutex),
	}
}

// HandleRecordChanged processes a single record change message from AMQP
func (w *MirrorWorker) HandleRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	slog.InfoContext(ctx, "Processing record change",
		applog.FieldOwnerID, msg.OwnerID,
		applog.FieldRecordID, msg.RecordID,
		applog.FieldOperation, msg.Op)

	return w.MirrorOwner(ctx, msg.OwnerID)
}

// MirrorOwner writes the owner's current export to the mirror.
func (w *MirrorWorker) MirrorOwner(ctx context.Context, ownerID string) error {
	lock := w.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	items, err := w.records.List(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	rows := core.ExportRows(items)
	ref, err := w.mirror.WriteOwnerSheet(ctx, sheets.OwnerSheet{OwnerID: ownerID, Rows: rows})
	if err != nil {
		return fmt.Errorf("write mirror: %w", err)
	}

	slog.InfoContext(ctx, "Mirrored owner inventory",
		applog.FieldOwnerID, ownerID,
		applog.FieldRecordCount, len(items),
		applog.FieldSheetRange, ref)
	return nil
}

// StartupSync mirrors every known owner. It recovers from events lost while
// the worker was down. Individual failures are logged and counted.
func (w *MirrorWorker) StartupSync(ctx context.Context, owners OwnerLister) error {
	ids, err := owners.Owners(ctx)
	if err != nil {
		return fmt.Errorf("list owners for startup sync: %w", err)
	}
	if len(ids) == 0 {
		slog.InfoContext(ctx, "No owners to mirror on startup")
		return nil
	}

	var (
		mu     sync.Mutex
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := w.MirrorOwner(gctx, id); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.ErrorContext(gctx, "Failed to mirror owner during startup",
					applog.FieldOwnerID, id,
					applog.FieldError, err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(ids),
		"synced", len(ids)-failed,
		"errors", failed)
	return nil
}

func (w *MirrorWorker) ownerLock(ownerID string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.owners[ownerID]
	if !ok {
		l = &sync.Mutex{}
		w.owners[ownerID] = l
	}
	return l
}
