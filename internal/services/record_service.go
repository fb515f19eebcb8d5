package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"estoque/internal/core"
	applog "estoque/internal/log"
	"estoque/internal/records"
)

// ChangePublisher announces record changes to out-of-process consumers.
type ChangePublisher interface {
	PublishRecordChanged(ctx context.Context, ownerID, recordID, op string) error
	Close() error
}

// RecordService orchestrates record writes across the record store and the
// change event publisher, and serves the read side of the dashboard.
type RecordService struct {
	store     records.Store
	publisher ChangePublisher
	loc       *time.Location
	now       func() time.Time
}

func NewRecordService(store records.Store, publisher ChangePublisher, loc *time.Location) *RecordService {
	if loc == nil {
		loc = time.Local
	}
	return &RecordService{
		store:     store,
		publisher: publisher,
		loc:       loc,
		now:       time.Now,
	}
}

// Location is the time zone periods are evaluated in.
func (s *RecordService) Location() *time.Location {
	return s.loc
}

// CreateRecord validates and saves a record, then publishes a change event.
// A missing sale date defaults to now.
func (s *RecordService) CreateRecord(ctx context.Context, ownerID string, in core.RecordInput) (core.InventoryRecord, error) {
	if err := in.ValidateCreate(); err != nil {
		return core.InventoryRecord{}, err
	}
	in = in.WithDefaultSaleDate(s.now())

	rec, err := s.store.Create(ctx, ownerID, in)
	if err != nil {
		return core.InventoryRecord{}, writeError(applog.OpCreate, err)
	}

	s.publish(ctx, ownerID, rec.ID, applog.OpCreate)
	return rec, nil
}

// UpdateRecord applies the provided fields of in to the record.
func (s *RecordService) UpdateRecord(ctx context.Context, ownerID, id string, in core.RecordInput) (core.InventoryRecord, error) {
	if err := in.ValidateUpdate(); err != nil {
		return core.InventoryRecord{}, err
	}

	rec, err := s.store.Update(ctx, ownerID, id, in)
	if err != nil {
		return core.InventoryRecord{}, writeError(applog.OpUpdate, err)
	}

	s.publish(ctx, ownerID, rec.ID, applog.OpUpdate)
	return rec, nil
}

func (s *RecordService) DeleteRecord(ctx context.Context, ownerID, id string) error {
	if err := s.store.Delete(ctx, ownerID, id); err != nil {
		return writeError(applog.OpDelete, err)
	}

	s.publish(ctx, ownerID, id, applog.OpDelete)
	return nil
}

func (s *RecordService) ListRecords(ctx context.Context, ownerID string) ([]core.InventoryRecord, error) {
	return s.store.List(ctx, ownerID)
}

// Subscribe opens a live snapshot feed of the owner's records.
func (s *RecordService) Subscribe(ctx context.Context, ownerID string) (*records.Subscription, error) {
	return s.store.Subscribe(ctx, ownerID)
}

// Dashboard computes the dashboard view for period from the current records.
func (s *RecordService) Dashboard(ctx context.Context, ownerID string, p core.Period) (core.Dashboard, error) {
	all, err := s.store.List(ctx, ownerID)
	if err != nil {
		return core.Dashboard{}, fmt.Errorf("list records: %w", err)
	}
	return core.BuildDashboard(all, p, s.now(), s.loc), nil
}

// BuildDashboard computes the dashboard view for period from a snapshot.
func (s *RecordService) BuildDashboard(all []core.InventoryRecord, p core.Period) core.Dashboard {
	return core.BuildDashboard(all, p, s.now(), s.loc)
}

// Export renders the owner's records as delimited text.
func (s *RecordService) Export(ctx context.Context, ownerID string) (string, error) {
	all, err := s.store.List(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("list records: %w", err)
	}
	return core.ToDelimitedText(all), nil
}

// Ping reports whether the record store is reachable, when it can tell.
func (s *RecordService) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *RecordService) publish(ctx context.Context, ownerID, recordID, op string) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No change publisher configured, skipping event",
			applog.FieldOwnerID, ownerID,
			applog.FieldOperation, op)
		return
	}

	// The write already succeeded; a lost event only delays the mirror.
	if err := s.publisher.PublishRecordChanged(ctx, ownerID, recordID, op); err != nil {
		slog.ErrorContext(ctx, "Failed to publish record change",
			applog.FieldOwnerID, ownerID,
			applog.FieldRecordID, recordID,
			applog.FieldOperation, op,
			applog.FieldError, err)
	}
}

// writeError classifies a store failure. Missing records and cancelled
// requests pass through; everything else is a WriteError.
func writeError(op string, err error) error {
	if errors.Is(err, records.ErrNotFound) || errors.Is(err, context.Canceled) {
		return err
	}
	return &core.WriteError{Op: op, Err: err}
}

// Close closes both the record store and the change publisher
func (s *RecordService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close record service: %w", errors.Join(errs...))
	}

	return nil
}
