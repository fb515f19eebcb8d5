package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"estoque/internal/core"
	"estoque/internal/records"
	"estoque/internal/records/memory"
)

type publishedEvent struct {
	ownerID, recordID, op string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
	closed bool
}

func (f *fakePublisher) PublishRecordChanged(_ context.Context, ownerID, recordID, op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, publishedEvent{ownerID, recordID, op})
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func ptr[T any](v T) *T { return &v }

func newTestService() (*RecordService, *memory.Store, *fakePublisher) {
	store := memory.NewStore()
	pub := &fakePublisher{}
	svc := NewRecordService(store, pub, time.UTC)
	svc.now = func() time.Time { return time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC) }
	return svc, store, pub
}

func TestRecordService_CreateRecord(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newTestService()

	rec, err := svc.CreateRecord(ctx, "o1", core.RecordInput{
		Name:              ptr("Caneca"),
		QuantityPurchased: ptr(int64(5)),
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	if rec.LastSaleDate == nil || !rec.LastSaleDate.Equal(svc.now()) {
		t.Errorf("LastSaleDate = %v, want default to now", rec.LastSaleDate)
	}
	if !rec.SalePrice.IsZero() || rec.QuantitySold != 0 {
		t.Errorf("missing fields should default to zero: %+v", rec)
	}
	if len(pub.events) != 1 || pub.events[0] != (publishedEvent{"o1", rec.ID, "create"}) {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestRecordService_ValidationHappensBeforeStore(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService()

	_, err := svc.CreateRecord(ctx, "o1", core.RecordInput{Name: ptr("  "), QuantitySold: ptr(int64(-1))})

	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if !errors.Is(err, core.ErrEmptyName) || !errors.Is(err, core.ErrNegativeQuantity) {
		t.Errorf("missing field errors in %v", err)
	}
	if list, _ := store.List(ctx, "o1"); len(list) != 0 {
		t.Errorf("store was written: %+v", list)
	}
	if len(pub.events) != 0 {
		t.Errorf("events published for invalid input: %+v", pub.events)
	}
}

func TestRecordService_WriteFailureIsWriteError(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService()
	rec, _ := svc.CreateRecord(ctx, "o1", core.RecordInput{Name: ptr("Vaso")})
	pub.events = nil

	backendErr := errors.New("backend unavailable")
	store.FailWrites(backendErr)

	tests := []struct {
		name string
		op   string
		call func() error
	}{
		{"create", "create", func() error {
			_, err := svc.CreateRecord(ctx, "o1", core.RecordInput{Name: ptr("x")})
			return err
		}},
		{"update", "update", func() error {
			_, err := svc.UpdateRecord(ctx, "o1", rec.ID, core.RecordInput{Name: ptr("y")})
			return err
		}},
		{"delete", "delete", func() error {
			return svc.DeleteRecord(ctx, "o1", rec.ID)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var we *core.WriteError
			if !errors.As(err, &we) {
				t.Fatalf("err = %v, want WriteError", err)
			}
			if we.Op != tt.op || !errors.Is(err, backendErr) {
				t.Errorf("WriteError = %+v", we)
			}
		})
	}

	store.FailWrites(nil)
	list, _ := store.List(ctx, "o1")
	if len(list) != 1 || list[0].Name != "Vaso" {
		t.Errorf("state changed after failed writes: %+v", list)
	}
	if len(pub.events) != 0 {
		t.Errorf("events published for failed writes: %+v", pub.events)
	}
}

func TestRecordService_NotFoundPassesThrough(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	if _, err := svc.UpdateRecord(ctx, "o1", "missing", core.RecordInput{}); !errors.Is(err, records.ErrNotFound) {
		t.Errorf("update err = %v", err)
	}
	if err := svc.DeleteRecord(ctx, "o1", "missing"); !errors.Is(err, records.ErrNotFound) {
		t.Errorf("delete err = %v", err)
	}
	var we *core.WriteError
	if err := svc.DeleteRecord(ctx, "o1", "missing"); errors.As(err, &we) {
		t.Errorf("not found should not be a WriteError")
	}
}

func TestRecordService_PublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService()
	pub.err = errors.New("broker down")

	rec, err := svc.CreateRecord(ctx, "o1", core.RecordInput{Name: ptr("Prato")})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if _, err := store.Get(ctx, "o1", rec.ID); err != nil {
		t.Fatalf("record not stored: %v", err)
	}
}

func TestRecordService_NilPublisher(t *testing.T) {
	svc := NewRecordService(memory.NewStore(), nil, nil)
	if _, err := svc.CreateRecord(context.Background(), "o1", core.RecordInput{Name: ptr("x")}); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if svc.Location() != time.Local {
		t.Errorf("nil location should default to time.Local")
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRecordService_DashboardAndExport(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	may := time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC)
	april := time.Date(2024, time.April, 20, 0, 0, 0, 0, time.UTC)
	svc.CreateRecord(ctx, "o1", core.RecordInput{
		Name: ptr("A"), QuantityPurchased: ptr(int64(10)), QuantitySold: ptr(int64(4)),
		PurchasePrice: ptr(core.MoneyFromInt(5)), SalePrice: ptr(core.MoneyFromInt(8)), LastSaleDate: &may,
	})
	svc.CreateRecord(ctx, "o1", core.RecordInput{
		Name: ptr("B"), QuantityPurchased: ptr(int64(2)), QuantitySold: ptr(int64(1)),
		PurchasePrice: ptr(core.MoneyFromInt(1)), SalePrice: ptr(core.MoneyFromInt(3)), LastSaleDate: &april,
	})

	dash, err := svc.Dashboard(ctx, "o1", core.ThisMonth())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if dash.RecordCount != 1 {
		t.Errorf("RecordCount = %d, want 1", dash.RecordCount)
	}
	if !dash.Summary.TotalRevenue.Equal(core.MoneyFromInt(32)) {
		t.Errorf("TotalRevenue = %s, want 32", dash.Summary.TotalRevenue)
	}
	// Inventory cost covers every record regardless of period.
	if !dash.Summary.TotalInventoryCost.Equal(core.MoneyFromInt(52)) {
		t.Errorf("TotalInventoryCost = %s, want 52", dash.Summary.TotalInventoryCost)
	}

	csv, err := svc.Export(ctx, "o1")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if lines := strings.Split(csv, "\n"); len(lines) != 3 {
		t.Errorf("export has %d lines, want 3", len(lines))
	}
}

func TestRecordService_Close(t *testing.T) {
	store := memory.NewStore()
	pub := &fakePublisher{}
	svc := NewRecordService(store, pub, time.UTC)

	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !pub.closed {
		t.Error("publisher not closed")
	}
	if _, err := store.Subscribe(context.Background(), "o1"); !errors.Is(err, records.ErrClosed) {
		t.Errorf("store still open: %v", err)
	}
}
