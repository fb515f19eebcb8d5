package http

import (
	"net/http"
	"sync/atomic"
	"time"

	"estoque/internal/core"
	applog "estoque/internal/log"
)

// recordView is a record with its derived figures and display strings.
type recordView struct {
	core.InventoryRecord
	CurrentStock     int64         `json:"currentStock"`
	IndividualProfit core.Money    `json:"individualProfit"`
	TotalProfit      core.Money    `json:"totalProfit"`
	Display          recordDisplay `json:"display"`
}

type recordDisplay struct {
	PurchasePrice    string `json:"purchasePrice"`
	SalePrice        string `json:"salePrice"`
	IndividualProfit string `json:"individualProfit"`
	TotalProfit      string `json:"totalProfit"`
}

func (s *Server) recordView(r core.InventoryRecord) recordView {
	return recordView{
		InventoryRecord:  r,
		CurrentStock:     r.CurrentStock(),
		IndividualProfit: r.IndividualProfit(),
		TotalProfit:      r.TotalProfit(),
		Display: recordDisplay{
			PurchasePrice:    s.formatter.Currency(r.PurchasePrice),
			SalePrice:        s.formatter.Currency(r.SalePrice),
			IndividualProfit: s.formatter.Currency(r.IndividualProfit()),
			TotalProfit:      s.formatter.Currency(r.TotalProfit()),
		},
	}
}

// handleListRecords lists the owner's records, optionally narrowed to the
// records sold in ?period=.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFrom(ctx)

	p, err := ParsePeriodParam(r.URL.Query())
	if err != nil {
		s.writeError(w, r, applog.OpParse, err)
		return
	}

	all, err := s.records.ListRecords(ctx, owner.ID)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	selected := core.SelectByPeriod(all, p, time.Now(), s.records.Location())

	views := make([]recordView, 0, len(selected))
	for _, rec := range selected {
		views = append(views, s.recordView(rec))
	}

	NewHTMXResponse().JSON(struct {
		Period  string       `json:"period"`
		Records []recordView `json:"records"`
		Count   int          `json:"count"`
	}{p.String(), views, len(views)}).Write(w)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFrom(ctx)

	in, ok := s.decodeRecord(w, r)
	if !ok {
		return
	}

	rec, err := s.records.CreateRecord(ctx, owner.ID, in)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	s.recordWritten(r, applog.OpCreate, rec)

	NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerRecordCreated(rec.ID).
		TriggerFormReset().
		TriggerSuccessNotification("Record saved").
		JSON(s.recordView(rec)).
		Write(w)
}

// handleUpdateRecord applies the fields present in the body. Absent fields
// keep their stored values.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFrom(ctx)

	in, ok := s.decodeRecord(w, r)
	if !ok {
		return
	}

	rec, err := s.records.UpdateRecord(ctx, owner.ID, r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	s.recordWritten(r, applog.OpUpdate, rec)

	NewHTMXResponse().
		TriggerRecordUpdated(rec.ID).
		TriggerSuccessNotification("Record updated").
		JSON(s.recordView(rec)).
		Write(w)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFrom(ctx)
	id := r.PathValue("id")

	if err := s.records.DeleteRecord(ctx, owner.ID, id); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	s.recordWritten(r, applog.OpDelete, core.InventoryRecord{ID: id})

	NewHTMXResponse().
		Status(http.StatusNoContent).
		TriggerRecordDeleted(id).
		TriggerSuccessNotification("Record deleted").
		Write(w)
}

func (s *Server) decodeRecord(w http.ResponseWriter, r *http.Request) (core.RecordInput, bool) {
	var req recordRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return core.RecordInput{}, false
	}
	in, err := req.toInput(s.records.Location())
	if err != nil {
		s.writeError(w, r, applog.OpParse, err)
		return core.RecordInput{}, false
	}
	return in, true
}

func (s *Server) recordWritten(r *http.Request, op string, rec core.InventoryRecord) {
	atomic.AddInt64(&s.appMetrics.recordsWritten, 1)
	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogRecordWritten(r.Context(), op, ownerFrom(r.Context()).ID, rec.ID, rec.Name)
}
