package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gosimple/slug"

	"estoque/internal/core"
	"estoque/internal/dashboard"
	applog "estoque/internal/log"
)

// dashboardView is a dashboard with its totals rendered for display.
type dashboardView struct {
	core.Dashboard
	Display summaryDisplay `json:"display"`
}

type summaryDisplay struct {
	TotalRevenue         string `json:"totalRevenue"`
	TotalCostOfGoodsSold string `json:"totalCostOfGoodsSold"`
	TotalNetProfit       string `json:"totalNetProfit"`
	TotalInventoryCost   string `json:"totalInventoryCost"`
	OverallBalance       string `json:"overallBalance"`
}

func (s *Server) dashboardView(d core.Dashboard) dashboardView {
	sum := d.Summary
	return dashboardView{
		Dashboard: d,
		Display: summaryDisplay{
			TotalRevenue:         s.formatter.Currency(sum.TotalRevenue),
			TotalCostOfGoodsSold: s.formatter.Currency(sum.TotalCostOfGoodsSold),
			TotalNetProfit:       s.formatter.Currency(sum.TotalNetProfit),
			TotalInventoryCost:   s.formatter.Currency(sum.TotalInventoryCost),
			OverallBalance:       s.formatter.Currency(sum.OverallBalance),
		},
	}
}

// loadDashboard parses ?period= and computes the owner's dashboard. On
// failure the error response has been written.
func (s *Server) loadDashboard(w http.ResponseWriter, r *http.Request) (core.Dashboard, bool) {
	p, err := ParsePeriodParam(r.URL.Query())
	if err != nil {
		s.writeError(w, r, applog.OpParse, err)
		return core.Dashboard{}, false
	}
	d, err := s.records.Dashboard(r.Context(), ownerFrom(r.Context()).ID, p)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return core.Dashboard{}, false
	}
	return d, true
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadDashboard(w, r)
	if !ok {
		return
	}
	NewHTMXResponse().JSON(s.dashboardView(d)).Write(w)
}

// chartPoint is one bar of a report. Labels use the compact currency form.
type chartPoint struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Values map[string]string `json:"values"`
	Labels map[string]string `json:"labels"`
}

func (s *Server) handleProfitReport(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadDashboard(w, r)
	if !ok {
		return
	}
	points := make([]chartPoint, 0, len(d.ProfitRanking))
	for _, pp := range d.ProfitRanking {
		points = append(points, chartPoint{
			ID:     pp.ID,
			Name:   pp.Name,
			Values: map[string]string{"profit": pp.Profit.Fixed()},
			Labels: map[string]string{"profit": s.formatter.Compact(pp.Profit)},
		})
	}
	writeReport(w, d.Period, points)
}

func (s *Server) handleRevenueCostReport(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadDashboard(w, r)
	if !ok {
		return
	}
	points := make([]chartPoint, 0, len(d.RevenueCost))
	for _, rc := range d.RevenueCost {
		points = append(points, chartPoint{
			ID:   rc.ID,
			Name: rc.Name,
			Values: map[string]string{
				"revenue": rc.Revenue.Fixed(),
				"cost":    rc.Cost.Fixed(),
			},
			Labels: map[string]string{
				"revenue": s.formatter.Compact(rc.Revenue),
				"cost":    s.formatter.Compact(rc.Cost),
			},
		})
	}
	writeReport(w, d.Period, points)
}

func writeReport(w http.ResponseWriter, period string, points []chartPoint) {
	NewHTMXResponse().JSON(struct {
		Period string       `json:"period"`
		Points []chartPoint `json:"points"`
	}{period, points}).Write(w)
}

// handleExport downloads the owner's records as CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFrom(ctx)

	text, err := s.records.Export(ctx, owner.ID)
	if err != nil {
		s.writeError(w, r, applog.OpExport, err)
		return
	}

	NewHTMXResponse().
		Header("Content-Type", "text/csv; charset=utf-8").
		Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exportFilename(owner))).
		BodyString(text).
		Write(w)
}

func exportFilename(owner core.Owner) string {
	base := slug.Make(owner.DisplayName)
	if base == "" {
		base = "inventory"
	} else {
		base += "-inventory"
	}
	return base + ".csv"
}

// streamToken reads the session token from the Authorization header or, for
// EventSource clients that cannot set headers, from ?access_token=.
func streamToken(r *http.Request) string {
	if token := BearerToken(r); token != "" {
		return token
	}
	return r.URL.Query().Get("access_token")
}

// handleDashboardStream serves the live dashboard as Server-Sent Events: one
// "dashboard" event per record snapshot, and a final "signed-out" event when
// the session ends.
func (s *Server) handleDashboardStream(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePeriodParam(r.URL.Query())
	if err != nil {
		s.writeError(w, r, applog.OpParse, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.streams, cancel)
	defer stop()

	rc := http.NewResponseController(w)
	started := false
	emit := func(d core.Dashboard) error {
		data, err := json.Marshal(s.dashboardView(d))
		if err != nil {
			return fmt.Errorf("encode dashboard: %w", err)
		}
		if !started {
			started = true
			atomic.AddInt64(&s.appMetrics.streamsOpened, 1)
			h := w.Header()
			h.Set("Content-Type", "text/event-stream")
			h.Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
		}
		if err := writeEvent(w, "dashboard", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	err = s.dashboards.Stream(ctx, streamToken(r), p, emit)
	switch {
	case !started && err != nil && ctx.Err() == nil:
		s.writeError(w, r, applog.OpStream, err)
	case started && errors.Is(err, dashboard.ErrSignedOut):
		if werr := writeEvent(w, "signed-out", []byte(`{}`)); werr == nil {
			_ = rc.Flush()
		}
	case err != nil && ctx.Err() == nil:
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Dashboard stream ended",
			applog.FieldOperation, applog.OpStream,
			applog.FieldError, err)
	}
}

func writeEvent(w http.ResponseWriter, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// activeStreams is reported by /metrics.
func (s *Server) activeStreams() string {
	if s.dashboards == nil {
		return "0"
	}
	return strconv.FormatInt(s.dashboards.Active(), 10)
}
