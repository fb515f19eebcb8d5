package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().JSON(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if err := s.records.Ping(ctx); err != nil {
		checks["record_store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["record_store"] = "ok"
	}

	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.authLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewHTMXResponse().
		Status(httpStatus).
		JSON(map[string]interface{}{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		}).
		Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.authLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	recordsWritten := atomic.LoadInt64(&s.appMetrics.recordsWritten)
	authFailures := atomic.LoadInt64(&s.appMetrics.authFailures)
	streamsOpened := atomic.LoadInt64(&s.appMetrics.streamsOpened)
	uptime := time.Since(s.appMetrics.uptime)

	w.WriteHeader(http.StatusOK)

	// Prometheus-like text format
	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_request_duration_avg_microseconds Average request duration\n")
	fmt.Fprintf(w, "# TYPE http_request_duration_avg_microseconds gauge\n")
	fmt.Fprintf(w, "http_request_duration_avg_microseconds %d\n\n", traceMetrics.AverageResponseTime)

	fmt.Fprintf(w, "# HELP records_written_total Total record creates, updates and deletes\n")
	fmt.Fprintf(w, "# TYPE records_written_total counter\n")
	fmt.Fprintf(w, "records_written_total %d\n\n", recordsWritten)

	fmt.Fprintf(w, "# HELP auth_failures_total Total rejected sign-ins and tokens\n")
	fmt.Fprintf(w, "# TYPE auth_failures_total counter\n")
	fmt.Fprintf(w, "auth_failures_total %d\n\n", authFailures)

	fmt.Fprintf(w, "# HELP dashboard_streams_total Total dashboard streams opened\n")
	fmt.Fprintf(w, "# TYPE dashboard_streams_total counter\n")
	fmt.Fprintf(w, "dashboard_streams_total %d\n\n", streamsOpened)

	fmt.Fprintf(w, "# HELP dashboard_streams_active Currently open dashboard streams\n")
	fmt.Fprintf(w, "# TYPE dashboard_streams_active gauge\n")
	fmt.Fprintf(w, "dashboard_streams_active %s\n\n", s.activeStreams())

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP invalid_forwarded_ip_total Forwarded client IPs that failed to parse\n")
	fmt.Fprintf(w, "# TYPE invalid_forwarded_ip_total counter\n")
	fmt.Fprintf(w, "invalid_forwarded_ip_total %d\n\n", securityMetrics.InvalidIPAttempts)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", uptime.Seconds())
}
