package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"estoque/internal/core"
	"estoque/internal/identity"
	applog "estoque/internal/log"
	"estoque/internal/middleware/ratelimit"
	"estoque/internal/middleware/security"
	"estoque/internal/middleware/trace"
)

type (
	// RecordService is the record side the handlers need.
	RecordService interface {
		CreateRecord(ctx context.Context, ownerID string, in core.RecordInput) (core.InventoryRecord, error)
		UpdateRecord(ctx context.Context, ownerID, id string, in core.RecordInput) (core.InventoryRecord, error)
		DeleteRecord(ctx context.Context, ownerID, id string) error
		ListRecords(ctx context.Context, ownerID string) ([]core.InventoryRecord, error)
		Dashboard(ctx context.Context, ownerID string, p core.Period) (core.Dashboard, error)
		Export(ctx context.Context, ownerID string) (string, error)
		Ping(ctx context.Context) error
		Location() *time.Location
	}

	IdentityService interface {
		SignUp(ctx context.Context, email, password, displayName string) (identity.Session, error)
		SignIn(ctx context.Context, email, password string) (identity.Session, error)
		SignOut(ctx context.Context, token string) error
		Authenticate(ctx context.Context, token string) (core.Owner, error)
	}

	// DashboardStreamer pushes a recomputed dashboard on every record snapshot.
	DashboardStreamer interface {
		Stream(ctx context.Context, token string, p core.Period, emit func(core.Dashboard) error) error
		Active() int64
	}
)

// Options configures NewServer. Records, Identity and Dashboards are required.
type Options struct {
	Addr       string
	Records    RecordService
	Identity   IdentityService
	Dashboards DashboardStreamer
	Formatter  *core.Formatter
	Logger     *applog.Logger

	// AuthRateLimit is the number of auth requests per client per minute.
	AuthRateLimit int
}

// appMetrics tracks application-level counters
type appMetrics struct {
	uptime         time.Time
	recordsWritten int64
	authFailures   int64
	streamsOpened  int64
}

type Server struct {
	http.Server

	records    RecordService
	identity   IdentityService
	dashboards DashboardStreamer
	formatter  *core.Formatter
	logger     *applog.Logger

	// Middleware components
	authLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	headers          *security.HeadersMiddleware

	appMetrics   *appMetrics
	shutdownOnce sync.Once

	// streams is cancelled on Shutdown so open dashboard streams end.
	streams     context.Context
	stopStreams context.CancelFunc
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	formatter := opts.Formatter
	if formatter == nil {
		formatter = core.DefaultFormatter()
	}

	detector := security.NewDetector()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		records:          opts.Records,
		identity:         opts.Identity,
		dashboards:       opts.Dashboards,
		formatter:        formatter,
		logger:           logger.WithComponent(applog.ComponentHTTP),
		authLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.AuthRateLimit}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP),
		headers:          security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}

	s.streams, s.stopStreams = context.WithCancel(context.Background())
	s.RegisterOnShutdown(s.stopStreams)

	mux := http.NewServeMux()
	s.routes(mux)
	s.Handler = s.middleware(mux)

	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	limited := s.authLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimit)

	// Identity
	mux.Handle("POST /api/auth/signup", limited(http.HandlerFunc(s.handleSignUp)))
	mux.Handle("POST /api/auth/signin", limited(http.HandlerFunc(s.handleSignIn)))
	mux.HandleFunc("POST /api/auth/signout", s.handleSignOut)
	mux.Handle("GET /api/auth/me", s.requireOwner(s.handleMe))

	// Records
	mux.Handle("GET /api/records", s.requireOwner(s.handleListRecords))
	mux.Handle("POST /api/records", s.requireOwner(s.handleCreateRecord))
	mux.Handle("PATCH /api/records/{id}", s.requireOwner(s.handleUpdateRecord))
	mux.Handle("DELETE /api/records/{id}", s.requireOwner(s.handleDeleteRecord))

	// Dashboard and reports
	mux.Handle("GET /api/dashboard", s.requireOwner(s.handleDashboard))
	mux.HandleFunc("GET /api/dashboard/stream", s.handleDashboardStream)
	mux.Handle("GET /api/reports/profit", s.requireOwner(s.handleProfitReport))
	mux.Handle("GET /api/reports/revenue-cost", s.requireOwner(s.handleRevenueCostReport))
	mux.Handle("GET /api/export.csv", s.requireOwner(s.handleExport))

	// Ops
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
}

// middleware wraps the mux, outermost first: request logger, tracing,
// request-scoped logger fields, security headers, suspicious request detection.
func (s *Server) middleware(next http.Handler) http.Handler {
	h := s.securityDetector.Middleware(next)
	h = security.NoStoreMiddleware(h)
	h = s.headers.Middleware(h)
	h = applog.RequestIDMiddleware(trace.RequestIDFromRequest)(h)
	h = s.traceMiddleware.Middleware(h)
	return applog.Middleware(s.logger)(h)
}

// requireOwner resolves the bearer token and stores the owner in the request
// context.
func (s *Server) requireOwner(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := s.identity.Authenticate(r.Context(), BearerToken(r))
		if err != nil {
			s.writeError(w, r, applog.OpValidate, err)
			return
		}
		ctx := withOwner(r.Context(), owner)
		logger := applog.FromContext(ctx).With(applog.FieldOwnerID, owner.ID)
		ctx = context.WithValue(ctx, applog.LoggerContextKey, logger)
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "too many requests, please try again later").
		Header("Retry-After", "60").
		TriggerErrorNotification("Too many attempts, please wait a minute").
		Write(w)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.authLimiter != nil {
			s.authLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) countAuthFailure() {
	atomic.AddInt64(&s.appMetrics.authFailures, 1)
}
