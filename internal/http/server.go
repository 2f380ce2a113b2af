package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"faturas/internal/connectivity"
	applog "faturas/internal/log"
	"faturas/internal/metrics"
	"faturas/internal/middleware/ratelimit"
	"faturas/internal/middleware/security"
	"faturas/internal/middleware/trace"
	"faturas/internal/queue"
	"faturas/internal/services"
)

// Deps wires the API to the write path. Pinger, Metrics and Logger are
// optional.
type Deps struct {
	Invoices *services.InvoiceService
	Sync     *services.SyncProcessor
	Queue    *queue.Store
	Oracle   connectivity.Oracle
	Pinger   connectivity.Pinger
	Metrics  *metrics.Metrics
	Logger   *applog.Logger

	RateLimit ratelimit.Config
	Now       func() time.Time
}

type Server struct {
	http.Server
	deps       Deps
	limiter    *ratelimit.Limiter
	tracer     *trace.Middleware
	logger     *applog.Logger
	structured *applog.StructuredLogger
	started    time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger.WithComponent(applog.ComponentHTTP)
	clientIP := security.NewClientIP()

	s := &Server{
		deps:       deps,
		limiter:    ratelimit.NewLimiter(deps.RateLimit),
		tracer:     trace.NewMiddleware(clientIP.Extract, logger),
		logger:     logger,
		structured: applog.NewStructuredLogger(logger),
		started:    deps.Now(),
	}

	mux := http.NewServeMux()
	s.handle(mux, "GET /healthz", s.handleHealth)
	s.handle(mux, "GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	s.handle(mux, "GET /api/invoices", s.handleListInvoices)
	s.handle(mux, "POST /api/invoices", s.handleCreateInvoice)
	s.handle(mux, "PATCH /api/invoices/{id}", s.handleUpdateInvoice)
	s.handle(mux, "DELETE /api/invoices/{id}", s.handleDeleteInvoice)
	s.handle(mux, "POST /api/invoices/{id}/payments", s.handleAddPayment)
	s.handle(mux, "POST /api/payments/batch", s.handleBatchPayments)
	s.handle(mux, "GET /api/summary", s.handleSummary)

	s.handle(mux, "GET /api/sync", s.handleSyncStatus)
	s.handle(mux, "POST /api/sync", s.handleSyncNow)
	s.handle(mux, "DELETE /api/sync/queue", s.handleClearQueue)

	var h http.Handler = mux
	h = s.limiter.Middleware(clientIP.Extract, isWrite, s.onRateLimit)(h)
	h = applog.RequestIDMiddleware(trace.RequestID)(h)
	h = applog.Middleware(logger)(h)
	h = s.tracer.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// handle registers fn under pattern and records its latency under the
// pattern rather than the raw path.
func (s *Server) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	method, route := splitPattern(pattern)
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		fn(rw, r)
		s.deps.Metrics.ObserveHTTP(method, route, rw.code, time.Since(start))
	})
}

func splitPattern(pattern string) (method, route string) {
	if method, route, ok := strings.Cut(pattern, " "); ok {
		return method, route
	}
	return "", pattern
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func isWrite(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, try again later").Write(w)
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
