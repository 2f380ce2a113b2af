package http

import (
	"context"
	"net/http"
	"time"

	applog "faturas/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": s.deps.Now().Format(time.RFC3339),
		"uptime":    s.deps.Now().Sub(s.started).String(),
	}).Write(w)
}

// handleReady reports whether writes would reach the remote store. The
// service still answers while offline, so an unreachable store is reported
// but does not fail readiness; a missing queue does.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.deps.Pinger != nil {
		if err := s.deps.Pinger.Ping(ctx); err != nil {
			checks["remote"] = "unreachable: " + err.Error()
		} else {
			checks["remote"] = "ok"
		}
	} else {
		checks["remote"] = "not_configured"
	}

	if s.deps.Queue == nil {
		checks["queue"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["queue"] = map[string]any{"status": "ok", "pending": s.deps.Queue.Len()}
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	if httpStatus != http.StatusOK {
		s.logger.WarnContext(ctx, "Readiness check failed", "checks", checks)
	}
	NewJSONResponse().Status(httpStatus).Data(map[string]any{
		"status":    status,
		"online":    s.deps.Oracle != nil && s.deps.Oracle.Online(),
		"timestamp": s.deps.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// writeError logs err with the request's logger and sends its mapped
// response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := StatusForError(err)
	logger := applog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		s.structured.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op,
			applog.NewFields().WithErrorType(code))
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			applog.FieldOperation, op,
			applog.FieldStatusCode, status,
			applog.FieldError, err)
	}
	ErrorFor(err).Write(w)
}
