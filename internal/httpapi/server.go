// Package httpapi exposes the approval & query surface spec.md §6 names:
// submit_signal, decide, list_pending_approvals, get_issue, list_issues,
// plus the audit verification surface's verify_chain. It is deliberately
// thin — a JSON-over-HTTP adapter in front of signalbus.Bus, store.Store,
// approval.Coordinator, and audit.Log — since the actual lifecycle work
// happens in internal/issue and internal/orchestrator; this package owns no
// business logic of its own. Grounded on the teacher's core/middleware.go
// (status-capturing ResponseWriter wrapper, request logging by outcome) and
// its net/http + otelhttp instrumentation idiom (telemetry/http.go).
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/approval"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/audit"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/logging"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/signalbus"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/store"
)

// Server wires the five operations spec.md §6 requires, plus verify_chain,
// onto a *http.ServeMux. It owns no goroutines of its own — callers embed
// Handler() in whatever http.Server (or httptest.Server) they run.
type Server struct {
	bus       signalbus.Bus
	st        store.Store
	approvals *approval.Coordinator
	auditLog  *audit.Log
	logger    logging.Logger
}

// New builds a Server.
func New(bus signalbus.Bus, st store.Store, approvals *approval.Coordinator, auditLog *audit.Log, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Server{bus: bus, st: st, approvals: approvals, auditLog: auditLog, logger: logger}
}

// Handler returns the fully wired, traced, logged HTTP handler. serviceName
// is the otelhttp instrumentation label.
func (s *Server) Handler(serviceName string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/signals", s.handleSubmitSignal)
	mux.HandleFunc("/v1/approvals/decide", s.handleDecide)
	mux.HandleFunc("/v1/approvals/pending", s.handleListPendingApprovals)
	mux.HandleFunc("/v1/issues/", s.handleGetIssue)
	mux.HandleFunc("/v1/issues", s.handleListIssues)
	mux.HandleFunc("/v1/audit/verify", s.handleVerifyChain)

	traced := otelhttp.NewHandler(mux, serviceName)
	return s.loggingMiddleware(traced)
}

// statusWriter captures the status code the handler wrote, so the logging
// middleware can report it after ServeHTTP returns. Grounded on the
// teacher's core/middleware.go responseWriter wrapper.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.status = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// loggingMiddleware logs every request's outcome, matching the teacher's
// LoggingMiddleware level selection: errors at Error/Warn, everything else
// at Info.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		fields := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		switch {
		case wrapped.status >= 500:
			s.logger.Error("http request error", fields)
		case wrapped.status >= 400:
			s.logger.Warn("http request client error", fields)
		default:
			s.logger.Info("http request", fields)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind,omitempty"`
}

// writeError maps a domain.ClassifiedError's Kind onto the HTTP status code
// spec.md §7's taxonomy implies: input/state errors are the caller's
// fault (4xx), dependency/integrity failures are ours (5xx, except
// integrity findings are reported, not hidden, so callers can act on them).
func writeError(w http.ResponseWriter, err error) {
	kind, _ := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.KindInput:
		status = http.StatusBadRequest
	case domain.KindState:
		status = http.StatusConflict
	case domain.KindRateLimited:
		status = http.StatusTooManyRequests
	case domain.KindIntegrity:
		status = http.StatusUnprocessableEntity
	case domain.KindDependency:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}
