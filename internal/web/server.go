// Package web serves the operator dashboard and the session control API.
//
// Routes:
//
//	GET  /api/session/status — controller status snapshot
//	GET  /api/logs?after=N   — log entries with id > N
//	POST /api/session/start  — start the voice session
//	POST /api/session/stop   — stop the voice session
//	GET  /metrics            — Prometheus scrape endpoint
//	GET  /healthz, /readyz   — probes
//	GET  /                   — embedded dashboard
//
// All responses carry Cache-Control: no-store so the dashboard always polls
// fresh state.
package web

import (
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxline/voxline/internal/controller"
	"github.com/voxline/voxline/internal/health"
	"github.com/voxline/voxline/internal/observe"
)

//go:embed static
var staticFS embed.FS

// Server exposes the control surface over HTTP.
type Server struct {
	controller *controller.Controller
	health     *health.Handler
	metrics    *observe.Metrics
}

// New creates a Server around the given controller. health and metrics may
// be nil; probes are then omitted and the default metrics instance is used.
func New(c *controller.Controller, h *health.Handler, m *observe.Metrics) *Server {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Server{controller: c, health: h, metrics: m}
}

// Handler returns the fully assembled HTTP handler: routes, no-store cache
// headers, and the observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session/status", s.handleStatus)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("POST /api/session/start", s.handleStart)
	mux.HandleFunc("POST /api/session/stop", s.handleStop)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("web: embedded static tree missing: " + err.Error())
	}
	mux.Handle("GET /", http.FileServerFS(static))

	return observe.Middleware(s.metrics)(noStore(mux))
}

// noStore disables caching on every response.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// logsResponse wraps the log list so the top-level JSON value is an object.
type logsResponse struct {
	Logs []controller.LogEntry `json:"logs"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		// Malformed values fall back to the full history.
		after, _ = strconv.ParseInt(v, 10, 64)
		if after < 0 {
			after = 0
		}
	}

	logs := s.controller.Logs(after)
	if logs == nil {
		logs = []controller.LogEntry{}
	}
	writeJSON(w, http.StatusOK, logsResponse{Logs: logs})
}

// startResponse is the body for the start and stop endpoints.
type startResponse struct {
	OK     bool              `json:"ok"`
	Reason string            `json:"reason,omitempty"`
	Status controller.Status `json:"status"`
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	started := s.controller.Start()
	status := s.controller.Status()
	if !started && status.Running {
		writeJSON(w, http.StatusOK, startResponse{OK: false, Reason: "already_running", Status: status})
		return
	}
	writeJSON(w, http.StatusOK, startResponse{OK: true, Status: status})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	stopped := s.controller.Stop()
	writeJSON(w, http.StatusOK, startResponse{OK: stopped, Status: s.controller.Status()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
