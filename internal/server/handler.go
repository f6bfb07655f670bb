// Package server exposes covrun over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/psantana5/covrun/internal/coverage"
	"github.com/psantana5/covrun/internal/framework"
	"github.com/psantana5/covrun/internal/history"
	"github.com/psantana5/covrun/internal/report"
	"github.com/psantana5/covrun/pkg/logging"
)

const (
	defaultHistoryLimit = 50
	failureLogSize      = 100
)

// Handler serves the covrun API. Every instrument request gets its own
// orchestrator whose logger records the run's lines for the response.
type Handler struct {
	deps         coverage.Dependencies
	runOpts      []coverage.Option
	resolverOpts []framework.Option
	logger       *logging.Logger
	history      history.Store
	failures     *report.FailureLog
	gatherer     prometheus.Gatherer
	inflight     atomic.Int64
}

// NewHandler creates a handler running deps. deps.Logger is replaced per
// request.
func NewHandler(deps coverage.Dependencies, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewLogger(logging.ERROR, false)
	}
	return &Handler{
		deps:     deps,
		logger:   logger,
		failures: report.NewFailureLog(failureLogSize),
	}
}

// SetRunOptions sets the orchestrator options applied to every run.
func (h *Handler) SetRunOptions(opts ...coverage.Option) {
	h.runOpts = opts
}

// SetResolverOptions sets the options for /v1/resolve lookups.
func (h *Handler) SetResolverOptions(opts ...framework.Option) {
	h.resolverOpts = opts
}

// SetHistory enables /v1/history and recording of every run.
func (h *Handler) SetHistory(s history.Store) {
	h.history = s
}

// SetGatherer enables /metrics.
func (h *Handler) SetGatherer(g prometheus.Gatherer) {
	h.gatherer = g
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/instrument", h.Instrument).Methods("POST")
	r.HandleFunc("/v1/resolve", h.Resolve).Methods("GET")
	r.HandleFunc("/v1/history", h.History).Methods("GET")
	r.HandleFunc("/v1/history/{id}", h.GetRun).Methods("GET")
	r.HandleFunc("/v1/failures", h.Failures).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
	if h.gatherer != nil {
		r.Handle("/metrics", report.Handler(h.gatherer)).Methods("GET")
	}
}

// InstrumentRequest is the body of POST /v1/instrument.
type InstrumentRequest struct {
	Module  string `json:"module"`
	Symbols string `json:"symbols,omitempty"`
}

// LogLine is one log line of a run.
type LogLine struct {
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// InstrumentResponse carries the outcome of a run with its log.
type InstrumentResponse struct {
	Outcome *coverage.Outcome `json:"outcome"`
	Summary string            `json:"summary"`
	Log     []LogLine         `json:"log"`
}

// Instrument runs the orchestrator on the requested module. A failed run
// answers 422 with the same body shape.
func (h *Handler) Instrument(w http.ResponseWriter, r *http.Request) {
	var req InstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Module == "" {
		http.Error(w, "module is required", http.StatusBadRequest)
		return
	}

	h.inflight.Add(1)
	defer h.inflight.Add(-1)

	rec := logging.NewRecorder(h.logger)
	deps := h.deps
	deps.Logger = rec
	o := coverage.NewOrchestrator(deps, h.runOpts...)

	out := o.RunTarget(r.Context(), coverage.Target{ModulePath: req.Module, SymbolPath: req.Symbols})
	result := h.record(out)

	resp := InstrumentResponse{Outcome: out, Summary: result.Summary()}
	for _, e := range rec.Entries() {
		resp.Log = append(resp.Log, LogLine{Level: e.Level.String(), Message: e.Message, Fields: e.Fields})
	}

	status := http.StatusOK
	if !out.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// InFlight returns the number of runs in progress.
func (h *Handler) InFlight() int64 {
	return h.inflight.Load()
}

func (h *Handler) record(out *coverage.Outcome) *report.Result {
	result := report.NewResult(out)
	result.LogSummary(h.logger)
	h.failures.Record(result)
	if h.history != nil {
		if err := h.history.Record(result); err != nil {
			h.logger.Error("failed to record run", map[string]interface{}{"run_id": result.RunID, "error": err.Error()})
		}
	}
	return result
}

// Resolve looks up one library for a module.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	module, library := q.Get("module"), q.Get("library")
	if module == "" || library == "" {
		http.Error(w, "module and library parameters are required", http.StatusBadRequest)
		return
	}

	res, err := framework.NewResolver(module, h.resolverOpts...)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open module: %v", err), http.StatusInternalServerError)
		return
	}
	result, err := res.TryResolve(framework.Request{
		Library: library,
		Version: q.Get("version"),
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("Resolution failed: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"library":    library,
		"deployment": res.Deployment().String(),
		"resolved":   result.Resolved,
		"ambiguous":  result.Ambiguous,
		"paths":      nonNil(result.Paths),
	})
}

// History lists recorded runs, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "History is disabled", http.StatusServiceUnavailable)
		return
	}

	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.history.List(limit)
	if err != nil {
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*report.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun returns one recorded run.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "History is disabled", http.StatusServiceUnavailable)
		return
	}

	run, err := h.history.Get(mux.Vars(r)["id"])
	if errors.Is(err, history.ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Failures returns the most recent failed runs.
func (h *Handler) Failures(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recent := h.failures.GetRecent(n)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"failures": recent,
		"count":    len(recent),
	})
}

// Health reports whether the history store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.history != nil {
		if err := h.history.HealthCheck(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
