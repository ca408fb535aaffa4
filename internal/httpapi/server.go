package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"traderbot/internal/domain"
	"traderbot/internal/metrics"
	"traderbot/internal/store"
)

const defaultRunLimit = 50

// DashboardServer serves the run-history HTTP API.
type DashboardServer struct {
	runs      store.RunStore
	timeframe string
	log       *slog.Logger
}

// NewDashboardServer creates a new dashboard HTTP server. The timeframe is
// used to annualize metrics for the served runs.
func NewDashboardServer(runs store.RunStore, timeframe string, log *slog.Logger) *DashboardServer {
	return &DashboardServer{runs: runs, timeframe: timeframe, log: log}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *DashboardServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/runs/{id}/equity", s.handleEquity)
	mux.HandleFunc("GET /api/runs/{id}/trades", s.handleTrades)
	mux.HandleFunc("GET /api/runs/{id}/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
}

// Handler returns an http.Handler with CORS middleware.
func (s *DashboardServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// parseRunID extracts the run ID from the "id" path segment.
func parseRunID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid run id")
	}
	return id, nil
}

// parseLimit extracts the result limit from the "limit" query param.
func parseLimit(r *http.Request) int {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultRunLimit
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultRunLimit
	}
	return n
}

func (s *DashboardServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	runType := domain.RunType(r.URL.Query().Get("type"))
	runs, err := s.runs.ListRuns(r.Context(), runType, parseLimit(r))
	if err != nil {
		s.log.Error("listing runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	out := make([]RunJSON, 0, len(runs))
	for _, run := range runs {
		out = append(out, convertRun(run))
	}
	writeJSON(w, RunsResponse{Runs: out})
}

func (s *DashboardServer) handleEquity(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snaps, err := s.runs.ReadSnapshots(r.Context(), id)
	if err != nil {
		s.log.Error("reading snapshots", "runID", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read snapshots")
		return
	}

	writeJSON(w, EquityResponse{RunID: id, Equity: convertSnapshots(snaps)})
}

func (s *DashboardServer) handleTrades(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := s.runs.ReadTrades(r.Context(), id)
	if err != nil {
		s.log.Error("reading trades", "runID", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read trades")
		return
	}

	writeJSON(w, TradesResponse{RunID: id, Trades: convertTrades(trades)})
}

func (s *DashboardServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := s.computeRunMetrics(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, MetricsResponse{RunID: id, Metrics: m})
}

// handleDashboard serves the most recent paper run with its equity curve,
// trades, and metrics in one response.
func (s *DashboardServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListRuns(r.Context(), domain.RunTypePaper, 1)
	if err != nil {
		s.log.Error("listing runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if len(runs) == 0 {
		writeError(w, http.StatusNotFound, "no paper runs recorded")
		return
	}
	run := runs[0]

	snaps, err := s.runs.ReadSnapshots(r.Context(), run.ID)
	if err != nil {
		s.log.Error("reading snapshots", "runID", run.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read snapshots")
		return
	}
	trades, err := s.runs.ReadTrades(r.Context(), run.ID)
	if err != nil {
		s.log.Error("reading trades", "runID", run.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read trades")
		return
	}

	resp := DashboardResponse{
		Run:    convertRun(run),
		Equity: convertSnapshots(snaps),
		Trades: convertTrades(trades),
	}

	if m, err := metrics.Compute(snaps, trades, s.timeframe); err == nil {
		resp.Metrics = sanitizeMetrics(m)
	}

	writeJSON(w, resp)
}

func (s *DashboardServer) computeRunMetrics(ctx context.Context, runID int64) (map[string]float64, error) {
	snaps, err := s.runs.ReadSnapshots(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("reading snapshots: %w", err)
	}
	trades, err := s.runs.ReadTrades(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("reading trades: %w", err)
	}
	m, err := metrics.Compute(snaps, trades, s.timeframe)
	if err != nil {
		return nil, fmt.Errorf("computing metrics for run %d: %w", runID, err)
	}
	return sanitizeMetrics(m), nil
}

// sanitizeMetrics drops NaN and infinite values, which JSON cannot encode.
// ProfitFactor is NaN when a run has no losing trades.
func sanitizeMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[k] = v
	}
	return out
}
