// Package api provides HTTP and WebSocket API endpoints for the ranking engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/logging"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/metrics"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

const defaultPageLimit = 100

// Server represents the HTTP API server.
type Server struct {
	addr        string
	engine      *engine.Engine
	waitTimeout time.Duration
	server      *http.Server
	logger      *logging.Logger

	tlsCert string
	tlsKey  string

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, eng *engine.Engine, waitTimeout time.Duration, logger *logging.Logger) *Server {
	return &Server{
		addr:        addr,
		engine:      eng,
		waitTimeout: waitTimeout,
		logger:      logger,
	}
}

// EnableTLS makes Start serve HTTPS with the given certificate pair.
// Must be called before Start.
func (s *Server) EnableTLS(certFile, keyFile string) {
	s.tlsCert = certFile
	s.tlsKey = keyFile
}

// Addr returns the bound listen address, or "" before Start has bound one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/rankings", s.handleRankings)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/api/refresh/status", s.handleRefreshStatus)
	mux.HandleFunc("/api/sources", s.handleSources)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("HTTP server listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	var serveErr error
	if s.tlsCert != "" && s.tlsKey != "" {
		s.logger.Info("Starting HTTPS server", "addr", s.addr)
		serveErr = s.server.ServeTLS(ln, s.tlsCert, s.tlsKey)
	} else {
		s.logger.Info("Starting HTTP server", "addr", s.addr)
		serveErr = s.server.Serve(ln)
	}
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", serveErr)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleHealth handles /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/health", "200", time.Since(start))
	}()

	healthy := 0
	for _, src := range s.engine.Sources() {
		if src.IsHealthy() {
			healthy++
		}
	}
	s.sendJSON(w, map[string]interface{}{
		"status":          "ok",
		"sources_total":   len(s.engine.Sources()),
		"sources_healthy": healthy,
	})
}

// rankingResponse is the JSON envelope for /api/rankings.
type rankingResponse struct {
	Period    string               `json:"period"`
	Scope     string               `json:"scope"`
	Total     int                  `json:"total"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
	Freshness engine.FreshnessInfo `json:"freshness"`
	Records   []model.AssetRecord  `json:"records"`
}

// handleRankings handles GET /api/rankings with period, scope, limit and
// offset query parameters.
func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest(r.URL.Path, status, time.Since(start))
	}()

	if r.Method != http.MethodGet {
		status = "405"
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	period, err := parsePeriodParam(r.URL.Query().Get("period"))
	if err != nil {
		status = "400"
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	scope := r.URL.Query().Get("scope")
	limit := parseIntParam(r.URL.Query().Get("limit"), defaultPageLimit)
	offset := parseIntParam(r.URL.Query().Get("offset"), 0)
	if limit <= 0 || offset < 0 {
		status = "400"
		http.Error(w, "limit must be > 0 and offset >= 0", http.StatusBadRequest)
		return
	}
	force := r.URL.Query().Get("force") == "true"

	ranking, err := s.engine.GetRanking(r.Context(), period, scope, engine.Options{
		Force: force,
		Wait:  s.waitTimeout,
	})
	if err != nil {
		if errors.Is(err, engine.ErrNoData) {
			status = "503"
			http.Error(w, "no data available yet", http.StatusServiceUnavailable)
			return
		}
		status = "500"
		s.logger.Error("Failed to get ranking", "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	total := len(ranking.Records)
	page := paginate(ranking.Records, limit, offset)

	s.sendJSON(w, rankingResponse{
		Period:    string(ranking.Period),
		Scope:     ranking.Scope,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
		Freshness: ranking.Freshness,
		Records:   page,
	})
}

// refreshRequest is the JSON body for POST /api/refresh.
type refreshRequest struct {
	Period  string   `json:"period,omitempty"`
	Periods []string `json:"periods,omitempty"`
	Scope   string   `json:"scope,omitempty"`
	Force   bool     `json:"force,omitempty"`
}

// handleRefresh handles POST /api/refresh.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "202"
	defer func() {
		metrics.RecordHTTPRequest(r.URL.Path, status, time.Since(start))
	}()

	if r.Method != http.MethodPost {
		status = "405"
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = "400"
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	raw := req.Periods
	if len(raw) == 0 && req.Period != "" {
		raw = []string{req.Period}
	}
	if len(raw) == 0 {
		raw = []string{string(model.Period24H)}
	}

	periods := make([]model.Period, 0, len(raw))
	for _, p := range raw {
		period, err := model.ParsePeriod(p)
		if err != nil {
			status = "400"
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		periods = append(periods, period)
	}

	ids := s.engine.TriggerAll(r.Context(), req.Scope, periods, req.Force)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"job_ids": ids}); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// handleRefreshStatus handles GET /api/refresh/status?id=<job-id>.
func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest(r.URL.Path, status, time.Since(start))
	}()

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		status = "400"
		http.Error(w, "id parameter required", http.StatusBadRequest)
		return
	}

	view, err := s.engine.RefreshStatus(id)
	if err != nil {
		status = "404"
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	s.sendJSON(w, view)
}

// sourceStatus describes one configured source in /api/sources.
type sourceStatus struct {
	Name       string    `json:"name"`
	Healthy    bool      `json:"healthy"`
	LastUpdate time.Time `json:"last_update"`
	Assets     int       `json:"assets"`
}

// handleSources handles GET /api/sources: source health plus how many assets
// in the current default ranking each source's price won.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest(r.URL.Path, status, time.Since(start))
	}()

	distribution := map[string]int{}
	ranking, err := s.engine.GetRanking(r.Context(), model.Period24H, "", engine.Options{})
	if err == nil {
		distribution = engine.SourceDistribution(ranking.Records)
	}

	statuses := make([]sourceStatus, 0, len(s.engine.Sources()))
	for _, src := range s.engine.Sources() {
		statuses = append(statuses, sourceStatus{
			Name:       src.Name(),
			Healthy:    src.IsHealthy(),
			LastUpdate: src.LastUpdate(),
			Assets:     distribution[src.Name()],
		})
	}
	s.sendJSON(w, map[string]interface{}{
		"sources": statuses,
	})
}

// parsePeriodParam parses the period query parameter, defaulting to 24h.
func parsePeriodParam(raw string) (model.Period, error) {
	if raw == "" {
		return model.Period24H, nil
	}
	return model.ParsePeriod(raw)
}

// parseIntParam parses an integer query parameter with a fallback.
func parseIntParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// paginate slices a window out of the full ranking.
func paginate(records []model.AssetRecord, limit, offset int) []model.AssetRecord {
	if offset >= len(records) {
		return []model.AssetRecord{}
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}
