// Package api exposes the simulation over a JSON HTTP interface: catalog
// ingest, player control, position and threat queries, and sim controls.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/AJ-EN/xenonite-mission-control/internal/auth"
	"github.com/AJ-EN/xenonite-mission-control/internal/conjunction"
	"github.com/AJ-EN/xenonite-mission-control/internal/elements"
	"github.com/AJ-EN/xenonite-mission-control/internal/health"
	"github.com/AJ-EN/xenonite-mission-control/internal/httputil"
	"github.com/AJ-EN/xenonite-mission-control/internal/metrics"
	"github.com/AJ-EN/xenonite-mission-control/internal/sim"
)

const maxCatalogBody = 8 << 20 // 8 MiB of TLE text

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	engine     *sim.Engine
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server around the simulation engine.
// streamHandler serves GET /api/v1/stream/state; it may be nil to disable
// streaming.
func NewServer(addr string, engine *sim.Engine, streamHandler http.Handler, authCfg auth.Config, logger *slog.Logger) *Server {
	s := &Server{engine: engine, logger: logger}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(engine))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/v1/catalog/{category}", s.handleCatalogIngest)
	mux.HandleFunc("GET /api/v1/catalog/{category}", s.handleCatalogInfo)
	mux.HandleFunc("POST /api/v1/player", s.handleSetPlayer)
	mux.HandleFunc("GET /api/v1/player/position", s.handlePlayerPosition)
	mux.HandleFunc("GET /api/v1/player/orbit", s.handlePlayerOrbit)
	mux.HandleFunc("GET /api/v1/positions/{category}", s.handlePositions)
	mux.HandleFunc("GET /api/v1/threat", s.handleThreat)
	mux.HandleFunc("GET /api/v1/threat/history", s.handleThreatHistory)
	mux.HandleFunc("GET /api/v1/conjunctions", s.handleConjunctions)
	mux.HandleFunc("POST /api/v1/sim/multiplier", s.handleMultiplier)
	mux.HandleFunc("POST /api/v1/sim/pause", s.handlePause)
	mux.HandleFunc("POST /api/v1/sim/resume", s.handleResume)
	mux.HandleFunc("POST /api/v1/sim/force-score", s.handleForceScore)
	if streamHandler != nil {
		mux.Handle("GET /api/v1/stream/state", streamHandler)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// category resolves the {category} path value, rejecting the player
// pseudo-category.
func category(r *http.Request) (elements.Category, bool) {
	cat, ok := elements.CategoryFromString(r.PathValue("category"))
	return cat, ok
}

// handleCatalogIngest replaces a category's catalog with the TLE text in
// the request body. POST /api/v1/catalog/{category}
func (s *Server) handleCatalogIngest(w http.ResponseWriter, r *http.Request) {
	cat, ok := category(r)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "unknown category")
		return
	}

	res, err := s.engine.IngestElements(cat, http.MaxBytesReader(w, r.Body, maxCatalogBody))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("catalog ingested",
		"component", "api",
		"category", cat.String(),
		"valid", res.Valid,
		"skipped", res.Skipped,
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"category": cat.String(),
		"valid":    res.Valid,
		"skipped":  res.Skipped,
	})
}

// handleCatalogInfo reports the current record count for a category.
func (s *Server) handleCatalogInfo(w http.ResponseWriter, r *http.Request) {
	cat, ok := category(r)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "unknown category")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"category": cat.String(),
		"count":    len(s.engine.CatalogRecords(cat)),
	})
}

type setPlayerRequest struct {
	Name  string `json:"name"`
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// handleSetPlayer starts a new tracking session for the given element set.
// POST /api/v1/player
func (s *Server) handleSetPlayer(w http.ResponseWriter, r *http.Request) {
	var req setPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.engine.SetPlayer(req.Name, req.Line1, req.Line2); err != nil {
		httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.logger.Info("player set", "component", "api", "name", req.Name)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "tracking", "name": req.Name})
}

// handlePlayerPosition returns the player's render-space position and
// ground track. GET /api/v1/player/position
func (s *Server) handlePlayerPosition(w http.ResponseWriter, r *http.Request) {
	pos, ok := s.engine.PlayerPosition()
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "player position unavailable")
		return
	}

	resp := map[string]any{"position": pos}
	if geo, ok := s.engine.PlayerGeodetic(); ok {
		resp["geodetic"] = geo
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handlePlayerOrbit returns the player's orbit summary. GET /api/v1/player/orbit
func (s *Server) handlePlayerOrbit(w http.ResponseWriter, r *http.Request) {
	params, ok := s.engine.PlayerOrbitalParams()
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "player orbit unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, params)
}

// handlePositions returns render-space positions for one category.
// GET /api/v1/positions/{category}
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	cat, ok := category(r)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "unknown category")
		return
	}

	st := s.engine.State()
	var pts []sim.ScenePoint
	switch cat {
	case elements.CategoryDebris:
		pts = st.Debris
	case elements.CategoryCritical:
		pts = st.Critical
	case elements.CategoryActive:
		pts = st.Active
	}
	if pts == nil {
		pts = []sim.ScenePoint{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"category":     cat.String(),
		"virtual_time": st.VirtualTime,
		"objects":      pts,
	})
}

// handleThreat returns the current threat snapshot. GET /api/v1/threat
func (s *Server) handleThreat(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.engine.CurrentThreatSnapshot())
}

// handleThreatHistory returns the score history and its summary.
// GET /api/v1/threat/history
func (s *Server) handleThreatHistory(w http.ResponseWriter, r *http.Request) {
	samples, summary := s.engine.ThreatHistory()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"samples": samples,
		"summary": summary,
	})
}

// handleConjunctions runs a close-approach scan of the debris and critical
// catalogs against the player over a future horizon.
// GET /api/v1/conjunctions?horizon=3600&threshold_km=25&max_events=5
func (s *Server) handleConjunctions(w http.ResponseWriter, r *http.Request) {
	player, ok := s.engine.PlayerSet()
	if !ok {
		httputil.WriteError(w, http.StatusConflict, "no player tracked")
		return
	}

	horizon := 3600
	if v := r.URL.Query().Get("horizon"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 60 || n > 86400 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid horizon parameter, must be 60-86400")
			return
		}
		horizon = n
	}

	threshold := 25.0
	if v := r.URL.Query().Get("threshold_km"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1000 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid threshold_km parameter, must be in (0,1000]")
			return
		}
		threshold = f
	}

	maxEvents := 5
	if v := r.URL.Query().Get("max_events"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 50 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid max_events parameter, must be 1-50")
			return
		}
		maxEvents = n
	}

	debris := s.engine.CatalogRecords(elements.CategoryDebris)
	critical := s.engine.CatalogRecords(elements.CategoryCritical)
	objects := make([]elements.ElementSet, 0, len(debris)+len(critical))
	objects = append(objects, debris...)
	objects = append(objects, critical...)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	start := s.engine.State().VirtualTime
	results, err := conjunction.Predict(ctx, conjunction.Request{
		Player:      player,
		Objects:     objects,
		Start:       start,
		Horizon:     time.Duration(horizon) * time.Second,
		ThresholdKm: threshold,
		MaxEvents:   maxEvents,
	})
	if err != nil {
		httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"start":        start,
		"horizon_sec":  horizon,
		"threshold_km": threshold,
		"objects":      results,
	})
}

type multiplierRequest struct {
	Multiplier float64 `json:"multiplier"`
}

// handleMultiplier sets the time acceleration factor.
// POST /api/v1/sim/multiplier
func (s *Server) handleMultiplier(w http.ResponseWriter, r *http.Request) {
	var req multiplierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	applied := s.engine.SetTimeMultiplier(req.Multiplier)
	httputil.WriteJSON(w, http.StatusOK, map[string]float64{"multiplier": applied})
}

// handlePause pauses object motion and scoring. POST /api/v1/sim/pause
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.engine.Pause()
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"running": s.engine.Running()})
}

// handleResume resumes a paused simulation. POST /api/v1/sim/resume
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.engine.Resume()
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"running": s.engine.Running()})
}

type forceScoreRequest struct {
	Score *int `json:"score"`
}

// handleForceScore pins the threat score to a fixed value, or clears the
// override when score is null. POST /api/v1/sim/force-score
func (s *Server) handleForceScore(w http.ResponseWriter, r *http.Request) {
	var req forceScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.engine.SetForceScore(req.Score)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"forced": req.Score != nil})
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
