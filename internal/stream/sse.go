// Package stream implements Server-Sent Events (SSE) streaming of simulation
// state snapshots. Clients connect via GET /api/v1/stream/state and receive
// the engine's published state at a client-selected interval.
//
// SSE message format:
//
//	data: {"type":"state","state":{"virtual_time":"...","threat":{...},...}}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","connection_id":"...","multiplier":1,...}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent
// timeout. Reconnecting clients receive a fresh metadata message on each
// connection.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/AJ-EN/xenonite-mission-control/internal/httputil"
	"github.com/AJ-EN/xenonite-mission-control/internal/metrics"
	"github.com/AJ-EN/xenonite-mission-control/internal/sim"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrentTotal int           // Global concurrent stream cap (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Trust X-Forwarded-For / X-Real-IP.
}

// Handler manages SSE streaming connections.
type Handler struct {
	engine  *sim.Engine
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(engine *sim.Engine, config Config, logger *slog.Logger) *Handler {
	return &Handler{
		engine:  engine,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrentTotal),
		logger:  logger,
	}
}

// ServeHTTP serves the SSE state stream.
// GET /api/v1/stream/state?interval=200
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters. interval is the send cadence in milliseconds.
	interval := 200
	if v := r.URL.Query().Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 50 || n > 5000 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid interval parameter, must be 50-5000")
			return
		}
		interval = n
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	connID := uuid.NewString()

	// Track connection metrics.
	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"connection_id", connID,
		"user_agent", r.Header.Get("User-Agent"),
		"interval_ms", interval,
	)

	// Cleanup on disconnect: release rate limit slot and update metrics.
	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"connection_id", connID,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE response headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Use ResponseController to manage write deadlines for long-lived SSE.
	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Send jittered retry interval (3-7s) to prevent thundering-herd
	// reconnection storms when the server restarts.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	// Send metadata message (first message on every connection).
	meta := metadataMessage{
		Type:           "metadata",
		ConnectionID:   connID,
		IntervalMs:     interval,
		TrackedObjects: h.engine.TrackedObjects(),
	}
	if set, ok := h.engine.PlayerSet(); ok {
		meta.Player = set.Name
	}
	if st := h.engine.State(); st != nil {
		meta.Multiplier = st.Multiplier
	}
	if err := c.sendJSON(meta); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(time.Duration(interval) * time.Millisecond)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	var lastSent time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			st := h.engine.State()
			if st == nil {
				continue
			}
			// Skip unchanged snapshots; keepalives cover the gap.
			if !lastSent.IsZero() && st.WallTime.Equal(lastSent) {
				continue
			}

			data, err := json.Marshal(stateMessage{Type: "state", State: st})
			if err != nil {
				metrics.IncStreamErrors("marshal_error")
				h.logger.Warn("stream marshal error", "remote_ip", ip, "error", err)
				continue
			}
			if err := c.sendRaw(data); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			lastSent = st.WallTime

			// Reset keepalive since we just sent data.
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type           string  `json:"type"`
	ConnectionID   string  `json:"connection_id"`
	IntervalMs     int     `json:"interval_ms"`
	Player         string  `json:"player,omitempty"`
	Multiplier     float64 `json:"multiplier"`
	TrackedObjects int     `json:"tracked_objects"`
}

type stateMessage struct {
	Type  string     `json:"type"`
	State *sim.State `json:"state"`
}
