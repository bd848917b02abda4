package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AJ-EN/xenonite-mission-control/internal/auth"
	"github.com/AJ-EN/xenonite-mission-control/internal/elements"
	"github.com/AJ-EN/xenonite-mission-control/internal/sim"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testServer(t *testing.T, authCfg auth.Config) (*Server, *sim.Engine) {
	t.Helper()
	eng, err := sim.NewEngine(elements.NewStore(), sim.Config{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return NewServer("127.0.0.1:0", eng, nil, authCfg, testLogger()), eng
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// TestServerLifecycle walks a full session: readiness gating, catalog
// ingest, player tracking, position and threat queries.
func TestServerLifecycle(t *testing.T) {
	srv, eng := testServer(t, auth.Config{})
	h := srv.HTTPServer().Handler

	if w := doJSON(t, h, "GET", "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before player: status = %d, want 503", w.Code)
	}
	if w := doJSON(t, h, "GET", "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("healthz: status = %d, want 200", w.Code)
	}

	// Track the player.
	body := `{"name":"XENON-1","line1":"` + issLine1 + `","line2":"` + issLine2 + `"}`
	if w := doJSON(t, h, "POST", "/api/v1/player", body); w.Code != http.StatusOK {
		t.Fatalf("set player: status = %d, body = %s", w.Code, w.Body.String())
	}

	// Still not ready: no catalogs yet.
	if w := doJSON(t, h, "GET", "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before catalogs: status = %d, want 503", w.Code)
	}

	// Ingest a debris catalog sharing the player's elements, guaranteeing
	// zero separation and a maximal score.
	tleText := "FRAG-A\n" + issLine1 + "\n" + issLine2 + "\n"
	w := doJSON(t, h, "POST", "/api/v1/catalog/debris", tleText)
	if w.Code != http.StatusOK {
		t.Fatalf("ingest: status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["valid"].(float64) != 1 {
		t.Errorf("ingest valid = %v, want 1", resp["valid"])
	}

	if w := doJSON(t, h, "GET", "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("readyz after player+catalog: status = %d, want 200", w.Code)
	}

	w = doJSON(t, h, "GET", "/api/v1/catalog/debris", "")
	if resp := decode(t, w); resp["count"].(float64) != 1 {
		t.Errorf("catalog count = %v, want 1", resp["count"])
	}

	// Drive one frame so positions and the threat picture publish.
	eng.Tick(time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC))

	w = doJSON(t, h, "GET", "/api/v1/player/position", "")
	if w.Code != http.StatusOK {
		t.Fatalf("player position: status = %d", w.Code)
	}
	resp = decode(t, w)
	if resp["position"] == nil {
		t.Error("player position missing position field")
	}
	if resp["geodetic"] == nil {
		t.Error("player position missing geodetic field")
	}

	w = doJSON(t, h, "GET", "/api/v1/player/orbit", "")
	resp = decode(t, w)
	if incl := resp["inclination_deg"].(float64); incl != 51.64 {
		t.Errorf("inclination = %v, want 51.64", incl)
	}

	w = doJSON(t, h, "GET", "/api/v1/positions/debris", "")
	resp = decode(t, w)
	if objs := resp["objects"].([]any); len(objs) != 1 {
		t.Errorf("debris objects = %d, want 1", len(objs))
	}

	w = doJSON(t, h, "GET", "/api/v1/threat", "")
	resp = decode(t, w)
	if score := resp["score"].(float64); score != 100 {
		t.Errorf("score = %v, want 100", score)
	}
	if resp["status"] != "critical" {
		t.Errorf("status = %v, want critical", resp["status"])
	}

	w = doJSON(t, h, "GET", "/api/v1/threat/history", "")
	resp = decode(t, w)
	if samples := resp["samples"].([]any); len(samples) != 1 {
		t.Errorf("history samples = %d, want 1", len(samples))
	}
}

// TestSimControls exercises multiplier clamping, pause/resume, and the
// score override endpoints.
func TestSimControls(t *testing.T) {
	srv, eng := testServer(t, auth.Config{})
	h := srv.HTTPServer().Handler

	body := `{"name":"XENON-1","line1":"` + issLine1 + `","line2":"` + issLine2 + `"}`
	if w := doJSON(t, h, "POST", "/api/v1/player", body); w.Code != http.StatusOK {
		t.Fatalf("set player: status = %d", w.Code)
	}

	w := doJSON(t, h, "POST", "/api/v1/sim/multiplier", `{"multiplier":500}`)
	if resp := decode(t, w); resp["multiplier"].(float64) != 100 {
		t.Errorf("multiplier = %v, want clamped 100", resp["multiplier"])
	}

	w = doJSON(t, h, "POST", "/api/v1/sim/pause", "")
	if resp := decode(t, w); resp["running"].(bool) {
		t.Error("running after pause = true, want false")
	}
	if eng.Running() {
		t.Error("engine still running after pause")
	}

	w = doJSON(t, h, "POST", "/api/v1/sim/resume", "")
	if resp := decode(t, w); !resp["running"].(bool) {
		t.Error("running after resume = false, want true")
	}

	if w := doJSON(t, h, "POST", "/api/v1/sim/force-score", `{"score":95}`); w.Code != http.StatusOK {
		t.Fatalf("force-score: status = %d", w.Code)
	}
	eng.Tick(time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC))
	w = doJSON(t, h, "GET", "/api/v1/threat", "")
	resp := decode(t, w)
	if resp["score"].(float64) != 95 {
		t.Errorf("forced score = %v, want 95", resp["score"])
	}
	if forced, _ := resp["forced"].(bool); !forced {
		t.Error("snapshot not marked forced")
	}

	// Null clears the override.
	if w := doJSON(t, h, "POST", "/api/v1/sim/force-score", `{"score":null}`); w.Code != http.StatusOK {
		t.Fatalf("clear force-score: status = %d", w.Code)
	}
}

// TestBadRequests verifies validation failures map to 4xx responses.
func TestBadRequests(t *testing.T) {
	srv, _ := testServer(t, auth.Config{})
	h := srv.HTTPServer().Handler

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"unknown category ingest", "POST", "/api/v1/catalog/asteroids", "x", http.StatusBadRequest},
		{"player category not addressable", "POST", "/api/v1/catalog/player", "x", http.StatusBadRequest},
		{"unknown category positions", "GET", "/api/v1/positions/asteroids", "", http.StatusBadRequest},
		{"malformed player body", "POST", "/api/v1/player", "{", http.StatusBadRequest},
		{"malformed player elements", "POST", "/api/v1/player", `{"name":"X","line1":"garbage","line2":"garbage"}`, http.StatusUnprocessableEntity},
		{"position before player", "GET", "/api/v1/player/position", "", http.StatusNotFound},
		{"orbit before player", "GET", "/api/v1/player/orbit", "", http.StatusNotFound},
		{"conjunctions before player", "GET", "/api/v1/conjunctions", "", http.StatusConflict},
		{"malformed multiplier body", "POST", "/api/v1/sim/multiplier", "{", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, tt.method, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if resp := decode(t, w); resp["error"] == nil {
				t.Error("expected error field in response")
			}
		})
	}
}

// TestConjunctions runs a scan against a co-orbital debris object and
// expects at least one window.
func TestConjunctions(t *testing.T) {
	srv, eng := testServer(t, auth.Config{})
	h := srv.HTTPServer().Handler

	body := `{"name":"XENON-1","line1":"` + issLine1 + `","line2":"` + issLine2 + `"}`
	if w := doJSON(t, h, "POST", "/api/v1/player", body); w.Code != http.StatusOK {
		t.Fatalf("set player: status = %d", w.Code)
	}
	tleText := "FRAG-A\n" + issLine1 + "\n" + issLine2 + "\n"
	if w := doJSON(t, h, "POST", "/api/v1/catalog/debris", tleText); w.Code != http.StatusOK {
		t.Fatalf("ingest: status = %d", w.Code)
	}
	eng.Tick(time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC))

	w := doJSON(t, h, "GET", "/api/v1/conjunctions?horizon=300&threshold_km=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("conjunctions: status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	objects := resp["objects"].([]any)
	if len(objects) != 1 {
		t.Fatalf("objects = %d, want 1", len(objects))
	}
	obj := objects[0].(map[string]any)
	if events := obj["events"].([]any); len(events) == 0 {
		t.Error("expected at least one conjunction window for co-orbital debris")
	}

	if w := doJSON(t, h, "GET", "/api/v1/conjunctions?horizon=10", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad horizon: status = %d, want 400", w.Code)
	}
}

// TestAuthProtectsControls verifies Bearer auth on mutating endpoints and
// open access to read endpoints.
func TestAuthProtectsControls(t *testing.T) {
	srv, _ := testServer(t, auth.Config{Enabled: true, Token: "secret"})
	h := srv.HTTPServer().Handler

	// Read endpoints stay public.
	if w := doJSON(t, h, "GET", "/api/v1/threat", ""); w.Code == http.StatusUnauthorized {
		t.Error("threat endpoint should be public")
	}
	if w := doJSON(t, h, "GET", "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("healthz: status = %d, want 200", w.Code)
	}

	// Controls require the token.
	if w := doJSON(t, h, "POST", "/api/v1/sim/pause", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("pause without token: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest("POST", "/api/v1/sim/pause", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("pause with token: status = %d, want 200", w.Code)
	}

	req = httptest.NewRequest("POST", "/api/v1/sim/resume", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("resume with wrong token: status = %d, want 401", w.Code)
	}
}
