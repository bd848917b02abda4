// Package health provides liveness and readiness endpoints.
package health

import "net/http"

// Readiness is the subset of the engine the readiness probe needs.
type Readiness interface {
	HasPlayer() bool
	TrackedObjects() int
}

// Healthz reports process liveness. Always 200.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Readyz reports readiness to serve simulation data: a player must be
// tracked and at least one catalog loaded.
func Readyz(ready Readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		switch {
		case !ready.HasPlayer():
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("no player tracked\n"))
		case ready.TrackedObjects() == 0:
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("no catalogs loaded\n"))
		default:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready\n"))
		}
	}
}
