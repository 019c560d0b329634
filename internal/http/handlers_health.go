package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const readinessTimeout = 2 * time.Second

// healthHandler is the liveness probe; it never touches dependencies.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadinessCheck probes one dependency.
type ReadinessCheck func(ctx context.Context) error

// readinessHandler probes every dependency in parallel under one deadline. Failure
// details go to the log; the response only names which checks failed.
func readinessHandler(checks map[string]ReadinessCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			results = make(map[string]string, len(checks))
		)
		for name, check := range checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				state := "ok"
				if err := check(ctx); err != nil {
					logger.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
					state = "unavailable"
				}
				mu.Lock()
				results[name] = state
				mu.Unlock()
			}()
		}
		wg.Wait()

		status := http.StatusOK
		for _, state := range results {
			if state != "ok" {
				status = http.StatusServiceUnavailable
				break
			}
		}
		WriteJSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": results})
	}
}
