package httpx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// ReadinessCheck probes one dependency, e.g. a database ping.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

const readinessTimeout = 2 * time.Second

type readinessBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// readinessHandler runs all checks concurrently and reports 503 if any fails.
func readinessHandler(checks []ReadinessCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		results := make([]string, len(checks))
		var g errgroup.Group
		for i, c := range checks {
			g.Go(func() error {
				if err := c.Check(ctx); err != nil {
					results[i] = err.Error()
					return fmt.Errorf("%s: %w", c.Name, err)
				}
				results[i] = "ok"
				return nil
			})
		}
		err := g.Wait()

		body := readinessBody{Status: "ok", Checks: make(map[string]string, len(checks))}
		for i, c := range checks {
			body.Checks[c.Name] = results[i]
		}
		if err != nil {
			logger.WarnContext(r.Context(), "readiness check failed", "error", err)
			body.Status = "unavailable"
			WriteJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		WriteJSON(w, http.StatusOK, body)
	}
}
