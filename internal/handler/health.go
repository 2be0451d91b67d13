package handler

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// readinessTimeout bounds each dependency check.
const readinessTimeout = 3 * time.Second

// HealthChecker is a dependency the instance needs to serve traffic.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	deps     []dependency
	draining atomic.Bool
}

type dependency struct {
	name    string
	checker HealthChecker
}

// NewHealthHandler checks postgres and redis on /readyz. A nil checker is
// reported as "not configured" and does not fail readiness.
func NewHealthHandler(db, cache HealthChecker) *HealthHandler {
	return &HealthHandler{deps: []dependency{
		{name: "postgres", checker: db},
		{name: "redis", checker: cache},
	}}
}

// WithCheck adds a readiness dependency, such as the webhook store.
func (h *HealthHandler) WithCheck(name string, checker HealthChecker) *HealthHandler {
	h.deps = append(h.deps, dependency{name: name, checker: checker})
	return h
}

// Drain fails readiness from now on so load balancers stop routing here
// while in-flight requests finish.
func (h *HealthHandler) Drain() {
	h.draining.Store(true)
}

// HealthResponse is the body of both probes.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz reports that the process is up. It never touches dependencies.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz pings every dependency in parallel and answers 503 if any fails.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Checks: map[string]string{"server": "draining"},
		})
		return
	}

	results := make([]string, len(h.deps))
	var wg sync.WaitGroup
	for i, dep := range h.deps {
		if dep.checker == nil {
			results[i] = "not configured"
			continue
		}
		wg.Add(1)
		go func(i int, c HealthChecker) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			defer cancel()
			if err := c.Ping(ctx); err != nil {
				results[i] = "error: " + err.Error()
				return
			}
			results[i] = "ok"
		}(i, dep.checker)
	}
	wg.Wait()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.deps))}
	code := http.StatusOK
	for i, dep := range h.deps {
		resp.Checks[dep.name] = results[i]
		if results[i] != "ok" && results[i] != "not configured" {
			resp.Status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}
