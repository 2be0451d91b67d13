package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubPinger struct {
	err   error
	delay time.Duration
}

func (s stubPinger) Ping(ctx context.Context) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

func probe(t *testing.T, h *HealthHandler, path string) (int, HealthResponse) {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if path == "/healthz" {
		h.Healthz(rec, req)
	} else {
		h.Readyz(rec, req)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, resp
}

func TestHealthz_IgnoresDependencies(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler(stubPinger{err: errors.New("down")}, stubPinger{err: errors.New("down")})
	code, resp := probe(t, h, "/healthz")
	if code != http.StatusOK || resp.Status != "ok" || resp.Checks != nil {
		t.Errorf("healthz = %d %+v", code, resp)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    *HealthHandler
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "all healthy",
			handler:    NewHealthHandler(stubPinger{}, stubPinger{}),
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name:       "postgres down",
			handler:    NewHealthHandler(stubPinger{err: errors.New("connection refused")}, stubPinger{}),
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantChecks: map[string]string{"postgres": "error: connection refused", "redis": "ok"},
		},
		{
			name:       "nothing configured",
			handler:    NewHealthHandler(nil, nil),
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"postgres": "not configured", "redis": "not configured"},
		},
		{
			name:       "webhook store failing",
			handler:    NewHealthHandler(stubPinger{}, stubPinger{}).WithCheck("webhooks", stubPinger{err: errors.New("timeout")}),
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok", "webhooks": "error: timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, resp := probe(t, tt.handler, "/readyz")
			if code != tt.wantCode || resp.Status != tt.wantStatus {
				t.Errorf("readyz = %d %q, want %d %q", code, resp.Status, tt.wantCode, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := resp.Checks[name]; got != want {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	slow := stubPinger{delay: 150 * time.Millisecond}
	h := NewHealthHandler(slow, slow).WithCheck("webhooks", slow)

	start := time.Now()
	code, _ := probe(t, h, "/readyz")
	if code != http.StatusOK {
		t.Fatalf("readyz = %d", code)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("checks look sequential: took %v", elapsed)
	}
}

func TestReadyz_Draining(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler(stubPinger{}, stubPinger{})
	h.Drain()

	code, resp := probe(t, h, "/readyz")
	if code != http.StatusServiceUnavailable || resp.Checks["server"] != "draining" {
		t.Errorf("draining readyz = %d %+v", code, resp)
	}
	if code, _ := probe(t, h, "/healthz"); code != http.StatusOK {
		t.Errorf("liveness should survive draining, got %d", code)
	}
}
