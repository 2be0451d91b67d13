package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smartdiet/smartdiet/internal/assistant"
	"github.com/smartdiet/smartdiet/internal/handler"
	"github.com/smartdiet/smartdiet/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

func TestServer_ShutdownOrder(t *testing.T) {
	t.Parallel()

	srv := New(http.NotFoundHandler(), Options{ShutdownTimeout: 5 * time.Second}, discardLogger())

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	srv.OnShutdown("redis", record("redis"))
	srv.OnShutdown("postgres", record("postgres"))
	srv.OnDrain(func() { _ = record("drain")(context.Background()) })

	workerStopped := make(chan struct{})
	srv.Go("ticker", func(ctx context.Context) error {
		<-ctx.Done()
		close(workerStopped)
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listen(t)) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	select {
	case <-workerStopped:
	default:
		t.Error("worker was not cancelled")
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(order, ",") != "drain,postgres,redis" {
		t.Errorf("shutdown order = %v, want drain then LIFO", order)
	}
}

func TestServer_WorkerFailureStopsServer(t *testing.T) {
	t.Parallel()

	srv := New(http.NotFoundHandler(), Options{ShutdownTimeout: time.Second}, discardLogger())
	srv.Go("broken", func(context.Context) error {
		return errors.New("stream gone")
	})

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), listen(t)) }()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "stream gone") {
			t.Fatalf("expected worker error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after worker failure")
	}
}

func TestServer_ShutdownErrorsJoined(t *testing.T) {
	t.Parallel()

	srv := New(http.NotFoundHandler(), Options{ShutdownTimeout: time.Second}, discardLogger())
	srv.OnShutdown("a", func(context.Context) error { return errors.New("a failed") })
	srv.OnShutdown("b", func(context.Context) error { return errors.New("b failed") })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := srv.Serve(ctx, listen(t))
	if err == nil || !strings.Contains(err.Error(), "a failed") || !strings.Contains(err.Error(), "b failed") {
		t.Fatalf("expected both shutdown errors, got %v", err)
	}
}

func newTestRouter() http.Handler {
	logger := discardLogger()
	return NewRouter(Handlers{
		Root:      handler.New(),
		Health:    handler.NewHealthHandler(nil, nil),
		Metrics:   handler.NewMetricsHandler(metrics.NewInMemory()),
		Assistant: handler.NewAssistantHandler(assistant.NewService(assistant.Config{Logger: logger}), logger),
	}, RouterConfig{
		Logger:      logger,
		MaxBodySize: 1024,
	})
}

func TestRouter_PublicRoutes(t *testing.T) {
	t.Parallel()

	router := newTestRouter()

	testCases := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		wantStatus  int
	}{
		{"liveness", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"index", http.MethodGet, "/", "", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", "", http.StatusOK},
		{"chat", http.MethodPost, "/chat", "application/json", `{"message":"hello"}`, http.StatusOK},
		{"chat wrong content type", http.MethodPost, "/chat", "text/plain", `hello`, http.StatusUnsupportedMediaType},
		{"mealplan oversized", http.MethodPost, "/mealplan", "application/json", `{"goal":"` + strings.Repeat("x", 2048) + `"}`, http.StatusRequestEntityTooLarge},
		{"unknown route", http.MethodGet, "/nope", "", "", http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/chat", "", "", http.StatusMethodNotAllowed},
		{"api without token", http.MethodGet, "/api/v1/me", "", "", http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("%s %s = %d, want %d (%s)", tc.method, tc.path, rec.Code, tc.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff header")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request ID header")
	}
}
