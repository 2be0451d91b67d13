// Package server provides the HTTP router and server lifecycle, including
// graceful shutdown of the background workers started alongside it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases one dependency during shutdown.
type ShutdownFunc func(ctx context.Context) error

type component struct {
	name  string
	close ShutdownFunc
}

// Options configures the HTTP server.
type Options struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server wraps http.Server with graceful shutdown.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu         sync.Mutex
	components []component
	drainHooks []func()

	// Background workers share workerCtx, cancelled before shutdown funcs run.
	workerCtx    context.Context
	stopWorkers  context.CancelFunc
	workers      sync.WaitGroup
	workerErrors chan error
}

// New creates a new Server instance.
func New(handler http.Handler, opts Options, logger *slog.Logger) *Server {
	idle := opts.IdleTimeout
	if idle == 0 {
		idle = 2 * time.Minute
	}
	workerCtx, stop := context.WithCancel(context.Background())
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           handler,
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       idle,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		shutdownTimeout: opts.ShutdownTimeout,
		logger:          logger,
		workerCtx:       workerCtx,
		stopWorkers:     stop,
		workerErrors:    make(chan error, 8),
	}
}

// Go runs fn in the background until shutdown. A worker that returns an
// error other than context.Canceled stops the server.
func (s *Server) Go(name string, fn func(ctx context.Context) error) {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		s.logger.Info("worker started", "name", name)
		err := fn(s.workerCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("worker failed", "name", name, "error", err)
			select {
			case s.workerErrors <- fmt.Errorf("worker %s: %w", name, err):
			default:
			}
			return
		}
		s.logger.Info("worker stopped", "name", name)
	}()
}

// OnShutdown registers a dependency to close once the HTTP server and the
// workers have stopped. Components close in reverse registration order.
func (s *Server) OnShutdown(name string, fn ShutdownFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, component{name: name, close: fn})
}

// OnDrain registers fn to run as soon as shutdown starts, before the HTTP
// server stops accepting connections.
func (s *Server) OnDrain(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainHooks = append(s.drainHooks, fn)
}

// Run listens on the configured port and blocks until SIGINT/SIGTERM,
// ctx cancellation, or a fatal server or worker error.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.stopWorkers()
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case err := <-serverErr:
		runErr = fmt.Errorf("server error: %w", err)
	case err := <-s.workerErrors:
		runErr = err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	if err := s.gracefulShutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// gracefulShutdown runs the drain hooks, then stops HTTP, then the
// workers, then the registered components. All phases share one deadline.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.mu.Lock()
	drain := slices.Clone(s.drainHooks)
	components := slices.Clone(s.components)
	s.mu.Unlock()

	for _, fn := range drain {
		fn()
	}
	s.stopHTTP(ctx)
	s.waitWorkers(ctx)

	err := closeAll(ctx, s.logger, components)
	if err != nil {
		s.logger.Error("shutdown finished with errors", "error", err)
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) stopHTTP(ctx context.Context) {
	s.httpServer.SetKeepAlivesEnabled(false)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown", "error", err, "timeout", s.shutdownTimeout)
		return
	}
	s.logger.Info("http server stopped")
}

func (s *Server) waitWorkers(ctx context.Context) {
	s.stopWorkers()
	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("workers still running at shutdown deadline")
	}
}

// closeAll closes components last-registered first and joins the errors.
func closeAll(ctx context.Context, logger *slog.Logger, components []component) error {
	var errs []error
	for _, c := range slices.Backward(components) {
		if err := c.close(ctx); err != nil {
			logger.Error("component close failed", "name", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		logger.Info("component closed", "name", c.name)
	}
	return errors.Join(errs...)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
