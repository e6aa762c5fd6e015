// Package server builds the promotrack router and runs the HTTP listener
// with ordered, bounded shutdown of the components behind it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShutdownFunc releases a component. It must honour ctx's deadline.
type ShutdownFunc func(ctx context.Context) error

type hook struct {
	name string
	fn   ShutdownFunc
}

// Server runs an http.Server and, once it has drained, the registered
// shutdown hooks in reverse registration order.
type Server struct {
	http            *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration

	mu    sync.Mutex
	hooks []hook
}

// New creates a Server listening on port.
func New(handler http.Handler, port int, readTimeout, writeTimeout, shutdownTimeout time.Duration, logger *slog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: readTimeout,
			WriteTimeout:      writeTimeout,
		},
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}
}

// OnShutdown registers fn under name. Hooks run after the listener has
// drained, last registered first, so a component registered early (the
// database) outlives the ones that depend on it.
func (s *Server) OnShutdown(name string, fn ShutdownFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook{name: name, fn: fn})
}

// Run serves until ctx is cancelled, SIGINT or SIGTERM arrives, or the
// listener fails. Every shutdown path runs the hooks; their errors are
// joined with any listener error.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting", slog.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutdown started", slog.String("cause", context.Cause(gctx).Error()))
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errs []error

	s.http.SetKeepAlivesEnabled(false)
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("http drain failed", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}

	s.mu.Lock()
	hooks := make([]hook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			s.logger.Error("component shutdown failed",
				slog.String("component", h.name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("shutdown %s: %w", h.name, err))
			continue
		}
		s.logger.Info("component stopped", slog.String("component", h.name))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}
