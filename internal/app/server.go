package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/heartmarshall/docflow-backend/internal/config"
)

// httpServer owns the listener lifecycle. Serve blocks until ctx is
// cancelled and in-flight requests drain.
type httpServer struct {
	address         string
	server          *http.Server
	log             *slog.Logger
	shutdownTimeout time.Duration

	ready chan struct{}
	addr  net.Addr
}

func newHTTPServer(cfg config.ServerConfig, handler http.Handler, log *slog.Logger) *httpServer {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpServer{
		address: net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		log:             log.With("component", "http"),
		shutdownTimeout: timeout,
		ready:           make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *httpServer) Ready() <-chan struct{} { return s.ready }

// Addr is the resolved listen address. Valid after Ready is closed.
func (s *httpServer) Addr() net.Addr { return s.addr }

func (s *httpServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	s.log.Info("http server listening", slog.String("address", s.addr.String()))

	serveDone := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("http server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}
