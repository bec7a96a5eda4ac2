package infra

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPServer runs the API listener and drains it on shutdown.
type HTTPServer struct {
	server       *http.Server
	logger       zerolog.Logger
	drainTimeout time.Duration
}

// NewHTTPServer builds a server from cfg. net/http's own error log is routed
// through logger at warn level.
func NewHTTPServer(cfg *Config, handler http.Handler, logger zerolog.Logger) *HTTPServer {
	logger = logger.With().Str("component", "http").Logger()
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ErrorLog:          log.New(logger.Level(zerolog.WarnLevel), "", 0),
	}
	drain := cfg.HTTPIdleTimeout
	if drain <= 0 {
		drain = 10 * time.Second
	}
	return &HTTPServer{server: srv, logger: logger, drainTimeout: drain}
}

// Serve listens until ctx is cancelled, then shuts down gracefully. It returns
// nil after a clean shutdown.
func (s *HTTPServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.drainTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	s.logger.Info().Msg("stopped")
	return nil
}
