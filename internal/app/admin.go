package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maylavoice/mayla/internal/health"
	"github.com/maylavoice/mayla/internal/observe"
)

const adminShutdownTimeout = 5 * time.Second

// adminHandler builds the admin mux: liveness and readiness probes plus the
// Prometheus scrape endpoint, all behind the tracing/metrics middleware.
func (a *App) adminHandler() http.Handler {
	checkers := []health.Checker{
		{Name: "backend", Check: a.backend.Health},
	}
	if a.store != nil {
		checkers = append(checkers, health.Checker{Name: "archive", Check: a.store.Ping})
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(a.metrics)(mux)
}

// serveAdmin runs the admin HTTP server until ctx is done. An empty listen
// address disables the server.
func (a *App) serveAdmin(ctx context.Context) error {
	if a.cfg.Server.ListenAddr == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.adminHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	a.log.Info("admin server listening", "addr", a.cfg.Server.ListenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("admin server shutdown error", "error", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: admin server: %w", err)
	}
}
