package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tahsin716/forkjoin"
	"github.com/tahsin716/forkjoin/metrics"
)

// newRouter exposes pool metrics for Prometheus and a JSON stats snapshot.
func newRouter(pool *forkjoin.Pool) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewCollector(pool)); err != nil {
		return nil, fmt.Errorf("failed to register pool collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(pool.Stats()); err != nil {
			logger.Warn().Err(err).Msg("failed to write stats")
		}
	})
	return r, nil
}

// serveMetrics starts the metrics server if an address is configured. The
// returned function shuts it down.
func serveMetrics(addr string, pool *forkjoin.Pool) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}

	handler, err := newRouter(pool)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
