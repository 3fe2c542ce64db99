package main

import (
	"net/http"

	"github.com/slackirc/bridge/pkg/logger"
	"github.com/slackirc/bridge/pkg/metrics"
)

// newMetrics builds a fresh metrics registry and the http.Handler that
// serves it, for the debug listener.
func newMetrics() (*metrics.Metrics, http.Handler) {
	m, reg := metrics.New()
	return m, metrics.Handler(reg)
}

// startDebugListener serves Prometheus metrics on addr, gated behind
// --debug per spec.md's "ambient, never load-bearing" posture for
// observability.
func startDebugListener(addr string, handler http.Handler, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("debug listener stopped", "error", err)
		}
	}()
	log.Info("debug metrics listener started", "addr", addr)
	return srv
}
