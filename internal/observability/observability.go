// Package observability is the ambient ops-only HTTP surface for the
// embedding application: Prometheus metrics, a health check, and pprof
// profiling. The storage engine itself never opens a socket; this server
// is started explicitly by whatever embeds the engine.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weids-dev/radarbase/internal/logger"
)

// Server provides HTTP endpoints for metrics, health, and profiling.
type Server struct {
	server *http.Server
	log    *logger.Logger
}

// NewServer builds a Server listening on port once Start is called,
// serving /metrics from registry (a Database's own private registry,
// never the global DefaultRegisterer, so multiple Databases in one
// process can each run their own observability server).
func NewServer(port int, registry *prometheus.Registry, log *logger.Logger) *Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"redb"}`))
	})

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	mux.Handle("/debug/pprof/block", pprof.Handler("block"))
	mux.Handle("/debug/pprof/mutex", pprof.Handler("mutex"))
	mux.Handle("/debug/pprof/allocs", pprof.Handler("allocs"))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{server: server, log: log}
}

// Start runs the HTTP server, blocking until it is shut down.
func (s *Server) Start() error {
	s.log.Info("starting observability server").
		Str("addr", s.server.Addr).
		Msg("metrics, health, and pprof endpoints available")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("observability server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down observability server").Send()
	return s.server.Shutdown(ctx)
}
