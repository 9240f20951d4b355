// Package service exposes the harness's operational HTTP surface: a healthz
// endpoint for liveness probes and a prometheus metrics endpoint. Both run
// beside the notebook run and are torn down when it finishes.
package service

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/notebook-infra/nb-acceptor/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = "7300"
)

// Service bundles the two operational endpoints.
type Service struct {
	healthz *httpServer
	metrics *httpServer
}

func New() *Service {
	healthzMux := http.NewServeMux()
	healthzMux.HandleFunc("/healthz", handleHealthz)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	return &Service{
		healthz: &httpServer{name: "healthz", handler: c.Handler(healthzMux)},
		metrics: &httpServer{name: "metrics", handler: metricsMux},
	}
}

// Start launches both endpoints in the background. Listen failures are
// recorded as errors but never abort the notebook run itself.
func (s *Service) Start(ctx context.Context) {
	s.healthz.start(ctx, net.JoinHostPort(HealthzHost, HealthzPort))
	s.metrics.start(ctx, net.JoinHostPort(MetricsHost, MetricsPort))
}

func (s *Service) Shutdown() {
	s.healthz.shutdown()
	s.metrics.shutdown()
	log.Info("service stopped")
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	log.Debug("received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

// httpServer runs one endpoint on its own listener.
type httpServer struct {
	name    string
	handler http.Handler

	ctx    context.Context
	server *http.Server
}

func (h *httpServer) start(ctx context.Context, addr string) {
	h.ctx = ctx
	h.server = &http.Server{
		Addr:    addr,
		Handler: h.handler,
	}
	log.Info("starting server", "name", h.name, "addr", addr)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "name", h.name, "err", err)
			metrics.RecordErrorDetails("error starting "+h.name+" server", err)
		}
	}()
}

func (h *httpServer) shutdown() {
	if h.server == nil {
		return
	}
	if err := h.server.Shutdown(h.ctx); err != nil {
		log.Error("server shutdown failed", "name", h.name, "err", err)
	}
}
