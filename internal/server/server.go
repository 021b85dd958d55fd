// Package server exposes the coordinator's optional operational HTTP
// surface: health/readiness/liveness and Prometheus metrics, off by
// default.
package server

import (
	"context"
	"net/http"

	"github.com/Moka-Reads/QuickFetch/internal/metrics"
	"github.com/Moka-Reads/QuickFetch/internal/middleware"
	"github.com/Moka-Reads/QuickFetch/internal/tracing"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Options configures the operational HTTP surface.
type Options struct {
	Metrics *metrics.Metrics
	Logger  *logrus.Logger
	// KeyManagerHealthCheck, when set, is consulted by /readyz so a
	// misconfigured or unreachable KMS backend fails readiness.
	KeyManagerHealthCheck func(context.Context) error
}

// New builds the *http.Handler serving /healthz, /readyz, /livez and,
// when Metrics is set, /metrics.
func New(opts Options) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", metrics.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/readyz", metrics.ReadinessHandler(opts.KeyManagerHealthCheck)).Methods(http.MethodGet)
	r.HandleFunc("/livez", metrics.LivenessHandler()).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var handler http.Handler = r
	handler = middleware.RecoveryMiddleware(logger)(handler)
	if opts.Metrics != nil {
		handler = middleware.MetricsMiddleware(opts.Metrics)(handler)
	}
	handler = middleware.LoggingMiddleware(logger)(handler)
	return handler
}

// ConfigureTracing installs the process-wide TracerProvider consumed by
// the coordinator's and transport's otel.Tracer handles. Call once at
// startup, before the first Fetch; the returned func flushes and shuts
// the provider down and must run on exit.
func ConfigureTracing(ctx context.Context, cfg tracing.Config) (func(context.Context) error, error) {
	return tracing.Configure(ctx, cfg)
}
