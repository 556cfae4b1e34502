package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opensandbox/canvas/internal/logging"
)

// Pipeline metrics
var (
	CompileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "canvas_compile_duration_seconds",
			Help:    "Time to build and assemble one preview",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"result"},
	)

	CompilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_compiles_total",
			Help: "Total compilation passes",
		},
		[]string{"result"},
	)

	DiagnosticsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_diagnostics_total",
			Help: "Diagnostics produced by compilation passes",
		},
		[]string{"kind"},
	)

	ModulesPerGraph = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "canvas_graph_modules",
			Help:    "Number of modules reachable from the entry point",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250},
		},
	)

	BlobsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "canvas_blobs_live",
			Help: "Compiled module blobs currently referenced by an artifact",
		},
	)

	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_tool_calls_total",
			Help: "File-edit commands applied",
		},
		[]string{"tool", "command", "status"},
	)
)

// Service metrics
var (
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "canvas_sessions_active",
			Help: "Project sessions loaded in memory",
		},
	)

	HibernationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_hibernations_total",
			Help: "Sessions saved and evicted after going idle",
		},
		[]string{"status"},
	)

	PreviewClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "canvas_preview_clients",
			Help: "Connected live preview websockets",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "canvas_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_auth_attempts_total",
			Help: "Total auth attempts",
		},
		[]string{"type", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		CompileDuration,
		CompilesTotal,
		DiagnosticsTotal,
		ModulesPerGraph,
		BlobsLive,
		ToolCallsTotal,
		SessionsActive,
		HibernationsTotal,
		PreviewClients,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AuthAttemptsTotal,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoMiddleware returns Echo middleware that instruments HTTP requests.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()
			HTTPRequestDuration.WithLabelValues(c.Request().Method, c.Path()).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// StartMetricsServer starts a standalone HTTP server serving /metrics on the given address.
func StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Metrics are non-critical; the service keeps running without them.
			logging.Named("metrics").Error("metrics listener failed", zap.String("addr", addr), logging.Err(err))
		}
	}()
	return srv
}
