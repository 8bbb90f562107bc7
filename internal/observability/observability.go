package observability

import (
	"net/http"
	"time"

	"portalgate/internal/access"
	"portalgate/internal/config"
	"portalgate/internal/contextutil"
	"portalgate/internal/httputils"
	"portalgate/internal/observability/logging"
	"portalgate/internal/observability/metrics"
)

const (
	// HeaderRequestID carries the request ID in and out
	HeaderRequestID = "X-Request-ID"

	// HeaderTraceID echoes the trace ID used in the logs
	HeaderTraceID = "X-Trace-ID"

	maxRequestIDLength = 128
)

// Provider provides observability capabilities
type Provider struct {
	Logger  *logging.Logger
	Metrics *metrics.Collector
}

// NewProvider creates a new observability provider
func NewProvider(cfg *config.Config) (*Provider, error) {
	logger, err := logging.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		return nil, err
	}

	return &Provider{
		Logger:  logger,
		Metrics: metrics.NewCollector(),
	}, nil
}

// Class buckets a path for metric labels
func Class(p string) string {
	switch {
	case access.IsStatic(p):
		return "static"
	case access.IsAPI(p):
		return "api"
	default:
		return "page"
	}
}

// Middleware assigns a request ID, attaches a request logger to the context
// and records the request once it completes
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ctx := r.Context()
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = logging.NewTraceID()
		}
		ctx = contextutil.WithRequestID(ctx, requestID)
		ctx = logging.ContextWithTraceID(ctx, requestID)

		logger := p.Logger.WithTracing(requestID, logging.NewSpanID())
		ctx = logging.ContextWithLogger(ctx, logger)

		wrapper := httputils.NewResponseWriter(w)
		wrapper.Header().Set(HeaderRequestID, requestID)
		wrapper.Header().Set(HeaderTraceID, requestID)

		class := Class(r.URL.Path)
		log := logger.Info
		if class == "static" {
			log = logger.Debug
		}

		log("Request started",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		next.ServeHTTP(wrapper, r.WithContext(ctx))

		duration := time.Since(startTime)
		p.Metrics.RecordRequest(r.Method, class, wrapper.StatusCode, duration)

		log("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapper.StatusCode,
			"duration_ms", duration.Milliseconds(),
			"bytes_written", wrapper.BytesWritten,
		)
	})
}

// MetricsHandler returns an HTTP handler for exposing metrics
func (p *Provider) MetricsHandler() http.Handler {
	return metrics.Handler()
}
