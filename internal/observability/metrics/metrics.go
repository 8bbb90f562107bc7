package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label names shared by the vectors below
const (
	LabelClass    = "class"
	LabelState    = "state"
	LabelTarget   = "target"
	LabelStatus   = "status"
	LabelMethod   = "method"
	LabelEndpoint = "endpoint"
	LabelRoute    = "route"
	LabelSuccess  = "success"
	LabelFlow     = "flow"
	LabelBreaker  = "breaker"
	LabelUpstream = "upstream"
)

var (
	// RequestsTotal counts all HTTP requests by path class
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalgate_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelClass, LabelStatus},
	)

	// RequestDuration tracks the duration of HTTP requests
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portalgate_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelClass},
	)

	// GateDecisionsTotal counts authorization middleware outcomes
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalgate_gate_decisions_total",
			Help: "Total number of page gate decisions by final state",
		},
		[]string{LabelState},
	)

	// RedirectsTotal counts redirects issued by the gate
	RedirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalgate_redirects_total",
			Help: "Total number of redirects issued by the page gate",
		},
		[]string{LabelTarget},
	)

	// RouteChecksTotal counts per-route role checks on proxied API routes
	RouteChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalgate_route_checks_total",
			Help: "Total number of API route role checks",
		},
		[]string{LabelRoute, LabelSuccess},
	)

	// BackendRequestsTotal counts calls to the portal backend
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalgate_backend_requests_total",
			Help: "Total number of requests to the portal backend",
		},
		[]string{LabelMethod, LabelEndpoint, LabelStatus},
	)

	// BackendRequestDuration tracks backend call latency, retries included
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portalgate_backend_request_duration_seconds",
			Help:    "Duration of requests to the portal backend in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelEndpoint},
	)

	// BackendRetriesTotal counts retried backend attempts
	BackendRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalgate_backend_retries_total",
			Help: "Total number of retried backend attempts",
		},
		[]string{LabelEndpoint},
	)

	// BreakerState reports the circuit breaker state (0 closed, 1 half-open, 2 open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "portalgate_breaker_state",
			Help: "Backend circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{LabelBreaker},
	)

	// UpstreamRequestTotal counts requests proxied to the UI server
	UpstreamRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalgate_upstream_requests_total",
			Help: "Total number of requests proxied to the UI upstream",
		},
		[]string{LabelMethod, LabelUpstream, LabelStatus},
	)

	// UpstreamRequestDuration tracks the duration of UI upstream requests
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portalgate_upstream_request_duration_seconds",
			Help:    "Duration of requests to the UI upstream in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelUpstream},
	)

	// LoginsTotal counts login attempts by flow and outcome
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalgate_logins_total",
			Help: "Total number of login attempts",
		},
		[]string{LabelFlow, LabelSuccess},
	)
)

// Collector provides methods for recording metrics
type Collector struct{}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{}
}

// RecordRequest records an HTTP request. class is a bounded path class
// (page, api, static, public) rather than the raw path.
func (c *Collector) RecordRequest(method, class string, status int, duration time.Duration) {
	RequestsTotal.WithLabelValues(method, class, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method, class).Observe(duration.Seconds())
}

// RecordGateDecision records the final state of a page gate evaluation
func (c *Collector) RecordGateDecision(state string) {
	GateDecisionsTotal.WithLabelValues(state).Inc()
}

// RecordRedirect records a redirect issued by the gate
func (c *Collector) RecordRedirect(target string) {
	RedirectsTotal.WithLabelValues(target).Inc()
}

// RecordRouteCheck records an API route role check
func (c *Collector) RecordRouteCheck(route string, success bool) {
	RouteChecksTotal.WithLabelValues(route, strconv.FormatBool(success)).Inc()
}

// RecordBackendRequest records a completed call to the backend. A zero status
// means no response was received.
func (c *Collector) RecordBackendRequest(method, endpoint string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	BackendRequestsTotal.WithLabelValues(method, endpoint, label).Inc()
	BackendRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordBackendRetry records a retried backend attempt
func (c *Collector) RecordBackendRetry(endpoint string) {
	BackendRetriesTotal.WithLabelValues(endpoint).Inc()
}

// RecordBreakerState records a circuit breaker transition
func (c *Collector) RecordBreakerState(name string, state int) {
	BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordUpstreamRequest records a request proxied to the UI upstream
func (c *Collector) RecordUpstreamRequest(method, upstream string, status int, duration time.Duration) {
	UpstreamRequestTotal.WithLabelValues(method, upstream, strconv.Itoa(status)).Inc()
	UpstreamRequestDuration.WithLabelValues(method, upstream).Observe(duration.Seconds())
}

// RecordLogin records a login attempt
func (c *Collector) RecordLogin(flow string, success bool) {
	LoginsTotal.WithLabelValues(flow, strconv.FormatBool(success)).Inc()
}

// Handler returns an HTTP handler for exposing metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
