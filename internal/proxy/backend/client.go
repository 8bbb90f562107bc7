// Package backend calls the portal backend API on behalf of a user. It
// attaches the user's bearer token, retries transient failures with a fixed
// delay and stops calling a backend that keeps failing.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"

	"portalgate/internal/auth"
	"portalgate/internal/contextutil"
	"portalgate/internal/observability/logging"
	"portalgate/internal/observability/metrics"
)

var (
	// ErrUnreachable is returned when no connection to the backend could be made
	ErrUnreachable = errors.New("backend unreachable")
	// ErrCircuitOpen is returned while the circuit breaker rejects calls
	ErrCircuitOpen = errors.New("backend circuit open")
)

// HeaderOverrideRole tells the backend to apply super admin privileges
const HeaderOverrideRole = "X-Override-Role"

const maxResponseBytes = 32 << 20

// AuthHeaders builds the headers of an authenticated backend call
func AuthHeaders(token string, role auth.Role) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	h.Set("Content-Type", "application/json")
	if role == auth.RoleSuperAdmin {
		h.Set(HeaderOverrideRole, "true")
	}
	return h
}

// Request describes one backend call
type Request struct {
	// Name labels the call in metrics and logs, defaults to Path
	Name string

	Method string

	// Path is appended to the backend base URL
	Path string

	// RawQuery is forwarded unchanged
	RawQuery string

	Body []byte

	// Token is sent as a bearer token when not empty
	Token string

	// Role adds the override header for the super admin
	Role auth.Role

	// ContentType replaces the default application/json
	ContentType string
}

// Response is a buffered backend response
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Options configures a Client
type Options struct {
	BaseURL    *url.URL
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration

	// Transport is used instead of http.DefaultTransport when set
	Transport http.RoundTripper
}

// Client calls the backend. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
	breaker    *gobreaker.CircuitBreaker[*Response]
	logger     *logging.Logger
	metrics    *metrics.Collector
}

// NewClient creates a backend client
func NewClient(opts Options, logger *logging.Logger, collector *metrics.Collector) *Client {
	logger = logger.WithModule("backend")
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	c := &Client{
		base:       opts.BaseURL,
		httpClient: &http.Client{Timeout: opts.Timeout, Transport: transport},
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		logger:     logger,
		metrics:    collector,
	}

	collector.RecordBreakerState("backend", breakerStateValue(gobreaker.StateClosed))
	c.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			collector.RecordBreakerState(name, breakerStateValue(to))
		},
	})

	return c
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() *url.URL {
	return c.base
}

// statusError carries a 5xx response through the breaker and the retry loop
type statusError struct {
	resp *Response
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend returned %d", e.resp.Status)
}

// Do performs req. Non-2xx responses are returned without error; the error is
// reserved for calls that produced no response at all.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Name == "" {
		req.Name = req.Path
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*Response, error) {
		return c.doWithRetry(ctx, req)
	})

	var se *statusError
	switch {
	case errors.As(err, &se):
		resp, err = se.resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}

	status := 0
	if resp != nil {
		status = resp.Status
	}
	c.metrics.RecordBackendRequest(req.Method, req.Name, status, time.Since(start))

	logger := logging.FromContext(ctx, c.logger)
	if err != nil {
		logger.Error("Backend request failed", "method", req.Method, "endpoint", req.Name, logging.Err(err))
		return nil, err
	}
	logger.Debug("Backend request completed",
		"method", req.Method,
		"endpoint", req.Name,
		"status", resp.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (c *Client) doWithRetry(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	operation := func() error {
		r, err := c.attempt(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if r.Status >= 500 {
			return &statusError{resp: r}
		}
		resp = r
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), uint64(max(c.retries, 0))),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		c.metrics.RecordBackendRetry(req.Name)
		logging.FromContext(ctx, c.logger).Warn("Retrying backend request",
			"method", req.Method,
			"endpoint", req.Name,
			"wait_ms", wait.Milliseconds(),
			logging.Err(err),
		)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return nil, se
		}
		if isUnreachable(err) {
			return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.url(req), body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build backend request: %w", err))
	}

	if req.Token != "" {
		httpReq.Header = AuthHeaders(req.Token, req.Role)
	} else {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if requestID := contextutil.GetRequestID(ctx); requestID != "" {
		httpReq.Header.Set("X-Request-ID", requestID)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read backend response: %w", err)
	}

	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: b}, nil
}

func (c *Client) url(req Request) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(req.Path, "/")
	u.RawPath = ""
	u.RawQuery = req.RawQuery
	return u.String()
}

// isUnreachable reports connection-level failures: refused or reset
// connections, unreachable hosts and failed name resolution.
func isUnreachable(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EHOSTUNREACH, syscall.ENETUNREACH} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

func breakerStateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
