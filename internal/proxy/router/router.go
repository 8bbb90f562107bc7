package router

import (
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/exp/slices"

	"portalgate/internal/access"
	"portalgate/internal/auth"
	"portalgate/internal/config"
	"portalgate/internal/httputils"
	"portalgate/internal/observability/logging"
	"portalgate/internal/observability/metrics"
	"portalgate/internal/proxy/backend"
)

const maxRequestBody = 32 << 20

var pathVar = regexp.MustCompile(`\{([^{}:]+)(:[^{}]+)?\}`)

// Router serves the API proxy routes and hands every other page to the UI
// upstream. Handlers registered on the embedded mux after New take part in
// matching like the proxy routes.
type Router struct {
	*mux.Router
	ui      *httputil.ReverseProxy
	uiURL   *url.URL
	backend *backend.Client
	rules   []config.Rule
	logger  *logging.Logger
	metrics *metrics.Collector
}

// Config holds router configuration
type Config struct {
	// UIUpstreamURL is the UI server; nil disables page proxying
	UIUpstreamURL *url.URL

	// UIUpstreamTimeout bounds the wait for UI response headers
	UIUpstreamTimeout time.Duration

	// Rules is the list of API proxy routes
	Rules []config.Rule
}

// New creates a new router
func New(cfg Config, client *backend.Client, logger *logging.Logger, collector *metrics.Collector) *Router {
	r := &Router{
		Router:  mux.NewRouter(),
		uiURL:   cfg.UIUpstreamURL,
		backend: client,
		rules:   cfg.Rules,
		logger:  logger.WithModule("proxy.router"),
		metrics: collector,
	}

	if cfg.UIUpstreamURL != nil {
		r.ui = r.newUIProxy(cfg.UIUpstreamURL, cfg.UIUpstreamTimeout)
	}

	r.setupRoutes()
	return r
}

func (r *Router) newUIProxy(target *url.URL, timeout time.Duration) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		logging.FromContext(req.Context(), r.logger).Error("UI upstream request failed",
			"path", req.URL.Path,
			"upstream", logging.RedactURL(target),
			logging.Err(err),
		)
		httputils.WriteError(w, http.StatusBadGateway, "UI upstream unavailable")
	}
	return proxy
}

func (r *Router) setupRoutes() {
	r.Path("/healthz").Methods(http.MethodGet, http.MethodHead).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	for _, rule := range r.rules {
		r.logger.Debug("Setting up route",
			"name", rule.Name,
			"paths", rule.Paths,
			"methods", rule.Methods,
			"backend", rule.Backend,
		)

		handler := r.proxyHandler(rule)
		for _, path := range rule.Paths {
			route := r.Path(path).Name(rule.Name)
			if len(rule.Methods) > 0 {
				route = route.Methods(rule.Methods...)
			}
			route.Handler(handler)
		}
	}

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(r.serveFallback)
}

// serveFallback answers unmatched API paths with 404 and forwards pages to the UI
func (r *Router) serveFallback(w http.ResponseWriter, req *http.Request) {
	logger := logging.FromContext(req.Context(), r.logger)

	if access.IsAPI(req.URL.Path) {
		logger.Warn("Request received for undefined API route", "path", req.URL.Path, "method", req.Method)
		httputils.WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	if r.ui == nil {
		httputils.WriteError(w, http.StatusBadGateway, "No UI upstream configured")
		return
	}

	start := time.Now()
	wrapper := httputils.NewResponseWriter(w)
	r.ui.ServeHTTP(wrapper, req)
	r.metrics.RecordUpstreamRequest(req.Method, r.uiURL.Host, wrapper.StatusCode, time.Since(start))
}

// proxyHandler checks the caller against rule and forwards the call to the backend
func (r *Router) proxyHandler(rule config.Rule) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		logger := logging.FromContext(ctx, r.logger)

		token, hasToken := auth.ExtractToken(req)
		var role auth.Role

		if !rule.Public {
			if !hasToken {
				r.metrics.RecordRouteCheck(rule.Name, false)
				logger.Info("Route check failed: no token", "rule", rule.Name, "path", req.URL.Path)
				httputils.WriteError(w, http.StatusUnauthorized, "No valid token found")
				return
			}

			claims, err := auth.DecodeRole(token)
			if err != nil {
				r.metrics.RecordRouteCheck(rule.Name, false)
				logger.Info("Route check failed: undecodable token", "rule", rule.Name, logging.Err(err))
				httputils.WriteError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			role = claims.Role

			if !RoleAllowed(rule, role) {
				r.metrics.RecordRouteCheck(rule.Name, false)
				logger.Info("Route check failed: role not allowed",
					"rule", rule.Name,
					"role", role,
					"subject", claims.Subject,
				)
				httputils.WriteError(w, http.StatusForbidden, "Forbidden")
				return
			}
			r.metrics.RecordRouteCheck(rule.Name, true)
		} else if hasToken {
			if claims, err := auth.Decode(token); err == nil {
				role = claims.Role
			}
		}

		body, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBody+1))
		if err != nil {
			httputils.WriteError(w, http.StatusBadRequest, "Failed to read request body")
			return
		}
		if len(body) > maxRequestBody {
			httputils.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		if len(body) == 0 {
			body = nil
		}

		method := req.Method
		if rule.BackendMethod != "" {
			method = rule.BackendMethod
		}

		vars := mux.Vars(req)
		candidates := make([]string, 0, 1+len(rule.Fallbacks))
		for _, template := range append([]string{rule.Backend}, rule.Fallbacks...) {
			candidates = append(candidates, Expand(template, vars))
		}

		resp, used, err := r.backend.DoFirst(ctx, backend.Request{
			Name:        rule.Name,
			Method:      method,
			RawQuery:    req.URL.RawQuery,
			Body:        body,
			Token:       token,
			Role:        role,
			ContentType: req.Header.Get("Content-Type"),
		}, candidates)
		if err != nil {
			logger.Error("Proxying to backend failed", "rule", rule.Name, "backend", used, logging.Err(err))
			backend.WriteError(w, err)
			return
		}

		if resp.Status >= http.StatusInternalServerError {
			logger.Warn("Backend answered with an error", "rule", rule.Name, "backend", used, "status", resp.Status)
		}
		backend.WriteResponse(w, resp)
	})
}

// RoleAllowed reports whether role may call rule. The super admin always
// may; a rule without roles admits any authenticated role.
func RoleAllowed(rule config.Rule, role auth.Role) bool {
	if role == auth.RoleSuperAdmin {
		return true
	}
	if len(rule.Roles) == 0 {
		return role != ""
	}
	return slices.Contains(rule.Roles, role.String())
}

// Expand substitutes mux path variables into a backend path template. The
// values are decoded path segments; escaping happens when the URL is built.
func Expand(template string, vars map[string]string) string {
	return pathVar.ReplaceAllStringFunc(template, func(m string) string {
		return vars[pathVar.FindStringSubmatch(m)[1]]
	})
}
