// Package session serves the login, logout and current-user endpoints the
// portal UI uses to manage the token cookie.
package session

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"

	"portalgate/internal/access"
	"portalgate/internal/auth"
	"portalgate/internal/httputils"
	"portalgate/internal/observability/logging"
	"portalgate/internal/observability/metrics"
	"portalgate/internal/proxy/backend"
)

const maxLoginBody = 1 << 16

// Options configures the session handlers
type Options struct {
	// LoginEndpoints are backend login paths tried in order
	LoginEndpoints []string

	// CookieSecure marks the token cookie Secure
	CookieSecure bool

	// RateLimit is the number of login attempts allowed per client IP and
	// minute; zero disables limiting
	RateLimit int
}

// Handlers serves the session endpoints
type Handlers struct {
	backend *backend.Client
	table   *access.Table
	opts    Options
	logger  *logging.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// New creates the session handlers
func New(client *backend.Client, table *access.Table, opts Options, logger *logging.Logger, collector *metrics.Collector) *Handlers {
	return &Handlers{
		backend: client,
		table:   table,
		opts:    opts,
		logger:  logger.WithModule("session"),
		metrics: collector,
		now:     time.Now,
	}
}

// Register adds the session routes to r
func (h *Handlers) Register(r *mux.Router) {
	var login http.Handler = http.HandlerFunc(h.Login)
	if h.opts.RateLimit > 0 {
		login = httprate.Limit(h.opts.RateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				h.metrics.RecordLogin("password", false)
				httputils.WriteError(w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
			}),
		)(login)
	}

	r.Handle("/api/auth/login", login).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/me", h.Me).Methods(http.MethodGet)
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token at the backend and stores the
// token in the cookie. The backend expects an OAuth2 password form.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), h.logger)

	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		httputils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	username := strings.TrimSpace(req.Email)
	if username == "" {
		username = strings.TrimSpace(req.Username)
	}
	if username == "" || req.Password == "" {
		httputils.WriteError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	form := url.Values{"username": {username}, "password": {req.Password}}
	resp, endpoint, err := h.backend.DoFirst(r.Context(), backend.Request{
		Name:        "login",
		Method:      http.MethodPost,
		Body:        []byte(form.Encode()),
		ContentType: "application/x-www-form-urlencoded",
	}, h.opts.LoginEndpoints)
	if err != nil {
		h.metrics.RecordLogin("password", false)
		logger.Error("Login failed: backend error", logging.Err(err))
		backend.WriteError(w, err)
		return
	}

	if !resp.OK() {
		h.metrics.RecordLogin("password", false)
		logger.Info("Login rejected", "username", username, "status", resp.Status, "endpoint", endpoint)
		httputils.WriteError(w, resp.Status, loginError(resp))
		return
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.AccessToken == "" {
		h.metrics.RecordLogin("password", false)
		logger.Error("Login response carries no access token", "endpoint", endpoint)
		httputils.WriteError(w, http.StatusBadGateway, "Authentication failed")
		return
	}

	auth.SetTokenCookie(w, body.AccessToken, h.opts.CookieSecure)
	h.metrics.RecordLogin("password", true)
	logger.Info("Login succeeded", "username", username, "endpoint", endpoint, "token", logging.RedactToken(body.AccessToken))

	backend.WriteResponse(w, resp)
}

// Logout expires the token cookie
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearTokenCookie(w)
	httputils.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// MeResponse describes the caller as the gate sees them
type MeResponse struct {
	ID           string                 `json:"id"`
	Role         auth.Role              `json:"role"`
	Expired      bool                   `json:"expired"`
	ExpiresAt    *time.Time             `json:"expiresAt,omitempty"`
	Capabilities map[access.Action]bool `json:"capabilities"`
	Prefixes     []string               `json:"prefixes"`
}

// Me returns the decoded token of the caller with what their role may do
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.ExtractToken(r)
	if !ok {
		httputils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	claims, err := auth.DecodeRole(token)
	if err != nil {
		logging.FromContext(r.Context(), h.logger).Info("Rejected token on /me", logging.Err(err))
		httputils.WriteError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	prefixes := h.table.Prefixes(claims.Role)
	if prefixes == nil {
		prefixes = []string{}
	}

	httputils.WriteJSON(w, http.StatusOK, MeResponse{
		ID:           claims.Subject,
		Role:         claims.Role,
		Expired:      claims.ExpiredAt(h.now()),
		ExpiresAt:    claims.ExpiresAt,
		Capabilities: access.Capabilities(claims.Role),
		Prefixes:     prefixes,
	})
}

func loginError(resp *backend.Response) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		var detail string
		if json.Unmarshal(body.Detail, &detail) == nil && detail != "" {
			return detail
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return "Authentication failed"
}
