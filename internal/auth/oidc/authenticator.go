// Package oidc implements Microsoft single sign-on: the authorization code
// flow against the identity provider, followed by an exchange of the verified
// id token for a portal token at the backend.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	"portalgate/internal/auth"
	"portalgate/internal/observability/logging"
	"portalgate/internal/observability/metrics"
	"portalgate/internal/proxy/backend"
)

const (
	// StartPath begins the flow
	StartPath = "/api/auth/microsoft"

	// DefaultCallbackPath is used when the redirect URL carries no path
	DefaultCallbackPath = "/auth/microsoft/callback"

	// DefaultBackendPath is the backend endpoint that trades an id token for
	// a portal token
	DefaultBackendPath = "/api/auth/microsoft/callback"

	// FailureReason is appended to the login redirect when the flow fails
	FailureReason = "microsoft_auth_failed"

	stateCookie    = "sso_state"
	verifierCookie = "sso_code_verifier"
	tempCookieAge  = 10 * time.Minute
)

var errNoAccessToken = errors.New("backend response carries no access token")

// Config holds Microsoft SSO configuration
type Config struct {
	Enabled bool

	// Issuer is the OIDC issuer URL, for Entra ID
	// https://login.microsoftonline.com/<tenant>/v2.0
	Issuer string

	ClientID     string
	ClientSecret string

	// RedirectURL is the callback registered with the provider
	RedirectURL string

	Scopes []string

	// BackendPath receives the verified id token
	BackendPath string

	LoginPath     string
	DashboardPath string

	CookieSecure bool
}

// Authenticator runs the Microsoft SSO flow
type Authenticator struct {
	logger       *logging.Logger
	metrics      *metrics.Collector
	enabled      bool
	verifier     *oidc.IDTokenVerifier
	config       oauth2.Config
	backend      *backend.Client
	backendPath  string
	loginPath    string
	dashboard    string
	callbackPath string
	secure       bool
}

// New creates the authenticator, discovering the provider from cfg.Issuer.
// A disabled configuration yields an authenticator that registers no routes.
func New(ctx context.Context, cfg Config, client *backend.Client, logger *logging.Logger, collector *metrics.Collector) (*Authenticator, error) {
	logger = logger.WithModule("auth.oidc")

	if !cfg.Enabled {
		return &Authenticator{logger: logger, metrics: collector}, nil
	}

	if cfg.Issuer == "" {
		return nil, fmt.Errorf("SSO enabled but no issuer provided")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("SSO enabled but clientID or clientSecret not provided")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("SSO enabled but no redirect URL provided")
	}

	logger.Debug("Initializing OIDC provider", "issuer", cfg.Issuer)
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return newAuthenticator(cfg, provider.Endpoint(), verifier, client, logger, collector), nil
}

func newAuthenticator(cfg Config, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier, client *backend.Client, logger *logging.Logger, collector *metrics.Collector) *Authenticator {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	a := &Authenticator{
		logger:   logger,
		metrics:  collector,
		enabled:  true,
		verifier: verifier,
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		backend:      client,
		backendPath:  cfg.BackendPath,
		loginPath:    cfg.LoginPath,
		dashboard:    cfg.DashboardPath,
		callbackPath: ExtractCallbackPath(cfg.RedirectURL),
		secure:       cfg.CookieSecure,
	}
	if a.backendPath == "" {
		a.backendPath = DefaultBackendPath
	}
	if a.loginPath == "" {
		a.loginPath = "/login"
	}
	if a.dashboard == "" {
		a.dashboard = "/dashboard"
	}
	return a
}

// Enabled reports whether SSO is configured
func (a *Authenticator) Enabled() bool {
	return a.enabled
}

// CallbackPath returns the path the provider redirects back to
func (a *Authenticator) CallbackPath() string {
	return a.callbackPath
}

// Register adds the start and callback routes to r
func (a *Authenticator) Register(r *mux.Router) {
	if !a.enabled {
		return
	}
	r.HandleFunc(StartPath, a.Start).Methods(http.MethodGet)
	r.HandleFunc(a.callbackPath, a.Callback).Methods(http.MethodGet)
}

// Start redirects the browser to the provider with a fresh state and PKCE
// verifier kept in short-lived cookies
func (a *Authenticator) Start(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), a.logger)

	state, err := randomString(16)
	if err != nil {
		logger.Error("Failed to generate state parameter", logging.Err(err))
		a.fail(w, r)
		return
	}
	codeVerifier := oauth2.GenerateVerifier()

	a.setTempCookie(w, stateCookie, state)
	a.setTempCookie(w, verifierCookie, codeVerifier)

	authURL := a.config.AuthCodeURL(state, oauth2.S256ChallengeOption(codeVerifier))

	logger.Info("Redirecting to identity provider")
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes the flow: it exchanges the code, verifies the id token,
// trades it for a portal token at the backend and stores that in the token
// cookie. Any failure sends the browser back to the login page.
func (a *Authenticator) Callback(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), a.logger)
	a.clearTempCookies(w)

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		logger.Warn("Identity provider returned an error", "error", providerErr, "description", q.Get("error_description"))
		a.fail(w, r)
		return
	}

	state := q.Get("state")
	c, err := r.Cookie(stateCookie)
	if state == "" || err != nil || c.Value != state {
		logger.Warn("State mismatch or cookie missing", "cookie_exists", err == nil)
		a.fail(w, r)
		return
	}

	code := q.Get("code")
	if code == "" {
		logger.Warn("No code parameter in callback")
		a.fail(w, r)
		return
	}

	var opts []oauth2.AuthCodeOption
	if v, err := r.Cookie(verifierCookie); err == nil {
		opts = append(opts, oauth2.VerifierOption(v.Value))
	}

	token, err := a.login(r.Context(), code, opts...)
	if err != nil {
		logger.Error("Microsoft sign-in failed", logging.Err(err))
		a.fail(w, r)
		return
	}

	auth.SetTokenCookie(w, token, a.secure)
	a.metrics.RecordLogin("microsoft", true)
	logger.Info("Microsoft sign-in succeeded", "token", logging.RedactToken(token))

	http.Redirect(w, r, a.dashboard, http.StatusFound)
}

// IDClaims are the id token claims forwarded to the backend
type IDClaims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
}

func (a *Authenticator) login(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (string, error) {
	oauth2Token, err := a.config.Exchange(ctx, code, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", errors.New("no id token in OAuth2 token")
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", fmt.Errorf("failed to verify id token: %w", err)
	}

	var claims IDClaims
	if err := idToken.Claims(&claims); err != nil {
		return "", fmt.Errorf("failed to parse id token claims: %w", err)
	}

	body, err := json.Marshal(struct {
		IDToken     string `json:"id_token"`
		AccessToken string `json:"access_token"`
		IDClaims
	}{rawIDToken, oauth2Token.AccessToken, claims})
	if err != nil {
		return "", fmt.Errorf("failed to encode backend request: %w", err)
	}

	resp, err := a.backend.Do(ctx, backend.Request{
		Name:   "sso",
		Method: http.MethodPost,
		Path:   a.backendPath,
		Body:   body,
	})
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("backend rejected id token with status %d: %s", resp.Status, backend.ErrorMessage(resp))
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil || out.AccessToken == "" {
		return "", errNoAccessToken
	}
	return out.AccessToken, nil
}

func (a *Authenticator) fail(w http.ResponseWriter, r *http.Request) {
	a.metrics.RecordLogin("microsoft", false)
	target := a.loginPath + "?" + url.Values{"error": {FailureReason}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

func (a *Authenticator) setTempCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(tempCookieAge.Seconds()),
	})
}

func (a *Authenticator) clearTempCookies(w http.ResponseWriter) {
	for _, name := range []string{stateCookie, verifierCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   a.secure,
			MaxAge:   -1,
		})
	}
}

// ExtractCallbackPath returns the path the provider redirects back to for
// redirectURL
func ExtractCallbackPath(redirectURL string) string {
	parsedURL, err := url.Parse(redirectURL)
	if err != nil || parsedURL.Path == "" || parsedURL.Path == "/" {
		return DefaultCallbackPath
	}
	return parsedURL.Path
}

// randomString generates a random string of the specified length
func randomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}
