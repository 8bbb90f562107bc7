package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalgate/internal/auth"
	"portalgate/internal/auth/authtest"
	"portalgate/internal/auth/oidc"
	"portalgate/internal/config"
	"portalgate/internal/observability"
	"portalgate/internal/observability/logging"
	"portalgate/internal/observability/metrics"
	"portalgate/internal/routeguard"
)

func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()

	cfg := &config.Config{}
	u, err := url.Parse(backendURL)
	require.NoError(t, err)
	cfg.Backend.URL = u
	cfg.Backend.Timeout = 2 * time.Second
	cfg.Backend.RetryDelay = time.Millisecond
	cfg.Gate.LoopThreshold = 5
	cfg.Session.LoginEndpoints = []string{"/api/auth/login"}
	cfg.Rules, err = config.LoadRules("")
	require.NoError(t, err)
	return cfg
}

func testProvider() *observability.Provider {
	return &observability.Provider{Logger: logging.Nop(), Metrics: metrics.NewCollector()}
}

func newTestHandler(t *testing.T, backendURL string) http.Handler {
	t.Helper()

	h, err := NewHandler(context.Background(), testConfig(t, backendURL), testProvider())
	require.NoError(t, err)
	return h
}

func get(h http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.TokenCookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Chain(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1}]`))
	}))
	defer api.Close()
	h := newTestHandler(t, api.URL)

	t.Run("health is public", func(t *testing.T) {
		rec := get(h, "/healthz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(observability.HeaderRequestID))
	})

	t.Run("protected page without token goes to login", func(t *testing.T) {
		rec := get(h, "/dashboard", "")
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
		assert.Equal(t, "1", rec.Header().Get("X-Redirect-Count"))
	})

	t.Run("role without access goes to dashboard", func(t *testing.T) {
		rec := get(h, "/admin", authtest.ClientToken(t))
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	})

	t.Run("authorized page without UI upstream", func(t *testing.T) {
		rec := get(h, "/dashboard", authtest.ClientToken(t))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("api is proxied", func(t *testing.T) {
		rec := get(h, "/api/projects", authtest.ClientToken(t))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[{"id":1}]`, rec.Body.String())
	})

	t.Run("unknown api path", func(t *testing.T) {
		rec := get(h, "/api/nope", authtest.ClientToken(t))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("route access", func(t *testing.T) {
		rec := get(h, RouteAccessPath+"?path=/admin", authtest.ClientToken(t))
		require.Equal(t, http.StatusOK, rec.Code)

		var got routeguard.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.False(t, got.Authorized)
		assert.Equal(t, "/unauthorized", got.RedirectTo)
	})

	t.Run("me", func(t *testing.T) {
		rec := get(h, "/api/auth/me", authtest.PentesterToken(t))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"role":"pentester"`)
	})
}

func TestNewHandler_RejectsGatedSSOCallback(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.SSO.Enabled = true
	cfg.SSO.Issuer = "http://127.0.0.1:1/tenant/v2.0"
	cfg.SSO.ClientID = "portal"
	cfg.SSO.ClientSecret = "secret"
	cfg.SSO.RedirectURL = "https://portal.example.com/sso/callback"

	_, err := NewHandler(context.Background(), cfg, testProvider())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "/sso/callback")

	// A callback under /auth passes the check and fails later on discovery.
	cfg.SSO.RedirectURL = "https://portal.example.com" + oidc.DefaultCallbackPath
	_, err = NewHandler(context.Background(), cfg, testProvider())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize SSO")
}

func TestServer_StopWithoutStart(t *testing.T) {
	s := New(Config{Address: "127.0.0.1:0", ShutdownTimeout: time.Second}, http.NotFoundHandler(), nil, logging.Nop())
	assert.NotNil(t, s.Handler())
	assert.NoError(t, s.Stop(context.Background()))
}
