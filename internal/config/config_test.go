package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DefaultBackendURL, cfg.Backend.URL.String())
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 2, cfg.Backend.Retries)
	assert.Equal(t, time.Second, cfg.Backend.RetryDelay)
	assert.Nil(t, cfg.UI.UpstreamURL)
	assert.Equal(t, "/login", cfg.Gate.LoginPath)
	assert.Equal(t, "/dashboard", cfg.Gate.DashboardPath)
	assert.Equal(t, "/unauthorized", cfg.Gate.UnauthorizedPath)
	assert.Equal(t, 5, cfg.Gate.LoopThreshold)
	assert.Equal(t, []string{"/api/auth/login", "/api/v1/auth/login"}, cfg.Session.LoginEndpoints)
	assert.Equal(t, 10, cfg.Session.LoginRateLimit)
	assert.False(t, cfg.SSO.Enabled)
	assert.NotEmpty(t, cfg.Rules)
}

func TestLoad_BackendURLFromEnvironment(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"prefixed", map[string]string{"PORTALGATE_BACKEND_URL": "http://prefixed:1"}, "http://prefixed:1"},
		{"plain", map[string]string{"BACKEND_URL": "http://plain:2/"}, "http://plain:2"},
		{"public api url", map[string]string{"NEXT_PUBLIC_API_URL": "https://public:3"}, "https://public:3"},
		{
			"prefixed wins",
			map[string]string{"PORTALGATE_BACKEND_URL": "http://prefixed:1", "BACKEND_URL": "http://plain:2"},
			"http://prefixed:1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Backend.URL.String())
		})
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORTALGATE_LOGIN_ENDPOINTS", "/api/login, /api/v2/login")
	t.Setenv("PORTALGATE_BACKEND_RETRIES", "0")
	t.Setenv("PORTALGATE_UI_UPSTREAM_URL", "http://ui:3001")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"/api/login", "/api/v2/login"}, cfg.Session.LoginEndpoints)
	assert.Equal(t, 0, cfg.Backend.Retries)
	require.NotNil(t, cfg.UI.UpstreamURL)
	assert.Equal(t, "ui:3001", cfg.UI.UpstreamURL.Host)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portalgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_ADDR: \":8443\"\nREDIRECT_LOOP_THRESHOLD: 3\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8443", cfg.Server.Address)
	assert.Equal(t, 3, cfg.Gate.LoopThreshold)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad timeout", "PORTALGATE_BACKEND_TIMEOUT", "soon"},
		{"bad backend scheme", "PORTALGATE_BACKEND_URL", "ftp://api"},
		{"relative login path", "PORTALGATE_LOGIN_PATH", "login"},
		{"zero threshold", "PORTALGATE_REDIRECT_LOOP_THRESHOLD", "0"},
		{"tls without cert", "PORTALGATE_TLS_ENABLED", "true"},
		{"sso without issuer", "PORTALGATE_SSO_ENABLED", "true"},
		{"missing routes file", "PORTALGATE_PROXY_ROUTES_FILE", "/does/not/exist.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadRules_Embedded(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)

	byName := make(map[string]Rule, len(rules))
	for _, rule := range rules {
		byName[rule.Name] = rule
	}

	status, ok := byName["admin-user-status"]
	require.True(t, ok)
	assert.Equal(t, "PUT", status.BackendMethod)
	assert.Equal(t, []string{"admin"}, status.Roles)

	token, ok := byName["user-token"]
	require.True(t, ok)
	assert.True(t, token.Public)
	assert.Equal(t, []string{"/api/auth/token", "/api/token"}, token.Fallbacks)
}

func TestParseRules_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		rules string
	}{
		{"no name", "- paths: [/api/x]\n  backend: /api/x\n"},
		{"duplicate", "- name: a\n  paths: [/api/x]\n  backend: /api/x\n- name: a\n  paths: [/api/y]\n  backend: /api/y\n"},
		{"no paths", "- name: a\n  backend: /api/x\n"},
		{"outside api", "- name: a\n  paths: [/x]\n  backend: /api/x\n"},
		{"relative backend", "- name: a\n  paths: [/api/x]\n  backend: api/x\n"},
		{"unknown variable", "- name: a\n  paths: [/api/x]\n  backend: \"/api/x/{id}\"\n"},
		{"unknown role", "- name: a\n  paths: [/api/x]\n  backend: /api/x\n  roles: [auditor]\n"},
		{"unknown method", "- name: a\n  paths: [/api/x]\n  methods: [FETCH]\n  backend: /api/x\n"},
		{"not a list", "name: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.rules))
			assert.Error(t, err)
		})
	}
}

func TestParseRules_Normalises(t *testing.T) {
	rules, err := ParseRules([]byte("- name: a\n  paths: [\"/api/x/{id}\"]\n  methods: [get]\n  backend: \"/api/y/{id}\"\n  roles: [ADMIN]\n"))
	require.NoError(t, err)
	require.Len(t, rules, 1)

	assert.Equal(t, []string{"GET"}, rules[0].Methods)
	assert.Equal(t, []string{"admin"}, rules[0].Roles)
}
