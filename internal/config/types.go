package config

import (
	"net/url"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	// Server holds HTTP server configuration
	Server struct {
		Address         string
		ShutdownTimeout time.Duration
	}

	// Metrics holds metrics server configuration
	Metrics struct {
		// Address is empty when the metrics server is disabled
		Address string
	}

	// TLS holds server TLS configuration
	TLS struct {
		Enabled  bool
		CertPath string
		KeyPath  string
		// CAPath enables optional client certificate verification
		CAPath string
	}

	// Backend holds the portal backend API configuration
	Backend struct {
		URL        *url.URL
		Timeout    time.Duration
		Retries    int
		RetryDelay time.Duration
	}

	// UI holds the portal UI upstream
	UI struct {
		// UpstreamURL is nil when pages are not proxied
		UpstreamURL *url.URL
	}

	// Gate holds page gate configuration
	Gate struct {
		LoginPath        string
		DashboardPath    string
		UnauthorizedPath string
		LoopThreshold    int
		PolicyFile       string
	}

	// Session holds login handler configuration
	Session struct {
		LoginEndpoints []string
		LoginRateLimit int
		CookieSecure   bool
	}

	// SSO holds Microsoft single sign-on configuration
	SSO struct {
		Enabled      bool
		Issuer       string
		ClientID     string
		ClientSecret string
		RedirectURL  string
		Scopes       []string
		BackendPath  string
	}

	// Observability holds observability configuration
	Observability struct {
		LogLevel string
	}

	// RoutesFile is the proxy route file, empty for the built-in routes
	RoutesFile string

	// Rules holds the API proxy routes
	Rules []Rule
}

// Rule defines an API route forwarded to the backend
type Rule struct {
	// Name is a unique identifier for the rule
	Name string `yaml:"name"`

	// Paths are gorilla/mux path templates, e.g. /api/projects/{id}
	Paths []string `yaml:"paths"`

	// Methods is a list of HTTP methods this rule applies to (empty = all methods)
	Methods []string `yaml:"methods"`

	// Backend is the backend path template; path variables are substituted
	Backend string `yaml:"backend"`

	// Fallbacks are alternative backend templates tried in order when the
	// primary one does not succeed
	Fallbacks []string `yaml:"fallbacks"`

	// BackendMethod overrides the method used towards the backend
	BackendMethod string `yaml:"backend_method"`

	// Roles allowed to call the route. Empty means any authenticated user;
	// the super admin is always allowed.
	Roles []string `yaml:"roles"`

	// Public routes are forwarded without a token
	Public bool `yaml:"public"`
}
