package config

import (
	_ "embed"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"portalgate/internal/auth"
)

const (
	// EnvPrefix is prepended to every setting name when read from the environment
	EnvPrefix = "PORTALGATE"

	// DefaultBackendURL is used when no backend URL is configured
	DefaultBackendURL = "http://api:8001"
)

//go:embed routes.yaml
var embeddedRoutes []byte

var pathVar = regexp.MustCompile(`\{([^{}:]+)(:[^{}]+)?\}`)

// Load loads the configuration from all sources and returns the merged result
func Load(configPath string) (*Config, error) {
	v := viper.New()

	Settings.PopulateViperDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	config := &Config{}
	var err error

	config.Server.Address = v.GetString("SERVER_ADDR")
	if config.Server.ShutdownTimeout, err = duration(v, "SHUTDOWN_TIMEOUT"); err != nil {
		return nil, err
	}

	config.Metrics.Address = v.GetString("METRICS_ADDR")

	config.TLS.Enabled = v.GetBool("TLS_ENABLED")
	config.TLS.CertPath = v.GetString("TLS_CERT_PATH")
	config.TLS.KeyPath = v.GetString("TLS_KEY_PATH")
	config.TLS.CAPath = v.GetString("TLS_CA_PATH")

	backendURL := strings.TrimSpace(v.GetString("BACKEND_URL"))
	if backendURL == "" {
		backendURL = DefaultBackendURL
	}
	if config.Backend.URL, err = parseBaseURL(backendURL); err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if config.Backend.Timeout, err = duration(v, "BACKEND_TIMEOUT"); err != nil {
		return nil, err
	}
	config.Backend.Retries = v.GetInt("BACKEND_RETRIES")
	if config.Backend.RetryDelay, err = duration(v, "BACKEND_RETRY_DELAY"); err != nil {
		return nil, err
	}

	if raw := strings.TrimSpace(v.GetString("UI_UPSTREAM_URL")); raw != "" {
		if config.UI.UpstreamURL, err = parseBaseURL(raw); err != nil {
			return nil, fmt.Errorf("invalid UI upstream URL: %w", err)
		}
	}

	config.Gate.LoginPath = v.GetString("LOGIN_PATH")
	config.Gate.DashboardPath = v.GetString("DASHBOARD_PATH")
	config.Gate.UnauthorizedPath = v.GetString("UNAUTHORIZED_PATH")
	config.Gate.LoopThreshold = v.GetInt("REDIRECT_LOOP_THRESHOLD")
	config.Gate.PolicyFile = v.GetString("ACCESS_POLICY_FILE")

	config.Session.LoginEndpoints = splitList(v.GetStringSlice("LOGIN_ENDPOINTS"))
	config.Session.LoginRateLimit = v.GetInt("LOGIN_RATE_LIMIT")
	config.Session.CookieSecure = v.GetBool("COOKIE_SECURE")

	config.SSO.Enabled = v.GetBool("SSO_ENABLED")
	config.SSO.Issuer = v.GetString("SSO_ISSUER")
	config.SSO.ClientID = v.GetString("SSO_CLIENT_ID")
	config.SSO.ClientSecret = v.GetString("SSO_CLIENT_SECRET")
	config.SSO.RedirectURL = v.GetString("SSO_REDIRECT_URL")
	config.SSO.Scopes = splitList(v.GetStringSlice("SSO_SCOPES"))
	config.SSO.BackendPath = v.GetString("SSO_BACKEND_PATH")

	config.Observability.LogLevel = v.GetString("LOG_LEVEL")

	config.RoutesFile = v.GetString("PROXY_ROUTES_FILE")
	if config.Rules, err = LoadRules(config.RoutesFile); err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// validateConfig performs validation on the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return fmt.Errorf("TLS certificate path is required when TLS is enabled")
		}
		if cfg.TLS.KeyPath == "" {
			return fmt.Errorf("TLS key path is required when TLS is enabled")
		}
		if _, err := os.Stat(cfg.TLS.CertPath); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file not found: %s", cfg.TLS.CertPath)
		}
		if _, err := os.Stat(cfg.TLS.KeyPath); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file not found: %s", cfg.TLS.KeyPath)
		}
	}

	if cfg.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}
	if cfg.Backend.Retries < 0 {
		return fmt.Errorf("backend retries must not be negative")
	}
	if cfg.Backend.RetryDelay < 0 {
		return fmt.Errorf("backend retry delay must not be negative")
	}

	for name, p := range map[string]string{
		"login path":        cfg.Gate.LoginPath,
		"dashboard path":    cfg.Gate.DashboardPath,
		"unauthorized path": cfg.Gate.UnauthorizedPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with /: %q", name, p)
		}
	}
	if cfg.Gate.LoopThreshold < 1 {
		return fmt.Errorf("redirect loop threshold must be at least 1")
	}

	if len(cfg.Session.LoginEndpoints) == 0 {
		return fmt.Errorf("at least one login endpoint is required")
	}
	if cfg.Session.LoginRateLimit < 0 {
		return fmt.Errorf("login rate limit must not be negative")
	}

	return validateSSOConfig(cfg)
}

// validateSSOConfig validates Microsoft single sign-on configuration
func validateSSOConfig(cfg *Config) error {
	if !cfg.SSO.Enabled {
		return nil
	}
	if cfg.SSO.Issuer == "" {
		return fmt.Errorf("SSO issuer is required when SSO is enabled")
	}
	if cfg.SSO.ClientID == "" {
		return fmt.Errorf("SSO client ID is required when SSO is enabled")
	}
	if cfg.SSO.ClientSecret == "" {
		return fmt.Errorf("SSO client secret is required when SSO is enabled")
	}
	if cfg.SSO.RedirectURL == "" {
		return fmt.Errorf("SSO redirect URL is required when SSO is enabled")
	}
	if !strings.HasPrefix(cfg.SSO.BackendPath, "/") {
		return fmt.Errorf("SSO backend path must start with /: %q", cfg.SSO.BackendPath)
	}
	return nil
}

// LoadRules loads the API proxy routes from a YAML file, or the built-in
// routes when rulesPath is empty.
func LoadRules(rulesPath string) ([]Rule, error) {
	data := embeddedRoutes
	if rulesPath != "" {
		b, err := os.ReadFile(rulesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read proxy routes: %w", err)
		}
		data = b
	}
	return ParseRules(data)
}

// ParseRules parses and validates API proxy routes
func ParseRules(data []byte) ([]Rule, error) {
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse proxy routes: %w", err)
	}

	names := make(map[string]bool, len(rules))
	for i := range rules {
		rule := &rules[i]
		if rule.Name == "" {
			return nil, fmt.Errorf("proxy route %d has no name", i)
		}
		if names[rule.Name] {
			return nil, fmt.Errorf("duplicate proxy route %q", rule.Name)
		}
		names[rule.Name] = true

		if err := validateRule(rule); err != nil {
			return nil, fmt.Errorf("proxy route %q: %w", rule.Name, err)
		}
	}
	return rules, nil
}

func validateRule(rule *Rule) error {
	if len(rule.Paths) == 0 {
		return fmt.Errorf("at least one path is required")
	}
	if !strings.HasPrefix(rule.Backend, "/") {
		return fmt.Errorf("backend %q must start with /", rule.Backend)
	}

	vars := make(map[string]bool)
	for _, p := range rule.Paths {
		if !strings.HasPrefix(p, "/api/") {
			return fmt.Errorf("path %q must be under /api/", p)
		}
		for _, m := range pathVar.FindAllStringSubmatch(p, -1) {
			vars[m[1]] = true
		}
	}
	for _, template := range append([]string{rule.Backend}, rule.Fallbacks...) {
		for _, m := range pathVar.FindAllStringSubmatch(template, -1) {
			if !vars[m[1]] {
				return fmt.Errorf("backend %q uses variable %q missing from paths", template, m[1])
			}
		}
	}

	for i, method := range rule.Methods {
		rule.Methods[i] = strings.ToUpper(method)
		if !knownMethod(rule.Methods[i]) {
			return fmt.Errorf("unknown method %q", method)
		}
	}
	rule.BackendMethod = strings.ToUpper(rule.BackendMethod)
	if rule.BackendMethod != "" && !knownMethod(rule.BackendMethod) {
		return fmt.Errorf("unknown backend method %q", rule.BackendMethod)
	}

	for i, raw := range rule.Roles {
		role := auth.ParseRole(raw)
		if !role.Known() {
			return fmt.Errorf("unknown role %q", raw)
		}
		rule.Roles[i] = role.String()
	}
	return nil
}

func knownMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", strings.ToLower(strings.ReplaceAll(key, "_", " ")), err)
	}
	return d, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme in %q", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host in %q", raw)
	}
	return u, nil
}

// splitList accepts both YAML lists and comma separated environment values
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
