package config

import "github.com/spf13/viper"

// SettingType represents the type of a setting
type SettingType string

const (
	String      SettingType = "string"
	Bool        SettingType = "bool"
	Int         SettingType = "int"
	StringSlice SettingType = "stringSlice"
)

// Setting defines a configuration setting
type Setting struct {
	// Name is the viper key, also the environment variable suffix
	Name string
	// Short is a short description of the setting
	Short string
	// Type is the type of the setting
	Type SettingType
	// Default is the default value of the setting
	Default interface{}
	// Env lists extra environment variables read for the setting, in
	// priority order after the prefixed one
	Env []string
}

// SettingList is a list of settings
type SettingList []Setting

// PopulateViperDefaults sets default values and extra env bindings
func (sl SettingList) PopulateViperDefaults(v *viper.Viper) {
	for _, s := range sl {
		v.SetDefault(s.Name, s.Default)
		if len(s.Env) > 0 {
			names := append([]string{EnvPrefix + "_" + s.Name}, s.Env...)
			_ = v.BindEnv(append([]string{s.Name}, names...)...)
		}
	}
}

// Lookup returns the setting called name
func (sl SettingList) Lookup(name string) (Setting, bool) {
	for _, s := range sl {
		if s.Name == name {
			return s, true
		}
	}
	return Setting{}, false
}

// Settings defines all application settings
var Settings = SettingList{
	// Server
	{Name: "SERVER_ADDR", Short: "Address on which the gateway listens", Type: String, Default: ":3000"},
	{Name: "METRICS_ADDR", Short: "Address on which the metrics server listens, empty to disable", Type: String, Default: ":9090"},
	{Name: "SHUTDOWN_TIMEOUT", Short: "Maximum time to wait for graceful shutdown", Type: String, Default: "30s"},

	// TLS
	{Name: "TLS_ENABLED", Short: "Serve HTTPS", Type: Bool, Default: false},
	{Name: "TLS_CERT_PATH", Short: "Path to TLS certificate file", Type: String, Default: ""},
	{Name: "TLS_KEY_PATH", Short: "Path to TLS key file", Type: String, Default: ""},
	{Name: "TLS_CA_PATH", Short: "Optional CA bundle for client certificate verification", Type: String, Default: ""},

	// Backend
	{
		Name:    "BACKEND_URL",
		Short:   "Base URL of the portal backend API",
		Type:    String,
		Default: DefaultBackendURL,
		Env:     []string{"BACKEND_URL", "NEXT_PUBLIC_API_URL"},
	},
	{Name: "BACKEND_TIMEOUT", Short: "Timeout of a single backend call", Type: String, Default: "15s"},
	{Name: "BACKEND_RETRIES", Short: "Retries after a failed backend attempt", Type: Int, Default: 2},
	{Name: "BACKEND_RETRY_DELAY", Short: "Fixed delay between backend attempts", Type: String, Default: "1s"},

	// UI
	{Name: "UI_UPSTREAM_URL", Short: "URL of the portal UI server pages are proxied to", Type: String, Default: ""},

	// Gate
	{Name: "LOGIN_PATH", Short: "Page unauthenticated users are sent to", Type: String, Default: "/login"},
	{Name: "DASHBOARD_PATH", Short: "Page users lacking a role are sent to", Type: String, Default: "/dashboard"},
	{Name: "UNAUTHORIZED_PATH", Short: "Page the route guard sends users lacking a role to", Type: String, Default: "/unauthorized"},
	{Name: "REDIRECT_LOOP_THRESHOLD", Short: "Redirect count above which the gate stops redirecting", Type: Int, Default: 5},
	{Name: "ACCESS_POLICY_FILE", Short: "YAML role/page policy, empty for the built-in policy", Type: String, Default: ""},
	{Name: "PROXY_ROUTES_FILE", Short: "YAML API proxy routes, empty for the built-in routes", Type: String, Default: ""},

	// Session
	{
		Name:    "LOGIN_ENDPOINTS",
		Short:   "Backend login endpoints tried in order",
		Type:    StringSlice,
		Default: []string{"/api/auth/login", "/api/v1/auth/login"},
	},
	{Name: "LOGIN_RATE_LIMIT", Short: "Login attempts per minute per client IP, 0 to disable", Type: Int, Default: 10},
	{Name: "COOKIE_SECURE", Short: "Mark the token cookie Secure", Type: Bool, Default: false},

	// Microsoft SSO
	{Name: "SSO_ENABLED", Short: "Enable Microsoft single sign-on", Type: Bool, Default: false},
	{Name: "SSO_ISSUER", Short: "OpenID issuer URL of the Microsoft tenant", Type: String, Default: ""},
	{Name: "SSO_CLIENT_ID", Short: "OAuth2 client ID", Type: String, Default: ""},
	{Name: "SSO_CLIENT_SECRET", Short: "OAuth2 client secret", Type: String, Default: ""},
	{Name: "SSO_REDIRECT_URL", Short: "OAuth2 redirect URL", Type: String, Default: ""},
	{Name: "SSO_SCOPES", Short: "OAuth2 scopes", Type: StringSlice, Default: []string{"openid", "email", "profile"}},
	{Name: "SSO_BACKEND_PATH", Short: "Backend endpoint exchanging an id token for a portal token", Type: String, Default: "/api/auth/microsoft/callback"},

	// Observability
	{Name: "LOG_LEVEL", Short: "Logging level", Type: String, Default: "info"},
}
