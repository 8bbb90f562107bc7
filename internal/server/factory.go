package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"portalgate/internal/access"
	"portalgate/internal/auth/oidc"
	"portalgate/internal/config"
	"portalgate/internal/gate"
	"portalgate/internal/observability"
	"portalgate/internal/proxy/backend"
	"portalgate/internal/proxy/router"
	"portalgate/internal/routeguard"
	"portalgate/internal/session"
	tlsconfig "portalgate/internal/tls"
)

// RouteAccessPath serves route guard verdicts to the UI
const RouteAccessPath = "/api/auth/route-access"

// NewFromConfig creates a new server from configuration
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	obs, err := observability.NewProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	var tlsCfg *tls.Config
	if cfg.TLS.Enabled {
		tlsSetup := &tlsconfig.Config{
			Logger:       obs.Logger,
			CertPath:     cfg.TLS.CertPath,
			KeyPath:      cfg.TLS.KeyPath,
			ClientCAPath: cfg.TLS.CAPath,
		}
		if tlsCfg, err = tlsSetup.GetTLSConfig(); err != nil {
			return nil, fmt.Errorf("failed to create TLS configuration: %w", err)
		}
	}

	handler, err := NewHandler(ctx, cfg, obs)
	if err != nil {
		return nil, err
	}

	serverConfig := Config{
		Address:         cfg.Server.Address,
		MetricsAddress:  cfg.Metrics.Address,
		TLS:             tlsCfg,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	return New(serverConfig, handler, obs.MetricsHandler(), obs.Logger), nil
}

// NewHandler wires the request chain: observability, then the page gate,
// then the route table
func NewHandler(ctx context.Context, cfg *config.Config, obs *observability.Provider) (http.Handler, error) {
	logger := obs.Logger

	table, err := loadTable(cfg.Gate.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load access policy: %w", err)
	}

	client := backend.NewClient(backend.Options{
		BaseURL:    cfg.Backend.URL,
		Timeout:    cfg.Backend.Timeout,
		Retries:    cfg.Backend.Retries,
		RetryDelay: cfg.Backend.RetryDelay,
	}, logger, obs.Metrics)

	// The callback arrives without a token, so the gate must let it through.
	if cfg.SSO.Enabled {
		if callback := oidc.ExtractCallbackPath(cfg.SSO.RedirectURL); !table.IsPublic(callback) {
			return nil, fmt.Errorf("SSO callback path %q is not a public path of the access policy", callback)
		}
	}

	sso, err := oidc.New(ctx, oidc.Config{
		Enabled:       cfg.SSO.Enabled,
		Issuer:        cfg.SSO.Issuer,
		ClientID:      cfg.SSO.ClientID,
		ClientSecret:  cfg.SSO.ClientSecret,
		RedirectURL:   cfg.SSO.RedirectURL,
		Scopes:        cfg.SSO.Scopes,
		BackendPath:   cfg.SSO.BackendPath,
		LoginPath:     cfg.Gate.LoginPath,
		DashboardPath: cfg.Gate.DashboardPath,
		CookieSecure:  cfg.Session.CookieSecure,
	}, client, logger, obs.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SSO: %w", err)
	}

	proxyRouter := router.New(router.Config{
		UIUpstreamURL:     cfg.UI.UpstreamURL,
		UIUpstreamTimeout: cfg.Backend.Timeout,
		Rules:             cfg.Rules,
	}, client, logger, obs.Metrics)

	session.New(client, table, session.Options{
		LoginEndpoints: cfg.Session.LoginEndpoints,
		CookieSecure:   cfg.Session.CookieSecure,
		RateLimit:      cfg.Session.LoginRateLimit,
	}, logger, obs.Metrics).Register(proxyRouter.Router)

	sso.Register(proxyRouter.Router)

	guard := routeguard.New(table, cfg.Gate.LoginPath, cfg.Gate.UnauthorizedPath)
	proxyRouter.Handle(RouteAccessPath, routeguard.NewHandler(guard, logger)).Methods(http.MethodGet)

	pageGate := gate.New(table, gate.Options{
		LoginPath:     cfg.Gate.LoginPath,
		DashboardPath: cfg.Gate.DashboardPath,
		LoopThreshold: cfg.Gate.LoopThreshold,
	}, logger, obs.Metrics)

	logger.Info("Request chain ready",
		"backend", cfg.Backend.URL.String(),
		"rules", len(cfg.Rules),
		"sso", sso.Enabled(),
		"ui_upstream", cfg.UI.UpstreamURL != nil,
	)

	return obs.Middleware(pageGate.Middleware(proxyRouter)), nil
}

func loadTable(path string) (*access.Table, error) {
	if path == "" {
		return access.DefaultTable()
	}
	return access.LoadTable(path)
}
