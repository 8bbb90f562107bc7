// Package gate decides, for every page request, whether to forward it to the
// UI or redirect the browser. It decodes the bearer token without verifying
// it; the backend verifies tokens on every privileged call.
package gate

import (
	"fmt"
	"net/http"

	"portalgate/internal/access"
	"portalgate/internal/auth"
	"portalgate/internal/observability/logging"
	"portalgate/internal/observability/metrics"
)

// Headers set on authorized requests for downstream handlers
const (
	HeaderUserID   = "x-user-id"
	HeaderUserRole = "x-user-role"
)

// State is the terminal state of a gate evaluation
type State string

const (
	StateLoopAborted        State = "loop_aborted"
	StateBypassed           State = "bypassed"
	StatePublicPath         State = "public_path"
	StateLoginAuthenticated State = "login_authenticated"
	StateNoToken            State = "no_token"
	StateTokenInvalid       State = "token_invalid"
	StateRoleUnauthorized   State = "role_unauthorized"
	StateAuthorized         State = "authorized"
	StateRecovered          State = "recovered"
)

// Decision is the outcome of evaluating one request
type Decision struct {
	State State

	// Forward is true when the request continues downstream unredirected
	Forward bool

	// RedirectTo is the target when Forward is false
	RedirectTo string

	// ClearCookie expires the token cookie on the redirect
	ClearCookie bool

	// Claims are set when a role could be decoded
	Claims *auth.Claims

	// Err explains token failures and recovered panics
	Err error
}

// Options configures a Gate
type Options struct {
	LoginPath     string
	DashboardPath string
	LoopThreshold int
}

// Gate is the page authorization middleware. It holds no per-request state
// and is safe for concurrent use.
type Gate struct {
	table         *access.Table
	guard         LoopGuard
	loginPath     string
	dashboardPath string
	logger        *logging.Logger
	metrics       *metrics.Collector

	extract func(*http.Request) (string, bool)
}

// New creates a gate over table
func New(table *access.Table, opts Options, logger *logging.Logger, collector *metrics.Collector) *Gate {
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if opts.DashboardPath == "" {
		opts.DashboardPath = "/dashboard"
	}
	return &Gate{
		table:         table,
		guard:         LoopGuard{Threshold: opts.LoopThreshold},
		loginPath:     access.Clean(opts.LoginPath),
		dashboardPath: access.Clean(opts.DashboardPath),
		logger:        logger.WithModule("gate"),
		metrics:       collector,
		extract:       auth.ExtractToken,
	}
}

// Decide evaluates r. The checks run in a fixed order and the first one that
// applies wins: loop abort, API or static bypass, public path, then the token
// and role checks.
func (g *Gate) Decide(r *http.Request) (d Decision) {
	if g.guard.ShouldAbort(r) {
		return forward(StateLoopAborted)
	}

	p := access.Clean(r.URL.Path)
	if access.IsAPI(p) || access.IsStatic(p) {
		return forward(StateBypassed)
	}
	if g.table.IsPublic(p) {
		return forward(StatePublicPath)
	}

	atLogin := p == g.loginPath
	defer func() {
		if rec := recover(); rec != nil {
			d = g.orLogin(StateRecovered, atLogin, true)
			d.Err = fmt.Errorf("recovered: %v", rec)
		}
	}()

	return g.decideProtected(r, p, atLogin)
}

func (g *Gate) decideProtected(r *http.Request, p string, atLogin bool) Decision {
	token, ok := g.extract(r)

	if atLogin && ok {
		if claims, err := auth.DecodeRole(token); err == nil {
			d := forward(StateLoginAuthenticated)
			d.Claims = &claims
			return d
		}
	}

	if !ok {
		return g.orLogin(StateNoToken, atLogin, false)
	}

	claims, err := auth.DecodeRole(token)
	if err != nil {
		d := g.orLogin(StateTokenInvalid, atLogin, true)
		d.Err = err
		return d
	}

	if g.table.IsAllowed(claims.Role, p) {
		d := forward(StateAuthorized)
		d.Claims = &claims
		return d
	}

	d := Decision{State: StateRoleUnauthorized, Claims: &claims}
	if p == g.dashboardPath || atLogin {
		d.Forward = true
		return d
	}
	d.RedirectTo = g.dashboardPath
	return d
}

// orLogin forwards when already at the login page and redirects there otherwise
func (g *Gate) orLogin(state State, atLogin, clearCookie bool) Decision {
	if atLogin {
		return forward(state)
	}
	return Decision{State: state, RedirectTo: g.loginPath, ClearCookie: clearCookie}
}

func forward(state State) Decision {
	return Decision{State: state, Forward: true}
}
