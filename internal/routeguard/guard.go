// Package routeguard evaluates page access for client-side navigations that
// never reach the gate. It reads the same rule table as the gate, but sends
// users lacking a role to the unauthorized page instead of the dashboard.
package routeguard

import (
	"portalgate/internal/access"
	"portalgate/internal/auth"
)

// Render tells the UI what to show for a path
type Render string

const (
	// RenderLoading hides protected content while the user is being resolved
	RenderLoading Render = "loading"
	// RenderContent shows the page
	RenderContent Render = "content"
	// RenderRedirect navigates to Verdict.RedirectTo
	RenderRedirect Render = "redirect"
)

// User is the authenticated user as the UI knows it
type User struct {
	ID   string    `json:"id"`
	Role auth.Role `json:"role"`
}

// State is the UI's view of authentication for one evaluation
type State struct {
	// User is nil when nobody is signed in
	User *User

	// Resolving is true while the user is still being loaded
	Resolving bool
}

// Verdict is the result of an evaluation
type Verdict struct {
	Render     Render `json:"render"`
	Authorized bool   `json:"authorized"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// Guard evaluates route access. It is safe for concurrent use.
type Guard struct {
	table            *access.Table
	loginPath        string
	unauthorizedPath string
}

// New creates a guard over table
func New(table *access.Table, loginPath, unauthorizedPath string) *Guard {
	if loginPath == "" {
		loginPath = "/login"
	}
	if unauthorizedPath == "" {
		unauthorizedPath = "/unauthorized"
	}
	return &Guard{table: table, loginPath: loginPath, unauthorizedPath: unauthorizedPath}
}

// Evaluate decides what to render for path
func (g *Guard) Evaluate(s State, path string) Verdict {
	if s.Resolving {
		return Verdict{Render: RenderLoading}
	}
	if g.table.IsPublic(path) {
		return content()
	}
	if s.User == nil {
		return redirect(g.loginPath)
	}
	if g.table.IsWildcard(s.User.Role) {
		return content()
	}

	rule, ok := g.table.Match(path)
	if !ok || !rule.Allows(s.User.Role) {
		return redirect(g.unauthorizedPath)
	}
	return content()
}

func content() Verdict {
	return Verdict{Render: RenderContent, Authorized: true}
}

func redirect(to string) Verdict {
	return Verdict{Render: RenderRedirect, RedirectTo: to}
}
