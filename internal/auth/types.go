package auth

import (
	"strings"
	"time"
)

// Role is the privilege level carried in a token's role claim
type Role string

const (
	// RoleSuperAdmin has access to every path and action
	RoleSuperAdmin Role = "super_admin"
	// RoleAdmin manages users, projects and vulnerabilities
	RoleAdmin Role = "admin"
	// RolePentester works on assigned pentests
	RolePentester Role = "pentester"
	// RoleClient owns projects and reads their findings
	RoleClient Role = "client"
	// RoleUser is a plain authenticated account
	RoleUser Role = "user"
)

// Roles lists every known role, most privileged first
var Roles = []Role{RoleSuperAdmin, RoleAdmin, RolePentester, RoleClient, RoleUser}

// ParseRole normalises a raw claim value. Both "SUPER_ADMIN" and "super_admin"
// map to RoleSuperAdmin. Unknown values are returned lowercased so that they
// never match a configured role by accident of casing.
func ParseRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}

// Known reports whether r is one of the closed set of roles
func (r Role) Known() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// String returns the canonical lowercase form
func (r Role) String() string {
	return string(r)
}

// Claims is the decoded payload of a bearer token. It is built fresh for each
// request and never persisted.
type Claims struct {
	// Role is the principal's role, empty when absent
	Role Role

	// Subject is the principal identifier (the "sub" claim), empty when absent
	Subject string

	// ExpiresAt is nil when the token carries no "exp" claim
	ExpiresAt *time.Time
}

// HasRole reports whether a non-empty role could be extracted
func (c Claims) HasRole() bool {
	return c.Role != ""
}
