// Package access holds the role/page rule table shared by the request gate
// and the client route guard, the classification of request paths and the
// per-action permission predicates used for conditional rendering.
package access

import (
	_ "embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"portalgate/internal/auth"
)

//go:embed policy.yaml
var embeddedPolicy []byte

// WildcardPrefix is reported by Prefixes for roles allowed on every path
const WildcardPrefix = "*"

// Rule grants a set of roles access to a path prefix and everything below it
type Rule struct {
	// Prefix is the path prefix, always starting with "/"
	Prefix string `yaml:"prefix"`

	// Roles lists the roles allowed under Prefix
	Roles []auth.Role `yaml:"roles"`
}

// Allows reports whether role is listed on the rule
func (r Rule) Allows(role auth.Role) bool {
	return slices.Contains(r.Roles, role)
}

// Policy is the file form of the table
type Policy struct {
	// Wildcard lists roles that may open every path
	Wildcard []auth.Role `yaml:"wildcard"`

	// Public lists path prefixes that never require a token
	Public []string `yaml:"public"`

	// Rules maps path prefixes to roles
	Rules []Rule `yaml:"rules"`
}

// Table is the immutable, process-wide rule table. It is safe for concurrent use.
type Table struct {
	wildcard []auth.Role
	public   []string
	rules    []Rule
	known    map[auth.Role]bool
}

// DefaultTable builds the table from the embedded policy
func DefaultTable() (*Table, error) {
	return ParseTable(embeddedPolicy)
}

// LoadTable builds the table from a YAML policy file, or from the embedded
// policy when path is empty.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read access policy: %w", err)
	}
	return ParseTable(b)
}

// ParseTable builds the table from YAML policy bytes
func ParseTable(b []byte) (*Table, error) {
	var p Policy
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("failed to parse access policy: %w", err)
	}
	return NewTable(p)
}

// NewTable validates p and builds a table from it
func NewTable(p Policy) (*Table, error) {
	t := &Table{known: make(map[auth.Role]bool)}

	for _, raw := range p.Wildcard {
		role := auth.ParseRole(string(raw))
		if !role.Known() {
			return nil, fmt.Errorf("unknown wildcard role %q", raw)
		}
		t.wildcard = append(t.wildcard, role)
		t.known[role] = true
	}

	for _, prefix := range p.Public {
		normalized, err := normalizePrefix(prefix)
		if err != nil {
			return nil, fmt.Errorf("invalid public path: %w", err)
		}
		t.public = append(t.public, normalized)
	}

	seen := make(map[string]bool)
	for _, rule := range p.Rules {
		prefix, err := normalizePrefix(rule.Prefix)
		if err != nil {
			return nil, fmt.Errorf("invalid rule: %w", err)
		}
		if seen[prefix] {
			return nil, fmt.Errorf("duplicate rule for prefix %q", prefix)
		}
		seen[prefix] = true

		roles := make([]auth.Role, 0, len(rule.Roles))
		for _, raw := range rule.Roles {
			role := auth.ParseRole(string(raw))
			if !role.Known() {
				return nil, fmt.Errorf("unknown role %q on prefix %q", raw, prefix)
			}
			roles = append(roles, role)
			t.known[role] = true
		}
		t.rules = append(t.rules, Rule{Prefix: prefix, Roles: roles})
	}

	// Longest prefix first, so the first match is the most specific one.
	sort.SliceStable(t.rules, func(i, j int) bool {
		return len(t.rules[i].Prefix) > len(t.rules[j].Prefix)
	})

	return t, nil
}

// IsAllowed reports whether role may open p. Roles unknown to the table are
// denied, wildcard roles are allowed everywhere, and every other role must be
// listed on the most specific rule covering p.
func (t *Table) IsAllowed(role auth.Role, p string) bool {
	if !t.known[role] {
		return false
	}
	if t.IsWildcard(role) {
		return true
	}
	rule, ok := t.Match(p)
	return ok && rule.Allows(role)
}

// IsWildcard reports whether role may open every path
func (t *Table) IsWildcard(role auth.Role) bool {
	return slices.Contains(t.wildcard, role)
}

// Match returns the most specific rule covering p
func (t *Table) Match(p string) (Rule, bool) {
	p = Clean(p)
	for _, rule := range t.rules {
		if HasPathPrefix(p, rule.Prefix) {
			return rule, true
		}
	}
	return Rule{}, false
}

// IsPublic reports whether p is reachable without a token
func (t *Table) IsPublic(p string) bool {
	p = Clean(p)
	for _, prefix := range t.public {
		if HasPathPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// Prefixes returns the role-keyed view of the table: every prefix whose rule
// lists role, or WildcardPrefix for wildcard roles.
func (t *Table) Prefixes(role auth.Role) []string {
	if t.IsWildcard(role) {
		return []string{WildcardPrefix}
	}
	var prefixes []string
	for _, rule := range t.rules {
		if rule.Allows(role) {
			prefixes = append(prefixes, rule.Prefix)
		}
	}
	sort.Strings(prefixes)
	return prefixes
}

// Rules returns a copy of the rules, most specific first
func (t *Table) Rules() []Rule {
	return slices.Clone(t.rules)
}

// HasPathPrefix reports whether p equals prefix or lies below it. The root
// prefix "/" only matches the root itself.
func HasPathPrefix(p, prefix string) bool {
	if prefix == "/" {
		return p == "/"
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// Clean normalises a request path for matching
func Clean(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func normalizePrefix(prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if !strings.HasPrefix(prefix, "/") {
		return "", fmt.Errorf("prefix %q must start with /", prefix)
	}
	return path.Clean(prefix), nil
}
