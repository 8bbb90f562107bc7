package gate

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	// RedirectCountHeader carries the number of redirects issued so far in
	// one navigation
	RedirectCountHeader = "x-redirect-count"

	// DefaultLoopThreshold is the count above which the gate stops redirecting
	DefaultLoopThreshold = 5
)

// LoopGuard breaks redirect cycles. It is stateless: the count travels with
// the request and is handed back incremented on every redirect.
type LoopGuard struct {
	Threshold int
}

// Count returns the inbound redirect count. Missing, non-numeric and negative
// values count as zero.
func (g LoopGuard) Count(r *http.Request) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.Header.Get(RedirectCountHeader)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ShouldAbort reports whether the count exceeds the threshold
func (g LoopGuard) ShouldAbort(r *http.Request) bool {
	return g.Count(r) > g.threshold()
}

// RecordRedirect attaches the incremented count to the redirect response and
// returns it. Call it once per redirect issued.
func (g LoopGuard) RecordRedirect(w http.ResponseWriter, r *http.Request) int {
	next := g.Count(r) + 1
	w.Header().Set(RedirectCountHeader, strconv.Itoa(next))
	return next
}

func (g LoopGuard) threshold() int {
	if g.Threshold <= 0 {
		return DefaultLoopThreshold
	}
	return g.Threshold
}
