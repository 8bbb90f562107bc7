package gate

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoopGuard_Count(t *testing.T) {
	tests := []struct {
		header string
		want   int
	}{
		{"", 0},
		{"3", 3},
		{" 4 ", 4},
		{"many", 0},
		{"-2", 0},
		{"2.5", 0},
	}

	g := LoopGuard{Threshold: 5}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set(RedirectCountHeader, tt.header)
			}
			assert.Equal(t, tt.want, g.Count(r))
		})
	}
}

func TestLoopGuard_ShouldAbort(t *testing.T) {
	g := LoopGuard{}

	for count, want := range map[string]bool{"0": false, "5": false, "6": true, "100": true, "junk": false} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RedirectCountHeader, count)
		assert.Equal(t, want, g.ShouldAbort(r), count)
	}
}

func TestLoopGuard_RecordRedirect(t *testing.T) {
	g := LoopGuard{Threshold: 2}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	assert.Equal(t, 1, g.RecordRedirect(rec, r))
	assert.Equal(t, "1", rec.Header().Get(RedirectCountHeader))

	r.Header.Set(RedirectCountHeader, "2")
	rec = httptest.NewRecorder()
	assert.Equal(t, 3, g.RecordRedirect(rec, r))
	assert.True(t, g.ShouldAbort(withCount(r, rec)))
}

func withCount(r *http.Request, rec *httptest.ResponseRecorder) *http.Request {
	next := r.Clone(r.Context())
	next.Header.Set(RedirectCountHeader, rec.Header().Get(RedirectCountHeader))
	return next
}
