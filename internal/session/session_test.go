package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalgate/internal/access"
	"portalgate/internal/auth"
	"portalgate/internal/auth/authtest"
	"portalgate/internal/observability/logging"
	"portalgate/internal/observability/metrics"
	"portalgate/internal/proxy/backend"
)

func newHandlers(t *testing.T, backendURL string, opts Options) *mux.Router {
	t.Helper()

	u, err := url.Parse(backendURL)
	require.NoError(t, err)
	client := backend.NewClient(backend.Options{
		BaseURL:    u,
		Timeout:    2 * time.Second,
		RetryDelay: time.Millisecond,
	}, logging.Nop(), metrics.NewCollector())

	table, err := access.DefaultTable()
	require.NoError(t, err)

	if opts.LoginEndpoints == nil {
		opts.LoginEndpoints = []string{"/api/auth/login"}
	}

	r := mux.NewRouter()
	New(client, table, opts, logging.Nop(), metrics.NewCollector()).Register(r)
	return r
}

func login(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func tokenCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.TokenCookieName {
			return c
		}
	}
	return nil
}

func TestLogin_SetsCookieFromBackendToken(t *testing.T) {
	var form url.Values
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc.def.ghi","token_type":"bearer"}`))
	}))
	defer srv.Close()
	r := newHandlers(t, srv.URL, Options{})

	rec := login(r, `{"email":"ana@example.com","password":"hunter2"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"access_token":"abc.def.ghi","token_type":"bearer"}`, rec.Body.String())
	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, "ana@example.com", form.Get("username"))
	assert.Equal(t, "hunter2", form.Get("password"))

	c := tokenCookie(rec)
	require.NotNil(t, c)
	assert.Equal(t, "abc.def.ghi", c.Value)
	assert.True(t, c.HttpOnly)
}

func TestLogin_TriesNextEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/login" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"t"}`))
	}))
	defer srv.Close()
	r := newHandlers(t, srv.URL, Options{LoginEndpoints: []string{"/api/auth/login", "/api/login"}})

	rec := login(r, `{"email":"ana@example.com","password":"x"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, tokenCookie(rec))
}

func TestLogin_RejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Incorrect email or password"}`))
	}))
	defer srv.Close()
	r := newHandlers(t, srv.URL, Options{})

	rec := login(r, `{"email":"ana@example.com","password":"wrong"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Incorrect email or password"}`, rec.Body.String())
	assert.Nil(t, tokenCookie(rec))
}

func TestLogin_RejectedWithoutDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	r := newHandlers(t, srv.URL, Options{})

	rec := login(r, `{"email":"ana@example.com","password":"wrong"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Authentication failed"}`, rec.Body.String())
}

func TestLogin_MissingFields(t *testing.T) {
	r := newHandlers(t, "http://127.0.0.1:1", Options{})

	for _, body := range []string{`{}`, `{"email":"ana@example.com"}`, `{"password":"x"}`, `not json`} {
		rec := login(r, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestLogin_BackendDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	r := newHandlers(t, srv.URL, Options{})

	rec := login(r, `{"email":"ana@example.com","password":"x"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLogin_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	r := newHandlers(t, srv.URL, Options{RateLimit: 2})

	body := `{"email":"ana@example.com","password":"wrong"}`
	assert.Equal(t, http.StatusUnauthorized, login(r, body).Code)
	assert.Equal(t, http.StatusUnauthorized, login(r, body).Code)

	rec := login(r, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many login attempts")
}

func TestLogout_ClearsCookie(t *testing.T) {
	r := newHandlers(t, "http://127.0.0.1:1", Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	c := tokenCookie(rec)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
}

func me(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.TokenCookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestMe(t *testing.T) {
	r := newHandlers(t, "http://127.0.0.1:1", Options{})

	rec := me(r, authtest.PentesterToken(t))
	require.Equal(t, http.StatusOK, rec.Code)

	var got MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "7", got.ID)
	assert.Equal(t, auth.RolePentester, got.Role)
	assert.False(t, got.Expired)
	assert.NotNil(t, got.ExpiresAt)
	assert.True(t, got.Capabilities[access.ViewPentesterAssignments])
	assert.False(t, got.Capabilities[access.ManageUsers])
	assert.Contains(t, got.Prefixes, "/pentests/my-assignments")
	assert.NotContains(t, got.Prefixes, "/admin")
}

func TestMe_ExpiredToken(t *testing.T) {
	r := newHandlers(t, "http://127.0.0.1:1", Options{})
	token := authtest.Token(t, map[string]any{
		"sub":  "2",
		"role": "admin",
		"exp":  time.Now().Add(-time.Hour).Unix(),
	})

	rec := me(r, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"expired":true`)
}

func TestMe_Unauthenticated(t *testing.T) {
	r := newHandlers(t, "http://127.0.0.1:1", Options{})

	assert.Equal(t, http.StatusUnauthorized, me(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, me(r, authtest.Malformed).Code)
	assert.Equal(t, http.StatusUnauthorized, me(r, authtest.Token(t, map[string]any{"sub": "3"})).Code)
}
