package auth

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// TokenCookieName is the cookie carrying the bearer token
	TokenCookieName = "token"

	// TokenCookieMaxAge matches the lifetime the login page used for the cookie
	TokenCookieMaxAge = 7 * 24 * time.Hour

	bearerPrefix = "bearer "
)

// ExtractToken returns the bearer token of a request. The token cookie wins
// over the Authorization header when both are present.
func ExtractToken(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(TokenCookieName); err == nil {
		value := cookie.Value
		if unescaped, err := url.PathUnescape(value); err == nil {
			value = unescaped
		}
		if value = strings.TrimSpace(value); value != "" {
			return value, true
		}
	}

	header := r.Header.Get("Authorization")
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		if token := strings.TrimSpace(header[len(bearerPrefix):]); token != "" {
			return token, true
		}
	}

	return "", false
}

// SetTokenCookie stores token in the token cookie
func SetTokenCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(TokenCookieMaxAge.Seconds()),
	})
}

// ClearTokenCookie expires the token cookie
func ClearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
