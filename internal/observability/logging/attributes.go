package logging

import (
	"fmt"
	"log/slog"
	"net/url"
)

// RedactedURL wraps a url.URL for logging without exposing credentials
type RedactedURL struct {
	url *url.URL
}

// LogValue implements slog.LogValuer
func (u RedactedURL) LogValue() slog.Value {
	if u.url == nil {
		return slog.StringValue("")
	}
	return slog.StringValue(u.url.Redacted())
}

// RedactURL returns a safely loggable URL value
func RedactURL(u *url.URL) RedactedURL {
	return RedactedURL{url: u}
}

// RedactedStringURL is a string containing a URL for safe logging
type RedactedStringURL string

// LogValue implements slog.LogValuer
func (s RedactedStringURL) LogValue() slog.Value {
	u, err := url.Parse(string(s))
	if err != nil {
		return slog.StringValue(string(s))
	}
	return slog.StringValue(u.Redacted())
}

// RedactStringURL returns a safely loggable URL string
func RedactStringURL(s string) slog.LogValuer {
	return RedactedStringURL(s)
}

// RedactedToken logs a bearer token as its length and the first few
// characters of the header segment, enough to correlate without leaking claims.
type RedactedToken string

// LogValue implements slog.LogValuer
func (t RedactedToken) LogValue() slog.Value {
	if t == "" {
		return slog.StringValue("<none>")
	}
	head := string(t)
	if len(head) > 6 {
		head = head[:6]
	}
	return slog.StringValue(fmt.Sprintf("%s...(%d)", head, len(t)))
}

// RedactToken returns a safely loggable token
func RedactToken(token string) slog.LogValuer {
	return RedactedToken(token)
}
