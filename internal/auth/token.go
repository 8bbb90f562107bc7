package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken is returned when no bearer token is present
	ErrNoToken = errors.New("no token provided")
	// ErrMalformedToken is returned when a token cannot be decoded
	ErrMalformedToken = errors.New("malformed token")
	// ErrNoRole is returned when a decoded token carries no role
	ErrNoRole = errors.New("token carries no role")
)

// The gate only reads claims; signatures are checked by the backend on every
// privileged call, so the parser never sees a key.
var parser = jwt.NewParser(jwt.WithPaddingAllowed())

// Decode reads the payload segment of a three-segment bearer token. The
// header and signature segments are never inspected. Missing role or sub
// claims become empty strings.
func Decode(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrNoToken
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	payload, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	mapClaims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &mapClaims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	claims := Claims{
		Role:    ParseRole(stringify(mapClaims["role"])),
		Subject: stringify(mapClaims["sub"]),
	}

	// An exp that is not a NumericDate is treated as absent.
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt := exp.Time
		claims.ExpiresAt = &expiresAt
	}

	return claims, nil
}

// DecodeRole decodes token and fails with ErrNoRole when the role claim is
// missing or empty.
func DecodeRole(token string) (Claims, error) {
	claims, err := Decode(token)
	if err != nil {
		return Claims{}, err
	}
	if !claims.HasRole() {
		return claims, ErrNoRole
	}
	return claims, nil
}

// IsExpired reports whether token is expired at the current time.
func IsExpired(token string) bool {
	return IsExpiredAt(token, time.Now())
}

// IsExpiredAt reports whether token is expired at now. Undecodable tokens are
// expired; tokens without an exp claim are not.
func IsExpiredAt(token string, now time.Time) bool {
	claims, err := Decode(token)
	if err != nil {
		return true
	}
	return claims.ExpiredAt(now)
}

// ExpiredAt reports whether the claims are expired at now. An exp equal to now
// counts as expired.
func (c Claims) ExpiredAt(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(*c.ExpiresAt)
}

func stringify(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case json.Number:
		return value.String()
	case bool:
		return strconv.FormatBool(value)
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(b)
	}
}
