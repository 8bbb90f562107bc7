// Package authtest builds bearer tokens for tests.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token signs claims with a throwaway HMAC key. The gate never checks
// signatures, so any key works.
func Token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("portalgate-test-key"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

// RoleToken creates a token for role and subject expiring in one hour
func RoleToken(t *testing.T, role, subject string) string {
	t.Helper()
	return Token(t, jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
}

// SuperAdminToken creates a super_admin token
func SuperAdminToken(t *testing.T) string {
	t.Helper()
	return RoleToken(t, "super_admin", "1")
}

// PentesterToken creates a pentester token
func PentesterToken(t *testing.T) string {
	t.Helper()
	return RoleToken(t, "pentester", "7")
}

// ClientToken creates a client token
func ClientToken(t *testing.T) string {
	t.Helper()
	return RoleToken(t, "client", "12")
}

// Malformed is a two-segment token that cannot be decoded
const Malformed = "eyJhbGciOiJIUzI1NiJ9.eyJyb2xlIjoiYWRtaW4ifQ"
