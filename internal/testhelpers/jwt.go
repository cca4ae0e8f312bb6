package testhelpers

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

// CreateAccessToken signs an HS256 access token for the given subject that
// expires at expiry. Signature verification is not performed by the console,
// so the key is fixed.
func CreateAccessToken(t *testing.T, subject string, expiry time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "https://console.example.test",
		IssuedAt:  jwt.NewNumericDate(expiry.Add(-1 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(expiry),
	})

	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err, "failed to sign access token")

	return signed
}
