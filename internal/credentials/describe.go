package credentials

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Description summarizes the claims of an access token for display.
type Description struct {
	Subject   string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Issuer    string    `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitzero" yaml:"expiresAt,omitempty"`
	Expired   bool      `json:"expired" yaml:"expired"`
}

// Describe reads the registered claims of a JWT access token. The signature is
// not verified: the backend is the only party that can validate the token,
// and this is used only to inform the user.
func Describe(access string, now time.Time) (Description, error) {
	claims := &jwt.RegisteredClaims{}

	_, _, err := jwt.NewParser().ParseUnverified(access, claims)
	if err != nil {
		return Description{}, fmt.Errorf("access token is not a readable JWT: %w", err)
	}

	d := Description{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		d.ExpiresAt = claims.ExpiresAt.Time
		d.Expired = now.After(d.ExpiresAt)
	}

	return d, nil
}
