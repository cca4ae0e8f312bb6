// This command is only used for local testing: it mints an access token that
// a local development backend will accept, for use with `ocpi-console login`.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Subject    string `env:"UTIL_SUBJECT, default=test-operator"`
	Issuer     string `env:"UTIL_ISSUER, default=https://local.testing"`
	SigningKey string `env:"UTIL_SIGNING_KEY, required"`
	TTLMinutes int    `env:"UTIL_TTL_MINUTES, default=5"`
}

func main() {
	cfg := Config{}
	err := envconfig.Process(context.Background(), &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
		os.Exit(1)
	}

	claims := jwt.RegisteredClaims{
		Subject: cfg.Subject,
		Issuer:  cfg.Issuer,
	}
	claims = validity(claims, time.Duration(cfg.TTLMinutes)*time.Minute)

	tokenStr, err := createJWT([]byte(cfg.SigningKey), claims)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating JWT: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s", tokenStr)
}

func createJWT(key []byte, claims jwt.RegisteredClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func validity(claims jwt.RegisteredClaims, ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now().UTC()

	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now.Add(-1 * time.Minute))
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	return claims
}
