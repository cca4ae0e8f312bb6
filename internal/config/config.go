package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chinmina/ocpi-console/internal/role"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	API     APIConfig
	Session SessionConfig
	Cache   CacheConfig
	Observe ObserveConfig
}

type APIConfig struct {
	BaseURL string `env:"API_BASE_URL, required"`
	Prefix  string `env:"API_PREFIX, default=/api"`

	TimeoutSeconds int `env:"HTTP_TIMEOUT_SECS, default=10"`

	OutgoingHTTPMaxIdleConns    int `env:"HTTP_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"HTTP_MAX_CONNS_PER_HOST, default=20"`
}

// Timeout is the overall bound on a single backend request, including any
// refresh and replay.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SessionConfig covers local state: where it is stored and how an absent
// role is treated.
type SessionConfig struct {
	// StoragePath is the file backing the role and credentials. Empty uses
	// ~/.ocpi-console/storage.json.
	StoragePath string `env:"STORAGE_PATH"`

	// DefaultRole is used when the backend rejects the user's role.
	DefaultRole string `env:"DEFAULT_ROLE, default=CPO"`

	// LoginURL is shown to the user when the session can no longer be
	// refreshed.
	LoginURL string `env:"LOGIN_URL"`
}

// CacheConfig bounds the role-scoped token cache.
type CacheConfig struct {
	TokenTTLSeconds int `env:"TOKEN_CACHE_TTL_SECS, default=1800"`
	MaxSize         int `env:"TOKEN_CACHE_MAX_SIZE, default=16"`
}

func (c CacheConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=stdout"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=ocpi-console"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=false"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	if err := cfg.API.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid API configuration: %w", err)
	}

	if err := cfg.Session.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid session configuration: %w", err)
	}

	if err := cfg.Cache.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}

	if err := cfg.Observe.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid observe configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the backend address and normalizes the namespace prefix.
func (c *APIConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("API_BASE_URL could not be parsed: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.BaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.Prefix != "" {
		c.Prefix = "/" + strings.Trim(c.Prefix, "/")
	}

	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECS must be positive")
	}

	return nil
}

// Validate normalizes the default role and rejects values outside the role
// vocabulary.
func (c *SessionConfig) Validate() error {
	r, ok := role.Validate(c.DefaultRole)
	if !ok {
		return fmt.Errorf("DEFAULT_ROLE must be one of %v, got %q", role.Vocabulary, c.DefaultRole)
	}
	c.DefaultRole = r.String()

	return nil
}

func (c *CacheConfig) Validate() error {
	if c.TokenTTLSeconds <= 0 {
		return fmt.Errorf("TOKEN_CACHE_TTL_SECS must be positive")
	}
	if c.MaxSize <= 0 {
		return fmt.Errorf("TOKEN_CACHE_MAX_SIZE must be positive")
	}

	return nil
}

func (c *ObserveConfig) Validate() error {
	if c.Enabled && c.Type != "stdout" {
		return fmt.Errorf("OBSERVE_TYPE %q is not supported, use stdout", c.Type)
	}

	return nil
}
