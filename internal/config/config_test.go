package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://console.example.com/")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, APIConfig{
		BaseURL:                     "https://console.example.com",
		Prefix:                      "/api",
		TimeoutSeconds:              10,
		OutgoingHTTPMaxIdleConns:    100,
		OutgoingHTTPMaxConnsPerHost: 20,
	}, cfg.API)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout())

	assert.Equal(t, "CPO", cfg.Session.DefaultRole)
	assert.Empty(t, cfg.Session.StoragePath)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TokenTTL())
	assert.Equal(t, 16, cfg.Cache.MaxSize)

	assert.False(t, cfg.Observe.Enabled)
	assert.Equal(t, "stdout", cfg.Observe.Type)
	assert.Equal(t, "ocpi-console", cfg.Observe.ServiceName)
}

func TestLoad_MissingBaseURL(t *testing.T) {
	_, err := load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	assert.ErrorContains(t, err, "API_BASE_URL")
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"API_BASE_URL":         "http://localhost:8000",
		"API_PREFIX":           "console/v2/",
		"HTTP_TIMEOUT_SECS":    "3",
		"STORAGE_PATH":         "/tmp/console.json",
		"DEFAULT_ROLE":         "emsp",
		"LOGIN_URL":            "http://localhost:3000/login",
		"TOKEN_CACHE_TTL_SECS": "60",
		"OBSERVE_ENABLED":      "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/console/v2", cfg.API.Prefix)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout())
	assert.Equal(t, "/tmp/console.json", cfg.Session.StoragePath)
	assert.Equal(t, "EMSP", cfg.Session.DefaultRole, "default role is normalized")
	assert.Equal(t, "http://localhost:3000/login", cfg.Session.LoginURL)
	assert.Equal(t, time.Minute, cfg.Cache.TokenTTL())
	assert.True(t, cfg.Observe.Enabled)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		expected string
	}{
		{
			name:     "relative base URL",
			env:      map[string]string{"API_BASE_URL": "/api"},
			expected: "must be an absolute URL",
		},
		{
			name:     "zero timeout",
			env:      map[string]string{"API_BASE_URL": "http://localhost", "HTTP_TIMEOUT_SECS": "0"},
			expected: "HTTP_TIMEOUT_SECS must be positive",
		},
		{
			name:     "unknown default role",
			env:      map[string]string{"API_BASE_URL": "http://localhost", "DEFAULT_ROLE": "HUB"},
			expected: "DEFAULT_ROLE must be one of",
		},
		{
			name:     "cache ttl",
			env:      map[string]string{"API_BASE_URL": "http://localhost", "TOKEN_CACHE_TTL_SECS": "-1"},
			expected: "TOKEN_CACHE_TTL_SECS must be positive",
		},
		{
			name:     "unsupported exporter",
			env:      map[string]string{"API_BASE_URL": "http://localhost", "OBSERVE_ENABLED": "true", "OBSERVE_TYPE": "grpc"},
			expected: "OBSERVE_TYPE \"grpc\" is not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(context.Background(), envconfig.MapLookuper(tt.env))
			assert.ErrorContains(t, err, tt.expected)
		})
	}
}
