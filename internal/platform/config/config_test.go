package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 10000, cfg.MaxConnections)
	assert.Equal(t, 100, cfg.MaxConnectionsPerIP)
	assert.Equal(t, 2*time.Second, cfg.SendTimeout)
	assert.Equal(t, int64(65536), cfg.MaxMessageSize)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.OTELEndpoint)
	assert.NotEmpty(t, cfg.InstanceID)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, https://admin.example.com")
	t.Setenv("MAX_CONNECTIONS", "500")
	t.Setenv("SEND_TIMEOUT", "750ms")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("INSTANCE_ID", "relay-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 500, cfg.MaxConnections)
	assert.Equal(t, 750*time.Millisecond, cfg.SendTimeout)
	assert.Equal(t, "relay-1", cfg.InstanceID)
	assert.Equal(t, []string{"https://chat.example.com", "https://admin.example.com"}, cfg.Origins())
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"port not a number", map[string]string{"PORT": "http"}, "PORT must be a number"},
		{"port out of range", map[string]string{"PORT": "70000"}, "PORT must be a number"},
		{"unknown log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL must be one of"},
		{"unknown log format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT must be text or json"},
		{"negative max connections", map[string]string{"MAX_CONNECTIONS": "-1"}, "must not be negative"},
		{"zero rate", map[string]string{"CONNECTION_RATE_PER_SECOND": "0"}, "must be positive"},
		{"zero send timeout", map[string]string{"SEND_TIMEOUT": "0s"}, "SEND_TIMEOUT must be positive"},
		{"zero message size", map[string]string{"MAX_MESSAGE_SIZE": "0"}, "MAX_MESSAGE_SIZE must be positive"},
		{"ttl not above interval", map[string]string{"REDIS_URL": "redis://localhost:6379", "PRESENCE_INTERVAL": "30s", "PRESENCE_TTL": "30s"}, "PRESENCE_TTL"},
		{"wildcard origin in production", map[string]string{"APP_ENV": "production", "ALLOWED_ORIGINS": "*"}, "ALLOWED_ORIGINS=* is not allowed in production"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_PresenceTimingIgnoredWithoutRedis(t *testing.T) {
	t.Setenv("PRESENCE_INTERVAL", "1m")
	t.Setenv("PRESENCE_TTL", "1s")

	_, err := Load()
	require.NoError(t, err)
}

func TestLoad_WildcardOriginAllowedInDevelopment(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "*")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, cfg.Origins())
}

func TestOrigins_Empty(t *testing.T) {
	cfg := &Config{AllowedOrigins: " , "}
	assert.Empty(t, cfg.Origins())
}
