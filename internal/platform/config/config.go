package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv         string `env:"APP_ENV" default:"development"`
	Port           string `env:"PORT" default:"8080"`
	LogLevel       string `env:"LOG_LEVEL" default:"info"`
	LogFormat      string `env:"LOG_FORMAT" default:"text"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	MaxConnections          int     `env:"MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectionRatePerSecond float64 `env:"CONNECTION_RATE_PER_SECOND" default:"50"`
	ConnectionRateBurst     int     `env:"CONNECTION_RATE_BURST" default:"100"`

	SendTimeout    time.Duration `env:"SEND_TIMEOUT" default:"2s"`
	MaxMessageSize int64         `env:"MAX_MESSAGE_SIZE" default:"65536"`

	RedisURL         string        `env:"REDIS_URL"`
	InstanceID       string        `env:"INSTANCE_ID"`
	PresenceInterval time.Duration `env:"PRESENCE_INTERVAL" default:"15s"`
	PresenceTTL      time.Duration `env:"PRESENCE_TTL" default:"45s"`

	OTELEndpoint    string        `env:"OTEL_ENDPOINT"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"15s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = defaultInstanceID()
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Origins returns ALLOWED_ORIGINS split on commas, with blanks dropped.
func (c *Config) Origins() []string {
	var origins []string
	for origin := range strings.SplitSeq(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func validate(cfg *Config) error {
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", cfg.Port)
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(cfg.LogLevel)) {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	if !slices.Contains([]string{"text", "json"}, strings.ToLower(cfg.LogFormat)) {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	if cfg.MaxConnections < 0 || cfg.MaxConnectionsPerIP < 0 {
		return errors.New("MAX_CONNECTIONS and MAX_CONNECTIONS_PER_IP must not be negative")
	}
	if cfg.ConnectionRatePerSecond <= 0 || cfg.ConnectionRateBurst <= 0 {
		return errors.New("CONNECTION_RATE_PER_SECOND and CONNECTION_RATE_BURST must be positive")
	}
	if cfg.SendTimeout <= 0 {
		return fmt.Errorf("SEND_TIMEOUT must be positive, got %v", cfg.SendTimeout)
	}
	if cfg.MaxMessageSize <= 0 {
		return fmt.Errorf("MAX_MESSAGE_SIZE must be positive, got %d", cfg.MaxMessageSize)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %v", cfg.ShutdownTimeout)
	}

	if cfg.RedisURL != "" {
		if cfg.PresenceInterval <= 0 {
			return fmt.Errorf("PRESENCE_INTERVAL must be positive, got %v", cfg.PresenceInterval)
		}
		if cfg.PresenceTTL <= cfg.PresenceInterval {
			return fmt.Errorf("PRESENCE_TTL (%v) must be longer than PRESENCE_INTERVAL (%v)", cfg.PresenceTTL, cfg.PresenceInterval)
		}
	}

	if !cfg.IsDevelopment() && slices.Contains(cfg.Origins(), "*") {
		return fmt.Errorf("ALLOWED_ORIGINS=* is not allowed in %s", cfg.AppEnv)
	}

	return nil
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "chatrelay-" + strconv.Itoa(os.Getpid())
	}
	return host
}
