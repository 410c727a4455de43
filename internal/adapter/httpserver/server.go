package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/platform/config"
)

// relayStats reports the local registry size; -1 means the relay did not answer.
type relayStats interface {
	Len() int
}

// fleetCounter sums connections across every relay instance.
type fleetCounter interface {
	Total(ctx context.Context) (int, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	relay relayStats
	fleet fleetCounter

	websocketHandler http.Handler
	registry         *prometheus.Registry
	httpMetrics      *metrics.HTTPMetrics
	limits           *connectionLimits

	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer wires the HTTP surface. fleet may be nil when no Redis is configured.
func NewServer(cfg *config.Config, relay relayStats, fleet fleetCounter, websocketHandler http.Handler, registry *prometheus.Registry, httpMetrics *metrics.HTTPMetrics, healthChecks []HealthCheck, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	srv := &Server{
		echo:             e,
		config:           cfg,
		clock:            clock,
		relay:            relay,
		fleet:            fleet,
		websocketHandler: websocketHandler,
		registry:         registry,
		httpMetrics:      httpMetrics,
		limits:           newConnectionLimits(cfg.MaxConnections, cfg.MaxConnectionsPerIP, cfg.ConnectionRatePerSecond, cfg.ConnectionRateBurst, clock),
		healthChecks:     healthChecks,
		startTime:        clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests. Hijacked WebSocket connections are not tracked by the
// HTTP server; the relay controller closes those.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
