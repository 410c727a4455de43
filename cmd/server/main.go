package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/chatrelay/internal/adapter/httpserver"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/adapter/redis"
	"github.com/pscheid92/chatrelay/internal/adapter/websocket"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/platform/config"
	"github.com/pscheid92/chatrelay/internal/platform/logging"
	"github.com/pscheid92/chatrelay/internal/platform/tracing"
	"github.com/pscheid92/chatrelay/internal/platform/version"
	"github.com/pscheid92/chatrelay/internal/relay"
	goredis "github.com/redis/go-redis/v9"
)

const redisConnectTimeout = 10 * time.Second

type presenceResult struct {
	client   *goredis.Client
	reporter *redis.PresenceReporter
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupTracing(cfg *config.Config, info version.Info) func(context.Context) error {
	shutdown, err := tracing.Setup(context.Background(), "chatrelay", info.Version, cfg.OTELEndpoint)
	if err != nil {
		slog.Error("Failed to set up tracing", "error", err)
		os.Exit(1)
	}
	if cfg.OTELEndpoint != "" {
		slog.Info("Tracing enabled", "endpoint", cfg.OTELEndpoint)
	}
	return shutdown
}

// setupPresence connects to Redis when REDIS_URL is set. Presence is optional, so an empty
// result means the relay runs standalone.
func setupPresence(cfg *config.Config, reg prometheus.Registerer, clock clockwork.Clock) presenceResult {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, fleet presence disabled")
		return presenceResult{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()

	redisMetrics := metrics.NewRedisMetrics(reg)
	client, err := redis.NewClient(ctx, cfg.RedisURL, redisMetrics)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	reporter := redis.NewPresenceReporter(client, cfg.InstanceID, cfg.PresenceInterval, cfg.PresenceTTL, clock, redisMetrics)
	slog.Info("Fleet presence enabled", "instance_id", cfg.InstanceID, "interval", cfg.PresenceInterval, "ttl", cfg.PresenceTTL)
	return presenceResult{client: client, reporter: reporter}
}

func relayHealthCheck(controller *relay.Controller) func(context.Context) error {
	return func(context.Context) error {
		if controller.Len() < 0 {
			return domain.ErrControllerStopped
		}
		return nil
	}
}

func runGracefulShutdown(cfg *config.Config, srv *httpserver.Server, controller *relay.Controller, wsHandler *websocket.Handler, presence presenceResult, shutdownTracing func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// Closes every WebSocket with a normal close frame.
		controller.Stop()
		if err := wsHandler.Wait(shutdownCtx); err != nil {
			slog.Warn("WebSocket connections did not drain", "error", err)
		}

		if presence.reporter != nil {
			presence.reporter.Stop(shutdownCtx)
			if err := presence.client.Close(); err != nil {
				slog.Error("Failed to close Redis client", "error", err)
			}
		}

		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Error("Tracing shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", append([]any{"env", cfg.AppEnv, "port", cfg.Port, "instance_id", cfg.InstanceID}, info.LogAttrs()...)...)

	shutdownTracing := setupTracing(cfg, info)

	reg := metrics.NewRegistry()
	relayMetrics := metrics.NewRelayMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)

	presence := setupPresence(cfg, reg, clock)

	var onSizeChange func(int)
	if presence.reporter != nil {
		onSizeChange = presence.reporter.Update
	}

	dispatcher := relay.NewDispatcher(clock, cfg.SendTimeout, relayMetrics)
	controller := relay.NewController(dispatcher, relayMetrics, onSizeChange, clock, cfg.MaxConnections)

	checkOrigin := websocket.NewCheckOrigin(cfg.Origins(), cfg.IsDevelopment())
	wsHandler := websocket.NewHandler(controller, checkOrigin, clock, cfg.MaxMessageSize)

	healthChecks := []httpserver.HealthCheck{{Name: "relay", Check: relayHealthCheck(controller)}}

	// Pass nil explicitly to avoid a typed-nil interface
	var srv *httpserver.Server
	if presence.reporter != nil {
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "redis", Check: presence.reporter.Ping})
		srv = httpserver.NewServer(cfg, controller, presence.reporter, wsHandler, reg, httpMetrics, healthChecks, clock)
	} else {
		srv = httpserver.NewServer(cfg, controller, nil, wsHandler, reg, httpMetrics, healthChecks, clock)
	}

	done := runGracefulShutdown(cfg, srv, controller, wsHandler, presence, shutdownTracing)

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
