package httpserver

import (
	"context"
	"net/http"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/platform/config"
)

type stubRelay struct{ n int }

func (s stubRelay) Len() int { return s.n }

type stubFleet struct {
	total int
	err   error
}

func (s stubFleet) Total(context.Context) (int, error) { return s.total, s.err }

type testServerOptions struct {
	relay        relayStats
	fleet        fleetCounter
	ws           http.Handler
	healthChecks []HealthCheck
	clock        clockwork.Clock
	configure    func(*config.Config)
}

type testServerOption func(*testServerOptions)

func withRelay(r relayStats) testServerOption {
	return func(o *testServerOptions) { o.relay = r }
}

func withFleet(f fleetCounter) testServerOption {
	return func(o *testServerOptions) { o.fleet = f }
}

func withWebsocketHandler(h http.Handler) testServerOption {
	return func(o *testServerOptions) { o.ws = h }
}

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(o *testServerOptions) { o.healthChecks = checks }
}

func withClock(clock clockwork.Clock) testServerOption {
	return func(o *testServerOptions) { o.clock = clock }
}

func withConfig(fn func(*config.Config)) testServerOption {
	return func(o *testServerOptions) { o.configure = fn }
}

func newTestServer(t *testing.T, opts ...testServerOption) (*Server, *prometheus.Registry, *metrics.HTTPMetrics) {
	t.Helper()

	o := &testServerOptions{
		relay: stubRelay{},
		ws:    http.NotFoundHandler(),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(o)
	}

	cfg := &config.Config{
		AppEnv:                  "test",
		Port:                    "0",
		InstanceID:              "relay-test",
		MaxConnections:          100,
		MaxConnectionsPerIP:     10,
		ConnectionRatePerSecond: 100,
		ConnectionRateBurst:     100,
	}
	if o.configure != nil {
		o.configure(cfg)
	}

	reg := prometheus.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	srv := NewServer(cfg, o.relay, o.fleet, o.ws, reg, httpMetrics, o.healthChecks, o.clock)
	return srv, reg, httpMetrics
}
