package httpserver

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"golang.org/x/time/rate"
)

const (
	rateLimiterCleanupInterval = 5 * time.Minute
	rateLimiterIdleExpiry      = 10 * time.Minute
)

// limitReason describes why a handshake was refused.
type limitReason string

const (
	limitReasonGlobal limitReason = "global_limit"
	limitReasonPerIP  limitReason = "per_ip_limit"
	limitReasonRate   limitReason = "rate_limit"
)

// globalLimiter caps concurrent connections on this instance. max <= 0 disables it.
type globalLimiter struct {
	current atomic.Int64
	max     int64
}

func (l *globalLimiter) acquire() bool {
	if l.max <= 0 {
		l.current.Add(1)
		return true
	}
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *globalLimiter) release() {
	l.current.Add(-1)
}

// ipLimiter caps concurrent connections per client IP. maxPer <= 0 disables it.
type ipLimiter struct {
	mu     sync.Mutex
	ips    map[string]int
	maxPer int
}

func (l *ipLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxPer > 0 && l.ips[ip] >= l.maxPer {
		return false
	}
	l.ips[ip]++
	return true
}

func (l *ipLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.ips[ip]; count > 1 {
		l.ips[ip] = count - 1
	} else {
		delete(l.ips, ip)
	}
}

func (l *ipLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ips[ip]
}

// handshakeRateLimiter is a token bucket per client IP.
type handshakeRateLimiter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	limiters  map[string]*rateLimiterEntry
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (l *handshakeRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(rateLimiterCleanupInterval)
	}

	entry, exists := l.limiters[ip]
	if !exists {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// cleanup drops buckets idle for rateLimiterIdleExpiry. Must be called with mu held.
func (l *handshakeRateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-rateLimiterIdleExpiry)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

func (l *handshakeRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// connectionLimits admits WebSocket handshakes. A slot is held for as long as the
// connection lives, since the upgrade handler blocks until the socket closes.
type connectionLimits struct {
	global *globalLimiter
	perIP  *ipLimiter
	rate   *handshakeRateLimiter
}

func newConnectionLimits(globalMax int, perIPMax int, connectionsPerSecond float64, burst int, clock clockwork.Clock) *connectionLimits {
	return &connectionLimits{
		global: &globalLimiter{max: int64(globalMax)},
		perIP:  &ipLimiter{ips: make(map[string]int), maxPer: perIPMax},
		rate: &handshakeRateLimiter{
			clock:     clock,
			limiters:  make(map[string]*rateLimiterEntry),
			rate:      rate.Limit(connectionsPerSecond),
			burst:     burst,
			cleanupAt: clock.Now().Add(rateLimiterCleanupInterval),
		},
	}
}

// acquire checks the rate first, then takes a global and a per-IP slot.
func (l *connectionLimits) acquire(ip string) (bool, limitReason) {
	if !l.rate.allow(ip) {
		return false, limitReasonRate
	}
	if !l.global.acquire() {
		return false, limitReasonGlobal
	}
	if !l.perIP.acquire(ip) {
		l.global.release()
		return false, limitReasonPerIP
	}
	return true, ""
}

func (l *connectionLimits) release(ip string) {
	l.perIP.release(ip)
	l.global.release()
}

func (l *connectionLimits) middleware(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			ok, reason := l.acquire(ip)
			if !ok {
				m.HandshakeRejected(string(reason))
				slog.WarnContext(c.Request().Context(), "WebSocket handshake rejected", "remote_ip", ip, "reason", reason)

				status := http.StatusTooManyRequests
				if reason == limitReasonGlobal {
					status = http.StatusServiceUnavailable
				}
				return echo.NewHTTPError(status, string(reason))
			}
			defer l.release(ip)

			return next(c)
		}
	}
}
