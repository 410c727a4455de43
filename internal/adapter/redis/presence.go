package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "chatrelay:presence:"
	writeTimeout      = 2 * time.Second
	scanBatch         = 100
)

// PresenceReporter publishes the local connection count under a per-instance key with a TTL.
// Keys of instances that stop reporting expire on their own, so Total only sums live ones.
type PresenceReporter struct {
	rdb        *goredis.Client
	clock      clockwork.Clock
	metrics    *metrics.RedisMetrics
	instanceID string
	interval   time.Duration
	ttl        time.Duration

	count   atomic.Int64
	dirty   chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	failing bool
}

// NewPresenceReporter starts a reporter that writes on every change and at least once per
// interval. ttl should comfortably exceed interval.
func NewPresenceReporter(rdb *goredis.Client, instanceID string, interval, ttl time.Duration, clock clockwork.Clock, m *metrics.RedisMetrics) *PresenceReporter {
	p := &PresenceReporter{
		rdb:        rdb,
		clock:      clock,
		metrics:    m,
		instanceID: instanceID,
		interval:   interval,
		ttl:        ttl,
		dirty:      make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go p.run()
	return p
}

// Update records the current connection count. It never blocks; the write happens on the
// reporter goroutine.
func (p *PresenceReporter) Update(n int) {
	p.count.Store(int64(n))
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

// Total sums the connection counts of every instance that reported within its TTL.
func (p *PresenceReporter) Total(ctx context.Context) (int, error) {
	var keys []string
	iter := p.rdb.Scan(ctx, 0, presenceKeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan presence keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	values, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("read presence keys: %w", err)
	}

	total := 0
	for i, v := range values {
		// A key can expire between SCAN and MGET.
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			slog.WarnContext(ctx, "Ignoring malformed presence entry", "key", keys[i], "value", s)
			continue
		}
		total += n
	}
	return total, nil
}

// Ping checks Redis reachability for readiness probes.
func (p *PresenceReporter) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Stop ends reporting and removes this instance's key. Safe to call twice.
func (p *PresenceReporter) Stop(ctx context.Context) {
	p.once.Do(func() {
		close(p.stop)
		<-p.done

		if err := p.rdb.Del(ctx, p.key()).Err(); err != nil {
			slog.Warn("Failed to remove presence key", "instance_id", p.instanceID, "error", err)
		}
	})
}

func (p *PresenceReporter) key() string {
	return presenceKeyPrefix + p.instanceID
}

func (p *PresenceReporter) run() {
	defer close(p.done)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.report()
	for {
		select {
		case <-p.dirty:
			p.report()
		case <-ticker.Chan():
			p.report()
		case <-p.stop:
			return
		}
	}
}

func (p *PresenceReporter) report() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	n := p.count.Load()
	err := p.rdb.Set(ctx, p.key(), n, p.ttl).Err()
	p.metrics.PresenceReported(err == nil)

	// Log transitions only; an open breaker would otherwise log on every tick.
	switch {
	case err != nil && !p.failing:
		p.failing = true
		slog.Warn("Presence report failed", "instance_id", p.instanceID, "error", err)
	case err == nil && p.failing:
		p.failing = false
		slog.Info("Presence reporting recovered", "instance_id", p.instanceID, "connections", n)
	}
}
