package relay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/domain"
)

// DefaultSendTimeout bounds a single recipient's Send.
const DefaultSendTimeout = 2 * time.Second

// Fault is a recipient whose Send failed during a broadcast.
type Fault struct {
	Conn domain.Connection
	Err  *domain.TransportError
}

// Outcome summarises one broadcast.
type Outcome struct {
	Recipients int
	Delivered  int
	Faulted    []Fault
}

// Dispatcher delivers a message from one sender to every other registered connection.
// It never mutates the registry; closing faulted recipients is left to the caller.
type Dispatcher struct {
	clock       clockwork.Clock
	sendTimeout time.Duration
	metrics     *metrics.RelayMetrics
}

// NewDispatcher creates a dispatcher. A non-positive sendTimeout selects DefaultSendTimeout.
func NewDispatcher(clock clockwork.Clock, sendTimeout time.Duration, m *metrics.RelayMetrics) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Dispatcher{clock: clock, sendTimeout: sendTimeout, metrics: m}
}

// Broadcast sends message to every registered connection except sender, sequentially and in
// registration order. Recipients are fixed when the broadcast starts. A failing recipient is
// recorded in the outcome and the loop moves on to the next one.
func (d *Dispatcher) Broadcast(ctx context.Context, registry *Registry, sender domain.Connection, message []byte) Outcome {
	start := d.clock.Now()
	recipients := slices.Collect(registry.Except(sender.ID()))

	outcome := Outcome{Recipients: len(recipients)}
	for _, conn := range recipients {
		if err := d.send(ctx, conn, message); err != nil {
			outcome.Faulted = append(outcome.Faulted, Fault{Conn: conn, Err: err})
			d.metrics.Delivered(false)
			continue
		}
		outcome.Delivered++
		d.metrics.Delivered(true)
	}

	d.metrics.ObserveBroadcast(outcome.Recipients, d.clock.Since(start).Seconds())
	return outcome
}

func (d *Dispatcher) send(ctx context.Context, conn domain.Connection, message []byte) *domain.TransportError {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	err := conn.Send(sendCtx, message)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrSendTimeout) {
		err = fmt.Errorf("%w after %v: %w", domain.ErrSendTimeout, d.sendTimeout, err)
	}
	return &domain.TransportError{ConnID: conn.ID(), Op: "send", Err: err}
}
