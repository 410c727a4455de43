package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/pscheid92/chatrelay/internal/relay"

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	commandBuffer  = 256

	// retiredLimit caps how many relay-closed connections are remembered while their
	// OnClose is still in flight.
	retiredLimit = 4096
)

// Reasons recorded when the relay closes a connection itself.
const (
	closeReasonAfterBroadcast = "after_broadcast"
	closeReasonSendFailed     = "send_failed"
	closeReasonProtocol       = "protocol_error"
	closeReasonTransport      = "transport_error"
	closeReasonCapacity       = "capacity"
	closeReasonShutdown       = "shutdown"
)

// controllerCmd is the command interface for the Controller actor.
type controllerCmd interface{ isControllerCmd() }

type baseControllerCmd struct{}

func (baseControllerCmd) isControllerCmd() {}

type openCmd struct {
	baseControllerCmd
	ctx          context.Context
	connection   domain.Connection
	errorChannel chan error
}

type messageCmd struct {
	baseControllerCmd
	ctx        context.Context
	connection domain.Connection
	message    []byte
}

type closeCmd struct {
	baseControllerCmd
	ctx        context.Context
	connection domain.Connection
}

type errorCmd struct {
	baseControllerCmd
	ctx        context.Context
	connection domain.Connection
	err        error
}

type lenCmd struct {
	baseControllerCmd
	replyChannel chan int
}

type stopCmd struct {
	baseControllerCmd
}

// Controller drives the connection lifecycle. It exclusively owns the Registry; all lifecycle
// events are serialized through its command channel and handled by a single goroutine.
type Controller struct {
	cmdCh          chan controllerCmd
	clock          clockwork.Clock
	registry       *Registry
	retired        map[domain.Connection]struct{}
	dispatcher     *Dispatcher
	metrics        *metrics.RelayMetrics
	onSizeChange   func(size int)
	maxConnections int
	done           chan struct{}
	stopOnce       sync.Once
	stopTimeout    time.Duration
}

// NewController creates a controller and starts its goroutine.
// onSizeChange is called from the controller goroutine whenever the number of registered
// connections changes; it must not block. maxConnections <= 0 means unlimited.
func NewController(dispatcher *Dispatcher, m *metrics.RelayMetrics, onSizeChange func(int), clock clockwork.Clock, maxConnections int) *Controller {
	c := &Controller{
		cmdCh:          make(chan controllerCmd, commandBuffer),
		clock:          clock,
		registry:       NewRegistry(),
		retired:        make(map[domain.Connection]struct{}),
		dispatcher:     dispatcher,
		metrics:        m,
		onSizeChange:   onSizeChange,
		maxConnections: maxConnections,
		done:           make(chan struct{}),
		stopTimeout:    stopTimeout,
	}
	go c.run()
	return c
}

// OnOpen registers a connection whose handshake has completed. On error the connection has
// already been closed by the controller.
//
// If the controller does not answer within the command timeout the connection is closed and
// a close event is queued behind the pending open, so it is deregistered once the open lands.
func (c *Controller) OnOpen(ctx context.Context, conn domain.Connection) error {
	errCh := make(chan error, 1)
	if err := c.enqueue(openCmd{ctx: context.WithoutCancel(ctx), connection: conn, errorChannel: errCh}); err != nil {
		_ = conn.Close()
		return err
	}

	timer := c.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-c.done:
		return domain.ErrControllerStopped
	case <-timer.Chan():
		_ = conn.Close()
		_ = c.enqueue(closeCmd{ctx: context.WithoutCancel(ctx), connection: conn})
		return fmt.Errorf("open: %w after %v", domain.ErrCommandTimeout, commandTimeout)
	}
}

// OnMessage relays message from conn to every other connection and then closes conn.
func (c *Controller) OnMessage(ctx context.Context, conn domain.Connection, message []byte) {
	c.enqueueOrDrop(messageCmd{ctx: context.WithoutCancel(ctx), connection: conn, message: message}, conn)
}

// OnClose deregisters conn. Safe to call any number of times.
func (c *Controller) OnClose(ctx context.Context, conn domain.Connection) {
	c.enqueueOrDrop(closeCmd{ctx: context.WithoutCancel(ctx), connection: conn}, conn)
}

// OnError reports a transport failure on conn, closes it and deregisters it.
func (c *Controller) OnError(ctx context.Context, conn domain.Connection, err error) {
	c.enqueueOrDrop(errorCmd{ctx: context.WithoutCancel(ctx), connection: conn, err: err}, conn)
}

// Len returns the number of registered connections, or -1 if the controller does not answer.
func (c *Controller) Len() int {
	replyCh := make(chan int, 1)
	if err := c.enqueue(lenCmd{replyChannel: replyCh}); err != nil {
		return -1
	}

	timer := c.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-replyCh:
		return n
	case <-c.done:
		return -1
	case <-timer.Chan():
		slog.Warn("Len timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every registered connection and stops the controller goroutine.
// Blocks until the goroutine has exited or the stop timeout is reached. Safe to call twice.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		if err := c.enqueue(stopCmd{}); err != nil {
			return
		}

		timeout := c.clock.NewTimer(c.stopTimeout)
		defer timeout.Stop()

		select {
		case <-c.done:
			slog.Info("Relay controller stopped")
		case <-timeout.Chan():
			slog.Warn("Relay controller stop timeout exceeded", "timeout", c.stopTimeout)
		}
	})
}

func (c *Controller) enqueue(cmd controllerCmd) error {
	select {
	case <-c.done:
		return domain.ErrControllerStopped
	default:
	}

	select {
	case c.cmdCh <- cmd:
		return nil
	case <-c.done:
		return domain.ErrControllerStopped
	}
}

// enqueueOrDrop is used for fire-and-forget events. Once the controller is gone every
// connection has been closed already, so closing conn again is all that is left to do.
func (c *Controller) enqueueOrDrop(cmd controllerCmd, conn domain.Connection) {
	if err := c.enqueue(cmd); err != nil {
		_ = conn.Close()
	}
}

func (c *Controller) run() {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Relay controller panic recovered", "panic", r)
			c.metrics.Panic()
			c.closeAll(closeReasonShutdown)
		}
	}()

	for cmd := range c.cmdCh {
		switch cmd := cmd.(type) {
		case openCmd:
			cmd.errorChannel <- c.handleOpen(cmd.ctx, cmd.connection)
		case messageCmd:
			c.handleMessage(cmd.ctx, cmd.connection, cmd.message)
		case closeCmd:
			c.handleClose(cmd.ctx, cmd.connection)
		case errorCmd:
			c.handleError(cmd.ctx, cmd.connection, cmd.err)
		case lenCmd:
			cmd.replyChannel <- c.registry.Len()
		case stopCmd:
			c.handleStop()
			return
		default:
			slog.Warn("Relay controller received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (c *Controller) handleOpen(ctx context.Context, conn domain.Connection) error {
	if registered, exists := c.registry.Lookup(conn.ID()); exists {
		err := &domain.ProtocolError{ConnID: conn.ID(), Event: "open", Err: domain.ErrDuplicateConnection}
		c.reportProtocolError(ctx, err)
		c.metrics.Opened("duplicate")
		// A repeated open of the registered connection leaves it untouched; an impostor
		// carrying a live id is turned away.
		if registered != conn {
			c.closeConn(ctx, conn, closeReasonProtocol)
		}
		return err
	}

	if c.maxConnections > 0 && c.registry.Len() >= c.maxConnections {
		slog.WarnContext(ctx, "Rejecting connection: max connections reached", "max_connections", c.maxConnections)
		c.closeConn(ctx, conn, closeReasonCapacity)
		c.metrics.Opened("rejected")
		return fmt.Errorf("%w (%d)", domain.ErrCapacityReached, c.maxConnections)
	}

	c.registry.Add(conn)
	c.metrics.Opened("accepted")
	c.sizeChanged()

	slog.InfoContext(ctx, "Connection opened", "connections", c.registry.Len(), "peers", c.registry.Len()-1)
	return nil
}

func (c *Controller) handleMessage(ctx context.Context, sender domain.Connection, message []byte) {
	if !c.registry.Contains(sender) {
		if _, ok := c.retired[sender]; ok {
			// Frames already in flight when the relay closed the sender.
			slog.DebugContext(ctx, "Dropping message from closed connection", "bytes", len(message))
			return
		}
		c.reportProtocolError(ctx, &domain.ProtocolError{ConnID: sender.ID(), Event: "message", Err: domain.ErrUnknownConnection})
		c.closeConn(ctx, sender, closeReasonProtocol)
		return
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "relay.broadcast",
		trace.WithAttributes(
			attribute.String("relay.connection_id", sender.ID().String()),
			attribute.Int("relay.message_bytes", len(message)),
		))
	defer span.End()

	c.metrics.MessageReceived()
	slog.InfoContext(ctx, "Relaying message", "bytes", len(message), "recipients", c.registry.Len()-1)
	slog.DebugContext(ctx, "Message payload", "message", string(message))

	outcome := c.dispatcher.Broadcast(ctx, c.registry, sender, message)
	span.SetAttributes(
		attribute.Int("relay.recipients", outcome.Recipients),
		attribute.Int("relay.delivered", outcome.Delivered),
		attribute.Int("relay.faulted", len(outcome.Faulted)),
	)
	if len(outcome.Faulted) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d deliveries failed", len(outcome.Faulted)))
	}
	for _, fault := range outcome.Faulted {
		slog.WarnContext(ctx, "Delivery failed, closing recipient", "recipient_id", fault.Conn.ID().String(), "error", fault.Err)
		c.closeAndRemove(ctx, fault.Conn, closeReasonSendFailed)
	}

	// The sender is disconnected once its message has been fanned out.
	c.closeAndRemove(ctx, sender, closeReasonAfterBroadcast)

	slog.DebugContext(ctx, "Broadcast complete",
		"recipients", outcome.Recipients,
		"delivered", outcome.Delivered,
		"faulted", len(outcome.Faulted),
		"connections", c.registry.Len(),
	)
}

func (c *Controller) handleClose(ctx context.Context, conn domain.Connection) {
	delete(c.retired, conn)
	if !c.registry.Remove(conn) {
		return
	}
	c.sizeChanged()
	slog.InfoContext(ctx, "Connection closed", "connections", c.registry.Len())
}

func (c *Controller) handleError(ctx context.Context, conn domain.Connection, cause error) {
	slog.WarnContext(ctx, "Connection error", "error", cause)
	c.closeAndRemove(ctx, conn, closeReasonTransport)
}

func (c *Controller) handleStop() {
	slog.Info("Relay controller shutting down", "connections", c.registry.Len())
	c.closeAll(closeReasonShutdown)
}

// closeAndRemove closes a connection and drives its close transition. A failed close
// counts as closed.
func (c *Controller) closeAndRemove(ctx context.Context, conn domain.Connection, reason string) {
	c.closeConn(ctx, conn, reason)
	if c.registry.Remove(conn) {
		c.retire(conn)
		c.sizeChanged()
		slog.InfoContext(ctx, "Connection closed", "closed_id", conn.ID().String(), "reason", reason, "connections", c.registry.Len())
	}
}

// retire remembers a connection the relay closed itself until its OnClose arrives.
func (c *Controller) retire(conn domain.Connection) {
	if len(c.retired) >= retiredLimit {
		clear(c.retired)
	}
	c.retired[conn] = struct{}{}
}

func (c *Controller) closeConn(ctx context.Context, conn domain.Connection, reason string) {
	if reason != closeReasonAfterBroadcast {
		c.metrics.ForcedClose(reason)
	}
	if err := conn.Close(); err != nil {
		terr := &domain.TransportError{ConnID: conn.ID(), Op: "close", Err: err}
		slog.WarnContext(ctx, "Close failed, treating connection as closed", "error", terr)
	}
}

func (c *Controller) closeAll(reason string) {
	ctx := context.Background()
	for _, conn := range slices.Collect(c.registry.All()) {
		c.closeConn(ctx, conn, reason)
		c.registry.Remove(conn)
	}
	c.sizeChanged()
}

func (c *Controller) reportProtocolError(ctx context.Context, err *domain.ProtocolError) {
	c.metrics.ProtocolError(err.Event)
	if errors.Is(err, domain.ErrDuplicateConnection) {
		slog.ErrorContext(ctx, "Duplicate connection id, rejecting new connection", "error", err)
		return
	}
	slog.WarnContext(ctx, "Lifecycle event for unregistered connection", "error", err)
}

func (c *Controller) sizeChanged() {
	n := c.registry.Len()
	c.metrics.SetActive(n)
	if c.onSizeChange != nil {
		c.onSizeChange(n)
	}
}
