package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/platform/logging"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
	closeGracePeriod  = time.Second
)

// Conn adapts a gorilla WebSocket to domain.Connection. Outbound messages go through a
// buffered channel drained by a single writer goroutine, so Send never touches the socket.
type Conn struct {
	id          uuid.UUID
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	writerDone  chan struct{}
	closeOnce   sync.Once
}

var _ domain.Connection = (*Conn)(nil)

// NewConn wraps an upgraded connection and starts its writer goroutine.
func NewConn(id uuid.UUID, connection *websocket.Conn, clock clockwork.Clock) *Conn {
	c := &Conn{
		id:          id,
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
		writerDone:  make(chan struct{}),
	}
	c.configurePongHandler()
	go c.run()
	return c
}

func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Send queues message for the writer goroutine. It fails with domain.ErrConnectionClosed once
// the connection is closing, and with the context error if the buffer stays full.
func (c *Conn) Send(ctx context.Context, message []byte) error {
	select {
	case <-c.doneChannel:
		return domain.ErrConnectionClosed
	case <-c.writerDone:
		return domain.ErrConnectionClosed
	default:
	}

	select {
	case c.sendChannel <- message:
		return nil
	case <-c.doneChannel:
		return domain.ErrConnectionClosed
	case <-c.writerDone:
		return domain.ErrConnectionClosed
	case <-ctx.Done():
		return fmt.Errorf("send buffer full: %w", ctx.Err())
	}
}

// Close marks the connection as closing and returns without touching the socket; the
// writer goroutine finishes the close handshake within closeGracePeriod. Safe to call any
// number of times.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.doneChannel) })
	return nil
}

// closing reports whether Close has been called.
func (c *Conn) closing() bool {
	select {
	case <-c.doneChannel:
		return true
	default:
		return false
	}
}

func (c *Conn) run() {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer close(c.writerDone)

	for {
		select {
		case msg := <-c.sendChannel:
			if err := c.write(msg); err != nil {
				// Closing the socket unblocks the reader, which reports the failure.
				logging.WithConnection(c.id).Debug("Write failed, closing socket", "error", err)
				_ = c.connection.Close()
				return
			}
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				logging.WithConnection(c.id).Debug("Ping failed, closing socket", "error", err)
				_ = c.connection.Close()
				return
			}
		case <-c.doneChannel:
			c.shutdown()
			return
		}
	}
}

// shutdown writes whatever is still queued and the close frame under a single deadline,
// then closes the socket. A peer that stopped reading loses the rest.
func (c *Conn) shutdown() {
	_ = c.connection.SetWriteDeadline(c.clock.Now().Add(closeGracePeriod))

	if c.flush() {
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.connection.WriteMessage(websocket.CloseMessage, closeMsg)
	}

	if err := c.connection.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logging.WithConnection(c.id).Debug("Socket close failed", "error", err)
	}
}

// flush writes the queued messages without moving the write deadline. It reports whether
// every write succeeded.
func (c *Conn) flush() bool {
	for {
		select {
		case msg := <-c.sendChannel:
			if err := c.writeFrame(msg); err != nil {
				return false
			}
		default:
			return true
		}
	}
}

func (c *Conn) write(msg []byte) error {
	c.updateWriteDeadline()
	return c.writeFrame(msg)
}

func (c *Conn) writeFrame(msg []byte) error {
	frameType := websocket.TextMessage
	if !utf8.Valid(msg) {
		frameType = websocket.BinaryMessage
	}
	return c.connection.WriteMessage(frameType, msg)
}

func (c *Conn) configurePongHandler() {
	c.updateReadDeadline()
	c.connection.SetPongHandler(func(string) error {
		c.updateReadDeadline()
		return nil
	})
}

func (c *Conn) updateWriteDeadline() {
	_ = c.connection.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
}

func (c *Conn) updateReadDeadline() {
	_ = c.connection.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}
