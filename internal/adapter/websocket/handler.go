package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/platform/correlation"
)

// DefaultMaxMessageSize caps inbound frames when no limit is configured.
const DefaultMaxMessageSize = 64 * 1024

// Lifecycle receives connection events from the transport.
type Lifecycle interface {
	OnOpen(ctx context.Context, conn domain.Connection) error
	OnMessage(ctx context.Context, conn domain.Connection, message []byte)
	OnClose(ctx context.Context, conn domain.Connection)
	OnError(ctx context.Context, conn domain.Connection, err error)
}

// Handler upgrades HTTP requests to WebSocket connections and feeds their events to a
// Lifecycle. ServeHTTP blocks for the lifetime of the connection.
type Handler struct {
	lifecycle      Lifecycle
	upgrader       websocket.Upgrader
	clock          clockwork.Clock
	maxMessageSize int64
	active         sync.WaitGroup
}

func NewHandler(lifecycle Lifecycle, checkOrigin func(r *http.Request) bool, clock clockwork.Clock, maxMessageSize int64) *Handler {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &Handler{
		lifecycle: lifecycle,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clock:          clock,
		maxMessageSize: maxMessageSize,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		slog.WarnContext(r.Context(), "WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(h.maxMessageSize)

	h.active.Add(1)
	defer h.active.Done()

	id := uuid.New()
	ctx := correlation.WithConnection(r.Context(), id)
	conn := NewConn(id, ws, h.clock)

	// Whoever ended the connection, the writer is told to finish and is waited for.
	defer func() {
		_ = conn.Close()
		<-conn.writerDone
	}()

	if err := h.lifecycle.OnOpen(ctx, conn); err != nil {
		slog.WarnContext(ctx, "Connection rejected", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	h.readLoop(ctx, conn)
}

// Wait blocks until every connection served by h has been torn down, or ctx is done.
// Call it after the listener has stopped accepting upgrades.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readLoop turns inbound frames into OnMessage events until the socket fails or is closed.
// Every exit path ends in OnClose.
func (h *Handler) readLoop(ctx context.Context, conn *Conn) {
	defer h.lifecycle.OnClose(ctx, conn)

	for {
		_, data, err := conn.connection.ReadMessage()
		if err != nil {
			if !conn.closing() && isAbnormalClose(err) {
				h.lifecycle.OnError(ctx, conn, &domain.TransportError{ConnID: conn.ID(), Op: "read", Err: err})
			}
			return
		}
		conn.updateReadDeadline()
		h.lifecycle.OnMessage(ctx, conn, data)
	}
}

func isAbnormalClose(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return websocket.IsUnexpectedCloseError(closeErr, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
	}
	return true
}
