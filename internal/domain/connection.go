package domain

import (
	"context"

	"github.com/google/uuid"
)

// Connection is one live transport endpoint as seen by the relay core.
// The transport assigns the ID when the handshake completes; it stays stable
// for the lifetime of the connection.
type Connection interface {
	ID() uuid.UUID
	// Send delivers one message. It must return promptly once ctx is done.
	Send(ctx context.Context, message []byte) error
	// Close is idempotent; repeated calls return nil.
	Close() error
}
