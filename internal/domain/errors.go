package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrConnectionClosed    = errors.New("connection closed")
	ErrSendTimeout         = errors.New("send timed out")
	ErrCapacityReached     = errors.New("connection capacity reached")
	ErrControllerStopped   = errors.New("controller stopped")
	ErrCommandTimeout      = errors.New("controller command timed out")
	ErrUnknownConnection   = errors.New("connection not registered")
	ErrDuplicateConnection = errors.New("connection already registered")
)

// TransportError reports a send or close failure on one connection.
type TransportError struct {
	ConnID uuid.UUID
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s on connection %s: %v", e.Op, e.ConnID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a lifecycle event that does not fit the connection's state,
// e.g. a message from a connection that was never opened.
type ProtocolError struct {
	ConnID uuid.UUID
	Event  string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation on %s for connection %s: %v", e.Event, e.ConnID, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
