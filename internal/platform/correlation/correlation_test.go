package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	inner := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewHandler(inner))
}

func TestNewID_LengthAndUniqueness(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for range 100 {
		id := NewID()
		assert.Len(t, id, 8)
		ids[id] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestID_Roundtrip(t *testing.T) {
	id, ok := ID(WithID(context.Background(), "abc12345"))
	assert.True(t, ok)
	assert.Equal(t, "abc12345", id)

	_, ok = ID(context.Background())
	assert.False(t, ok)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok, "empty id counts as missing")
}

func TestConnection_Roundtrip(t *testing.T) {
	connID := uuid.New()
	got, ok := Connection(WithConnection(context.Background(), connID))
	assert.True(t, ok)
	assert.Equal(t, connID, got)

	_, ok = Connection(WithConnection(context.Background(), uuid.Nil))
	assert.False(t, ok)
}

func TestHandler_AddsCorrelationAndConnection(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	connID := uuid.New()
	ctx := WithConnection(WithID(context.Background(), "test1234"), connID)
	logger.InfoContext(ctx, "Connection opened", "connections", 2)

	output := buf.String()
	assert.Contains(t, output, "correlation_id=test1234")
	assert.Contains(t, output, "connection_id="+connID.String())
	assert.Contains(t, output, "connections=2")
}

func TestHandler_NoAttrsWhenMissing(t *testing.T) {
	var buf bytes.Buffer
	newTestLogger(&buf).InfoContext(context.Background(), "plain")

	output := buf.String()
	assert.NotContains(t, output, "correlation_id")
	assert.NotContains(t, output, "connection_id")
}

func TestHandler_WithAttrsPreservesCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf).With("component", "relay")

	logger.InfoContext(WithID(context.Background(), "attr1234"), "with attrs")

	output := buf.String()
	assert.Contains(t, output, "correlation_id=attr1234")
	assert.Contains(t, output, "component=relay")
}
