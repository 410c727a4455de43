package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pscheid92/chatrelay/internal/domain"
)

// deliveryLog records the order in which recipients accepted a message.
type deliveryLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *deliveryLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *deliveryLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// fakeConn is an in-memory domain.Connection.
type fakeConn struct {
	id   uuid.UUID
	name string
	log  *deliveryLog

	mu         sync.Mutex
	received   [][]byte
	closeCalls int
	sendErr    error
	closeErr   error
	blockSend  bool
}

func newFakeConn(name string, log *deliveryLog) *fakeConn {
	return &fakeConn{id: uuid.New(), name: name, log: log}
}

func (f *fakeConn) ID() uuid.UUID { return f.id }

func (f *fakeConn) Send(ctx context.Context, message []byte) error {
	f.mu.Lock()
	block := f.blockSend
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeCalls > 0 {
		return domain.ErrConnectionClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.received = append(f.received, append([]byte(nil), message...))
	if f.log != nil {
		f.log.add(f.name)
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return f.closeErr
}

func (f *fakeConn) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.received))
	for _, m := range f.received {
		out = append(out, string(m))
	}
	return out
}

func (f *fakeConn) closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

func (f *fakeConn) failSends(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// gatedConn holds every Send until gate is closed, keeping the controller busy.
type gatedConn struct {
	*fakeConn
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newGatedConn(name string) *gatedConn {
	return &gatedConn{
		fakeConn: newFakeConn(name, nil),
		gate:     make(chan struct{}),
		entered:  make(chan struct{}),
	}
}

func (g *gatedConn) Send(ctx context.Context, message []byte) error {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.gate:
		return g.fakeConn.Send(ctx, message)
	case <-ctx.Done():
		return ctx.Err()
	}
}
