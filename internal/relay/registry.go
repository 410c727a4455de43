package relay

import (
	"iter"
	"slices"

	"github.com/google/uuid"
	"github.com/pscheid92/chatrelay/internal/domain"
)

// Registry is the ordered set of open connections. It is not safe for concurrent use;
// the Controller is its only owner.
//
// Membership is by identity: a connection is present only if the registered value for its ID
// is the same value. Connections must therefore be comparable (pointer types in practice).
type Registry struct {
	order []domain.Connection
	byID  map[uuid.UUID]domain.Connection
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[uuid.UUID]domain.Connection)}
}

// Add registers conn at the end of the traversal order.
// Returns false without changing anything if its ID is already registered.
func (r *Registry) Add(conn domain.Connection) bool {
	if _, exists := r.byID[conn.ID()]; exists {
		return false
	}
	r.byID[conn.ID()] = conn
	r.order = append(r.order, conn)
	return true
}

// Remove deregisters conn. Absent connections, or a different connection that happens to
// carry a registered ID, are left alone. Returns true if something was removed.
func (r *Registry) Remove(conn domain.Connection) bool {
	if !r.Contains(conn) {
		return false
	}
	delete(r.byID, conn.ID())
	r.order = slices.DeleteFunc(r.order, func(c domain.Connection) bool { return c == conn })
	return true
}

// Contains reports whether conn itself is registered.
func (r *Registry) Contains(conn domain.Connection) bool {
	registered, exists := r.byID[conn.ID()]
	return exists && registered == conn
}

// Lookup returns the connection registered under id.
func (r *Registry) Lookup(id uuid.UUID) (domain.Connection, bool) {
	conn, exists := r.byID[id]
	return conn, exists
}

func (r *Registry) Len() int {
	return len(r.order)
}

// All yields every registered connection in registration order.
func (r *Registry) All() iter.Seq[domain.Connection] {
	return func(yield func(domain.Connection) bool) {
		for _, conn := range r.order {
			if !yield(conn) {
				return
			}
		}
	}
}

// Except yields every registered connection other than the one with id, in registration
// order. The sequence is lazy and may be ranged over more than once; it must not be ranged
// over while the registry is being mutated.
func (r *Registry) Except(id uuid.UUID) iter.Seq[domain.Connection] {
	return func(yield func(domain.Connection) bool) {
		for _, conn := range r.order {
			if conn.ID() == id {
				continue
			}
			if !yield(conn) {
				return
			}
		}
	}
}

// ForEachExcept applies fn to every registered connection other than the one with id.
func (r *Registry) ForEachExcept(id uuid.UUID, fn func(domain.Connection)) {
	for conn := range r.Except(id) {
		fn(conn)
	}
}
