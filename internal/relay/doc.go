// Package relay implements the connection registry, broadcast dispatch and the
// connection lifecycle controller.
//
// The Controller is an actor: one goroutine owns the Registry and processes lifecycle
// commands from a channel in arrival order (no mutexes around the registry). Every message
// is fanned out to all other registered connections in registration order, after which the
// sender is closed. Recipients whose send fails are force-closed and deregistered; the
// broadcast continues for the rest.
package relay
