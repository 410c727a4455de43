// Package redis reports this instance's connection count to Redis so that a fleet of relay
// instances can be observed as a whole. Presence is advisory: Redis being slow or down never
// affects message relaying, and every command goes through a circuit breaker.
package redis
