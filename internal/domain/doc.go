// Package domain defines the core relay types and interfaces.
//
// Concept-oriented files (connection.go, errors.go) hold the contracts shared by the
// relay core and the transport adapters. No implementation code - just contracts.
package domain
