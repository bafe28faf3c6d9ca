// Package types holds the domain entities shared across the coordinator,
// ledger, aggregator, and storage packages.
package types

import "github.com/google/uuid"

// ID is an opaque 128-bit identifier. Every entity in the system is keyed
// by one; callers never parse structure out of it beyond UUID syntax.
type ID = uuid.UUID

// NilID is the zero-value ID, used as a sentinel for "no ID" (an actor
// without an identity, an entity that could not be resolved). Optional
// reference fields such as RequestID and VarietyID are *ID pointers instead.
var NilID = uuid.Nil

// ParseID parses a string into an ID, returning an error for anything that
// is not valid UUID syntax.
func ParseID(s string) (ID, error) {
	return uuid.Parse(s)
}

// NewID generates a random (v4) ID.
func NewID() ID {
	return uuid.New()
}
