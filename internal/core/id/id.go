// Package id provides UUIDv7 generation for records owned by this service
// (journal entries, POS order uids, fallback references).
package id

import (
	"strings"

	"github.com/google/uuid"
)

// ID is a type alias for UUID.
type ID = uuid.UUID

// New generates a new UUIDv7 (time-ordered UUID).
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// IsNil checks if ID is zero-value.
func IsNil(id ID) bool {
	return id == uuid.Nil
}

// Short returns the upper-cased last 12 hex digits of a fresh ID.
// Used where a human-readable unique suffix is needed.
func Short() string {
	s := New().String()
	return strings.ToUpper(s[len(s)-12:])
}
