package models

import "github.com/google/uuid"

// NewID returns a canonical identifier. UUIDs are assigned at creation and
// stay stable across all surfaces.
func NewID() string {
	return uuid.NewString()
}
