package util

import "github.com/google/uuid"

// NewID returns a random UUID string used as entity and request id.
func NewID() string {
	return uuid.NewString()
}
