package domain

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewRequestID returns a sortable identifier for deposit and withdrawal requests.
func NewRequestID() string {
	return ulid.Make().String()
}

// NewPublicID returns the short public account id shown to users.
func NewPublicID() string {
	return uuid.NewString()[:8]
}
