package jobs

import "github.com/google/uuid"

// IDGenerator issues job identifiers.
type IDGenerator interface {
	NewID() ID
}

// UUIDGenerator issues random version 4 UUIDs read from crypto/rand, so ids
// cannot be guessed from ids handed to other callers.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() ID {
	return ID(uuid.NewString())
}
