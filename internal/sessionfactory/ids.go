package sessionfactory

import (
	"github.com/google/uuid"
)

// IDGenerator produces session ids. Implementations must be safe for
// concurrent use: one factory serves many goroutines.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator issues time-ordered session ids, so sessions opened in
// sequence also sort in opening order in logs.
type UUIDv7Generator struct{}

// Generate falls back to a random (v4) id when the v7 clock source fails.
func (UUIDv7Generator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
