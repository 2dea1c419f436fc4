// Package uuid provides ID generation helpers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 strings, so cycle and request ids
// sort in the order they were issued.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// IsValid reports whether s parses as a UUID of any version. Used to decide
// whether an inbound request id header can be trusted.
func IsValid(s string) bool {
	return uuid.Validate(s) == nil
}
