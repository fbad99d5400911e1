package ddd

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID returns a new random identifier.
func GenerateID() string {
	return uuid.New().String()
}

// IsEmptyID reports whether id carries no identity: blank or the nil uuid.
func IsEmptyID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return true
	}
	parsed, err := uuid.Parse(id)
	return err == nil && parsed == uuid.Nil
}
