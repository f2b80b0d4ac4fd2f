package types

import "github.com/google/uuid"

// NewAspectID generates a new UUID v7 for an aspect.
func NewAspectID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 generation fails
		return uuid.New().String()
	}
	return id.String()
}
