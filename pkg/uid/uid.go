// Package uid generates identifiers for decisions and requests.
package uid

import "github.com/google/uuid"

// New generates a random UUID string.
func New() string {
	return uuid.New().String()
}

// OrNew returns id when it is a valid UUID and a fresh one otherwise.
func OrNew(id string) string {
	if _, err := uuid.Parse(id); err != nil {
		return New()
	}
	return id
}
