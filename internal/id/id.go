// Package id generates the identifiers used for sessions and sweep runs.
package id

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// SessionPrefix prefixes every reading session ID.
const SessionPrefix = "rsession"

// Generate creates a prefixed unique ID using NanoID
// Format: prefix-nanoid (e.g., "rsession-V1StGXR8_Z5jdHi6B-myT")
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// NewSessionID returns a fresh reading session ID.
func NewSessionID() (string, error) {
	return Generate(SessionPrefix)
}

// NewRunID returns a random UUID identifying one sweep run in logs and responses.
func NewRunID() string {
	return uuid.NewString()
}
