package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrScamTerminal is returned when a write targets a token already flagged as a scam.
	ErrScamTerminal = errors.New("storage: token is flagged as scam")

	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)
