package apikey

import "errors"

// Predefined errors for the apikey package.
var (
	// ErrInvalidKey indicates a malformed or unverifiable API key.
	ErrInvalidKey = errors.New("invalid api key")

	// ErrEnvironmentNotFound indicates no environment exists for the given ID.
	ErrEnvironmentNotFound = errors.New("environment not found")

	// ErrInvalidEnvironmentKey indicates an environment key that is not
	// lowercase alphanumeric with dashes.
	ErrInvalidEnvironmentKey = errors.New("environment key must be lowercase alphanumeric with dashes")

	// ErrOperationFailed indicates a storage or hashing failure.
	ErrOperationFailed = errors.New("api key operation failed")
)
