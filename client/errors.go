package client

import "errors"

// Predefined errors for the client package.
var (
	// ErrMissingAPIKey indicates the client was constructed without a key.
	ErrMissingAPIKey = errors.New("api key is required")

	// ErrUnauthorized indicates the server rejected the API key.
	ErrUnauthorized = errors.New("unauthorized: invalid api key")

	// ErrRequestFailed indicates a non-retryable server rejection.
	ErrRequestFailed = errors.New("request failed")

	// ErrUnavailable indicates the server stayed unreachable after retries.
	ErrUnavailable = errors.New("flag service unavailable")
)
