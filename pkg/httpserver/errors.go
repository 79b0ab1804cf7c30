package httpserver

import "errors"

// Predefined errors for the httpserver package.
var (
	// ErrStart indicates the server could not start or exited abnormally.
	ErrStart = errors.New("http server failed to start")

	// ErrShutdown indicates graceful shutdown did not complete in time.
	ErrShutdown = errors.New("http server shutdown failed")
)
