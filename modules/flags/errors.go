package flags

import "errors"

// Predefined errors for the flags module.
var (
	// ErrFlagNotFound indicates the requested flag does not exist in the project.
	ErrFlagNotFound = errors.New("flag not found")

	// ErrInvalidFlagKey indicates a flag key that is not snake_case.
	ErrInvalidFlagKey = errors.New("flag key must be lowercase letters, numbers, and underscores only")

	// ErrTooManyFlags indicates a batch evaluation over the per-request limit.
	ErrTooManyFlags = errors.New("too many flags in batch request")

	// ErrStorageFailed indicates an underlying storage failure.
	ErrStorageFailed = errors.New("flag storage operation failed")
)
