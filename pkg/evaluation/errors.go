package evaluation

import "errors"

// Predefined errors for the evaluation package.
var (
	// ErrInvalidPercentage indicates a rollout percentage outside [0,100].
	ErrInvalidPercentage = errors.New("rollout percentage must be between 0 and 100")

	// ErrInvalidRule indicates the provided rule parameters are invalid.
	ErrInvalidRule = errors.New("invalid flag rule parameters")
)
