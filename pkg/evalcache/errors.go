package evalcache

import "errors"

// Predefined errors for the evalcache package.
var (
	// ErrOperationFailed indicates the cache backend rejected an operation.
	ErrOperationFailed = errors.New("evaluation cache operation failed")
)
