package async

import "errors"

var (
	// ErrTimeout is returned by AwaitWithTimeout when the deadline passes
	// before the future resolves.
	ErrTimeout = errors.New("async: await timed out")
)
