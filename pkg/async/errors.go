package async

import "errors"

var (
	// ErrTimeout indicates AwaitWithTimeout expired before the function completed.
	ErrTimeout = errors.New("async: await timed out")

	// ErrPanic wraps a panic recovered from an asynchronous function.
	ErrPanic = errors.New("async: recovered panic")
)
