package async

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Future represents the result of an asynchronous computation.
type Future[U any] struct {
	result U
	err    error
	once   sync.Once
	done   chan struct{}
}

// Await waits for the asynchronous function to complete and returns its result and error.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.result, f.err
}

// AwaitWithTimeout waits for completion up to the given timeout.
// Returns ErrTimeout if the function has not completed in time.
func (f *Future[U]) AwaitWithTimeout(timeout time.Duration) (U, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-time.After(timeout):
		var zero U
		return zero, ErrTimeout
	}
}

// IsComplete checks whether the asynchronous function has completed without blocking.
func (f *Future[U]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Async executes fn in the background and returns a Future for its result.
// A panic in fn is converted into an error on the future.
func Async[T any, U any](ctx context.Context, param T, fn func(context.Context, T) (U, error)) *Future[U] {
	f := &Future[U]{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.once.Do(func() {
					f.err = fmt.Errorf("%w: %v", ErrPanic, r)
				})
			}
		}()

		// Early exit prevents doing work when the context is already cancelled.
		select {
		case <-ctx.Done():
			f.once.Do(func() { f.err = ctx.Err() })
			return
		default:
		}

		res, err := fn(ctx, param)
		f.once.Do(func() {
			f.result = res
			f.err = err
		})
	}()

	return f
}

// Fire runs fn in the background and forgets about it. The task's failure
// (error or recovered panic) is handed to onError; onError may be nil, in
// which case failures are silently discarded. Fire decouples the task's
// lifetime from the caller entirely: the caller's success path never depends
// on the task's outcome.
func Fire[T any](ctx context.Context, param T, fn func(context.Context, T) error, onError func(error)) {
	fut := Async(ctx, param, func(ctx context.Context, p T) (struct{}, error) {
		return struct{}{}, fn(ctx, p)
	})

	go func() {
		if _, err := fut.Await(); err != nil && onError != nil {
			onError(err)
		}
	}()
}
