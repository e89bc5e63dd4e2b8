package store

import (
	"context"
	"fmt"
)

// Void is the result type of operations that only report success or failure
type Void = struct{}

// Callback receives the outcome of an operation. On failure result is the zero
// value of T, on success err is nil.
type Callback[T any] func(err error, result T)

// Future is the pending outcome of an operation. Every operation of Adapter,
// Storage and SingleStore runs on its own goroutine and returns a Future, so
// callers can wait for it, pass callbacks or both.
type Future[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// run executes fn on a new goroutine. Once the returned future is settled, each
// callback in cbs is invoked exactly once, in order.
func run[T any](ctx context.Context, fn func(ctx context.Context) (T, error), cbs []Callback[T]) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	go func() {
		result, err := fn(ctx)
		if err != nil {
			var zero T
			result = zero
		}
		f.result, f.err = result, err
		close(f.done)

		for _, cb := range cbs {
			if cb != nil {
				invoke(cb, err, result)
			}
		}
	}()

	return f
}

// invoke calls cb and logs a panic instead of crashing the process
func invoke[T any](cb Callback[T], err error, result T) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("callback panicked: %v", r)
		}
	}()
	cb(err, result)
}

// Done returns a channel that is closed once the future is settled
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await waits for the outcome of the operation or until ctx is done.
// A done ctx does not cancel the operation itself.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("await: %w", ctx.Err())
	}
}

// Result blocks until the future is settled and returns its outcome
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.result, f.err
}

// Err blocks until the future is settled and returns its error
func (f *Future[T]) Err() error {
	<-f.done
	return f.err
}
