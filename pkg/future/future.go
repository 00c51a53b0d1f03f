// Package future provides a deferred-result handle for work executed elsewhere.
//
// A Future is created by the party that submits work and resolved exactly once
// by the party that executes it, either with a value (Complete) or with a
// failure (Fail). Callers poll it with IsDone, select on Done, or block in Get.
package future

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrTaskPanicked wraps the value recovered from a task body that panicked.
var ErrTaskPanicked = errors.New("task panicked")

// Future is the deferred result of a computation producing a T.
// The zero value is not usable; create Futures with New.
type Future[T any] struct {

	// once guards resolution so only the first Complete or Fail takes effect.
	once *sync.Once

	// done is closed when the Future is resolved.
	done chan struct{}

	// value is the result of a successful computation. Valid once done is closed.
	value T

	// err is the failure of the computation. Valid once done is closed.
	err error
}

//region Implementation

// Complete resolves the Future with v. It returns false if the Future was
// already resolved, in which case v is discarded.
func (f *Future[T]) Complete(v T) bool {
	return f.resolve(v, nil)
}

// Fail resolves the Future with err. It returns false if the Future was
// already resolved, in which case err is discarded.
func (f *Future[T]) Fail(err error) bool {
	var zero T
	return f.resolve(zero, err)
}

// Done returns a channel that is closed once the Future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the Future has been resolved.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the Future is resolved or ctx is done. It returns the value
// and failure of the computation, or ctx.Err() if ctx ended first. A ctx that
// ends does not affect the computation itself.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks until the Future is resolved and returns its outcome.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Err returns the failure the Future was resolved with, or nil if it is still
// pending or completed successfully.
func (f *Future[T]) Err() error {
	if !f.IsDone() {
		return nil
	}
	return f.err
}

// Run executes fn and resolves the Future with its outcome. A panic in fn is
// recovered and recorded as an error wrapping ErrTaskPanicked.
func (f *Future[T]) Run(fn func() (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			f.Fail(fmt.Errorf("%w: %v", ErrTaskPanicked, r))
		}
	}()

	v, err := fn()
	if err != nil {
		f.Fail(err)
		return
	}
	f.Complete(v)
}

//endregion

//region Helpers

// resolve records the outcome and wakes every waiter, once.
func (f *Future[T]) resolve(v T, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.value = v
		f.err = err
		resolved = true
		close(f.done)
	})
	return resolved
}

//endregion

//region Constructor

// New returns an unresolved Future.
func New[T any]() *Future[T] {
	return &Future[T]{
		once: &sync.Once{},
		done: make(chan struct{}),
	}
}

//endregion
