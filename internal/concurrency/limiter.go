package concurrency

import (
	"context"
	"golang.org/x/sync/semaphore"
	"math"
	"sync/atomic"
)

// Limiter is a counting semaphore that gates admission across a whole pool.
// It starts with a fixed number of permits. Acquire blocks until a permit is
// available, Release returns one.
//
// Unlike semaphore.Weighted on its own, Release never fails: a permit may be
// released before the matching Acquire has happened, in which case the number
// of available permits is briefly above the initial size. Capacity callbacks
// fired from different goroutines rely on this.
type Limiter struct {

	// sem is sized to math.MaxInt64 with everything except the initial permits held
	// in reserve, so surplus releases only eat into the reserve.
	sem *semaphore.Weighted

	// size is the number of permits the limiter was created with.
	size int64

	// available tracks free permits for reporting. It is updated after the
	// semaphore operation and may lag it by one operation.
	available *atomic.Int64
}

//region Implementation

// Acquire blocks until a permit is available or ctx is done. On failure no
// permit is held and ctx.Err() is returned.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.available.Add(-1)
	return nil
}

// TryAcquire takes a permit only if one is available right now.
func (l *Limiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.available.Add(-1)
	return true
}

// Release returns a permit to the limiter, waking one blocked Acquire if any.
func (l *Limiter) Release() {
	l.available.Add(1)
	l.sem.Release(1)
}

// Available returns the number of permits currently free.
func (l *Limiter) Available() int64 {
	return l.available.Load()
}

// Size returns the number of permits the limiter was created with.
func (l *Limiter) Size() int64 {
	return l.size
}

//endregion

//region Constructor

// NewLimiter initializes a new Limiter with size permits available.
func NewLimiter(size int64) *Limiter {

	sem := semaphore.NewWeighted(math.MaxInt64)

	// Hold everything except the initial permits. The semaphore is untouched so the
	// reservation always succeeds.
	sem.TryAcquire(math.MaxInt64 - size)

	available := &atomic.Int64{}
	available.Store(size)

	return &Limiter{
		sem:       sem,
		size:      size,
		available: available,
	}
}

//endregion
