package ezbalance

import (
	"errors"
	"github.com/pgvanniekerk/ezbalance/internal/dispatch"
	"github.com/pgvanniekerk/ezbalance/internal/executor"
	"github.com/pgvanniekerk/ezbalance/pkg/future"
)

var (
	// ErrPoolClosed resolves tasks submitted after Shutdown has begun.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrInvalidWorkerCount is returned by New when fewer than one worker is requested.
	ErrInvalidWorkerCount = errors.New("worker count must be positive")

	// ErrShutdownInterrupted is returned by Shutdown when its context ends before the
	// drain completes. The drain itself carries on.
	ErrShutdownInterrupted = errors.New("interrupted while waiting for pool to drain")

	// ErrInvalidThreshold is returned by New for a negative threshold.
	ErrInvalidThreshold = executor.ErrInvalidThreshold

	// ErrDispatchAborted resolves tasks whose context ended while they waited for a
	// worker with space.
	ErrDispatchAborted = dispatch.ErrDispatchAborted

	// ErrTaskPanicked resolves tasks whose body panicked.
	ErrTaskPanicked = future.ErrTaskPanicked
)
