package dispatch

import (
	"context"
	"errors"
	"fmt"
	"github.com/pgvanniekerk/ezbalance/internal/concurrency"
	"github.com/pgvanniekerk/ezbalance/internal/executor"
	"github.com/pgvanniekerk/ezbalance/worker"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

var (
	ErrNoWorkers       = errors.New("dispatcher needs at least one worker")
	ErrDispatchAborted = errors.New("dispatch aborted while waiting for a permit")
)

// Options configure a Dispatcher.
type Options struct {

	// PollTimeout bounds a single wait on the dispatcher's empty mailbox.
	PollTimeout time.Duration

	// Logger receives routing failures.
	Logger *slog.Logger

	// Context bounds the permit waits done from worker goroutines in onNoSpace.
	// Defaults to context.Background().
	Context context.Context

	// OnRoute is called after a task has been routed to the worker with index id.
	OnRoute func(id int)

	// OnDrop is called when a task is abandoned before being routed.
	OnDrop func(err error)
}

// Dispatcher routes tasks to the least loaded of a fixed set of workers.
//
// It is itself a queued executor: Submit places the task in the dispatcher's
// own mailbox and the dispatcher goroutine routes mailbox entries one by one.
// Routing takes a permit from a pool-wide semaphore, so admission stalls once
// every worker has reported itself full through its onNoSpace callback.
type Dispatcher struct {
	*executor.Worker

	// workers is the fixed routing table.
	workers []*executor.Worker

	// permits holds one permit per worker that still has space.
	permits *concurrency.Limiter

	// ctx bounds permit waits that happen on worker goroutines.
	ctx context.Context

	logger  *slog.Logger
	onRoute func(id int)
	onDrop  func(err error)

	routed  *atomic.Uint64
	dropped *atomic.Uint64
}

// Compile-time check that a Dispatcher can stand in for a worker.
var _ worker.QueuedExecutor = (*Dispatcher)(nil)

//region Implementation

// Workers returns the routing table.
func (d *Dispatcher) Workers() []*executor.Worker {
	return d.workers
}

// PermitsAvailable returns the number of free permits.
func (d *Dispatcher) PermitsAvailable() int64 {
	return d.permits.Available()
}

// Routed returns the number of tasks handed to a worker.
func (d *Dispatcher) Routed() uint64 {
	return d.routed.Load()
}

// Dropped returns the number of tasks abandoned before routing.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

//endregion

//region Helpers

// route is the dispatcher goroutine's task handler.
func (d *Dispatcher) route(task worker.Task) {

	// Blocks while every worker is full. This is where backpressure is applied.
	if err := d.permits.Acquire(task.Context()); err != nil {
		d.drop(task, err)
		return
	}

	idx := d.leastLoaded()
	d.workers[idx].Submit(task)

	// The permit only throttles routing decisions; it is not tied to the chosen
	// worker.
	d.permits.Release()

	d.routed.Add(1)
	if d.onRoute != nil {
		d.onRoute(idx)
	}
}

// leastLoaded returns the index of the worker with the shortest queue. Ties go
// to the lowest index.
func (d *Dispatcher) leastLoaded() int {
	best := 0
	bestDepth := math.MaxInt

	for i, w := range d.workers {
		if depth := w.QueueDepth(); depth < bestDepth {
			best = i
			bestDepth = depth
		}
	}

	return best
}

// drop resolves an unroutable task with an error instead of leaving its handle
// pending forever.
func (d *Dispatcher) drop(task worker.Task, cause error) {
	err := fmt.Errorf("%w: %w", ErrDispatchAborted, cause)
	task.Fail(err)

	d.dropped.Add(1)
	d.logger.Warn("task dropped before routing", "error", cause)

	if d.onDrop != nil {
		d.onDrop(err)
	}
}

// workerHasSpace returns a permit when a worker drops below its threshold.
func (d *Dispatcher) workerHasSpace() {
	d.permits.Release()
}

// workerNoSpace takes a permit when a worker reaches its threshold. It runs on
// the goroutine that submitted to the worker and may block it until another
// worker drains.
func (d *Dispatcher) workerNoSpace() {
	if err := d.permits.Acquire(d.ctx); err != nil {
		d.logger.Warn("permit wait for full worker abandoned", "error", err)
	}
}

//endregion

//region Constructor

// New creates a stopped Dispatcher over workers and wires itself into every
// worker's capacity callbacks. The workers keep their own lifecycle; Start and
// StopAndJoin on the Dispatcher only affect its mailbox goroutine.
func New(workers []*executor.Worker, opts Options) (*Dispatcher, error) {

	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}

	d := &Dispatcher{
		workers: workers,
		permits: concurrency.NewLimiter(int64(len(workers))),
		ctx:     opts.Context,
		logger:  opts.Logger,
		onRoute: opts.OnRoute,
		onDrop:  opts.OnDrop,
		routed:  &atomic.Uint64{},
		dropped: &atomic.Uint64{},
	}

	d.Worker = executor.New(-1, executor.Options{
		Name:        "dispatcher",
		PollTimeout: opts.PollTimeout,
		Logger:      opts.Logger,
		Handler:     d.route,
	})

	for _, w := range workers {
		w.SetHasSpaceCallback(d.workerHasSpace)
		w.SetNoSpaceCallback(d.workerNoSpace)
	}

	return d, nil
}

//endregion
