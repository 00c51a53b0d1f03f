package executor

import (
	"context"
	"errors"
	"fmt"
	"github.com/pgvanniekerk/ezbalance/internal/runq"
	"github.com/pgvanniekerk/ezbalance/worker"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollTimeout bounds how long an idle worker waits on its run-queue
// before looping. The loop does nothing on timeout; the bound only keeps the
// wait finite.
const DefaultPollTimeout = time.Hour

var (
	ErrInvalidThreshold = errors.New("threshold must be non-negative")
	ErrAlreadyStarted   = errors.New("executor already started")
	ErrNotStarted       = errors.New("executor not started")
	ErrExecutorStopped  = errors.New("executor is stopped")
	ErrJoinInterrupted  = errors.New("interrupted while waiting for executor to exit")
)

// HandlerFunc processes a task taken off the run-queue, on the worker's own
// goroutine.
type HandlerFunc func(worker.Task)

// Hooks observe the worker's lifecycle. Every field is optional.
type Hooks struct {
	OnStart    func(id int)
	OnStop     func(id int)
	OnTaskDone func(id int, latency time.Duration, err error)
}

// Options configure a Worker.
type Options struct {

	// Name prefixes log records, e.g. "worker" or "dispatcher".
	Name string

	// PollTimeout bounds a single wait on an empty run-queue. Defaults to
	// DefaultPollTimeout.
	PollTimeout time.Duration

	// Logger receives lifecycle and failure records. Defaults to a discarding logger.
	Logger *slog.Logger

	// Hooks observe lifecycle events.
	Hooks Hooks

	// Handler replaces the default behaviour of running each task in place.
	Handler HandlerFunc
}

// Worker owns one FIFO run-queue and one goroutine that drains it. Tasks run
// sequentially in submission order. A Worker with a positive threshold fires
// onNoSpace when a Submit makes the queue length reach the threshold, and
// onHasSpace when a dequeue makes it drop to threshold-1.
type Worker struct {

	// id is the worker's index in its pool.
	id int

	// name is used in log records.
	name string

	// runq holds tasks waiting to be handled.
	runq *runq.Queue[worker.Task]

	// threshold is the queue length at which the worker counts as full. It is fixed
	// once the worker has started.
	threshold *atomic.Int64

	// hasSpace and noSpace are the edge-triggered capacity callbacks.
	hasSpace *atomic.Pointer[worker.Callback]
	noSpace  *atomic.Pointer[worker.Callback]

	// started is set by Start and never cleared.
	started *atomic.Bool

	// running keeps the run loop going. Stop clears it.
	running *atomic.Bool

	// startMutex serializes Start and SetThreshold.
	startMutex *sync.Mutex

	// exited is closed when the run loop has returned.
	exited chan struct{}

	handler     HandlerFunc
	pollTimeout time.Duration
	logger      *slog.Logger
	hooks       Hooks

	executed      *atomic.Uint64
	failed        *atomic.Uint64
	noSpaceFired  *atomic.Uint64
	hasSpaceFired *atomic.Uint64
}

//region Implementation

// Submit appends t to the run-queue and returns it. It never blocks on the
// queue; it may block inside an onNoSpace callback, which runs on the calling
// goroutine. A task submitted to a stopped worker is failed with
// ErrExecutorStopped.
func (w *Worker) Submit(t worker.Task) worker.Task {
	depth, ok := w.runq.Push(t)
	if !ok {
		t.Fail(fmt.Errorf("%s %d: %w", w.name, w.id, ErrExecutorStopped))
		return t
	}

	w.checkNoSpace(depth)
	return t
}

// QueueDepth returns the current run-queue length.
func (w *Worker) QueueDepth() int {
	return w.runq.Len()
}

// SetThreshold sets the queue length at which the worker counts as full. It
// fails once the worker has started.
func (w *Worker) SetThreshold(threshold int) error {
	w.startMutex.Lock()
	defer w.startMutex.Unlock()

	if threshold < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, threshold)
	}

	if w.started.Load() {
		return fmt.Errorf("%s %d: %w", w.name, w.id, ErrAlreadyStarted)
	}

	w.threshold.Store(int64(threshold))
	return nil
}

// Threshold returns the configured threshold.
func (w *Worker) Threshold() int {
	return int(w.threshold.Load())
}

// SetHasSpaceCallback installs the callback fired when the queue length drops
// to threshold-1. A nil cb removes it. Safe to call at any time.
func (w *Worker) SetHasSpaceCallback(cb worker.Callback) {
	w.hasSpace.Store(callbackRef(cb))
}

// SetNoSpaceCallback installs the callback fired when the queue length reaches
// the threshold. A nil cb removes it. Safe to call at any time.
func (w *Worker) SetNoSpaceCallback(cb worker.Callback) {
	w.noSpace.Store(callbackRef(cb))
}

// Start marks the worker running and launches its goroutine.
func (w *Worker) Start() error {
	w.startMutex.Lock()
	defer w.startMutex.Unlock()

	if w.started.Load() {
		return fmt.Errorf("%s %d: %w", w.name, w.id, ErrAlreadyStarted)
	}

	w.started.Store(true)
	w.running.Store(true)

	go w.run()

	return nil
}

// Stop clears the running flag and queues a no-op so that a goroutine waiting
// on an empty queue wakes up and sees it. Tasks still queued behind the no-op
// are failed with ErrExecutorStopped.
func (w *Worker) Stop() {
	w.running.Store(false)
	w.Submit(newSentinel(nil))
}

// StopAndJoin queues a task that calls Stop, so everything queued before it
// runs first, then waits for the goroutine to exit. If ctx ends first the
// returned error wraps ErrJoinInterrupted and ctx.Err(); the worker still stops
// on its own once it reaches the queued Stop.
func (w *Worker) StopAndJoin(ctx context.Context) error {
	if !w.started.Load() {
		return fmt.Errorf("%s %d: %w", w.name, w.id, ErrNotStarted)
	}

	w.Submit(newSentinel(w.Stop))

	select {
	case <-w.exited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s %d: %w: %w", w.name, w.id, ErrJoinInterrupted, ctx.Err())
	}
}

// Done returns a channel that is closed once the worker's goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.exited
}

// ID returns the worker's index.
func (w *Worker) ID() int {
	return w.id
}

// Stats returns a snapshot of the worker's counters.
func (w *Worker) Stats() Stats {
	return Stats{
		ID:            w.id,
		QueueDepth:    w.QueueDepth(),
		Threshold:     w.Threshold(),
		Executed:      w.executed.Load(),
		Failed:        w.failed.Load(),
		NoSpaceFired:  w.noSpaceFired.Load(),
		HasSpaceFired: w.hasSpaceFired.Load(),
		Running:       w.running.Load(),
	}
}

//endregion

//region Helpers

// run is the worker's goroutine.
func (w *Worker) run() {
	defer close(w.exited)

	if w.hooks.OnStart != nil {
		w.hooks.OnStart(w.id)
	}
	w.logger.Debug("executor started", "name", w.name, "id", w.id, "threshold", w.Threshold())

	for w.running.Load() {

		task, depth, ok := w.runq.Poll(w.pollTimeout)

		// Timed out with nothing to do, go around again.
		if !ok {
			continue
		}

		w.checkHasSpace(depth)
		w.handle(task)
	}

	// Anything still queued will never run.
	dropped := 0
	for _, task := range w.runq.Close() {
		if _, isSentinel := task.(*sentinel); isSentinel {
			continue
		}
		task.Fail(fmt.Errorf("%s %d: %w", w.name, w.id, ErrExecutorStopped))
		dropped++
	}

	if dropped > 0 {
		w.logger.Warn("executor stopped with queued tasks", "name", w.name, "id", w.id, "failed", dropped)
	}

	if w.hooks.OnStop != nil {
		w.hooks.OnStop(w.id)
	}
	w.logger.Debug("executor stopped", "name", w.name, "id", w.id)
}

// handle passes a dequeued task to the handler, keeping the loop alive if the
// handler panics.
func (w *Worker) handle(task worker.Task) {

	// Sentinels are internal and never counted.
	if s, isSentinel := task.(*sentinel); isSentinel {
		s.Run()
		return
	}

	start := time.Now()
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s %d: handler panicked: %v", w.name, w.id, r)
			task.Fail(err)
			w.logger.Error("task handler panicked", "name", w.name, "id", w.id, "panic", r)
		}

		w.executed.Add(1)
		if err != nil {
			w.failed.Add(1)
		}

		if w.hooks.OnTaskDone != nil {
			w.hooks.OnTaskDone(w.id, time.Since(start), err)
		}
	}()

	w.handler(task)
	err = taskErr(task)
}

// checkNoSpace fires onNoSpace if a push brought the queue to the threshold.
func (w *Worker) checkNoSpace(depth int) {
	cb := w.noSpace.Load()
	if cb == nil || int64(depth) != w.threshold.Load() {
		return
	}
	w.noSpaceFired.Add(1)
	(*cb)()
}

// checkHasSpace fires onHasSpace if a pop brought the queue to threshold-1.
func (w *Worker) checkHasSpace(depth int) {
	cb := w.hasSpace.Load()
	if cb == nil || int64(depth) != w.threshold.Load()-1 {
		return
	}
	w.hasSpaceFired.Add(1)
	(*cb)()
}

// runTask is the default handler.
func runTask(task worker.Task) {
	task.Run()
}

// taskErr returns the outcome of a task that reports one.
func taskErr(task worker.Task) error {
	if r, ok := task.(interface{ Err() error }); ok {
		return r.Err()
	}
	return nil
}

// callbackRef turns a callback into the value stored in an atomic pointer.
func callbackRef(cb worker.Callback) *worker.Callback {
	if cb == nil {
		return nil
	}
	return &cb
}

//endregion

//region Constructor

// New creates a stopped Worker with index id and a threshold of 0, which
// disables both capacity callbacks until SetThreshold is called.
func New(id int, opts Options) *Worker {

	if opts.Name == "" {
		opts.Name = "worker"
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Handler == nil {
		opts.Handler = runTask
	}

	return &Worker{
		id:            id,
		name:          opts.Name,
		runq:          runq.New[worker.Task](),
		threshold:     &atomic.Int64{},
		hasSpace:      &atomic.Pointer[worker.Callback]{},
		noSpace:       &atomic.Pointer[worker.Callback]{},
		started:       &atomic.Bool{},
		running:       &atomic.Bool{},
		startMutex:    &sync.Mutex{},
		exited:        make(chan struct{}),
		handler:       opts.Handler,
		pollTimeout:   opts.PollTimeout,
		logger:        opts.Logger,
		hooks:         opts.Hooks,
		executed:      &atomic.Uint64{},
		failed:        &atomic.Uint64{},
		noSpaceFired:  &atomic.Uint64{},
		hasSpaceFired: &atomic.Uint64{},
	}
}

//endregion
