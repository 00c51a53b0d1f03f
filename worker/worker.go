package worker

import "context"

// Task is a unit of work that a QueuedExecutor accepts. A Task carries its own
// deferred-result handle: Run executes the body and resolves the handle, Fail
// resolves the handle with err without running the body.
type Task interface {

	// Run executes the task body and records its outcome. Implementations must not
	// panic; failures of the body are captured into the task's handle.
	Run()

	// Fail resolves the task's handle with err. It is used when the task can no
	// longer be executed, e.g. it was dropped during dispatch or queued on a stopped
	// executor.
	Fail(err error)

	// Context returns the context the task was submitted under. Executors use it to
	// bound waits that happen on the task's behalf.
	Context() context.Context
}

// Callback is an edge-triggered capacity notification.
type Callback func()

// QueuedExecutor is the capability shared by leaf workers and the dispatcher: a
// single FIFO run-queue drained by a single dedicated goroutine.
type QueuedExecutor interface {

	// Submit appends t to the tail of the run-queue and returns it. It never blocks
	// on the run-queue itself.
	Submit(t Task) Task

	// QueueDepth returns the current run-queue length. The value may be stale by the
	// time the caller acts on it.
	QueueDepth() int

	// Start launches the executor's goroutine.
	Start() error

	// Stop clears the running flag and wakes the goroutine with a sentinel task.
	Stop()

	// StopAndJoin lets every task queued so far run, stops the executor and waits for
	// its goroutine to exit or for ctx to be done.
	StopAndJoin(ctx context.Context) error
}
