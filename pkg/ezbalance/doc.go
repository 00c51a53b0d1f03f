// Package ezbalance provides a load-balancing task pool with bounded
// per-worker queues and admission backpressure.
//
// A Pool owns a fixed set of workers. Each worker drains its own FIFO queue on
// a single goroutine, so tasks routed to the same worker run in submission
// order. A dispatcher goroutine routes every submitted task to the worker with
// the shortest queue. Once every worker's queue has reached the configured
// threshold the dispatcher stops routing until one of them drains, which in
// turn lets the dispatcher's own mailbox grow. Submitting never blocks the
// caller.
//
// # Usage
//
//	pool, err := ezbalance.New(
//		ezbalance.WithWorkers(8),
//		ezbalance.WithThreshold(100),
//	)
//	if err != nil {
//		return err
//	}
//	defer pool.Shutdown(context.Background())
//
//	f := ezbalance.Submit(pool, func() (int, error) {
//		return 42, nil
//	})
//
//	v, err := f.Get(ctx)
//
// # Results
//
// Submit returns a *future.Future that is resolved exactly once: with the
// task's value, with the error it returned, with an error wrapping
// ErrTaskPanicked, or with a pool error when the task could not run at all
// (ErrPoolClosed, ErrDispatchAborted).
//
// # Shutdown
//
// Shutdown lets every task accepted so far finish. The dispatcher is drained
// first, then every worker. Calling Shutdown again waits for the same drain and
// returns the same result.
package ezbalance
