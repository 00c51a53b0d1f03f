package ezbalance

import (
	"context"
	"fmt"
	"github.com/pgvanniekerk/ezbalance/internal/config"
	"github.com/pgvanniekerk/ezbalance/internal/dispatch"
	"github.com/pgvanniekerk/ezbalance/internal/executor"
	"github.com/pgvanniekerk/ezbalance/internal/metrics"
	"github.com/pgvanniekerk/ezbalance/pkg/future"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Pool routes submitted tasks across a fixed set of workers.
type Pool struct {

	// workers run the tasks, each on its own goroutine.
	workers []*executor.Worker

	// dispatcher routes tasks from its mailbox to workers.
	dispatcher *dispatch.Dispatcher

	// threshold is the per-worker full mark.
	threshold int

	logger  *slog.Logger
	metrics *metrics.Metrics

	// closed rejects new submissions once Shutdown has begun.
	closed *atomic.Bool

	// shutdownOnce starts the drain exactly once.
	shutdownOnce *sync.Once

	// drained is closed when the drain has finished and drainErr is set.
	drained  chan struct{}
	drainErr error
}

//region Implementation

// Submit queues fn on p and returns its Future. It never blocks.
func Submit[T any](p *Pool, fn func() (T, error)) *future.Future[T] {
	return SubmitContext(context.Background(), p, fn)
}

// SubmitContext is Submit with a context that bounds how long the task may wait
// for a worker with space. If ctx ends first the Future fails with an error
// wrapping ErrDispatchAborted and ctx.Err(). Once the task reaches a worker ctx
// is no longer consulted.
func SubmitContext[T any](ctx context.Context, p *Pool, fn func() (T, error)) *future.Future[T] {
	t := newTask(ctx, fn)

	if p.closed.Load() {
		t.result.Fail(ErrPoolClosed)
		return t.result
	}

	if p.metrics != nil {
		p.metrics.Submitted()
	}

	p.dispatcher.Submit(t)
	return t.result
}

// Go queues a function that only reports an error.
func Go(p *Pool, fn func() error) *future.Future[struct{}] {
	return Submit(p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
}

// Shutdown stops accepting tasks, lets every accepted task finish and stops all
// goroutines. It waits for the drain or for ctx; if ctx ends first the error
// wraps ErrShutdownInterrupted and the drain continues in the background.
// Every call observes the same drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.closed.Store(true)
		p.logger.Info("pool shutting down", "pending", p.dispatcher.QueueDepth())
		go p.drain()
	})

	select {
	case <-p.drained:
		return p.drainErr
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrShutdownInterrupted, ctx.Err())
	}
}

// Done returns a channel that is closed once the pool has fully drained.
func (p *Pool) Done() <-chan struct{} {
	return p.drained
}

// Stats returns a snapshot of the pool and refreshes the sampled metrics.
func (p *Pool) Stats() Stats {
	stats := Stats{
		Workers:          len(p.workers),
		Threshold:        p.threshold,
		Pending:          p.dispatcher.QueueDepth(),
		PermitsAvailable: p.dispatcher.PermitsAvailable(),
		Routed:           p.dispatcher.Routed(),
		Dropped:          p.dispatcher.Dropped(),
		Closed:           p.closed.Load(),
		PerWorker:        make([]WorkerStats, len(p.workers)),
	}

	depths := make([]int, len(p.workers))
	for i, w := range p.workers {
		ws := w.Stats()
		stats.PerWorker[i] = WorkerStats{
			ID:            ws.ID,
			QueueDepth:    ws.QueueDepth,
			Executed:      ws.Executed,
			Failed:        ws.Failed,
			NoSpaceFired:  ws.NoSpaceFired,
			HasSpaceFired: ws.HasSpaceFired,
			Running:       ws.Running,
		}
		stats.Executed += ws.Executed
		stats.Failed += ws.Failed
		depths[i] = ws.QueueDepth
	}

	if p.metrics != nil {
		p.metrics.Sample(depths, stats.PermitsAvailable)
	}

	return stats
}

//endregion

//region Helpers

// drain stops the dispatcher once its mailbox is empty, then the workers.
// Workers are stopped only after the dispatcher so no task is routed to a
// stopped worker.
func (p *Pool) drain() {
	defer close(p.drained)

	start := time.Now()
	ctx := context.Background()

	if err := p.dispatcher.StopAndJoin(ctx); err != nil {
		p.drainErr = err
		p.logger.Error("dispatcher failed to stop", "error", err)
		return
	}

	var g errgroup.Group
	for _, w := range p.workers {
		g.Go(func() error {
			return w.StopAndJoin(ctx)
		})
	}

	p.drainErr = g.Wait()
	if p.drainErr != nil {
		p.logger.Error("worker failed to stop", "error", p.drainErr)
		return
	}

	p.logger.Info("pool stopped", "elapsed", time.Since(start))
}

// workerHooks combines metrics recording with user hooks.
func workerHooks(m *metrics.Metrics, user WorkerHooks) executor.Hooks {
	return executor.Hooks{
		OnStart: func(id int) {
			if m != nil {
				m.WorkerStarted()
			}
			if user.OnStart != nil {
				user.OnStart(id)
			}
		},
		OnStop: func(id int) {
			if m != nil {
				m.WorkerStopped()
			}
			if user.OnStop != nil {
				user.OnStop(id)
			}
		},
		OnTaskDone: func(id int, latency time.Duration, err error) {
			if m != nil {
				m.Done(latency, err)
			}
			if user.OnTaskDone != nil {
				user.OnTaskDone(id, latency, err)
			}
		},
	}
}

//endregion

//region Constructor

// New creates and starts a Pool. Workers are started before the dispatcher so
// every routed task already has a goroutine to run it.
func New(opts ...Option) (*Pool, error) {

	options := defaultOptions()
	for idx := range opts {
		opts[idx](options)
	}

	if options.workers <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkerCount, options.workers)
	}
	if options.threshold < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreshold, options.threshold)
	}
	if options.logger == nil {
		options.logger = slog.New(slog.DiscardHandler)
	}
	if options.ctx == nil {
		options.ctx = context.Background()
	}

	var m *metrics.Metrics
	if options.metricsEnabled {
		var err error
		m, err = metrics.New(options.metricsNamespace, "pool", options.registerer)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	hooks := workerHooks(m, options.hooks)

	workers := make([]*executor.Worker, options.workers)
	for i := range workers {
		workers[i] = executor.New(i, executor.Options{
			PollTimeout: options.pollTimeout,
			Logger:      options.logger,
			Hooks:       hooks,
		})
		if err := workers[i].SetThreshold(options.threshold); err != nil {
			return nil, err
		}
	}

	dispatchOpts := dispatch.Options{
		PollTimeout: options.pollTimeout,
		Logger:      options.logger,
		Context:     options.ctx,
	}
	if m != nil {
		dispatchOpts.OnRoute = m.Routed
		dispatchOpts.OnDrop = func(error) { m.Dropped() }
	}

	d, err := dispatch.New(workers, dispatchOpts)
	if err != nil {
		return nil, err
	}

	for _, w := range workers {
		if err := w.Start(); err != nil {
			return nil, err
		}
	}
	if err := d.Start(); err != nil {
		return nil, err
	}

	options.logger.Info("pool started", "workers", options.workers, "threshold", options.threshold)

	return &Pool{
		workers:      workers,
		dispatcher:   d,
		threshold:    options.threshold,
		logger:       options.logger,
		metrics:      m,
		closed:       &atomic.Bool{},
		shutdownOnce: &sync.Once{},
		drained:      make(chan struct{}),
	}, nil
}

// FromConfig creates a Pool from loaded settings. opts are applied after the
// settings and take precedence.
func FromConfig(s config.Settings, opts ...Option) (*Pool, error) {
	base := []Option{
		WithThreshold(s.Threshold),
		WithPollTimeout(s.PollTimeout),
	}
	if s.Workers > 0 {
		base = append(base, WithWorkers(s.Workers))
	}

	return New(append(base, opts...)...)
}

//endregion
