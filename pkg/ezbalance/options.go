package ezbalance

import (
	"context"
	"github.com/prometheus/client_golang/prometheus"
	"log/slog"
	"runtime"
	"time"
)

// DefaultThreshold is the per-worker queue length at which a worker counts as
// full when WithThreshold is not given.
const DefaultThreshold = 1000

// WorkerHooks observe worker lifecycle events. Every field is optional. Hooks
// run on the worker's goroutine and must not block.
type WorkerHooks struct {
	OnStart    func(id int)
	OnStop     func(id int)
	OnTaskDone func(id int, latency time.Duration, err error)
}

// poolOptions holds the configuration assembled from Options.
type poolOptions struct {
	workers     int
	threshold   int
	pollTimeout time.Duration
	logger      *slog.Logger
	ctx         context.Context
	hooks       WorkerHooks

	metricsNamespace string
	registerer       prometheus.Registerer
	metricsEnabled   bool
}

// Option configures a Pool.
type Option func(*poolOptions)

// WithWorkers sets the number of workers. Defaults to runtime.NumCPU().
func WithWorkers(workers int) Option {
	return func(options *poolOptions) {
		options.workers = workers
	}
}

// WithThreshold sets the queue length at which a worker counts as full. Zero
// disables backpressure entirely. Defaults to DefaultThreshold.
func WithThreshold(threshold int) Option {
	return func(options *poolOptions) {
		options.threshold = threshold
	}
}

// WithPollTimeout bounds a single wait on an idle queue.
func WithPollTimeout(timeout time.Duration) Option {
	return func(options *poolOptions) {
		options.pollTimeout = timeout
	}
}

// WithLogger sets the logger used by the pool and its workers.
func WithLogger(logger *slog.Logger) Option {
	return func(options *poolOptions) {
		options.logger = logger
	}
}

// WithMetrics registers the pool's Prometheus collectors on reg under namespace.
func WithMetrics(namespace string, reg prometheus.Registerer) Option {
	return func(options *poolOptions) {
		options.metricsEnabled = true
		options.metricsNamespace = namespace
		options.registerer = reg
	}
}

// WithContext bounds the permit waits a full worker performs on behalf of the
// dispatcher. Cancelling it unblocks those waits but does not shut the pool down.
func WithContext(ctx context.Context) Option {
	return func(options *poolOptions) {
		options.ctx = ctx
	}
}

// WithWorkerHooks installs lifecycle hooks on every worker.
func WithWorkerHooks(hooks WorkerHooks) Option {
	return func(options *poolOptions) {
		options.hooks = hooks
	}
}

// defaultOptions returns the configuration used when no Option is given.
func defaultOptions() *poolOptions {
	return &poolOptions{
		workers:   runtime.NumCPU(),
		threshold: DefaultThreshold,
		logger:    slog.New(slog.DiscardHandler),
		ctx:       context.Background(),
	}
}
