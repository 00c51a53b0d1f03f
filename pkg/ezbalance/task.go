package ezbalance

import (
	"context"
	"errors"
	"fmt"
	"github.com/pgvanniekerk/ezbalance/internal/executor"
	"github.com/pgvanniekerk/ezbalance/pkg/future"
	"github.com/pgvanniekerk/ezbalance/worker"
)

// task binds a function to the Future its caller holds.
type task[T any] struct {
	ctx    context.Context
	fn     func() (T, error)
	result *future.Future[T]
}

var _ worker.Task = (*task[int])(nil)

// Run executes the function and resolves the Future with its outcome.
func (t *task[T]) Run() {
	t.result.Run(t.fn)
}

// Fail resolves the Future without running the function. A stopped executor
// means the pool was shut down underneath the task.
func (t *task[T]) Fail(err error) {
	if errors.Is(err, executor.ErrExecutorStopped) {
		err = fmt.Errorf("%w: %w", ErrPoolClosed, err)
	}
	t.result.Fail(err)
}

func (t *task[T]) Context() context.Context {
	return t.ctx
}

// Err reports the outcome to the executor's failure accounting.
func (t *task[T]) Err() error {
	return t.result.Err()
}

func newTask[T any](ctx context.Context, fn func() (T, error)) *task[T] {
	return &task[T]{
		ctx:    ctx,
		fn:     fn,
		result: future.New[T](),
	}
}
