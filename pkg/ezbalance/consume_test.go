package ezbalance

import (
	"context"
	"errors"
	"github.com/stretchr/testify/require"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestConsume_ProcessesEveryMessage tests that every message sent before the
// channel is closed is processed before Consume returns.
func TestConsume_ProcessesEveryMessage(t *testing.T) {
	p := newPool(t, WithWorkers(4), WithThreshold(2))

	msgs := make(chan int)
	go func() {
		defer close(msgs)
		for i := 0; i < 100; i++ {
			msgs <- i
		}
	}()

	var sum atomic.Int64
	err := Consume(context.Background(), p, msgs, func(msg int) error {
		sum.Add(int64(msg))
		return nil
	}, nil)

	require.NoError(t, err)
	require.Equal(t, int64(4950), sum.Load())
}

// TestConsume_ReportsErrors tests that task failures reach the error handler.
func TestConsume_ReportsErrors(t *testing.T) {
	p := newPool(t, WithWorkers(2))

	msgs := make(chan string, 3)
	msgs <- "ok"
	msgs <- "bad"
	msgs <- "panic"
	close(msgs)

	var mu sync.Mutex
	var errs []error

	err := Consume(context.Background(), p, msgs, func(msg string) error {
		switch msg {
		case "bad":
			return errors.New("bad message")
		case "panic":
			panic(msg)
		}
		return nil
	}, func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	require.NoError(t, err)
	require.Len(t, errs, 2)

	panicked := 0
	for _, err := range errs {
		if errors.Is(err, ErrTaskPanicked) {
			panicked++
		}
	}
	require.Equal(t, 1, panicked)
}

// TestConsume_StopsOnContext tests that Consume returns once its context ends
// even though the channel stays open.
func TestConsume_StopsOnContext(t *testing.T) {
	p := newPool(t, WithWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	msgs := make(chan int)
	err := Consume(ctx, p, msgs, func(int) error { return nil }, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestConsume_ClosedPool tests that messages consumed after shutdown fail with
// ErrPoolClosed instead of hanging.
func TestConsume_ClosedPool(t *testing.T) {
	p := newPool(t, WithWorkers(1))
	shutdown(t, p)

	msgs := make(chan int, 2)
	msgs <- 1
	msgs <- 2
	close(msgs)

	var closed atomic.Int64
	err := Consume(context.Background(), p, msgs, func(int) error { return nil }, func(err error) {
		if errors.Is(err, ErrPoolClosed) {
			closed.Add(1)
		}
	})

	require.NoError(t, err)
	require.Equal(t, int64(2), closed.Load())
}
