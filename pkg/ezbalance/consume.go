package ezbalance

import (
	"context"
	"sync"
)

// Consume submits fn(msg) to p for every message received on msgs. It returns
// once msgs is closed and every submitted task has resolved, or with ctx.Err()
// as soon as ctx is done; tasks already submitted keep running in that case.
//
// errHandler, if non-nil, is called with the failure of each task, from
// whichever goroutine observed it. It must be safe for concurrent use.
//
// Example:
//
//	msgs := make(chan string)
//	go func() {
//		defer close(msgs)
//		msgs <- "hello"
//	}()
//
//	err := ezbalance.Consume(ctx, pool, msgs, func(msg string) error {
//		fmt.Println("Processing:", msg)
//		return nil
//	}, nil)
func Consume[MSG any](
	ctx context.Context,
	p *Pool,
	msgs <-chan MSG,
	fn func(MSG) error,
	errHandler func(error),
) error {

	// inFlight tracks submitted tasks until their Future resolves, whether they ran
	// or were failed without running.
	inFlight := &sync.WaitGroup{}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-msgs:
			if !ok {
				inFlight.Wait()
				return nil
			}

			f := SubmitContext(ctx, p, func() (struct{}, error) {
				return struct{}{}, fn(msg)
			})

			inFlight.Add(1)
			go func() {
				defer inFlight.Done()
				<-f.Done()
				if err := f.Err(); err != nil && errHandler != nil {
					errHandler(err)
				}
			}()
		}
	}
}
