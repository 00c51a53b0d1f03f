package main

import (
	"context"
	"fmt"
	"github.com/pgvanniekerk/ezbalance/internal/config"
	"github.com/pgvanniekerk/ezbalance/pkg/ezbalance"
	"github.com/pgvanniekerk/ezbalance/pkg/future"
	"io"
	"text/tabwriter"
	"time"
)

// loadResult summarizes one load run.
type loadResult struct {
	Submitted int
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// runLoad submits n tasks that each simulate delay worth of work and waits for
// all of them. It returns early with ctx.Err() if ctx ends.
func runLoad(ctx context.Context, pool *ezbalance.Pool, n int, delay time.Duration) (loadResult, error) {
	start := time.Now()
	result := loadResult{}

	futures := make([]*future.Future[struct{}], 0, n)
	for i := 0; i < n; i++ {
		f := ezbalance.SubmitContext(ctx, pool, func() (struct{}, error) {
			return struct{}{}, work(ctx, delay)
		})
		futures = append(futures, f)
		result.Submitted++
	}

	for _, f := range futures {
		if _, err := f.Get(ctx); err != nil {
			if ctx.Err() != nil {
				result.Elapsed = time.Since(start)
				return result, ctx.Err()
			}
			result.Failed++
			continue
		}
		result.Succeeded++
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

// work sleeps for d unless ctx ends first.
func work(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// printSummary writes the run and per-worker counters to out.
func printSummary(out io.Writer, settings config.Settings, result loadResult, stats ezbalance.Stats) {
	fmt.Fprintln(out, "ezbalance run summary")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintf(out, "Workers: %d, Threshold: %d, Delay: %v\n", stats.Workers, stats.Threshold, settings.Delay)
	fmt.Fprintf(out, "Submitted: %d, Succeeded: %d, Failed: %d, Dropped: %d\n",
		result.Submitted, result.Succeeded, result.Failed, stats.Dropped)

	if result.Elapsed > 0 {
		rate := float64(result.Succeeded) / result.Elapsed.Seconds()
		fmt.Fprintf(out, "Elapsed: %v (%.0f tasks/s)\n", result.Elapsed.Round(time.Millisecond), rate)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKER\tEXECUTED\tFAILED\tNO_SPACE\tHAS_SPACE")
	for _, ws := range stats.PerWorker {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\n", ws.ID, ws.Executed, ws.Failed, ws.NoSpaceFired, ws.HasSpaceFired)
	}
	_ = tw.Flush()
}
