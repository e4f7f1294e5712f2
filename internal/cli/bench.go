package cli

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jobmesh/pkg/model"
)

func (c *client) newBenchCmd() *cobra.Command {
	var (
		count       int
		concurrency int
		qps         float64
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Submit many jobs concurrently and report throughput",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 || concurrency < 1 {
				return fmt.Errorf("%w: -n and -c must be positive", model.ErrMalformedInput)
			}
			coord, err := c.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			limit := rate.Inf
			if qps > 0 {
				limit = rate.Limit(qps)
			}
			limiter := rate.NewLimiter(limit, concurrency)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitting %s jobs, %d at a time...\n", humanize.Comma(int64(count)), concurrency)

			var (
				wg     sync.WaitGroup
				outMu  sync.Mutex
				failed atomic.Int64
				sem    = make(chan struct{}, concurrency)
			)
			start := time.Now()
			submitted := 0
			for i := range count {
				if err := limiter.Wait(cmd.Context()); err != nil {
					break
				}
				submitted++
				sem <- struct{}{}
				wg.Add(1)
				go func(id int) {
					defer func() {
						<-sem
						wg.Done()
					}()

					ctx := cmd.Context()
					if timeout > 0 {
						var cancel context.CancelFunc
						ctx, cancel = context.WithTimeout(ctx, timeout)
						defer cancel()
					}
					job := benchJob(id)
					done, err := coord.SubmitAndRun(ctx, job, false)
					if err != nil {
						failed.Add(1)
						c.logger.Warn("bench job failed", zap.String("job", job.Name), zap.Error(err))
						return
					}
					if id%50 == 0 {
						outMu.Lock()
						defer outMu.Unlock()
						fmt.Fprintf(out, "-> %s = %s on %s\n", job, done.Result, done.Status.Worker)
					}
				}(i)
			}
			wg.Wait()
			elapsed := time.Since(start)

			fmt.Fprintf(out, "\nBenchmark finished\n")
			fmt.Fprintf(out, "   Total jobs: %s\n", humanize.Comma(int64(submitted)))
			fmt.Fprintf(out, "   Failed:     %s\n", humanize.Comma(failed.Load()))
			fmt.Fprintf(out, "   Total time: %v\n", elapsed.Round(time.Millisecond))
			fmt.Fprintf(out, "   Jobs/sec:   %.2f\n", float64(submitted)/elapsed.Seconds())
			if n := failed.Load(); n > 0 {
				return fmt.Errorf("%d of %d jobs failed", n, submitted)
			}
			return cmd.Context().Err()
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 100, "Number of jobs to submit")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 50, "Jobs in flight at once")
	cmd.Flags().Float64Var(&qps, "qps", 0, "Submission rate limit (0 for none)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Give up on a job still queued after this long (0 waits forever)")
	return cmd
}

// benchJob alternates GCD and primality jobs over random operands.
func benchJob(id int) *model.Job {
	name := "bench-" + strconv.Itoa(id)
	if id%2 == 0 {
		x := strconv.FormatInt(rand.Int64N(1<<40)+1, 10)
		y := strconv.FormatInt(rand.Int64N(1<<40)+1, 10)
		return model.NewGCDJob(name, x, y)
	}
	return model.NewPrimalityJob(name, strconv.FormatInt(rand.Int64N(1<<40)+2, 10))
}
