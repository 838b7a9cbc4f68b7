package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tahsin716/forkjoin"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule many small independent tasks from several producers",
	Long: `Schedule submits --tasks tasks from --producers goroutines outside the pool.
Each task burns --work iterations and then schedules --fanout children from
inside the pool, which land on the running worker's own deque and are the
ones other workers steal.

--rate caps how many top-level tasks per second all producers submit
together, to look at the pool under a steady trickle instead of a burst.`,
	RunE: runSchedule,
}

func init() {
	f := scheduleCmd.Flags()
	f.Int("tasks", 100000, "number of top-level tasks")
	f.Int("producers", 4, "goroutines submitting tasks")
	f.Int("work", 1000, "iterations of busy work per task")
	f.Int("fanout", 0, "child tasks scheduled by each top-level task")
	f.Bool("jitter", false, "randomize the work per task")
	f.Float64("rate", 0, "top-level tasks per second across all producers (0 = unlimited)")

	for _, name := range []string{"tasks", "producers", "work", "fanout", "jitter", "rate"} {
		_ = viper.BindPFlag("schedule."+name, f.Lookup(name))
	}
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	tasks := viper.GetInt("schedule.tasks")
	producers := viper.GetInt("schedule.producers")
	work := viper.GetInt("schedule.work")
	fanout := viper.GetInt("schedule.fanout")
	jitter := viper.GetBool("schedule.jitter")
	limit := viper.GetFloat64("schedule.rate")

	if tasks < 0 || producers < 1 || fanout < 0 || limit < 0 {
		return fmt.Errorf("tasks, fanout and rate must be >= 0 and producers >= 1")
	}
	total := uint64(tasks) * uint64(1+fanout)
	if total>>31 != 0 {
		return fmt.Errorf("too many tasks: %d", total)
	}

	pool, err := newPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	stopMetrics, err := serveMetrics(viper.GetString("metrics-addr"), pool)
	if err != nil {
		return err
	}
	defer stopMetrics()

	var sink atomic.Uint64
	done := forkjoin.NewBarrier(uint32(total))

	child := func() {
		sink.Add(burn(taskWork(work, jitter)))
		done.Notify()
	}
	parent := func() {
		for i := 0; i < fanout; i++ {
			if err := pool.Schedule(child); err != nil {
				child()
			}
		}
		sink.Add(burn(taskWork(work, jitter)))
		done.Notify()
	}

	logger.Info().
		Int("tasks", tasks).
		Int("producers", producers).
		Int("fanout", fanout).
		Int("workers", pool.NumWorkers()).
		Msg("starting schedule benchmark")

	limiter := newLimiter(limit, producers)

	start := time.Now()
	g, ctx := errgroup.WithContext(context.Background())
	for p := 0; p < producers; p++ {
		n := tasks / producers
		if p < tasks%producers {
			n++
		}
		g.Go(func() error {
			for i := 0; i < n; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
				if err := pool.Schedule(parent); err != nil {
					return fmt.Errorf("producer %d: %w", p, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	done.Wait()
	elapsed := time.Since(start)

	logger.Debug().Uint64("sink", sink.Load()).Msg("schedule benchmark finished")
	return newReport("schedule", total, elapsed, pool.Stats()).write(os.Stdout, viper.GetBool("json"))
}

// newLimiter returns a limiter shared by all producers. A zero rate means no
// limit.
func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond == 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
