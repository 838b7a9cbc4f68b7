package main

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tahsin716/forkjoin"
)

var parallelCmd = &cobra.Command{
	Use:   "parallel-for",
	Short: "Run a cost-model-partitioned loop over a large slice",
	Long: `parallel-for fills a slice of --n elements with ParallelFor, --repeat times,
using the per-element cost given by --bytes-loaded, --bytes-stored and
--compute-cycles. It checks that every element was written exactly once.`,
	RunE: runParallel,
}

func init() {
	f := parallelCmd.Flags()
	f.Int("n", 1_000_000, "number of elements")
	f.Int("repeat", 10, "number of loops to run")
	f.Float64("bytes-loaded", 8, "bytes loaded per element")
	f.Float64("bytes-stored", 8, "bytes stored per element")
	f.Float64("compute-cycles", 50, "compute cycles per element")

	for _, name := range []string{"n", "repeat", "bytes-loaded", "bytes-stored", "compute-cycles"} {
		_ = viper.BindPFlag("parallel."+name, f.Lookup(name))
	}
	rootCmd.AddCommand(parallelCmd)
}

func runParallel(cmd *cobra.Command, args []string) error {
	n := viper.GetInt("parallel.n")
	repeat := viper.GetInt("parallel.repeat")
	cost := forkjoin.OpCost{
		BytesLoaded:   viper.GetFloat64("parallel.bytes-loaded"),
		BytesStored:   viper.GetFloat64("parallel.bytes-stored"),
		ComputeCycles: viper.GetFloat64("parallel.compute-cycles"),
	}
	if n < 0 || repeat < 1 {
		return fmt.Errorf("n must be >= 0 and repeat >= 1")
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

	dev := forkjoin.NewDevice(pool)
	logger.Info().
		Int("n", n).
		Int("repeat", repeat).
		Stringer("cost", cost).
		Int("threads", dev.NumThreads()).
		Msg("starting parallel-for benchmark")

	data := make([]uint32, n)
	var blocks atomic.Uint64

	start := time.Now()
	for r := 0; r < repeat; r++ {
		dev.ParallelFor(n, cost, func(first, last int) {
			blocks.Add(1)
			for i := first; i < last; i++ {
				data[i]++
			}
		})
	}
	elapsed := time.Since(start)

	for i, v := range data {
		if v != uint32(repeat) {
			return fmt.Errorf("element %d written %d times, want %d", i, v, repeat)
		}
	}

	return newReport("parallel-for", blocks.Load(), elapsed, pool.Stats()).write(os.Stdout, viper.GetBool("json"))
}
