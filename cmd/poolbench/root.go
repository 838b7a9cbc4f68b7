package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/tahsin716/forkjoin"
)

var rootCmd = &cobra.Command{
	Use:   "poolbench",
	Short: "Benchmark driver for the forkjoin work-stealing pool",
	Long: `poolbench runs synthetic workloads on a forkjoin pool and prints the
pool's statistics afterwards: how many tasks were stolen, run inline, or
panicked, and how often workers parked.

Every flag can also be set through a POOLBENCH_* environment variable or a
config file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

var logger zerolog.Logger

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file (default is ./poolbench.yaml)")
	pf.IntP("workers", "w", 0, "number of workers (default GOMAXPROCS)")
	pf.Int("queue-size", 1024, "deque capacity per worker (power of two)")
	pf.Int("spin-count", 1000, "steal attempts before a worker parks")
	pf.Bool("pin", false, "lock each worker to an OS thread")
	pf.Bool("labels", false, "run tasks under pprof labels")
	pf.String("name", "poolbench", "pool name used in logs and metrics")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Bool("json", false, "print the report as JSON")
	pf.String("metrics-addr", "", "serve /metrics and /stats on this address while running")

	for _, name := range []string{
		"config", "workers", "queue-size", "spin-count", "pin", "labels",
		"name", "log-level", "json", "metrics-addr",
	} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("poolbench")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("POOLBENCH")
	// e.g., POOLBENCH_QUEUE_SIZE for queue-size
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

func setupLogging() error {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	logger = zerolog.New(out).Level(level).With().
		Timestamp().
		Str("run", ulid.Make().String()).
		Logger()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug().Msgf(format, args...)
	})); err != nil {
		logger.Warn().Err(err).Msg("failed to set GOMAXPROCS from CPU quota")
	}
	return nil
}

// newPool builds a pool from the bound flags.
func newPool() (*forkjoin.Pool, error) {
	pool, err := forkjoin.NewPool(
		forkjoin.WithNumWorkers(viper.GetInt("workers")),
		forkjoin.WithQueueSizePerWorker(viper.GetInt("queue-size")),
		forkjoin.WithSpinCount(viper.GetInt("spin-count")),
		forkjoin.WithPinWorkerThreads(viper.GetBool("pin")),
		forkjoin.WithTaskLabels(viper.GetBool("labels")),
		forkjoin.WithName(viper.GetString("name")),
		forkjoin.WithLogger(logger),
		forkjoin.WithPanicHandler(func(err error) {
			logger.Error().Err(err).Msg("task panicked")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return pool, nil
}
