package forkjoin

import (
	"os"
	"runtime"

	"github.com/rs/zerolog"
)

// Config contains all configuration options for the pool
type Config struct {
	// NumWorkers is the number of workers
	// If 0, defaults to runtime.GOMAXPROCS(0)
	NumWorkers int

	// QueueSizePerWorker is the capacity of each worker's deque
	// Must be a power of 2 greater than 2 and at most 65536. Defaults to 1024
	QueueSizePerWorker int

	// SpinCount is the number of steal attempts an idle worker makes before
	// parking. Only one worker spins at a time. Defaults to 1000
	SpinCount int

	// PanicHandler is called with the recovered panic (as an error carrying
	// the value and stack) when a task panics
	// If nil, panics are logged at error level
	PanicHandler func(err error)

	// OnWorkerStart is called on the worker when it starts
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called on the worker when it stops
	OnWorkerStop func(workerID int)

	// PinWorkerThreads locks each worker to its own OS thread
	// Ignored when Environment is set
	PinWorkerThreads bool

	// TaskLabels runs tasks under pprof labels with a per-task id
	// Ignored when Environment is set
	TaskLabels bool

	// Name identifies the pool in logs and pprof labels
	Name string

	// Logger receives pool diagnostics. If nil, warnings and errors go to stderr
	Logger *zerolog.Logger

	// Environment starts workers and wraps tasks
	// If nil, a StdEnvironment built from the fields above is used
	Environment Environment
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		NumWorkers:         0, // will be set to runtime.GOMAXPROCS(0)
		QueueSizePerWorker: 1024,
		SpinCount:          1000,
		Name:               "forkjoin",
	}
}

// validate checks the configuration and returns an error if invalid
func (c *Config) validate() error {
	if c.NumWorkers < 0 {
		return errInvalidConfig("NumWorkers must be >= 0")
	}

	if c.NumWorkers > maxEventCountWaiters {
		return errInvalidConfig("NumWorkers is too large")
	}

	if !validDequeCapacity(c.QueueSizePerWorker) {
		return errInvalidConfig("QueueSizePerWorker must be a power of 2 in (2, 65536]")
	}

	if c.SpinCount < 0 {
		return errInvalidConfig("SpinCount must be >= 0")
	}

	return nil
}

func (c *Config) numWorkers() int {
	if c.NumWorkers == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.NumWorkers
}

func (c *Config) logger() zerolog.Logger {
	base := c.Logger
	if base == nil {
		l := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()
		base = &l
	}
	return base.With().Str("pool", c.Name).Logger()
}

func (c *Config) environment() Environment {
	if c.Environment != nil {
		return c.Environment
	}
	return &StdEnvironment{
		Name:         c.Name,
		LockOSThread: c.PinWorkerThreads,
		Labels:       c.TaskLabels,
	}
}
