package forkjoin

import "github.com/rs/zerolog"

// Option configures a Pool.
type Option func(*Config)

// WithNumWorkers sets the number of workers.
func WithNumWorkers(n int) Option {
	return func(c *Config) { c.NumWorkers = n }
}

// WithQueueSizePerWorker sets the capacity of each worker's deque.
func WithQueueSizePerWorker(size int) Option {
	return func(c *Config) { c.QueueSizePerWorker = size }
}

// WithSpinCount sets how many steal attempts an idle worker makes before parking.
func WithSpinCount(n int) Option {
	return func(c *Config) { c.SpinCount = n }
}

// WithPanicHandler sets the function called when a task panics.
func WithPanicHandler(handler func(err error)) Option {
	return func(c *Config) { c.PanicHandler = handler }
}

// WithWorkerHooks sets functions called as each worker starts and stops.
func WithWorkerHooks(onStart, onStop func(workerID int)) Option {
	return func(c *Config) {
		c.OnWorkerStart = onStart
		c.OnWorkerStop = onStop
	}
}

// WithPinWorkerThreads locks each worker to its own OS thread.
func WithPinWorkerThreads(pin bool) Option {
	return func(c *Config) { c.PinWorkerThreads = pin }
}

// WithTaskLabels runs every task under pprof labels carrying a task id.
func WithTaskLabels(enabled bool) Option {
	return func(c *Config) { c.TaskLabels = enabled }
}

// WithName names the pool in logs and profiles.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithLogger sets the logger for pool diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) { c.Logger = &logger }
}

// WithEnvironment replaces the default goroutine environment.
func WithEnvironment(env Environment) Option {
	return func(c *Config) { c.Environment = env }
}
