package forkjoin

import "fmt"

// Common errors returned by the pool.
var (
	// ErrPoolShutdown is returned when a goroutine outside the pool schedules
	// a task after Close. Tasks scheduled by the pool's own workers while it
	// drains are still accepted.
	//
	// Example:
	//  pool.Close()
	//  err := pool.Schedule(task)
	//  if errors.Is(err, forkjoin.ErrPoolShutdown) {
	//      log.Println("Cannot schedule: pool is shut down")
	//  }
	ErrPoolShutdown = &PoolError{msg: "pool is shutdown"}

	// ErrNilTask is returned when scheduling a nil function.
	ErrNilTask = &PoolError{msg: "task is nil"}

	// ErrCloseFromWorker is returned when Close is called from a task running
	// on the pool; the worker would otherwise wait for itself to exit.
	ErrCloseFromWorker = &PoolError{msg: "close called from a pool worker"}
)

// PoolError represents an error that occurred within the pool.
// It wraps underlying errors and provides context about pool operations.
type PoolError struct {
	msg string // Human-readable error message
	err error  // Underlying error (if any)
}

// Error returns a formatted error message.
// If an underlying error exists, it is included in the output.
func (e *PoolError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("forkjoin: %s: %v", e.msg, e.err)
	}
	return fmt.Sprintf("forkjoin: %s", e.msg)
}

// Unwrap returns the underlying error, allowing use with errors.Is and errors.As.
func (e *PoolError) Unwrap() error {
	return e.err
}

// errInvalidConfig creates an error for invalid pool configuration.
// This is returned during pool creation when validation fails.
func errInvalidConfig(msg string) error {
	return &PoolError{msg: "invalid config: " + msg}
}

// errWorkerPanic wraps a recovered task panic with the worker that ran it.
// workerID is -1 when the task ran inline on the scheduling goroutine.
func errWorkerPanic(workerID int, err error) error {
	return &PoolError{
		msg: fmt.Sprintf("task panicked on worker %d", workerID),
		err: err,
	}
}
