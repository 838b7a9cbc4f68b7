package forkjoin

// Stats contains statistics about pool operation.
// All counters are snapshots taken at the time Stats() is called and may be
// slightly inconsistent during concurrent operations due to lock-free reads.
//
// Example:
//
//	stats := pool.Stats()
//	fmt.Printf("Stolen: %d of %d\n", stats.Stolen, stats.Completed)
type Stats struct {
	// Scheduled is the total number of tasks accepted by Schedule.
	Scheduled uint64

	// Completed is the total number of tasks that have finished execution,
	// including tasks that panicked and tasks run inline.
	Completed uint64

	// Failed is the total number of tasks that panicked.
	Failed uint64

	// InlineExecuted is the number of tasks run on the scheduling goroutine
	// because the target deque was full. High values suggest the deques are
	// undersized.
	InlineExecuted uint64

	// Stolen is the number of tasks a worker took from another worker's deque.
	Stolen uint64

	// Parks is the number of times a worker went to sleep waiting for work.
	Parks uint64

	// InFlight is the estimated number of tasks queued or executing.
	// Calculated as: Scheduled - Completed
	InFlight uint64

	// Utilization is the percentage of total deque capacity currently in use.
	Utilization float64

	// WorkerStats contains one entry per worker.
	WorkerStats []WorkerStats

	// NumWorkers is fixed at pool creation.
	NumWorkers int

	// Blocked is the number of workers currently parked or about to park.
	Blocked int

	// TotalQueueDepth is the combined number of tasks in all deques.
	TotalQueueDepth int

	// TotalQueueCapacity is NumWorkers * QueueSizePerWorker.
	TotalQueueCapacity int
}

// WorkerStats contains statistics for a single worker.
type WorkerStats struct {
	// WorkerID is the worker's index (0-based).
	WorkerID int

	// TasksExecuted includes tasks that panicked.
	TasksExecuted uint64

	// TasksStolen counts tasks taken from other workers' deques.
	TasksStolen uint64

	// TasksFailed counts tasks that panicked on this worker.
	TasksFailed uint64

	// Parks counts how often this worker slept.
	Parks uint64

	// QueueDepth is the current size of this worker's deque.
	QueueDepth int

	// Capacity is the capacity of this worker's deque.
	Capacity int

	// State is one of "RUNNING", "SPINNING", "PARKED", "SHUTDOWN".
	State string
}
