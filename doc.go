// Package forkjoin provides a work-stealing task pool and a cost-model-driven
// parallel-for for Go.
//
// A Pool runs a fixed set of workers. Each worker owns a bounded deque: tasks
// a worker schedules go to the front of its own deque, tasks from any other
// goroutine go to the back of a random one, and idle workers steal from the
// back of other workers' deques. Workers with nothing to do sleep on an
// EventCount, which guarantees a wakeup issued while a worker is deciding to
// sleep is never lost.
//
// # Key Features
//
//   - Per-worker bounded deques with lock-free owner operations
//   - Randomized stealing that visits every deque once per pass
//   - A single spinning worker at a time, everyone else parks
//   - Cost-model-driven ParallelFor with binary fork/join
//   - Panic recovery with customizable handlers
//   - Worker lifecycle hooks and pprof task labels
//   - Structured logging through zerolog
//
// # Quick Start
//
// Basic usage with default configuration:
//
//	pool, err := forkjoin.NewPool()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	var wg sync.WaitGroup
//	for i := 0; i < 100; i++ {
//	    wg.Add(1)
//	    pool.Schedule(func() {
//	        defer wg.Done()
//	        fmt.Printf("Task %d executed\n", i)
//	    })
//	}
//	wg.Wait()
//
// # Configuration
//
// Customize the pool using functional options:
//
//	pool, err := forkjoin.NewPool(
//	    forkjoin.WithNumWorkers(8),
//	    forkjoin.WithQueueSizePerWorker(512),
//	    forkjoin.WithSpinCount(100),
//	    forkjoin.WithName("resize"),
//	    forkjoin.WithLogger(logger),
//	)
//
// # Full Deques
//
// Schedule never blocks and never reports a full deque. When the chosen deque
// is full, the task runs on the calling goroutine before Schedule returns.
// A task that schedules more work into a saturated pool may therefore run
// that work recursively on its own stack; size the deques for the expected
// fan-out.
//
// # Parallel Loops
//
// Device.ParallelFor splits a range into blocks sized by a CostModel and forks
// them across the pool:
//
//	dev := forkjoin.NewDevice(pool)
//	dev.ParallelFor(len(xs), forkjoin.OpCost{BytesLoaded: 8, BytesStored: 8, ComputeCycles: 4},
//	    func(first, last int) {
//	        for i := first; i < last; i++ {
//	            xs[i] = math.Sqrt(xs[i])
//	        }
//	    })
//
// Pool.ParallelFor is a shorthand taking a cycles-per-element estimate.
// ParallelFor may be called from inside a task; the calling worker keeps
// running pool tasks until its loop is done.
//
// # Error Handling
//
// Tasks can panic without crashing the pool. The panic is recovered, counted,
// and passed to the panic handler, or logged at error level if none is set:
//
//	pool, _ := forkjoin.NewPool(
//	    forkjoin.WithPanicHandler(func(err error) {
//	        log.Printf("Task panicked: %v", err)
//	    }),
//	)
//
// A panic inside a ParallelFor body is raised again on the goroutine that
// called ParallelFor.
//
// # Shutdown
//
// Close lets every scheduled task, and every task those schedule, finish
// before the workers exit:
//
//	pool.Close()
//	err := pool.Schedule(task) // ErrPoolShutdown
//
// # Monitoring
//
// Stats returns a lock-free snapshot of counters and per-worker state. The
// metrics subpackage exports the same figures to Prometheus.
//
//	stats := pool.Stats()
//	fmt.Printf("Completed: %d, Stolen: %d\n", stats.Completed, stats.Stolen)
package forkjoin
