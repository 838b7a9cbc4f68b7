package forkjoin

import (
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

// Pool is a fixed set of workers executing short closures.
//
// Every worker owns a bounded deque. Tasks scheduled from a worker go to the
// front of its own deque; tasks scheduled from anywhere else go to the back of
// a random deque. Idle workers steal from the back of other deques, and sleep
// on an EventCount when no deque has work.
type Pool struct {
	config Config
	env    Environment
	logger zerolog.Logger

	queues   []*Deque[Task]
	workers  []*worker
	threads  []Thread
	coprimes []uint32
	ec       *EventCount

	// blocked counts workers between deciding to park and waking up; a
	// worker that exits leaves its count behind
	blocked  atomic.Int32
	spinning atomic.Bool
	done     atomic.Bool

	// submitting counts external Schedule calls in progress, so workers do
	// not exit under a task that is about to be pushed
	submitting atomic.Int64

	// goroutine id -> worker index
	workerIDs sync.Map

	closeOnce sync.Once

	// Metrics
	metrics poolMetrics
}

// poolMetrics tracks pool-wide statistics
type poolMetrics struct {
	scheduled atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	inline    atomic.Uint64
}

// NewPool creates a new worker pool with the given options.
// It returns an error if the configuration is invalid.
//
// Example:
//
//	pool, err := forkjoin.NewPool(
//	    forkjoin.WithNumWorkers(4),
//	    forkjoin.WithQueueSizePerWorker(256),
//	)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
func NewPool(opts ...Option) (*Pool, error) {
	// Start with default config
	cfg := DefaultConfig()

	// Apply user options
	for _, opt := range opts {
		opt(&cfg)
	}

	// validate final configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.NumWorkers = cfg.numWorkers()
	if cfg.NumWorkers > maxEventCountWaiters {
		return nil, errInvalidConfig("NumWorkers is too large")
	}

	n := cfg.NumWorkers
	p := &Pool{
		config:   cfg,
		env:      cfg.environment(),
		logger:   cfg.logger(),
		queues:   make([]*Deque[Task], n),
		workers:  make([]*worker, n),
		threads:  make([]Thread, n),
		coprimes: coprimes(n),
		ec:       NewEventCount(n),
	}

	for i := 0; i < n; i++ {
		p.queues[i] = NewDeque[Task](cfg.QueueSizePerWorker)
		p.workers[i] = newWorker(i, p)
	}

	for i, w := range p.workers {
		p.threads[i] = p.env.Spawn(i, w.run)
	}

	p.logger.Debug().
		Int("workers", n).
		Int("queue_size", cfg.QueueSizePerWorker).
		Msg("pool started")

	return p, nil
}

// Schedule runs fn on the pool.
//
// Called from one of the pool's workers, fn goes to the front of that
// worker's own deque and will usually run next on the same worker. Called
// from anywhere else, fn goes to the back of a randomly chosen deque.
//
// If the chosen deque is full, fn runs immediately on the calling goroutine
// before Schedule returns. Tasks that schedule more tasks into a saturated
// pool can therefore recurse.
//
// Returns ErrNilTask if fn is nil.
// Returns ErrPoolShutdown if the pool has been closed and the caller is not
// one of its workers.
//
// Example:
//
//	err := pool.Schedule(func() {
//	    fmt.Println("Task executed")
//	})
func (p *Pool) Schedule(fn func()) error {
	if fn == nil {
		return ErrNilTask
	}

	w := p.currentWorker()
	if w == nil {
		p.submitting.Add(1)
		defer p.submitting.Add(-1)
		if p.done.Load() {
			return ErrPoolShutdown
		}
	}

	t := p.env.Wrap(fn)
	p.metrics.scheduled.Add(1)

	var pushed bool
	if w != nil {
		pushed = w.queue.PushFront(t)
	} else {
		pushed = p.queues[rand.IntN(len(p.queues))].PushBack(t)
	}

	if pushed {
		p.ec.Notify(false)
		return nil
	}

	// Push failed, execute directly
	p.metrics.inline.Add(1)
	if e := p.logger.Debug(); e.Enabled() {
		workerID := -1
		if w != nil {
			workerID = w.id
		}
		e.Int("worker", workerID).Msg("deque full, running task inline")
	}
	p.execute(w, t)
	return nil
}

// Close stops the pool. Tasks already scheduled, and tasks they schedule in
// turn, run to completion before the workers exit. Close blocks until every
// worker has exited.
//
// Multiple calls to Close are safe; only the first does anything.
// Returns ErrCloseFromWorker if called from a task running on this pool.
//
// Example:
//
//	pool.Close()
func (p *Pool) Close() error {
	if p.currentWorker() != nil {
		return ErrCloseFromWorker
	}

	p.closeOnce.Do(func() {
		p.logger.Debug().Msg("pool shutting down")

		p.done.Store(true)
		p.ec.Notify(true)

		for _, t := range p.threads {
			t.Join()
		}

		s := p.Stats()
		p.logger.Info().
			Uint64("completed", s.Completed).
			Uint64("stolen", s.Stolen).
			Uint64("inline", s.InlineExecuted).
			Uint64("failed", s.Failed).
			Msg("pool stopped")
	})
	return nil
}

// Stats returns a snapshot of pool statistics including task counts and
// per-worker statistics.
//
// Note: Stats are collected without locks, so values may be slightly
// inconsistent during concurrent operations.
//
// Example:
//
//	stats := pool.Stats()
//	fmt.Printf("Completed: %d/%d\n", stats.Completed, stats.Scheduled)
func (p *Pool) Stats() Stats {
	scheduled := p.metrics.scheduled.Load()
	completed := p.metrics.completed.Load()

	var inFlight uint64
	if scheduled > completed {
		inFlight = scheduled - completed
	}

	workerStats := make([]WorkerStats, len(p.workers))
	totalDepth := 0
	totalCapacity := 0
	var stolen, parks uint64

	for i, w := range p.workers {
		depth := w.queue.Size()
		capacity := w.queue.Capacity()

		totalDepth += depth
		totalCapacity += capacity

		ws := WorkerStats{
			WorkerID:      i,
			TasksExecuted: w.tasksExecuted.Load(),
			TasksStolen:   w.tasksStolen.Load(),
			TasksFailed:   w.tasksFailed.Load(),
			Parks:         w.parks.Load(),
			QueueDepth:    depth,
			Capacity:      capacity,
			State:         w.getState().String(),
		}
		stolen += ws.TasksStolen
		parks += ws.Parks
		workerStats[i] = ws
	}

	utilization := float64(0)
	if totalCapacity > 0 {
		utilization = float64(totalDepth) / float64(totalCapacity) * 100.0
	}

	blocked := int(p.blocked.Load())
	if blocked > len(p.workers) {
		blocked = len(p.workers)
	}

	return Stats{
		Scheduled:          scheduled,
		Completed:          completed,
		Failed:             p.metrics.failed.Load(),
		InlineExecuted:     p.metrics.inline.Load(),
		Stolen:             stolen,
		Parks:              parks,
		InFlight:           inFlight,
		Utilization:        utilization,
		WorkerStats:        workerStats,
		NumWorkers:         len(p.workers),
		Blocked:            blocked,
		TotalQueueDepth:    totalDepth,
		TotalQueueCapacity: totalCapacity,
	}
}

// IsShutdown returns true once Close has been called.
func (p *Pool) IsShutdown() bool {
	return p.done.Load()
}

// NumWorkers returns the number of workers in the pool.
func (p *Pool) NumWorkers() int {
	return len(p.workers)
}

// Name returns the configured pool name.
func (p *Pool) Name() string {
	return p.config.Name
}

// CurrentWorkerID returns the index of the calling worker, or -1 if the
// caller is not one of this pool's workers.
func (p *Pool) CurrentWorkerID() int {
	if w := p.currentWorker(); w != nil {
		return w.id
	}
	return -1
}

// ParallelFor splits [0, total) into blocks and runs fn over them on the
// pool, returning when every block is done. costPerUnit is the estimated
// number of CPU cycles to process one element; it decides how many workers
// are worth involving and how large each block is.
//
// Example:
//
//	pool.ParallelFor(int64(len(xs)), 50, func(first, last int64) {
//	    for i := first; i < last; i++ {
//	        xs[i] *= 2
//	    }
//	})
func (p *Pool) ParallelFor(total, costPerUnit int64, fn func(first, last int64)) {
	if total < 0 {
		panic("forkjoin: ParallelFor total must be >= 0")
	}
	d := NewDevice(p)
	d.ParallelFor(int(total), OpCost{ComputeCycles: float64(costPerUnit)}, func(first, last int) {
		fn(int64(first), int64(last))
	})
}

func (p *Pool) currentWorker() *worker {
	v, ok := p.workerIDs.Load(goid.Get())
	if !ok {
		return nil
	}
	return p.workers[v.(int)]
}

// execute runs a task with panic recovery.
// w is nil when the task runs inline on a goroutine outside the pool.
func (p *Pool) execute(w *worker, t Task) {
	var pc panics.Catcher
	pc.Try(func() { p.env.Run(t) })

	if r := pc.Recovered(); r != nil {
		p.metrics.failed.Add(1)
		workerID := -1
		if w != nil {
			w.tasksFailed.Add(1)
			workerID = w.id
		}
		if p.config.PanicHandler != nil {
			p.config.PanicHandler(errWorkerPanic(workerID, r.AsError()))
		} else {
			p.logger.Error().
				Int("worker", workerID).
				Uint64("task", t.ID).
				Interface("panic", r.Value).
				Str("stack", string(r.Stack)).
				Msg("task panicked")
		}
	}

	if w != nil {
		w.tasksExecuted.Add(1)
	}
	p.metrics.completed.Add(1)
}

// helpUntil keeps worker w executing pool tasks until b is released, so a
// task that waits on work it forked does not take its worker out of the pool.
func (p *Pool) helpUntil(w *worker, b *Barrier) {
	for !b.Done() {
		t, ok := w.queue.PopFront()
		if !ok {
			t, ok = w.steal()
		}
		if !ok {
			runtime.Gosched()
			continue
		}
		p.execute(w, t)
	}
	b.Wait()
}

// nonEmptyQueueIndex returns the index of some deque that appears to have
// work, or -1.
func (p *Pool) nonEmptyQueueIndex(rng *uint64) int {
	size := uint32(len(p.queues))
	r := pcgNext(rng)
	inc := p.coprimes[r%uint32(len(p.coprimes))]
	victim := r % size
	for i := uint32(0); i < size; i++ {
		if !p.queues[victim].Empty() {
			return int(victim)
		}
		victim += inc
		if victim >= size {
			victim -= size
		}
	}
	return -1
}
