package forkjoin

import (
	"runtime"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// WorkerState represents the current state of a worker
type WorkerState int32

const (
	StateRunning WorkerState = iota
	StateSpinning
	StateParked
	StateShutdown
)

func (s WorkerState) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateSpinning:
		return "SPINNING"
	case StateParked:
		return "PARKED"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// worker is a single pool worker
type worker struct {
	id     int
	pool   *Pool
	queue  *Deque[Task]
	waiter *Waiter

	// rand is the PCG state used to pick steal victims; owned by the worker
	rand uint64

	// State management
	state atomic.Int32 // WorkerState

	// Metrics
	tasksExecuted atomic.Uint64
	tasksStolen   atomic.Uint64
	tasksFailed   atomic.Uint64
	parks         atomic.Uint64
}

// newWorker creates a new worker
func newWorker(id int, pool *Pool) *worker {
	w := &worker{
		id:     id,
		pool:   pool,
		queue:  pool.queues[id],
		waiter: pool.ec.Waiter(id),
	}
	w.state.Store(int32(StateRunning))
	return w
}

// run is the main worker loop
func (w *worker) run() {
	p := w.pool
	gid := goid.Get()
	p.workerIDs.Store(gid, w.id)
	defer p.workerIDs.Delete(gid)

	w.rand = mixSeed(threadSeed(), uint64(gid), uint64(w.id))

	if p.config.OnWorkerStart != nil {
		p.config.OnWorkerStart(w.id)
	}
	p.logger.Debug().Int("worker", w.id).Msg("worker started")

	for {
		t, ok := w.findTask()
		if !ok {
			break
		}
		if t.valid() {
			p.execute(w, t)
		}
	}

	w.setState(StateShutdown)
	p.logger.Debug().Int("worker", w.id).Msg("worker stopped")

	if p.config.OnWorkerStop != nil {
		p.config.OnWorkerStop(w.id)
	}
}

// findTask looks for work in priority order: own deque, one steal pass, a
// spin of steal passes (one worker at a time), then parking. It returns
// ok=false when the worker should exit. A zero Task with ok=true means
// "look again".
func (w *worker) findTask() (Task, bool) {
	// Priority 1: Local work (LIFO - most recent task first)
	if t, ok := w.queue.PopFront(); ok {
		return t, true
	}

	// Priority 2: Steal from others (FIFO - oldest work)
	if t, ok := w.steal(); ok {
		return t, true
	}

	// Priority 3: Spin, if nobody else is
	if t, ok := w.spin(); ok {
		return t, true
	}

	// Priority 4: Park and wait
	return w.waitForWork()
}

// steal makes one pass over every deque, starting at a random victim and
// stepping by a random stride coprime with the number of deques.
func (w *worker) steal() (Task, bool) {
	p := w.pool
	size := uint32(len(p.queues))
	r := pcgNext(&w.rand)
	inc := p.coprimes[r%uint32(len(p.coprimes))]
	victim := r % size
	for i := uint32(0); i < size; i++ {
		if t, ok := p.queues[victim].PopBack(); ok {
			if int(victim) != w.id {
				w.tasksStolen.Add(1)
			}
			return t, true
		}
		victim += inc
		if victim >= size {
			victim -= size
		}
	}
	return Task{}, false
}

// spin repeats steal passes for SpinCount rounds. Only one worker in the
// pool spins at a time; the rest go straight to parking.
func (w *worker) spin() (Task, bool) {
	p := w.pool
	if p.spinning.Load() || p.spinning.Swap(true) {
		return Task{}, false
	}
	defer p.spinning.Store(false)

	w.setState(StateSpinning)
	defer w.setState(StateRunning)

	for i := 0; i < p.config.SpinCount; i++ {
		if t, ok := w.steal(); ok {
			return t, true
		}
		runtime.Gosched()
	}
	return Task{}, false
}

// waitForWork parks the worker until work may be available.
//
// It announces itself with Prewait, then re-checks every deque. If one has
// work, it cancels and takes from it directly. Otherwise it commits to
// sleeping, unless the pool is closing and every other worker is already
// blocked, in which case nothing can produce more work and it exits.
func (w *worker) waitForWork() (Task, bool) {
	p := w.pool
	p.ec.Prewait(w.waiter)

	if victim := p.nonEmptyQueueIndex(&w.rand); victim != -1 {
		p.ec.CancelWait(w.waiter)
		t, ok := p.queues[victim].PopBack()
		if ok && victim != w.id {
			w.tasksStolen.Add(1)
		}
		return t, true
	}

	blocked := p.blocked.Add(1)
	if p.done.Load() && int(blocked) == len(p.workers) {
		p.ec.CancelWait(w.waiter)
		// submitting first: a producer pushes before it decrements, so
		// whichever of the two it has reached is visible here
		if p.submitting.Load() != 0 || p.nonEmptyQueueIndex(&w.rand) != -1 {
			p.blocked.Add(-1)
			return Task{}, true
		}
		// wake everyone so they observe the same condition and exit
		p.ec.Notify(true)
		return Task{}, false
	}

	w.setState(StateParked)
	w.parks.Add(1)
	p.ec.CommitWait(w.waiter)
	w.setState(StateRunning)
	p.blocked.Add(-1)
	return Task{}, true
}

func (w *worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

// getState returns the current worker state
func (w *worker) getState() WorkerState {
	return WorkerState(w.state.Load())
}
