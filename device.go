package forkjoin

import (
	"math"

	"github.com/sourcegraph/conc/panics"
)

// Device runs data-parallel loops on a Pool.
//
// ParallelFor asks the cost model whether a loop is worth splitting, picks a
// block size that divides evenly across the device's threads, and forks the
// range in halves until each piece is one block.
type Device struct {
	pool       *Pool
	numThreads int
	model      CostModel
}

// DeviceOption configures a Device.
type DeviceOption func(*Device)

// WithCostModel replaces DefaultCostModel.
func WithCostModel(m CostModel) DeviceOption {
	return func(d *Device) { d.model = m }
}

// WithDeviceThreads sets how many threads the partitioner plans for.
// Defaults to the pool's worker count. Values below 1 are ignored.
func WithDeviceThreads(n int) DeviceOption {
	return func(d *Device) {
		if n >= 1 {
			d.numThreads = n
		}
	}
}

// NewDevice creates a Device on pool.
func NewDevice(pool *Pool, opts ...DeviceOption) *Device {
	d := &Device{
		pool:       pool,
		numThreads: pool.NumWorkers(),
		model:      DefaultCostModel(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NumThreads returns the thread count the partitioner plans for.
func (d *Device) NumThreads() int {
	return d.numThreads
}

// CurrentThreadID returns the calling worker's index, or -1.
func (d *Device) CurrentThreadID() int {
	return d.pool.CurrentWorkerID()
}

// Enqueue schedules fn and returns a Notification that is released once fn
// has returned or panicked.
func (d *Device) Enqueue(fn func()) *Notification {
	n := NewNotification()
	d.schedule(func() {
		defer n.Notify()
		fn()
	})
	return n
}

// EnqueueWithBarrier schedules fn and notifies b once it has finished.
func (d *Device) EnqueueWithBarrier(b *Barrier, fn func()) {
	d.schedule(func() {
		defer b.Notify()
		fn()
	})
}

// EnqueueNoNotification schedules fn with nothing to wait on.
func (d *Device) EnqueueNoNotification(fn func()) {
	d.schedule(fn)
}

// ParallelFor calls f over consecutive blocks that together cover [0, n)
// exactly once, and returns when all blocks are done. cost is the estimated
// cost of one element.
//
// Small loops, or loops the cost model does not think are worth splitting,
// run as a single f(0, n) call on the calling goroutine. f is never called
// when n <= 0.
//
// If f panics, the remaining blocks still run and the first panic is raised
// again on the calling goroutine once they are done, as a *panics.Recovered
// holding the original value and stack.
func (d *Device) ParallelFor(n int, cost OpCost, f func(first, last int)) {
	d.ParallelForAligned(n, cost, nil, f)
}

// ParallelForAligned is ParallelFor with block sizes rounded up by align.
// align must never return less than its argument.
func (d *Device) ParallelForAligned(n int, cost OpCost, align func(blockSize int) int, f func(first, last int)) {
	if n <= 0 {
		return
	}
	if n == 1 || d.numThreads == 1 || d.model.NumThreads(float64(n), cost, d.numThreads) == 1 {
		f(0, n)
		return
	}

	blockSize, blockCount := partition(n, cost, d.numThreads, d.model, align)
	if uint64(blockCount) > maxBarrierCount {
		panic("forkjoin: ParallelFor range splits into more blocks than a barrier can count")
	}

	job := &rangeJob{
		pool:      d.pool,
		blockSize: blockSize,
		body:      f,
		barrier:   NewBarrier(uint32(blockCount)),
	}
	rangeTask{job: job, first: 0, last: n}.run()

	if w := d.pool.currentWorker(); w != nil {
		d.pool.helpUntil(w, job.barrier)
	} else {
		job.barrier.Wait()
	}
	job.catcher.Repanic()
}

func (d *Device) schedule(fn func()) {
	if err := d.pool.Schedule(fn); err != nil {
		// closed pool: run on the caller
		fn()
	}
}

// partition picks the block size for a range of n elements split across
// threads: start from the cost model's task size, then coarsen while doing
// so keeps the blocks about as evenly spread over the threads.
func partition(n int, cost OpCost, threads int, model CostModel, align func(int) int) (blockSize, blockCount int) {
	blockSizeF := 1 / model.TaskSize(1, cost)
	blockSize = clampToRange(blockSizeF, 1, n)
	maxBlockSize := clampToRange(2*blockSizeF, 1, n)

	if align != nil {
		blockSize = alignBlock(align, blockSize, n)
	}

	efficiency := func(count int) float64 {
		return float64(count) / float64(divup(count, threads)*threads)
	}

	blockCount = divup(n, blockSize)
	maxEfficiency := efficiency(blockCount)

	for prevBlockCount := blockCount; prevBlockCount > 1; {
		coarserBlockSize := divup(n, prevBlockCount-1)
		if align != nil {
			coarserBlockSize = alignBlock(align, coarserBlockSize, n)
		}
		if coarserBlockSize > maxBlockSize {
			break
		}
		coarserBlockCount := divup(n, coarserBlockSize)
		prevBlockCount = coarserBlockCount

		coarserEfficiency := efficiency(coarserBlockCount)
		if coarserEfficiency+0.01 >= maxEfficiency {
			blockSize = coarserBlockSize
			blockCount = coarserBlockCount
			maxEfficiency = max(maxEfficiency, coarserEfficiency)
		}
	}
	return blockSize, blockCount
}

func alignBlock(align func(int) int, size, n int) int {
	aligned := align(size)
	if aligned < size {
		panic("forkjoin: block alignment returned a smaller block size")
	}
	return min(n, aligned)
}

// clampToRange converts f to an int in [lo, hi]. NaN and +Inf map to hi.
func clampToRange(f float64, lo, hi int) int {
	switch {
	case math.IsNaN(f) || f >= float64(hi):
		return hi
	case f < float64(lo):
		return lo
	}
	return int(f)
}

func divup(x, y int) int {
	return (x + y - 1) / y
}

// rangeJob is the state shared by every piece of one ParallelFor call.
type rangeJob struct {
	pool      *Pool
	blockSize int
	body      func(first, last int)
	barrier   *Barrier
	catcher   panics.Catcher
}

// rangeTask is one sub-range of a rangeJob still to be split or run.
type rangeTask struct {
	job         *rangeJob
	first, last int
}

func (t rangeTask) run() {
	j := t.job
	if t.last-t.first <= j.blockSize {
		j.catcher.Try(func() { j.body(t.first, t.last) })
		j.barrier.Notify()
		return
	}
	mid := t.first + divup((t.last-t.first)/2, j.blockSize)*j.blockSize
	j.fork(rangeTask{job: j, first: mid, last: t.last})
	j.fork(rangeTask{job: j, first: t.first, last: mid})
}

func (j *rangeJob) fork(t rangeTask) {
	if err := j.pool.Schedule(t.run); err != nil {
		t.run()
	}
}
