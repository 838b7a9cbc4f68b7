package forkjoin

import (
	"sync"
	"sync/atomic"
)

// Barrier is a countdown latch for a single waiter.
//
// The count and a "waiter present" flag share one word (count<<1 | flag), so
// Notify only touches the mutex when it is the last notification and Wait has
// already announced itself.
//
// Notify must be called exactly as many times as the count the barrier was
// created with. Wait must not be called from more than one goroutine.
type Barrier struct {
	state    atomic.Uint32
	mu       sync.Mutex
	cond     sync.Cond
	notified bool // guarded by mu
}

// maxBarrierCount is the largest count that fits beside the waiter flag.
const maxBarrierCount = 1<<31 - 1

// NewBarrier creates a barrier that releases Wait after count calls to Notify.
func NewBarrier(count uint32) *Barrier {
	b := &Barrier{}
	b.init(count)
	return b
}

func (b *Barrier) init(count uint32) {
	if count > maxBarrierCount {
		panic("forkjoin: barrier count overflows")
	}
	b.cond.L = &b.mu
	b.state.Store(count << 1)
}

// Notify counts down by one.
func (b *Barrier) Notify() {
	v := b.state.Add(^uint32(1)) // -2
	if (v+2)>>1 == 0 {
		panic("forkjoin: barrier notified more times than its count")
	}
	if v != 1 {
		// either the count is not zero yet, or nobody is waiting
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.notified {
		panic("forkjoin: barrier released twice")
	}
	b.notified = true
	b.cond.Broadcast()
}

// Wait blocks until the count reaches zero.
func (b *Barrier) Wait() {
	v := b.state.Or(1)
	if v>>1 == 0 {
		return
	}
	b.mu.Lock()
	for !b.notified {
		b.cond.Wait()
	}
	b.mu.Unlock()
}

// Done reports whether the count has reached zero, without blocking.
func (b *Barrier) Done() bool {
	return b.state.Load()>>1 == 0
}

// Notification is a one-shot Barrier: one Notify releases the waiter.
// It is what Device.Enqueue hands back to the caller.
type Notification struct {
	Barrier
}

// NewNotification creates an unsignalled Notification.
func NewNotification() *Notification {
	n := &Notification{}
	n.init(1)
	return n
}
