package forkjoin

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// EventCount state layout (one uint64, updated only by CAS):
//
//	bits  0-15  index of the top of the parked-waiter stack (ecStackMask = empty)
//	bits 16-31  number of waiters between Prewait and Commit/CancelWait
//	bits 32-63  epoch
const (
	ecStackBits   = 16
	ecStackMask   = uint64(1)<<ecStackBits - 1
	ecWaiterShift = 16
	ecWaiterBits  = 16
	ecWaiterMask  = (uint64(1)<<ecWaiterBits - 1) << ecWaiterShift
	ecWaiterInc   = uint64(1) << ecWaiterShift
	ecEpochShift  = 32
	ecEpochMask   = (uint64(1)<<32 - 1) << ecEpochShift
	ecEpochInc    = uint64(1) << ecEpochShift
)

// maxEventCountWaiters leaves ecStackMask free as the empty-stack sentinel
const maxEventCountWaiters = int(ecStackMask) - 1

const (
	waiterNotSignaled = iota
	waiterWaiting
	waiterSignaled
)

// Waiter is the per-worker parking record of an EventCount.
type Waiter struct {
	_ cpu.CacheLinePad

	// next links parked waiters into a stack by arena index
	next atomic.Uint64

	mu    sync.Mutex
	cond  sync.Cond
	state int // guarded by mu

	epoch uint64 // state snapshot taken by Prewait
	index uint64
}

// EventCount lets workers sleep until work arrives without a lost wakeup
// and without taking a lock on the notify path.
//
// A waiter calls Prewait, re-checks its condition, then either CancelWait
// (condition became true) or CommitWait (still false; blocks). A Notify that
// lands between Prewait and CommitWait makes CommitWait return immediately.
//
// Each Prewait takes a ticket: the epoch plus the number of prewaiters ahead
// of it. Commit/CancelWait advance the epoch by one in ticket order, and
// Notify(false) consumes the oldest pending prewait by advancing it too, so a
// waiter whose ticket is already behind the epoch knows it was notified.
type EventCount struct {
	state   atomic.Uint64
	waiters []Waiter
}

// NewEventCount creates an EventCount with n waiter records.
func NewEventCount(n int) *EventCount {
	if n < 0 || n > maxEventCountWaiters {
		panic("forkjoin: too many event count waiters")
	}
	ec := &EventCount{waiters: make([]Waiter, n)}
	for i := range ec.waiters {
		w := &ec.waiters[i]
		w.cond.L = &w.mu
		w.index = uint64(i)
		w.next.Store(ecStackMask)
	}
	// start close to overflow so epoch wraparound is exercised early
	ec.state.Store(ecStackMask | (ecEpochMask - ecEpochInc*uint64(n)*2))
	return ec
}

// Waiter returns the waiter record at index i.
func (ec *EventCount) Waiter(i int) *Waiter {
	return &ec.waiters[i]
}

// Prewait registers w as about to wait. The caller must re-check its wait
// condition afterwards and then call exactly one of CommitWait or CancelWait.
func (ec *EventCount) Prewait(w *Waiter) {
	w.epoch = ec.state.Add(ecWaiterInc) - ecWaiterInc
}

// CommitWait blocks w until it is notified. It returns immediately if a
// Notify happened after the matching Prewait.
func (ec *EventCount) CommitWait(w *Waiter) {
	w.mu.Lock()
	w.state = waiterNotSignaled
	w.mu.Unlock()

	ticket := waiterTicket(w.epoch)
	state := ec.state.Load()
	for {
		diff := int64((state & ecEpochMask) - ticket)
		if diff < 0 {
			// prewaiters ahead of us have not committed or cancelled yet
			runtime.Gosched()
			state = ec.state.Load()
			continue
		}
		if diff > 0 {
			return
		}
		newstate := state - ecWaiterInc + ecEpochInc
		newstate = (newstate &^ ecStackMask) | w.index
		w.next.Store(state & ecStackMask)
		if ec.state.CompareAndSwap(state, newstate) {
			break
		}
		state = ec.state.Load()
	}
	ec.park(w)
}

// CancelWait withdraws the Prewait of w without blocking.
func (ec *EventCount) CancelWait(w *Waiter) {
	ticket := waiterTicket(w.epoch)
	state := ec.state.Load()
	for {
		diff := int64((state & ecEpochMask) - ticket)
		if diff < 0 {
			runtime.Gosched()
			state = ec.state.Load()
			continue
		}
		if diff > 0 {
			return
		}
		if ec.state.CompareAndSwap(state, state-ecWaiterInc+ecEpochInc) {
			return
		}
		state = ec.state.Load()
	}
}

// Notify wakes one waiter, or all of them if all is set. A pending prewait
// counts as a waiter: notifying it makes its CommitWait return immediately.
func (ec *EventCount) Notify(all bool) {
	state := ec.state.Load()
	for {
		if state&ecStackMask == ecStackMask && state&ecWaiterMask == 0 {
			return
		}
		waiters := (state & ecWaiterMask) >> ecWaiterShift
		var newstate uint64
		switch {
		case all:
			newstate = (state & ecEpochMask) + ecEpochInc*waiters + ecStackMask
		case waiters > 0:
			newstate = state + ecEpochInc - ecWaiterInc
		default:
			// pop the stack; every push advances the epoch, so no ABA
			w := &ec.waiters[state&ecStackMask]
			newstate = (state & ecEpochMask) | w.next.Load()
		}
		if ec.state.CompareAndSwap(state, newstate) {
			if !all && waiters > 0 {
				return
			}
			if state&ecStackMask == ecStackMask {
				return
			}
			w := &ec.waiters[state&ecStackMask]
			if !all {
				w.next.Store(ecStackMask)
			}
			ec.unpark(w)
			return
		}
		state = ec.state.Load()
	}
}

// waiterTicket turns a Prewait snapshot into the epoch at which that waiter
// may commit.
func waiterTicket(snapshot uint64) uint64 {
	return (snapshot & ecEpochMask) +
		(((snapshot & ecWaiterMask) >> ecWaiterShift) << ecEpochShift)
}

func (ec *EventCount) park(w *Waiter) {
	w.mu.Lock()
	for w.state != waiterSignaled {
		w.state = waiterWaiting
		w.cond.Wait()
	}
	w.mu.Unlock()
}

func (ec *EventCount) unpark(w *Waiter) {
	for {
		next := w.next.Load()
		w.mu.Lock()
		prev := w.state
		w.state = waiterSignaled
		w.mu.Unlock()
		if prev == waiterWaiting {
			w.cond.Signal()
		}
		if next == ecStackMask {
			return
		}
		w = &ec.waiters[next]
	}
}
