package forkjoin

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Slot states. A slot moves Empty -> Busy -> Ready when an item is published
// and Ready -> Busy -> Empty when it is consumed. Busy is held only for the
// duration of a single push or pop.
const (
	slotEmpty uint32 = iota
	slotBusy
	slotReady
)

// maxDequeCapacity keeps positions and the modification counter inside a
// uint32 index.
const maxDequeCapacity = 64 << 10

type slot[T any] struct {
	state atomic.Uint32
	v     T
}

// Deque is a bounded work-stealing deque.
//
// Properties:
//   - Owner pushes/pops at the front (LIFO - newest tasks first)
//   - Any goroutine pushes/pops at the back, serialized by a mutex
//   - Stealers never block: PopBack gives up when the mutex is busy
//   - Fixed capacity, no resizing; a full deque rejects the push
//
// front and back hold a position modulo 2*capacity in their low bits. The
// bits above that are a modification counter, bumped by PushFront and
// PopBack, so that Size can detect a torn read of the two indices. Using
// 2*capacity positions (rather than capacity) is what lets an empty deque be
// told apart from a full one without a separate count.
type Deque[T any] struct {
	_ cpu.CacheLinePad

	// front is the owner end
	front atomic.Uint32

	_ cpu.CacheLinePad

	// back is the shared end
	back atomic.Uint32

	_ cpu.CacheLinePad

	// mu serializes back-end operations
	mu sync.Mutex

	mask  uint32 // capacity - 1
	mask2 uint32 // 2*capacity - 1
	slots []slot[T]
}

// NewDeque creates a deque holding up to capacity items. capacity must be a
// power of two greater than 2 and at most 65536.
func NewDeque[T any](capacity int) *Deque[T] {
	if !validDequeCapacity(capacity) {
		panic("forkjoin: deque capacity must be a power of two in (2, 65536]")
	}
	return &Deque[T]{
		mask:  uint32(capacity - 1),
		mask2: uint32(capacity<<1 - 1),
		slots: make([]slot[T], capacity),
	}
}

func validDequeCapacity(capacity int) bool {
	return capacity > 2 && capacity <= maxDequeCapacity && capacity&(capacity-1) == 0
}

// PushFront adds v at the front. Owner only.
// Returns false if the deque is full, in which case v was not stored.
func (d *Deque[T]) PushFront(v T) bool {
	front := d.front.Load()
	s := &d.slots[front&d.mask]
	if !s.state.CompareAndSwap(slotEmpty, slotBusy) {
		return false
	}
	d.front.Store(front + 1 + d.counterInc())
	s.v = v
	s.state.Store(slotReady)
	return true
}

// PopFront removes the most recently pushed front item. Owner only.
func (d *Deque[T]) PopFront() (v T, ok bool) {
	front := d.front.Load()
	s := &d.slots[(front-1)&d.mask]
	if !s.state.CompareAndSwap(slotReady, slotBusy) {
		return v, false
	}
	v = s.v
	var zero T
	s.v = zero
	s.state.Store(slotEmpty)
	d.front.Store(((front - 1) & d.mask2) | (front &^ d.mask2))
	return v, true
}

// PushBack adds v at the back. Safe for concurrent use.
// Returns false if the deque is full.
func (d *Deque[T]) PushBack(v T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	back := d.back.Load()
	s := &d.slots[(back-1)&d.mask]
	if !s.state.CompareAndSwap(slotEmpty, slotBusy) {
		return false
	}
	d.back.Store(((back - 1) & d.mask2) | (back &^ d.mask2))
	s.v = v
	s.state.Store(slotReady)
	return true
}

// PopBack removes the item at the back. Safe for concurrent use.
// It never waits: if another goroutine holds the back end, it reports no item.
func (d *Deque[T]) PopBack() (v T, ok bool) {
	if d.Empty() {
		return v, false
	}
	if !d.mu.TryLock() {
		return v, false
	}
	defer d.mu.Unlock()

	back := d.back.Load()
	s := &d.slots[back&d.mask]
	if !s.state.CompareAndSwap(slotReady, slotBusy) {
		return v, false
	}
	v = s.v
	var zero T
	s.v = zero
	s.state.Store(slotEmpty)
	d.back.Store(back + 1 + d.counterInc())
	return v, true
}

// PopBackHalf moves roughly the back half of the deque into dst, in one
// acquisition of the back end. It returns the extended slice and the number
// of items taken. Like PopBack, it gives up immediately if the back end is
// busy.
func (d *Deque[T]) PopBackHalf(dst []T) ([]T, int) {
	if d.Empty() {
		return dst, 0
	}
	if !d.mu.TryLock() {
		return dst, 0
	}
	defer d.mu.Unlock()

	back := d.back.Load()
	size := uint32(d.Size())
	mid := back
	if size > 1 {
		mid = back + (size-1)/2
	}

	var zero T
	n := 0
	start := uint32(0)
	for ; int32(mid-back) >= 0; mid-- {
		s := &d.slots[mid&d.mask]
		if !s.state.CompareAndSwap(slotReady, slotBusy) {
			if n == 0 {
				// the owner may be popping this end of the run
				continue
			}
			// everything between back and a claimed slot is Ready
			panic("forkjoin: deque slot below a claimed slot is not ready")
		}
		if n == 0 {
			start = mid
		}
		dst = append(dst, s.v)
		s.v = zero
		s.state.Store(slotEmpty)
		n++
	}
	if n != 0 {
		d.back.Store(start + 1 + d.counterInc())
	}
	return dst, n
}

// Size returns a snapshot of the number of items.
// It may be stale immediately under concurrent use, but never exceeds Capacity.
func (d *Deque[T]) Size() int {
	for {
		front := d.front.Load()
		back := d.back.Load()
		if front != d.front.Load() {
			continue
		}
		size := int(front&d.mask2) - int(back&d.mask2)
		if size < 0 {
			size += len(d.slots) << 1
		}
		if size > len(d.slots) {
			size = len(d.slots)
		}
		return size
	}
}

// Empty reports whether the deque appears empty
func (d *Deque[T]) Empty() bool {
	return d.Size() == 0
}

// Capacity returns the fixed capacity
func (d *Deque[T]) Capacity() int {
	return len(d.slots)
}

func (d *Deque[T]) counterInc() uint32 {
	return uint32(len(d.slots)) << 1
}
