package forkjoin

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parked reports whether w is blocked inside CommitWait.
func parked(w *Waiter) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == waiterWaiting
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

func returnsWithin(d time.Duration, fn func()) bool {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func TestNewEventCount_TooManyWaiters(t *testing.T) {
	assert.Panics(t, func() { NewEventCount(-1) })
	assert.Panics(t, func() { NewEventCount(maxEventCountWaiters + 1) })
	assert.NotPanics(t, func() { NewEventCount(0) })
}

func TestEventCount_NotifyWithoutWaiters(t *testing.T) {
	ec := NewEventCount(2)
	before := ec.state.Load()
	ec.Notify(false)
	ec.Notify(true)
	assert.Equal(t, before, ec.state.Load(), "notify with nobody waiting must not change state")
}

func TestEventCount_NotifyBetweenPrewaitAndCommit(t *testing.T) {
	ec := NewEventCount(1)
	w := ec.Waiter(0)

	for i := 0; i < 100; i++ {
		ec.Prewait(w)
		ec.Notify(false)
		// must not block: the notify consumed our prewait
		require.True(t, returnsWithin(time.Second, func() { ec.CommitWait(w) }), "iteration %d", i)
	}

	state := ec.state.Load()
	assert.Zero(t, state&ecWaiterMask)
	assert.Equal(t, ecStackMask, state&ecStackMask)
}

func TestEventCount_NotifyAllBetweenPrewaitAndCommit(t *testing.T) {
	ec := NewEventCount(3)
	for i := 0; i < 3; i++ {
		ec.Prewait(ec.Waiter(i))
	}
	ec.Notify(true)
	for i := 0; i < 3; i++ {
		require.True(t, returnsWithin(time.Second, func() { ec.CommitWait(ec.Waiter(i)) }))
	}
}

func TestEventCount_CancelWait(t *testing.T) {
	ec := NewEventCount(2)
	w0, w1 := ec.Waiter(0), ec.Waiter(1)

	ec.Prewait(w0)
	ec.Prewait(w1)
	ec.CancelWait(w0)
	ec.CancelWait(w1)

	state := ec.state.Load()
	assert.Zero(t, state&ecWaiterMask, "no prewaiters left")
	assert.Equal(t, ecStackMask, state&ecStackMask, "nobody parked")
}

func TestEventCount_WakeOne(t *testing.T) {
	ec := NewEventCount(2)
	var woke atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := ec.Waiter(i)
			ec.Prewait(w)
			ec.CommitWait(w)
			woke.Add(1)
		}()
	}
	waitFor(t, func() bool { return parked(ec.Waiter(0)) && parked(ec.Waiter(1)) })

	ec.Notify(false)
	waitFor(t, func() bool { return woke.Load() == 1 })
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), woke.Load(), "Notify(false) must wake exactly one waiter")

	ec.Notify(false)
	wg.Wait()
	assert.Equal(t, int32(2), woke.Load())
}

func TestEventCount_WakeAll(t *testing.T) {
	const n = 8
	ec := NewEventCount(n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := ec.Waiter(i)
			ec.Prewait(w)
			ec.CommitWait(w)
		}()
	}
	waitFor(t, func() bool {
		for i := 0; i < n; i++ {
			if !parked(ec.Waiter(i)) {
				return false
			}
		}
		return true
	})

	ec.Notify(true)
	require.True(t, returnsWithin(5*time.Second, wg.Wait))
	assert.Equal(t, ecStackMask, ec.state.Load()&ecStackMask)
}

// Consumers take items from a shared counter and sleep on the event count
// when it is empty; a lost wakeup would leave a consumer parked forever.
func TestEventCount_NoLostWakeups(t *testing.T) {
	const (
		consumers = 4
		perCons   = 20000
	)
	ec := NewEventCount(consumers)
	var available atomic.Int64

	take := func() bool {
		for {
			v := available.Load()
			if v == 0 {
				return false
			}
			if available.CompareAndSwap(v, v-1) {
				return true
			}
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := ec.Waiter(i)
			for got := 0; got < perCons; {
				if take() {
					got++
					continue
				}
				ec.Prewait(w)
				if take() {
					ec.CancelWait(w)
					got++
					continue
				}
				ec.CommitWait(w)
			}
		}()
	}

	go func() {
		for i := 0; i < consumers*perCons; i++ {
			available.Add(1)
			ec.Notify(false)
		}
	}()

	require.True(t, returnsWithin(30*time.Second, wg.Wait), "a consumer missed a wakeup")
	assert.Zero(t, available.Load())
}
