package forkjoin

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// ============================================================================
// Basic Operations
// ============================================================================

func TestNewDeque_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{-1, 0, 1, 2, 3, 100, 1 << 17} {
		assert.Panics(t, func() { NewDeque[int](capacity) }, "capacity %d", capacity)
	}
	for _, capacity := range []int{4, 8, 1024, 1 << 16} {
		assert.NotPanics(t, func() { NewDeque[int](capacity) }, "capacity %d", capacity)
	}
}

func TestDeque_PushPopFront(t *testing.T) {
	d := NewDeque[int](8)

	assert.True(t, d.Empty())
	assert.Equal(t, 8, d.Capacity())

	require.True(t, d.PushFront(1))
	require.True(t, d.PushFront(2))
	assert.Equal(t, 2, d.Size())

	v, ok := d.PopFront()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = d.PopFront()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = d.PopFront()
	assert.False(t, ok)
	assert.True(t, d.Empty())
}

func TestDeque_PopFromEmpty(t *testing.T) {
	d := NewDeque[int](4)

	_, ok := d.PopFront()
	assert.False(t, ok)

	_, ok = d.PopBack()
	assert.False(t, ok)

	out, n := d.PopBackHalf(nil)
	assert.Zero(t, n)
	assert.Empty(t, out)
}

func TestDeque_LIFO_Order(t *testing.T) {
	const capacity = 64
	d := NewDeque[int](capacity)

	// wrap the indices a few times
	for round := 0; round < 5; round++ {
		for i := 0; i < capacity; i++ {
			require.True(t, d.PushFront(i))
		}
		for i := capacity - 1; i >= 0; i-- {
			v, ok := d.PopFront()
			require.True(t, ok)
			require.Equal(t, i, v, "round %d", round)
		}
		require.True(t, d.Empty())
	}
}

func TestDeque_BackOrder(t *testing.T) {
	d := NewDeque[int](8)

	// items pushed at the front come out of the back oldest first
	for i := 0; i < 4; i++ {
		require.True(t, d.PushFront(i))
	}
	for i := 0; i < 4; i++ {
		v, ok := d.PopBack()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	// items pushed at the back come out of the back newest first
	for i := 0; i < 4; i++ {
		require.True(t, d.PushBack(i))
	}
	for i := 3; i >= 0; i-- {
		v, ok := d.PopBack()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestDeque_Full(t *testing.T) {
	d := NewDeque[int](4)

	for i := 0; i < 4; i++ {
		require.True(t, d.PushFront(i))
	}
	assert.Equal(t, 4, d.Size())
	assert.False(t, d.PushFront(99), "push to a full deque must fail")
	assert.False(t, d.PushBack(99), "push to a full deque must fail")

	v, ok := d.PopBack()
	require.True(t, ok)
	assert.Equal(t, 0, v)

	assert.True(t, d.PushBack(100))
	assert.Equal(t, 4, d.Size())
}

func TestDeque_MixedEnds(t *testing.T) {
	d := NewDeque[string](8)

	require.True(t, d.PushFront("f1"))
	require.True(t, d.PushBack("b1"))
	require.True(t, d.PushFront("f2"))
	require.True(t, d.PushBack("b2"))
	// back -> front: b2 b1 f1 f2
	assert.Equal(t, 4, d.Size())

	v, _ := d.PopFront()
	assert.Equal(t, "f2", v)
	v, _ = d.PopBack()
	assert.Equal(t, "b2", v)
	v, _ = d.PopBack()
	assert.Equal(t, "b1", v)
	v, _ = d.PopFront()
	assert.Equal(t, "f1", v)
	assert.True(t, d.Empty())
}

func TestDeque_PopBackHalf(t *testing.T) {
	tests := []struct {
		name  string
		items int
		want  int
	}{
		{"one", 1, 1},
		{"two", 2, 1},
		{"three", 3, 2},
		{"eight", 8, 4},
		{"nine", 9, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDeque[int](16)
			for i := 0; i < tt.items; i++ {
				require.True(t, d.PushFront(i))
			}

			out, n := d.PopBackHalf(nil)
			require.Equal(t, tt.want, n)
			require.Len(t, out, n)
			assert.Equal(t, tt.items-n, d.Size())

			// the oldest items are taken, nothing else
			seen := make(map[int]bool)
			for _, v := range out {
				assert.Less(t, v, tt.want)
				seen[v] = true
			}
			assert.Len(t, seen, n)

			// the rest are still there, in order
			for i := tt.items - 1; i >= tt.want; i-- {
				v, ok := d.PopFront()
				require.True(t, ok)
				assert.Equal(t, i, v)
			}
			assert.True(t, d.Empty())
		})
	}
}

func TestDeque_PopBackHalfAppends(t *testing.T) {
	d := NewDeque[int](8)
	for i := 0; i < 4; i++ {
		d.PushFront(i)
	}
	out, n := d.PopBackHalf([]int{-1})
	assert.Equal(t, 2, n)
	assert.Len(t, out, 3)
	assert.Equal(t, -1, out[0])
}

func TestDeque_ReleasesPayload(t *testing.T) {
	d := NewDeque[*int](4)
	x := 1
	d.PushFront(&x)
	d.PopFront()
	for i := range d.slots {
		assert.Nil(t, d.slots[i].v)
	}
}

// ============================================================================
// Concurrency
// ============================================================================

func TestDeque_OwnerAndThieves(t *testing.T) {
	const (
		capacity = 256
		items    = 200000
		thieves  = 4
	)
	d := NewDeque[int](capacity)

	var popped sync.Map
	var total atomic.Int64
	var count atomic.Int64
	var ownerDone atomic.Bool

	record := func(v int) {
		if _, dup := popped.LoadOrStore(v, true); dup {
			t.Errorf("item %d delivered twice", v)
		}
		total.Add(int64(v))
		count.Add(1)
	}

	var g errgroup.Group
	for i := 0; i < thieves; i++ {
		g.Go(func() error {
			for {
				if v, ok := d.PopBack(); ok {
					record(v)
					continue
				}
				if ownerDone.Load() && d.Empty() {
					return nil
				}
			}
		})
	}

	g.Go(func() error {
		defer ownerDone.Store(true)
		for i := 1; i <= items; i++ {
			for !d.PushFront(i) {
				if v, ok := d.PopFront(); ok {
					record(v)
				}
			}
			if i%3 == 0 {
				if v, ok := d.PopFront(); ok {
					record(v)
				}
			}
		}
		for {
			v, ok := d.PopFront()
			if !ok {
				if d.Empty() {
					return nil
				}
				continue
			}
			record(v)
		}
	})

	require.NoError(t, g.Wait())
	assert.Equal(t, int64(items), count.Load())
	assert.Equal(t, int64(items)*(items+1)/2, total.Load())
}

func TestDeque_ConcurrentBackChecksum(t *testing.T) {
	const (
		capacity  = 64
		producers = 4
		consumers = 4
		perProd   = 20000
	)
	d := NewDeque[int](capacity)

	var produced, consumed atomic.Int64
	var sumIn, sumOut atomic.Int64
	var producersDone atomic.Int32

	var g errgroup.Group
	for p := 0; p < producers; p++ {
		g.Go(func() error {
			defer producersDone.Add(1)
			for i := 0; i < perProd; i++ {
				v := p*perProd + i + 1
				for !d.PushBack(v) {
					runtime.Gosched()
				}
				sumIn.Add(int64(v))
				produced.Add(1)
			}
			return nil
		})
	}
	for c := 0; c < consumers; c++ {
		g.Go(func() error {
			for {
				if v, ok := d.PopBack(); ok {
					sumOut.Add(int64(v))
					consumed.Add(1)
					continue
				}
				if producersDone.Load() == producers && d.Empty() {
					return nil
				}
			}
		})
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, produced.Load(), consumed.Load())
	assert.Equal(t, sumIn.Load(), sumOut.Load())
}

func TestDeque_SizeBounds(t *testing.T) {
	const capacity = 16
	d := NewDeque[int](capacity)
	var stop atomic.Bool

	var g errgroup.Group
	g.Go(func() error {
		defer stop.Store(true)
		for i := 0; i < 100000; i++ {
			d.PushFront(i)
			if i%2 == 0 {
				d.PopFront()
			}
		}
		return nil
	})
	g.Go(func() error {
		for !stop.Load() {
			d.PopBack()
		}
		return nil
	})
	g.Go(func() error {
		for !stop.Load() {
			if s := d.Size(); s < 0 || s > capacity {
				t.Errorf("size %d out of [0, %d]", s, capacity)
				return nil
			}
		}
		return nil
	})

	require.NoError(t, g.Wait())
}
