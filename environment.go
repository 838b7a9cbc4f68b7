package forkjoin

import (
	"context"
	"runtime"
	"runtime/pprof"
	"strconv"
	"sync/atomic"
)

// Task is a schedulable unit of work produced by Environment.Wrap.
// The zero Task is "no task".
type Task struct {
	Fn func()

	// ID is a trace id assigned by the environment, zero when untraced
	ID uint64
}

func (t Task) valid() bool { return t.Fn != nil }

// Thread is a running worker, joined when the pool closes.
type Thread interface {
	Join()
}

// Environment is how a Pool starts its workers and wraps closures into tasks.
// The pool never attaches metadata to a task itself; whatever Wrap attaches,
// Run is expected to restore while the task executes.
type Environment interface {
	// Spawn starts fn on a new worker. index is the worker's position.
	Spawn(index int, fn func()) Thread
	// Wrap turns a closure into a Task.
	Wrap(fn func()) Task
	// Run executes t.
	Run(t Task)
}

// StdEnvironment runs each worker on its own goroutine.
type StdEnvironment struct {
	// Name is used for pprof labels
	Name string

	// LockOSThread wires every worker goroutine to its own OS thread
	LockOSThread bool

	// Labels assigns task ids in Wrap and runs each task under pprof labels
	// ("pool", "task"), so CPU profiles can be split by pool and task.
	Labels bool

	nextID atomic.Uint64
}

type goroutineThread struct {
	done chan struct{}
}

func (t *goroutineThread) Join() { <-t.done }

// Spawn starts fn on a new goroutine.
func (e *StdEnvironment) Spawn(index int, fn func()) Thread {
	t := &goroutineThread{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		if e.LockOSThread {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}
		fn()
	}()
	return t
}

// Wrap wraps fn, assigning a task id when labels are enabled.
func (e *StdEnvironment) Wrap(fn func()) Task {
	t := Task{Fn: fn}
	if e.Labels {
		t.ID = e.nextID.Add(1)
	}
	return t
}

// Run executes t.
func (e *StdEnvironment) Run(t Task) {
	if !e.Labels || t.ID == 0 {
		t.Fn()
		return
	}
	labels := pprof.Labels("pool", e.Name, "task", strconv.FormatUint(t.ID, 10))
	pprof.Do(context.Background(), labels, func(context.Context) {
		t.Fn()
	})
}
