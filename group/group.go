package group

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/tahsin716/forkjoin"
)

// Group runs a collection of functions as tasks on a forkjoin.Pool with
// structured concurrency: Wait returns once every function has finished.
//
// Functions run on pool workers. A function that blocks for a long time
// holds its worker for that time, and Wait must not be called from a task
// running on the same pool.
type Group struct {
	pool   *forkjoin.Pool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	config Config

	// Error handling
	errors    []error
	errorsMux sync.Mutex
	firstErr  error // guarded by errorsMux, used in FailFast

	// State tracking
	running   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// Stats provides information about function execution
type Stats struct {
	Running   int64
	Completed int64
	Failed    int64
}

// New creates a new Group scheduling onto pool
func New(pool *forkjoin.Pool, opts ...Option) *Group {
	return NewWithContext(context.Background(), pool, opts...)
}

// NewWithContext creates a new Group with a parent context
func NewWithContext(ctx context.Context, pool *forkjoin.Pool, opts ...Option) *Group {
	if ctx == nil {
		ctx = context.Background()
	}
	groupCtx, cancel := context.WithCancel(ctx)
	return newGroup(groupCtx, cancel, pool, opts)
}

// NewWithTimeout creates a Group whose context expires after timeout
func NewWithTimeout(pool *forkjoin.Pool, timeout time.Duration, opts ...Option) *Group {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return newGroup(ctx, cancel, pool, opts)
}

func newGroup(ctx context.Context, cancel context.CancelFunc, pool *forkjoin.Pool, opts []Option) *Group {
	return &Group{
		pool:   pool,
		ctx:    ctx,
		cancel: cancel,
		config: BuildConfig(opts),
	}
}

// Go schedules fn on the pool with panic recovery.
// If the pool refuses the task, the refusal is handled like an error
// returned by fn.
func (g *Group) Go(fn func(context.Context) error) {
	g.running.Add(1)
	g.wg.Add(1)

	err := g.pool.Schedule(func() { g.run(fn) })
	if err != nil {
		g.finish(err)
	}
}

// GoSafe schedules a function, ignoring its outcome
// This is for fire-and-forget tasks
func (g *Group) GoSafe(fn func(context.Context)) {
	g.Go(func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

func (g *Group) run(fn func(context.Context) error) {
	var err error
	var pc panics.Catcher
	pc.Try(func() { err = fn(g.ctx) })
	if r := pc.Recovered(); r != nil {
		err = &PanicError{Value: r.Value, Stack: string(r.Stack)}
	}
	g.finish(err)
}

func (g *Group) finish(err error) {
	if err != nil {
		g.failed.Add(1)
		g.handleError(err)
	}
	g.completed.Add(1)
	g.running.Add(-1)
	g.wg.Done()
}

// Wait waits for all functions to complete and returns any errors.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.Stop()

	switch g.config.errorMode {
	case IgnoreErrors:
		return nil

	case FailFast:
		g.errorsMux.Lock()
		defer g.errorsMux.Unlock()
		return g.firstErr

	case CollectAll:
		g.errorsMux.Lock()
		collectedErrors := make([]error, len(g.errors))
		copy(collectedErrors, g.errors)
		g.errorsMux.Unlock()

		if len(collectedErrors) > 0 {
			return AggregateError{Errors: collectedErrors}
		}
		return nil

	default:
		return nil
	}
}

// Stop cancels the group context, signaling all functions to stop
func (g *Group) Stop() {
	g.cancel()
}

// Context returns the context passed to every function
func (g *Group) Context() context.Context {
	return g.ctx
}

// Stats returns current execution counters
func (g *Group) Stats() Stats {
	return Stats{
		Running:   g.running.Load(),
		Completed: g.completed.Load(),
		Failed:    g.failed.Load(),
	}
}

// handleError processes an error according to the error mode
func (g *Group) handleError(err error) {
	switch g.config.errorMode {
	case IgnoreErrors:
		return

	case FailFast:
		g.errorsMux.Lock()
		first := g.firstErr == nil
		if first {
			g.firstErr = err
		}
		g.errorsMux.Unlock()
		if first {
			g.cancel()
		}

	case CollectAll:
		g.errorsMux.Lock()
		g.errors = append(g.errors, err)
		g.errorsMux.Unlock()
	}
}
