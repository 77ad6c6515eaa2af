// Package pool runs a fixed batch of tasks and hands them back one at a
// time in the order they finish.
package pool

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"

	"github.com/joss/trackhub/internal/logging"
	"github.com/joss/trackhub/internal/task"
)

var (
	ErrPoolStarted    = errors.New("pool already started")
	ErrPoolNotStarted = errors.New("pool not started")
	ErrDuplicateTask  = errors.New("task already registered")
)

// Callbacks observe task transitions. They run on pool goroutines and
// must not block.
type Callbacks struct {
	OnTaskStarted  func(t task.Task)
	OnTaskFinished func(t task.Task, elapsed time.Duration)
}

// Option configures a Pool.
type Option func(*Pool)

// WithMaxParallel caps how many tasks run at once. n <= 0 runs all of
// them together.
func WithMaxParallel(n int) Option {
	return func(p *Pool) { p.maxParallel = n }
}

// WithCallbacks installs task observers.
func WithCallbacks(cb Callbacks) Option {
	return func(p *Pool) { p.callbacks = cb }
}

// WithLogger sets the pool logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// Pool owns a batch of tasks registered before Start.
type Pool struct {
	maxParallel int
	callbacks   Callbacks
	logger      *logging.Logger

	mu        sync.Mutex
	tasks     []task.Task
	ids       map[string]struct{}
	started   bool
	finished  chan task.Task
	claimed   int
	retrieved int
	err       error
}

// New creates an empty pool.
func New(opts ...Option) *Pool {
	p := &Pool{ids: make(map[string]struct{})}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	return p
}

// Add registers a task. Only allowed before Start.
func (p *Pool) Add(t task.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.Wrapf(ErrPoolStarted, "add task %s", t.ID())
	}
	if _, ok := p.ids[t.ID()]; ok {
		return errors.Wrapf(ErrDuplicateTask, "task %s", t.ID())
	}
	p.ids[t.ID()] = struct{}{}
	p.tasks = append(p.tasks, t)
	return nil
}

// Len is the number of registered tasks.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Remaining is how many tasks have not yet been returned by Next.
func (p *Pool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks) - p.retrieved
}

// Err reports misuse detected by Next or WaitAll.
func (p *Pool) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Start launches every task in registration order, respecting the
// parallelism cap. It returns without waiting for any of them.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrPoolStarted
	}
	p.started = true
	tasks := append([]task.Task(nil), p.tasks...)
	p.finished = make(chan task.Task, len(tasks))
	p.mu.Unlock()

	p.logger.Info("pool_started", map[string]any{"tasks": len(tasks), "max_parallel": p.maxParallel})

	var sem *semaphore.Weighted
	if p.maxParallel > 0 {
		sem = semaphore.NewWeighted(int64(p.maxParallel))
	}
	logging.SafeGo(p.logger, func() { p.dispatch(ctx, tasks, sem) })
	return nil
}

func (p *Pool) dispatch(ctx context.Context, tasks []task.Task, sem *semaphore.Weighted) {
	for i, t := range tasks {
		if sem != nil {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Queued work that never got a slot still completes, as cancelled.
				for _, rest := range tasks[i:] {
					rest.Cancel()
					p.watch(rest, time.Now(), nil)
				}
				return
			}
		}
		began := time.Now()
		if err := t.Start(ctx); err != nil {
			p.logger.Warn("task_start_failed", map[string]any{"task": t.ID()}, err)
		}
		if p.callbacks.OnTaskStarted != nil {
			p.notify(func() { p.callbacks.OnTaskStarted(t) })
		}
		go p.watch(t, began, sem)
	}
}

func (p *Pool) watch(t task.Task, began time.Time, sem *semaphore.Weighted) {
	<-t.Done()
	if sem != nil {
		sem.Release(1)
	}
	if p.callbacks.OnTaskFinished != nil {
		p.notify(func() { p.callbacks.OnTaskFinished(t, time.Since(began)) })
	}
	p.finished <- t
}

// notify runs a callback; a panicking observer never stalls the pool.
func (p *Pool) notify(fn func()) {
	defer logging.Recover(p.logger)
	fn()
}

// Next blocks until an unreturned task is done and returns it.
//
// A false result has three causes: every task was already returned, ctx
// ended (ctx.Err() is non-nil), or Next was called before Start (Err()
// returns ErrPoolNotStarted). Only the first means the pool is drained.
func (p *Pool) Next(ctx context.Context) (task.Task, bool) {
	p.mu.Lock()
	if p.claimed == len(p.tasks) {
		p.mu.Unlock()
		return nil, false
	}
	if !p.started {
		p.err = ErrPoolNotStarted
		p.mu.Unlock()
		return nil, false
	}
	p.claimed++
	finished := p.finished
	p.mu.Unlock()

	select {
	case t := <-finished:
		p.mu.Lock()
		p.retrieved++
		p.mu.Unlock()
		return t, true
	case <-ctx.Done():
		p.mu.Lock()
		p.claimed--
		p.mu.Unlock()
		return nil, false
	}
}

// Finished ranges over tasks as they complete.
func (p *Pool) Finished(ctx context.Context) iter.Seq[task.Task] {
	return func(yield func(task.Task) bool) {
		for {
			t, ok := p.Next(ctx)
			if !ok || !yield(t) {
				return
			}
		}
	}
}

// WaitAll blocks until every task is done without consuming results.
func (p *Pool) WaitAll(ctx context.Context) error {
	p.mu.Lock()
	if !p.started && len(p.tasks) > 0 {
		p.err = ErrPoolNotStarted
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	tasks := append([]task.Task(nil), p.tasks...)
	p.mu.Unlock()

	for _, t := range tasks {
		if err := t.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// CancelAll cancels every registered task.
func (p *Pool) CancelAll() {
	p.mu.Lock()
	tasks := append([]task.Task(nil), p.tasks...)
	p.mu.Unlock()
	for _, t := range tasks {
		t.Cancel()
	}
}
