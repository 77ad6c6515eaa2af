// Package task defines units of work that run on their own goroutine and
// can be observed, waited on and cancelled from outside.
package task

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/oklog/ulid/v2"

	"github.com/joss/trackhub/internal/logging"
)

// State is the lifecycle position of a task.
type State int

const (
	StatePending State = iota
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Task is a unit of work with an observable lifecycle.
type Task interface {
	ID() string
	// Start launches the work and returns immediately.
	Start(ctx context.Context) error
	// Wait blocks until the task is done or ctx ends.
	Wait(ctx context.Context) error
	Cancel()
	Done() <-chan struct{}
	IsDone() bool
	State() State
	Stdout() ([]byte, error)
	Stderr() ([]byte, error)
	IsSuccess() (bool, error)
	// Err is the failure cause once done, nil on success.
	Err() error
}

// NewID returns a fresh sortable task identifier.
func NewID() string {
	return ulid.Make().String()
}

// Result is what a task body hands back when it finishes.
type Result struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// Base implements the lifecycle bookkeeping shared by every Task.
// Concrete tasks embed it and call Launch from their Start method.
type Base struct {
	id     string
	logger *logging.Logger

	mu      sync.Mutex
	state   State
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	result  Result
}

// NewBase creates the shared state for a task. An empty id gets a ULID.
func NewBase(id string, logger *logging.Logger) *Base {
	if id == "" {
		id = NewID()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Base{
		id:     id,
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (b *Base) ID() string { return b.id }

// Logger returns the logger the task reports to.
func (b *Base) Logger() *logging.Logger { return b.logger }

// Launch runs body on a goroutine owned by the task. A panic in body is
// recovered and recorded as an execution failure.
func (b *Base) Launch(ctx context.Context, body func(ctx context.Context) Result) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errors.Wrapf(ErrAlreadyStarted, "task %s", b.id)
	}
	b.started = true
	if b.state == StateDone {
		// cancelled before start
		b.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.state = StateRunning
	b.mu.Unlock()

	go func() {
		defer cancel()
		var res Result
		handler := logging.NewRecoveryHandler(b.logger.Component()).WithLogger(b.logger)
		if perr := handler.WrapError(func() error {
			res = body(runCtx)
			return nil
		}); perr != nil {
			res.Err = errors.Wrapf(ErrExecution, "%v", perr)
		}
		b.Finish(res)
	}()
	return nil
}

// Reject completes a task that failed before any work was launched.
func (b *Base) Reject(err error) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errors.Wrapf(ErrAlreadyStarted, "task %s", b.id)
	}
	b.started = true
	b.mu.Unlock()
	b.Finish(Result{Err: err})
	return nil
}

// Finish records the terminal result. Only the first call has an effect.
func (b *Base) Finish(res Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finishLocked(res)
}

func (b *Base) finishLocked(res Result) {
	if b.state == StateDone {
		return
	}
	b.state = StateDone
	b.result = res
	close(b.done)
}

// Cancel stops a running task. A task cancelled before Start completes
// immediately without doing any work.
func (b *Base) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.state == StateDone:
	case !b.started:
		b.finishLocked(Result{Err: errors.Wrapf(ErrCanceled, "task %s cancelled before start", b.id)})
	case b.cancel != nil:
		b.cancel()
	}
}

func (b *Base) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Base) Done() <-chan struct{} { return b.done }

// Started reports whether Start (or Reject) has already been called.
func (b *Base) Started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

func (b *Base) IsDone() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) Stdout() ([]byte, error) {
	res, err := b.terminal()
	return res.Stdout, err
}

func (b *Base) Stderr() ([]byte, error) {
	res, err := b.terminal()
	return res.Stderr, err
}

func (b *Base) IsSuccess() (bool, error) {
	res, err := b.terminal()
	if err != nil {
		return false, err
	}
	return res.Err == nil, nil
}

func (b *Base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result.Err
}

func (b *Base) terminal() (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateDone {
		return Result{}, errors.Wrapf(ErrNotDone, "task %s is %s", b.id, b.state)
	}
	return b.result, nil
}

// FuncTask runs an in-process function as a Task.
type FuncTask struct {
	*Base
	fn func(ctx context.Context) error
}

// Func wraps fn as a Task. Context cancellation surfacing from fn is
// marked as ErrCanceled; match it with errors.Is from cockroachdb/errors.
func Func(id string, fn func(ctx context.Context) error) *FuncTask {
	return &FuncTask{Base: NewBase(id, nil), fn: fn}
}

func (f *FuncTask) Start(ctx context.Context) error {
	return f.Launch(ctx, func(ctx context.Context) Result {
		err := f.fn(ctx)
		if err != nil && errors.Is(err, context.Canceled) {
			err = errors.Mark(err, ErrCanceled)
		}
		return Result{Err: err}
	})
}
