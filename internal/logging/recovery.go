package logging

import (
	"runtime/debug"

	"github.com/cockroachdb/errors"
)

// RecoveryHandler turns panics of one component into logged errors.
type RecoveryHandler struct {
	Component string
	Logger    *Logger
	// OnPanic, when set, sees the recovered value and the stack.
	OnPanic func(rec any, stack string)
}

// NewRecoveryHandler creates a recovery handler for a component.
func NewRecoveryHandler(component string) *RecoveryHandler {
	return &RecoveryHandler{Component: component}
}

// WithLogger sets the logger panics are reported to.
func (r *RecoveryHandler) WithLogger(l *Logger) *RecoveryHandler {
	r.Logger = l
	return r
}

// Wrap runs fn, swallowing a panic after reporting it.
func (r *RecoveryHandler) Wrap(fn func()) {
	_ = r.WrapError(func() error {
		fn()
		return nil
	})
}

// WrapError runs fn and converts a panic into the returned error.
func (r *RecoveryHandler) WrapError(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = r.report(rec, string(debug.Stack()))
		}
	}()
	return fn()
}

func (r *RecoveryHandler) report(rec any, stack string) error {
	err := errors.Newf("panic in %s: %v", r.Component, rec)

	logger := r.Logger
	if logger == nil {
		logger = New(r.Component)
	}
	logger.Error("panic_recovered", map[string]any{"stack": stack}, err)

	if r.OnPanic != nil {
		r.OnPanic(rec, stack)
	}
	return err
}

// SafeGo launches fn on a goroutine whose panics are logged to l.
func SafeGo(l *Logger, fn func()) {
	go NewRecoveryHandler(l.Component()).WithLogger(l).Wrap(fn)
}

// Recover is a defer-able guard that logs a panic and lets the caller
// return normally.
func Recover(l *Logger) {
	if rec := recover(); rec != nil {
		NewRecoveryHandler(l.Component()).WithLogger(l).report(rec, string(debug.Stack()))
	}
}
