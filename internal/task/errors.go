package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Failure kinds. Match with errors.Is.
var (
	ErrNotDone        = errors.New("task not done")
	ErrAlreadyStarted = errors.New("task already started")
	ErrValidation     = errors.New("validation failed")
	ErrTimeout        = errors.New("timed out")
	ErrExecution      = errors.New("execution failed")
	ErrCanceled       = errors.New("canceled")
)

// ExitError reports a process that ran but exited with a nonzero code.
// Code is -1 when the process could not be spawned at all.
type ExitError struct {
	Code    int
	Command string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("execution failed: %s: %v", e.Command, e.Cause)
	}
	return fmt.Sprintf("execution failed: %s: exit status %d", e.Command, e.Code)
}

func (e *ExitError) Unwrap() error { return ErrExecution }

// TimeoutError reports a process killed after exceeding its budget.
type TimeoutError struct {
	After   time.Duration
	Command string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s: %s", e.After, e.Command)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// ValidationError lists every missing prerequisite in one error.
func ValidationError(problems ...string) error {
	return errors.Wrapf(ErrValidation, "missing prerequisites: %s", strings.Join(problems, "; "))
}
