// Package director drives a pipeline through its before, stage and after
// phases while tracking a sticky pass/fail status.
package director

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/joss/trackhub/internal/logging"
)

// ErrAlreadyRun is reported when a Director is asked to run twice.
var ErrAlreadyRun = errors.New("director already ran")

type State string

const (
	StateNotStarted    State = "not_started"
	StateRunningBefore State = "running_before"
	StateRunningStage  State = "running_stage"
	StateRunningAfter  State = "running_after"
	StateFinished      State = "finished"
)

var allowedTransitions = map[State]map[State]struct{}{
	StateNotStarted:    {StateRunningBefore: {}},
	StateRunningBefore: {StateRunningStage: {}},
	StateRunningStage:  {StateRunningAfter: {}},
	StateRunningAfter:  {StateFinished: {}},
	StateFinished:      {},
}

// ValidateTransition reports whether from -> to is a legal step.
func ValidateTransition(from, to State) error {
	next, ok := allowedTransitions[from]
	if !ok {
		return errors.Newf("invalid director state: %q", from)
	}
	if _, ok := next[to]; !ok {
		return errors.Newf("invalid director transition: %s -> %s", from, to)
	}
	return nil
}

// Status is the sticky OK/FAIL flag shared by the phases of one run.
type Status struct {
	mu      sync.Mutex
	failed  bool
	reasons []string
}

// SetFailed flips the status to FAIL for the rest of the run.
func (s *Status) SetFailed(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
	if reason != "" {
		s.reasons = append(s.reasons, reason)
	}
}

func (s *Status) IsOK() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.failed
}

// Reasons lists why the run failed, in the order they were recorded.
func (s *Status) Reasons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reasons...)
}

func (s *Status) String() string {
	if s.IsOK() {
		return "OK"
	}
	return "FAIL"
}

// Pipeline is a unit of batch work split in three phases. Every phase
// runs even after an earlier one failed; a phase reports its own
// success and may consult status to decide how much work to do.
type Pipeline interface {
	Name() string
	Before(ctx context.Context, status *Status) bool
	Stage(ctx context.Context, status *Status) bool
	After(ctx context.Context, status *Status) bool
}

// Director runs one Pipeline once.
type Director struct {
	pipeline Pipeline
	logger   *logging.Logger
	status   *Status

	// OnTransition, when set, observes every state change.
	OnTransition func(from, to State)

	mu    sync.Mutex
	state State
}

// New creates a director for a single execution of p.
func New(p Pipeline, logger *logging.Logger) *Director {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Director{
		pipeline: p,
		logger:   logger.With("pipeline", p.Name()),
		status:   &Status{},
		state:    StateNotStarted,
	}
}

func (d *Director) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Director) Status() *Status { return d.status }

func (d *Director) transition(to State) error {
	d.mu.Lock()
	from := d.state
	if err := ValidateTransition(from, to); err != nil {
		d.mu.Unlock()
		return err
	}
	d.state = to
	d.mu.Unlock()
	d.logger.Debug("director_transition", map[string]any{"from": string(from), "to": string(to)})
	if d.OnTransition != nil {
		d.OnTransition(from, to)
	}
	return nil
}

// Run executes before, stage and after in order and returns true only if
// all three succeeded. A failing or panicking phase marks the status FAIL
// without skipping the phases after it.
func (d *Director) Run(ctx context.Context) bool {
	if err := d.transition(StateRunningBefore); err != nil {
		d.logger.Error("director_run_rejected", nil, errors.Wrapf(ErrAlreadyRun, "%v", err))
		return false
	}
	start := time.Now()

	before := d.phase(ctx, "before", d.pipeline.Before)
	d.mustTransition(StateRunningStage)
	stage := d.phase(ctx, "stage", d.pipeline.Stage)
	d.mustTransition(StateRunningAfter)
	after := d.phase(ctx, "after", d.pipeline.After)
	d.mustTransition(StateFinished)

	ok := before && stage && after
	d.logger.TimedEvent("director_finished", start, map[string]any{
		"ok":     ok,
		"status": d.status.String(),
	})
	return ok
}

func (d *Director) mustTransition(to State) {
	if err := d.transition(to); err != nil {
		panic(err)
	}
}

func (d *Director) phase(ctx context.Context, name string, fn func(context.Context, *Status) bool) bool {
	start := time.Now()
	ok := false
	handler := logging.NewRecoveryHandler(d.logger.Component()).WithLogger(d.logger)
	if err := handler.WrapError(func() error {
		ok = fn(ctx, d.status)
		return nil
	}); err != nil {
		ok = false
		d.status.SetFailed(fmt.Sprintf("%s phase panicked: %v", name, err))
	} else if !ok {
		d.status.SetFailed(name + " phase failed")
	}
	d.logger.TimedEvent("phase_finished", start, map[string]any{"phase": name, "ok": ok})
	return ok
}
