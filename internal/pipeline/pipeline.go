// Package pipeline holds the named batch pipelines trackhub can run and
// the plumbing they share: arguments, dependencies and the PoGo batch.
package pipeline

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/joss/trackhub/internal/config"
	"github.com/joss/trackhub/internal/director"
	"github.com/joss/trackhub/internal/exec"
	"github.com/joss/trackhub/internal/logging"
	"github.com/joss/trackhub/internal/metrics"
	"github.com/joss/trackhub/internal/report"
	"github.com/joss/trackhub/internal/session"
	"github.com/joss/trackhub/internal/species"
	"github.com/joss/trackhub/internal/store"
)

var (
	ErrUnknownPipeline = errors.New("unknown pipeline")
	ErrInvalidArgs     = errors.New("invalid pipeline arguments")
)

// Args are the key=value arguments given to a pipeline.
type Args map[string]string

// ParseArgs turns key=value words into Args. Values may contain '='.
func ParseArgs(words []string) (Args, error) {
	args := make(Args, len(words))
	for _, w := range words {
		key, value, ok := strings.Cut(w, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Wrapf(ErrInvalidArgs, "expected key=value, got %q", w)
		}
		args[key] = value
	}
	return args, nil
}

// Get returns the value for key, or "" when missing.
func (a Args) Get(key string) string { return a[key] }

func (a Args) only(allowed ...string) error {
	var unknown []string
	for k := range a {
		if !slices.Contains(allowed, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return errors.Wrapf(ErrInvalidArgs, "unknown keys %s (allowed: %s)",
			strings.Join(unknown, ", "), strings.Join(allowed, ", "))
	}
	return nil
}

// RunRecorder persists pipeline runs and the PoGo invocations they made.
type RunRecorder interface {
	RecordRun(ctx context.Context, r *store.Run) error
	RecordInvocation(ctx context.Context, inv *store.Invocation) error
}

// Deps are the collaborators a pipeline is built with. Config and
// Session are required; everything else has a usable default.
type Deps struct {
	Config  *config.Config
	Session *session.Session
	Logs    *logging.Factory
	Species species.ReferenceLookup
	Runner  exec.Runner
	History RunRecorder
	Metrics *metrics.Metrics
}

func (d Deps) withDefaults() (Deps, error) {
	if d.Config == nil {
		return d, errors.New("pipeline deps: config is required")
	}
	if d.Session == nil {
		return d, errors.New("pipeline deps: session is required")
	}
	if d.Species == nil {
		d.Species = species.FromConfig(d.Config)
	}
	if d.Runner == nil {
		d.Runner = exec.NewOSRunner()
	}
	return d, nil
}

func (d Deps) logger(component string) *logging.Logger {
	if d.Logs == nil {
		return logging.Discard()
	}
	return d.Logs.For(component)
}

func (d Deps) logFiles() []string {
	if d.Logs == nil {
		return nil
	}
	return d.Logs.LogFiles()
}

// Pipeline is a director.Pipeline that reports what it did.
type Pipeline interface {
	director.Pipeline
	Report() *report.Report
}

// Constructor builds a pipeline from its dependencies and arguments.
type Constructor func(deps Deps, args Args) (Pipeline, error)

var registry = map[string]Constructor{
	TrackhubForProjectName: func(deps Deps, args Args) (Pipeline, error) {
		p, err := NewTrackhubForProject(deps, args)
		if err != nil {
			return nil, err
		}
		return p, nil
	},
	PogoForFilesName: func(deps Deps, args Args) (Pipeline, error) {
		p, err := NewPogoForFiles(deps, args)
		if err != nil {
			return nil, err
		}
		return p, nil
	},
}

// Lookup finds a pipeline constructor by name.
func Lookup(name string) (Constructor, bool) {
	c, ok := registry[name]
	return c, ok
}

// Names lists the registered pipelines.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Outcome is what a finished pipeline leaves behind.
type Outcome struct {
	OK     bool
	Status string
	Report *report.Report
}

// Execute builds the named pipeline and drives it to completion.
func Execute(ctx context.Context, name string, args Args, deps Deps) (*Outcome, error) {
	ctor, ok := Lookup(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPipeline, "%q (known: %s)", name, strings.Join(Names(), ", "))
	}
	p, err := ctor(deps, args)
	if err != nil {
		return nil, errors.Wrapf(err, "build pipeline %s", name)
	}
	d := director.New(p, deps.logger("director"))
	ok = d.Run(ctx)
	if deps.Metrics != nil {
		deps.Metrics.RecordPipeline(ok)
	}
	return &Outcome{OK: ok, Status: d.Status().String(), Report: p.Report()}, nil
}

// recordRun stores the run summary when a history is attached.
func recordRun(ctx context.Context, deps Deps, pipeline string, status *director.Status,
	rep *report.Report, reportPath string, started time.Time, logger *logging.Logger) {
	if deps.History == nil {
		return
	}
	run := &store.Run{
		ID:         deps.Session.ID(),
		Pipeline:   pipeline,
		Status:     string(rep.Status()),
		OK:         status.IsOK(),
		SessionDir: deps.Session.Dir(),
		ReportPath: reportPath,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err := deps.History.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("history_record_failed", map[string]any{"run": run.ID}, err)
	}
}
