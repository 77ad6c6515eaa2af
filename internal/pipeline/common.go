package pipeline

import (
	"context"
	"time"

	"github.com/joss/trackhub/internal/director"
	"github.com/joss/trackhub/internal/logging"
	"github.com/joss/trackhub/internal/report"
)

// AbortMessage is reported by a stage that refuses to run after an
// earlier phase failed.
const AbortMessage = "--- ABORT Pipeline Execution ---, the previous stage failed"

// common is the state every PoGo based pipeline carries.
type common struct {
	name    string
	deps    Deps
	args    Args
	report  *report.Report
	logger  *logging.Logger
	started time.Time
	batch   *pogoBatch
}

func newCommon(name string, deps Deps, args Args, allowed ...string) (common, error) {
	deps, err := deps.withDefaults()
	if err != nil {
		return common{}, err
	}
	if err := args.only(allowed...); err != nil {
		return common{}, err
	}
	return common{
		name:    name,
		deps:    deps,
		args:    args,
		report:  report.New(),
		logger:  deps.logger(name),
		started: time.Now(),
	}, nil
}

func (c *common) Name() string { return c.name }

func (c *common) Report() *report.Report { return c.report }

// open records the session in the report and prepares the PoGo batch.
func (c *common) open() bool {
	c.report.SetSessionDir(c.deps.Session.Dir())
	c.report.AddLogFiles(c.deps.logFiles()...)
	batch, err := newPogoBatch(c.deps, c.report)
	if err != nil {
		c.fail("could not prepare PoGo runs", err)
		return false
	}
	c.batch = batch
	return true
}

func (c *common) fail(msg string, err error) {
	if err != nil {
		msg += ": " + err.Error()
	}
	c.logger.Error("pipeline_error", map[string]any{"message": msg}, err)
	c.report.AddError(msg)
}

func (c *common) warn(msg string) {
	c.logger.Warn("pipeline_warning", map[string]any{"message": msg}, nil)
	c.report.AddWarning(msg)
}

// mayProceed reports the abort when an earlier phase failed.
func (c *common) mayProceed(status *director.Status) bool {
	if status.IsOK() && c.batch != nil {
		return true
	}
	c.logger.Warn("pipeline_aborted", map[string]any{"reasons": status.Reasons()}, nil)
	c.report.AddError(AbortMessage)
	return false
}

// finish writes the report to every path and records the run.
func (c *common) finish(ctx context.Context, status *director.Status, paths ...string) bool {
	if !status.IsOK() {
		c.logger.Warn("pipeline_finishing_not_ok", map[string]any{"reasons": status.Reasons()}, nil)
	}
	for _, p := range paths {
		c.logger.Info("report_dumped", map[string]any{"path": p})
	}
	ok := true
	if err := c.report.WriteFiles(paths...); err != nil {
		c.logger.Error("report_write_failed", nil, err)
		ok = false
	}
	recordRun(ctx, c.deps, c.name, status, c.report, paths[0], c.started, c.logger)
	return ok
}
