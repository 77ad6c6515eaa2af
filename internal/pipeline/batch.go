package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/joss/trackhub/internal/logging"
	"github.com/joss/trackhub/internal/pogo"
	"github.com/joss/trackhub/internal/pool"
	"github.com/joss/trackhub/internal/report"
	"github.com/joss/trackhub/internal/store"
)

// pogoBatch runs a set of PoGo invocations through a pool and folds
// their outcomes into a report.
type pogoBatch struct {
	deps     Deps
	report   *report.Report
	logger   *logging.Logger
	settings pogo.Settings
	pool     *pool.Pool

	invocations map[string]*pogo.Invocation
	results     []*pogo.RunResult
}

func newPogoBatch(deps Deps, rep *report.Report) (*pogoBatch, error) {
	cfg := deps.Config
	settings := pogo.Settings{
		Binary:     cfg.Pogo.Binary,
		Timeout:    cfg.PogoTimeout(),
		Grace:      cfg.PogoGrace(),
		Shell:      cfg.Pogo.Shell,
		TimePrefix: cfg.Pogo.TimePrefix,
	}
	if cfg.Pogo.IsolateOutputs {
		dir, err := deps.Session.WorkDir("pogo")
		if err != nil {
			return nil, err
		}
		settings.WorkDir = dir
	}

	opts := []pool.Option{
		pool.WithMaxParallel(cfg.MaxParallel),
		pool.WithLogger(deps.logger("pool")),
	}
	if deps.Metrics != nil {
		opts = append(opts, pool.WithCallbacks(deps.Metrics.Callbacks()))
	}
	return &pogoBatch{
		deps:        deps,
		report:      rep,
		logger:      deps.logger("pogo"),
		settings:    settings,
		pool:        pool.New(opts...),
		invocations: make(map[string]*pogo.Invocation),
	}, nil
}

// add registers one run. Missing inputs are not checked here: they
// surface as validation failures once the pool starts the invocation.
func (b *pogoBatch) add(params pogo.Params) (*pogo.Invocation, error) {
	if params.Mismatches == nil {
		params.Mismatches = b.deps.Config.Pogo.Mismatches
	}
	inv := pogo.NewInvocation(params, b.settings, b.deps.Runner, pogo.WithLogger(b.logger))
	if err := b.pool.Add(inv); err != nil {
		return nil, err
	}
	b.invocations[inv.ID()] = inv
	return inv, nil
}

func (b *pogoBatch) size() int { return b.pool.Len() }

// run starts every invocation and collects each one as it finishes. It
// only returns once all of them are done, even if ctx is cancelled.
func (b *pogoBatch) run(ctx context.Context) []*pogo.RunResult {
	start := time.Now()
	b.logger.Info("pogo_batch_started", map[string]any{"invocations": b.pool.Len()})
	if err := b.pool.Start(ctx); err != nil {
		b.report.AddError(fmt.Sprintf("could not start PoGo runs: %v", err))
		return nil
	}

	drain := context.WithoutCancel(ctx)
	for t := range b.pool.Finished(drain) {
		inv, ok := b.invocations[t.ID()]
		if !ok {
			b.logger.Warn("pogo_unknown_task", map[string]any{"task": t.ID()}, nil)
			continue
		}
		b.collect(drain, inv)
	}
	b.logger.TimedEvent("pogo_batch_finished", start, map[string]any{
		"invocations": b.pool.Len(),
		"succeeded":   len(b.results),
	})
	return b.results
}

func (b *pogoBatch) collect(ctx context.Context, inv *pogo.Invocation) {
	params := inv.Params()
	rec := &store.Invocation{
		RunID:      b.deps.Session.ID(),
		TaskID:     inv.ID(),
		TaxonomyID: params.TaxonomyID,
		InputFile:  params.InputFile,
		Command:    inv.Command,
		Duration:   inv.Duration(),
	}
	rec.ReturnCode, _ = inv.ReturnCode()

	res, err := inv.Result()
	if err != nil {
		rec.Error = err.Error()
		b.logger.Error("pogo_failed", map[string]any{"input": params.InputFile}, err)
		b.report.AddError(fmt.Sprintf("PoGo FAILED for taxonomy '%s', input file '%s': %v",
			params.TaxonomyID, params.InputFile, err))
	} else {
		rec.Success = true
		b.results = append(b.results, res)
		b.logger.Info("pogo_succeeded", map[string]any{
			"input":   params.InputFile,
			"outputs": len(res.Suffixes()),
		})
		b.report.AddSuccess(fmt.Sprintf("PoGo SUCCESS for taxonomy '%s', input file '%s'",
			params.TaxonomyID, params.InputFile))
	}

	if b.deps.History != nil {
		if err := b.deps.History.RecordInvocation(ctx, rec); err != nil {
			b.logger.Warn("history_record_failed", map[string]any{"task": inv.ID()}, err)
		}
	}
}
