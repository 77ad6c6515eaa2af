package pipeline

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"

	"github.com/joss/trackhub/internal/director"
	"github.com/joss/trackhub/internal/pogo"
)

const (
	PogoForFilesName = "run_pogo_for_file"

	ArgInput      = "input"
	ArgTaxonomy   = "taxonomy"
	ArgMismatches = "mm"

	// PogoReportFileName is the report kept in the session directory.
	PogoReportFileName = "pogo_run.report"
)

// PogoForFiles runs PoGo over every file matching a glob, writing the
// results next to each input.
type PogoForFiles struct {
	common

	mismatches *int
	inputs     []string
}

// NewPogoForFiles builds the pipeline from input, taxonomy and the
// optional mm arguments.
func NewPogoForFiles(deps Deps, args Args) (*PogoForFiles, error) {
	c, err := newCommon(PogoForFilesName, deps, args, ArgInput, ArgTaxonomy, ArgMismatches)
	if err != nil {
		return nil, err
	}
	p := &PogoForFiles{common: c}
	if raw := args.Get(ArgMismatches); raw != "" {
		mm, err := strconv.Atoi(raw)
		if err != nil || mm < 0 {
			return nil, errors.Wrapf(ErrInvalidArgs, "mm must be a non-negative integer, got %q", raw)
		}
		p.mismatches = &mm
	}
	return p, nil
}

// Inputs are the files the glob matched, known after Before.
func (p *PogoForFiles) Inputs() []string { return p.inputs }

func (p *PogoForFiles) Before(ctx context.Context, _ *director.Status) bool {
	if !p.open() {
		return false
	}

	taxonomy := p.args.Get(ArgTaxonomy)
	pattern := p.args.Get(ArgInput)
	ok := true
	if taxonomy == "" {
		p.fail("MISSING taxonomy argument", nil)
		ok = false
	}
	if pattern == "" {
		p.fail("MISSING input argument", nil)
		ok = false
	}
	if !ok {
		return false
	}

	ref, found := p.deps.Species.Lookup(ctx, taxonomy)
	if !found {
		p.fail(fmt.Sprintf("NO reference data configured for taxonomy '%s'", taxonomy), nil)
		return false
	}

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		p.fail(fmt.Sprintf("INVALID input pattern '%s'", pattern), err)
		return false
	}
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			p.inputs = append(p.inputs, m)
		}
	}
	if len(p.inputs) == 0 {
		p.fail(fmt.Sprintf("input '%s' matched NO files", pattern), nil)
		return false
	}

	for _, in := range p.inputs {
		if _, err := p.batch.add(pogo.Params{
			TaxonomyID:          taxonomy,
			InputFile:           in,
			ProteinSequenceFile: ref.ProteinSequenceFile,
			GTFFile:             ref.GTFFile,
			Mismatches:          p.mismatches,
		}); err != nil {
			p.fail(fmt.Sprintf("could not register PoGo run for '%s'", in), err)
			return false
		}
	}
	p.logger.Debug("inputs_registered", map[string]any{"inputs": len(p.inputs), "taxonomy": taxonomy})
	return true
}

func (p *PogoForFiles) Stage(ctx context.Context, status *director.Status) bool {
	if !p.mayProceed(status) {
		return false
	}
	if results := p.batch.run(ctx); len(results) == 0 {
		p.fail("PoGo did not succeed for any input file", nil)
		return false
	}
	return true
}

func (p *PogoForFiles) After(ctx context.Context, status *director.Status) bool {
	return p.finish(ctx, status, p.deps.Session.ReportFile(PogoReportFileName))
}
