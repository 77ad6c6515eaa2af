package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/joss/trackhub/internal/director"
	"github.com/joss/trackhub/internal/pogo"
)

const (
	TrackhubForProjectName = "create_trackhub_for_project"

	// ArgProjectDataFile points at the project descriptor JSON.
	ArgProjectDataFile = "project_data_file"

	// TrackhubReportFileName is the report kept in the session directory.
	TrackhubReportFileName = "trackhub_creation.report"
)

// TrackhubForProject runs PoGo for every track of a project and
// summarizes the results as a trackhub.
type TrackhubForProject struct {
	common

	descriptor *ProjectDescriptor
	tracks     []TrackDescriptor
	assemblies map[string]string
}

// NewTrackhubForProject builds the pipeline. Only project_data_file is
// accepted as an argument.
func NewTrackhubForProject(deps Deps, args Args) (*TrackhubForProject, error) {
	c, err := newCommon(TrackhubForProjectName, deps, args, ArgProjectDataFile)
	if err != nil {
		return nil, err
	}
	return &TrackhubForProject{common: c, assemblies: make(map[string]string)}, nil
}

// Descriptor is the loaded project descriptor, nil until Before read it.
func (p *TrackhubForProject) Descriptor() *ProjectDescriptor { return p.descriptor }

// Before loads the descriptor, selects the tracks that can be processed
// and registers one PoGo run per track.
func (p *TrackhubForProject) Before(ctx context.Context, _ *director.Status) bool {
	if !p.open() {
		return false
	}

	path := p.args.Get(ArgProjectDataFile)
	if path == "" {
		p.fail(fmt.Sprintf("INVALID / MISSING Project Trackhub Descriptor file, '%s'", path), nil)
		return false
	}
	p.logger.Info("descriptor_loading", map[string]any{"path": path})
	d, err := LoadProjectDescriptor(path)
	if err != nil {
		p.fail(fmt.Sprintf("INVALID / MISSING Project Trackhub Descriptor file, '%s'", path), err)
		return false
	}
	p.descriptor = d

	if info, err := os.Stat(d.DestinationPath); err != nil || !info.IsDir() {
		p.fail(fmt.Sprintf("Trackhub destination path NOT VALID, '%s'", d.DestinationPath), nil)
		return false
	}

	p.selectTracks(ctx)
	if len(p.tracks) == 0 {
		p.fail("Project Trackhub contains NO VALID TRACKS", nil)
		return false
	}

	for _, track := range p.tracks {
		ref, _ := p.deps.Species.Lookup(ctx, track.Species)
		if _, err := p.batch.add(pogo.Params{
			TaxonomyID:          track.Species,
			InputFile:           track.PogoFile,
			ProteinSequenceFile: ref.ProteinSequenceFile,
			GTFFile:             ref.GTFFile,
		}); err != nil {
			p.fail(fmt.Sprintf("could not register PoGo run for track '%s'", track.Name), err)
			return false
		}
	}
	p.logger.Debug("tracks_registered", map[string]any{"tracks": len(p.tracks)})
	return true
}

// selectTracks keeps the tracks whose species has a reference, one per
// taxonomy id.
func (p *TrackhubForProject) selectTracks(ctx context.Context) {
	seen := make(map[string]string)
	for _, track := range p.descriptor.Tracks {
		ref, ok := p.deps.Species.Lookup(ctx, track.Species)
		if !ok {
			p.warn(fmt.Sprintf("track '%s' SKIPPED, no reference data for taxonomy '%s'", track.Name, track.Species))
			continue
		}
		if other, dup := seen[track.Species]; dup {
			p.warn(fmt.Sprintf("track '%s' SKIPPED, DUPLICATED taxonomy '%s' already used by track '%s'",
				track.Name, track.Species, other))
			continue
		}
		seen[track.Species] = track.Name
		p.assemblies[track.Species] = ref.Assembly
		p.tracks = append(p.tracks, track)
	}
}

// Stage runs PoGo for every registered track and writes the hub summary
// for the tracks that succeeded.
func (p *TrackhubForProject) Stage(ctx context.Context, status *director.Status) bool {
	if !p.mayProceed(status) {
		return false
	}
	p.logger.Debug("pogo_running", map[string]any{"tracks": p.batch.size()})
	results := p.batch.run(ctx)
	if len(results) == 0 {
		p.fail("PoGo did not succeed for any project track", nil)
		return false
	}

	byTaxonomy := make(map[string]*pogo.RunResult, len(results))
	for _, r := range results {
		byTaxonomy[r.TaxonomyID] = r
	}
	hub := &Hub{
		Name:       p.descriptor.Name,
		ShortLabel: p.descriptor.ShortLabel,
		LongLabel:  p.descriptor.LongLabel,
		Type:       p.descriptor.Type,
		Email:      p.descriptor.Email,
	}
	for _, track := range p.tracks {
		if r, ok := byTaxonomy[track.Species]; ok {
			hub.Tracks = append(hub.Tracks, newHubTrack(track, p.assemblies[track.Species], r))
		}
	}
	path, err := hub.WriteFile(p.descriptor.DestinationPath)
	if err != nil {
		p.fail("could not write the trackhub summary", err)
		return false
	}
	p.report.SetHubDescriptorFile(path)
	p.logger.Info("hub_written", map[string]any{"path": path, "tracks": len(hub.Tracks)})
	return true
}

// After always runs: it dumps the report to the session directory and to
// the path the descriptor asks for, then records the run.
func (p *TrackhubForProject) After(ctx context.Context, status *director.Status) bool {
	paths := []string{p.deps.Session.ReportFile(TrackhubReportFileName)}
	if p.descriptor != nil && p.descriptor.ReportFilePath != "" {
		paths = append(paths, p.descriptor.ReportFilePath)
	}
	return p.finish(ctx, status, paths...)
}
