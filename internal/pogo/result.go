package pogo

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Output suffixes PoGo is known to produce.
const (
	SuffixBed               = ".bed"
	SuffixPTMBed            = "_ptm.bed"
	SuffixNoPTMBed          = "_no-ptm.bed"
	SuffixPatchHaplScaffBed = "_patch_hapl_scaff.bed"
	SuffixOutGTF            = "_out.gtf"
	SuffixGCT               = ".gct"
)

// RunResult maps output suffixes to the files a PoGo run produced.
type RunResult struct {
	TaxonomyID string

	mu         sync.RWMutex
	sourceFile string
	outputs    map[string]string
}

// NewRunResult catalogs the outputs that sit next to sourceFile.
func NewRunResult(taxonomyID, sourceFile string) (*RunResult, error) {
	r := &RunResult{TaxonomyID: taxonomyID}
	if err := r.SetSourceFile(sourceFile); err != nil {
		return nil, err
	}
	return r, nil
}

// SourceFile is the PoGo input the outputs were derived from.
func (r *RunResult) SourceFile() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sourceFile
}

// SetSourceFile points the result at a new input and rebuilds the catalog.
func (r *RunResult) SetSourceFile(path string) error {
	outputs, err := Catalog(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sourceFile = path
	r.outputs = outputs
	return nil
}

// File returns the output for suffix. Missing outputs are normal: what
// PoGo writes depends on the input and the PoGo version.
func (r *RunResult) File(suffix string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	path, ok := r.outputs[suffix]
	return path, ok
}

// Suffixes lists the cataloged suffixes in lexical order.
func (r *RunResult) Suffixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.outputs))
}

// Outputs returns a copy of the suffix to path map.
func (r *RunResult) Outputs() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.outputs)
}

// Catalog finds the files in sourceFile's directory whose names extend
// its base name, keyed by the extra suffix.
func Catalog(sourceFile string) (map[string]string, error) {
	dir, base := filepath.Split(sourceFile)
	if base == "" {
		return nil, errors.Newf("catalog outputs: %q has no file name", sourceFile)
	}
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog outputs of %s", sourceFile)
	}
	outputs := make(map[string]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) <= len(base) || !strings.HasPrefix(name, base) {
			continue
		}
		outputs[name[len(base):]] = filepath.Join(dir, name)
	}
	return outputs, nil
}
