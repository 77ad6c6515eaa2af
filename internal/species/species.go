// Package species resolves NCBI taxonomy ids to the reference files PoGo
// maps against.
package species

import (
	"context"
	"slices"
	"strings"

	"github.com/joss/trackhub/internal/config"
)

// Reference is the genome annotation used for one species.
type Reference struct {
	TaxonomyID          string
	Name                string
	Assembly            string
	ProteinSequenceFile string
	GTFFile             string
}

// ReferenceLookup finds the reference for a taxonomy id.
type ReferenceLookup interface {
	Lookup(ctx context.Context, taxonomyID string) (Reference, bool)
}

// Catalog is a ReferenceLookup over the configured species.
type Catalog struct {
	refs map[string]Reference
}

// NewCatalog indexes refs by taxonomy id. Later duplicates win.
func NewCatalog(refs ...Reference) *Catalog {
	c := &Catalog{refs: make(map[string]Reference, len(refs))}
	for _, r := range refs {
		c.refs[strings.TrimSpace(r.TaxonomyID)] = r
	}
	return c
}

// FromConfig builds a catalog from the species section of cfg.
func FromConfig(cfg *config.Config) *Catalog {
	refs := make([]Reference, 0, len(cfg.Species))
	for _, s := range cfg.Species {
		refs = append(refs, Reference{
			TaxonomyID:          s.TaxonomyID,
			Name:                s.Name,
			Assembly:            s.Assembly,
			ProteinSequenceFile: s.ProteinSequenceFile,
			GTFFile:             s.GTFFile,
		})
	}
	return NewCatalog(refs...)
}

func (c *Catalog) Lookup(_ context.Context, taxonomyID string) (Reference, bool) {
	r, ok := c.refs[strings.TrimSpace(taxonomyID)]
	return r, ok
}

// List returns every reference ordered by taxonomy id.
func (c *Catalog) List() []Reference {
	out := make([]Reference, 0, len(c.refs))
	for _, r := range c.refs {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Reference) int {
		return strings.Compare(a.TaxonomyID, b.TaxonomyID)
	})
	return out
}
