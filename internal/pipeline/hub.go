package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/joss/trackhub/internal/pogo"
)

// HubFileName is the hub summary written into the destination directory.
const HubFileName = "hub.json"

// Hub summarizes the tracks a project trackhub is made of.
type Hub struct {
	Name       string     `json:"name"`
	ShortLabel string     `json:"short_label"`
	LongLabel  string     `json:"long_label"`
	Type       string     `json:"type"`
	Email      string     `json:"email"`
	Tracks     []HubTrack `json:"tracks"`
}

// HubTrack is one species track with the files PoGo produced for it.
type HubTrack struct {
	Name       string            `json:"name"`
	ShortLabel string            `json:"short_label"`
	LongLabel  string            `json:"long_label"`
	TaxonomyID string            `json:"taxonomy_id"`
	Assembly   string            `json:"assembly,omitempty"`
	SourceFile string            `json:"source_file"`
	Outputs    map[string]string `json:"outputs"`
}

func newHubTrack(track TrackDescriptor, assembly string, res *pogo.RunResult) HubTrack {
	return HubTrack{
		Name:       track.Name,
		ShortLabel: track.ShortLabel,
		LongLabel:  track.LongLabel,
		TaxonomyID: res.TaxonomyID,
		Assembly:   assembly,
		SourceFile: res.SourceFile(),
		Outputs:    res.Outputs(),
	}
}

// WriteFile stores the hub as indented JSON in dir and returns its path.
func (h *Hub) WriteFile(dir string) (string, error) {
	data, err := json.MarshalIndent(h, "", "    ")
	if err != nil {
		return "", errors.Wrap(err, "encode hub")
	}
	path := filepath.Join(dir, HubFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "write hub %s", path)
	}
	return path, nil
}
