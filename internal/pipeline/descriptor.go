package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// Defaults applied to project descriptors that leave fields out.
const (
	DefaultHubType       = "PROTEOMICS"
	DefaultHubEmail      = "pride-support@ebi.ac.uk"
	DefaultHubShortLabel = "--- NO SHORT LABEL HAS BEEN DEFINED FOR THIS TRACKHUB ---"
	DefaultHubLongLabel  = "--- NO LONG LABEL HAS BEEN DEFINED FOR THIS TRACKHUB ---"
)

// ProjectDescriptor describes the trackhub to build for one project.
type ProjectDescriptor struct {
	Name            string            `json:"trackHubName"`
	ShortLabel      string            `json:"trackHubShortLabel"`
	LongLabel       string            `json:"trackHubLongLabel"`
	Type            string            `json:"trackHubType"`
	Email           string            `json:"trackHubEmail"`
	DestinationPath string            `json:"trackHubInternalAbsolutePath"`
	ReportFilePath  string            `json:"TrackhubCreationReportFilePath"`
	Tracks          []TrackDescriptor `json:"trackMaps"`
}

// TrackDescriptor is one species track of a project.
type TrackDescriptor struct {
	Name       string `json:"trackName"`
	ShortLabel string `json:"trackShortLabel"`
	LongLabel  string `json:"trackLongLabel"`
	Species    string `json:"trackSpecie"`
	PogoFile   string `json:"pogoFile"`
}

// LoadProjectDescriptor reads a project descriptor and fills in defaults.
// A missing name falls back to the descriptor's file name.
func LoadProjectDescriptor(path string) (*ProjectDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read project descriptor %s", path)
	}
	var d ProjectDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrapf(err, "parse project descriptor %s", path)
	}
	if d.Name == "" {
		d.Name = filepath.Base(path)
	}
	if d.ShortLabel == "" {
		d.ShortLabel = DefaultHubShortLabel
	}
	if d.LongLabel == "" {
		d.LongLabel = DefaultHubLongLabel
	}
	if d.Type == "" {
		d.Type = DefaultHubType
	}
	if d.Email == "" {
		d.Email = DefaultHubEmail
	}
	return &d, nil
}
