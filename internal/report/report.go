// Package report accumulates the outcome of a pipeline run and persists
// it as a JSON document.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
)

// Status is the overall verdict of a run.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
)

func (s Status) rank() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusError:
		return 2
	default:
		return 0
	}
}

// Report collects messages from a pipeline. Status only ever escalates.
type Report struct {
	mu sync.Mutex
	doc document
}

type document struct {
	Status                    Status   `json:"status"`
	SuccessMessages           []string `json:"success_messages"`
	WarningMessages           []string `json:"warning_messages"`
	ErrorMessages             []string `json:"error_messages"`
	LogFiles                  []string `json:"log_files"`
	HubDescriptorFilePath     string   `json:"hub_descriptor_file_path,omitempty"`
	PipelineSessionWorkingDir string   `json:"pipeline_session_working_dir,omitempty"`
}

// New creates an empty SUCCESS report.
func New() *Report {
	return &Report{doc: document{
		Status:          StatusSuccess,
		SuccessMessages: []string{},
		WarningMessages: []string{},
		ErrorMessages:   []string{},
		LogFiles:        []string{},
	}}
}

func (r *Report) raise(s Status) {
	if s.rank() > r.doc.Status.rank() {
		r.doc.Status = s
	}
}

func (r *Report) AddSuccess(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.SuccessMessages = append(r.doc.SuccessMessages, msg)
}

// AddWarning records msg and raises the status to at least WARNING.
func (r *Report) AddWarning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.WarningMessages = append(r.doc.WarningMessages, msg)
	r.raise(StatusWarning)
}

// AddError records msg and sets the status to ERROR.
func (r *Report) AddError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.ErrorMessages = append(r.doc.ErrorMessages, msg)
	r.raise(StatusError)
}

func (r *Report) AddLogFiles(paths ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range paths {
		if !slices.Contains(r.doc.LogFiles, p) {
			r.doc.LogFiles = append(r.doc.LogFiles, p)
		}
	}
}

func (r *Report) SetHubDescriptorFile(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.HubDescriptorFilePath = path
}

func (r *Report) SetSessionDir(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.PipelineSessionWorkingDir = path
}

func (r *Report) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Status
}

func (r *Report) SuccessMessages() []string { return r.snapshot().SuccessMessages }
func (r *Report) WarningMessages() []string { return r.snapshot().WarningMessages }
func (r *Report) ErrorMessages() []string   { return r.snapshot().ErrorMessages }
func (r *Report) LogFiles() []string        { return r.snapshot().LogFiles }
func (r *Report) HubDescriptorFile() string { return r.snapshot().HubDescriptorFilePath }
func (r *Report) SessionDir() string        { return r.snapshot().PipelineSessionWorkingDir }

func (r *Report) snapshot() document {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.doc
	d.SuccessMessages = slices.Clone(d.SuccessMessages)
	d.WarningMessages = slices.Clone(d.WarningMessages)
	d.ErrorMessages = slices.Clone(d.ErrorMessages)
	d.LogFiles = slices.Clone(d.LogFiles)
	return d
}

// MarshalJSON renders the persisted document.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.snapshot())
}

// UnmarshalJSON loads a persisted document. Missing lists become empty.
func (r *Report) UnmarshalJSON(data []byte) error {
	var d document
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	switch d.Status {
	case StatusSuccess, StatusWarning, StatusError:
	default:
		return errors.Newf("unknown report status %q", d.Status)
	}
	for _, l := range []*[]string{&d.SuccessMessages, &d.WarningMessages, &d.ErrorMessages, &d.LogFiles} {
		if *l == nil {
			*l = []string{}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = d
	return nil
}

// WriteFile persists the report as indented JSON, creating parent dirs.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r.snapshot(), "", "    ")
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "create report dir for %s", path)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return errors.Wrapf(err, "write report %s", path)
	}
	return nil
}

// WriteFiles writes the report to every path, attempting all of them.
func (r *Report) WriteFiles(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := r.WriteFile(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReadFile loads a report written by WriteFile.
func ReadFile(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read report %s", path)
	}
	r := New()
	if err := json.Unmarshal(data, r); err != nil {
		return nil, errors.Wrapf(err, "decode report %s", path)
	}
	return r, nil
}
