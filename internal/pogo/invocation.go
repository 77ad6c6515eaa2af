// Package pogo supervises runs of the PoGo peptide-to-genome mapper.
//
// An Invocation is a task.Task: it checks its inputs, builds the PoGo
// command line, runs it through a shell and, on success, catalogs the
// files PoGo wrote next to its input.
package pogo

import (
	"context"
	"io"
	"os"
	osexec "os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/joss/trackhub/internal/exec"
	"github.com/joss/trackhub/internal/logging"
	"github.com/joss/trackhub/internal/task"
)

// Params are the per-run PoGo arguments.
type Params struct {
	TaxonomyID          string
	InputFile           string
	ProteinSequenceFile string
	GTFFile             string
	// Mismatches is passed as -mm when set.
	Mismatches *int
}

// Settings are the site-wide knobs shared by every invocation.
type Settings struct {
	Binary     string
	Timeout    time.Duration
	Grace      time.Duration
	Shell      string
	TimePrefix bool
	// WorkDir, when set, gives every invocation a private directory the
	// input is staged into, so concurrent runs never share an output prefix.
	WorkDir string
}

// DefaultSettings mirrors the stock PoGo deployment.
func DefaultSettings() Settings {
	return Settings{
		Binary:     "PoGo",
		Timeout:    time.Hour,
		Grace:      exec.DefaultGrace,
		Shell:      "bash",
		TimePrefix: true,
	}
}

// Option configures an Invocation.
type Option func(*options)

type options struct {
	id     string
	logger *logging.Logger
}

// WithID fixes the task identifier.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithLogger routes invocation events to l.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Invocation is one supervised PoGo run.
type Invocation struct {
	*task.Process

	params   Params
	settings Settings
	input    string
	logger   *logging.Logger

	mu     sync.Mutex
	result *RunResult
}

// NewInvocation prepares a PoGo run. Nothing touches the filesystem until Start.
func NewInvocation(params Params, settings Settings, runner exec.Runner, opts ...Option) *Invocation {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = task.NewID()
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	inv := &Invocation{
		params:   params,
		settings: settings,
		input:    params.InputFile,
		logger:   o.logger.With("task", o.id).With("taxonomy", params.TaxonomyID),
	}
	if settings.WorkDir != "" {
		inv.input = filepath.Join(settings.WorkDir, o.id, filepath.Base(params.InputFile))
	}
	inv.Process = task.NewProcess(inv.CommandLine(), runner,
		task.WithID(o.id),
		task.WithTimeout(settings.Timeout),
		task.WithGrace(settings.Grace),
		task.WithShell(settings.Shell),
		task.WithLogger(o.logger),
	)
	return inv
}

// Params returns the run arguments.
func (inv *Invocation) Params() Params { return inv.params }

// InputPath is the file passed as -in: the staged copy when isolation is on.
func (inv *Invocation) InputPath() string { return inv.input }

// Validate checks that every file PoGo needs is present. All problems
// are reported together.
func (inv *Invocation) Validate() error {
	var problems []string
	check := func(label, path string) {
		if path == "" {
			problems = append(problems, label+" not set")
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			problems = append(problems, label+" not found: "+path)
			return
		}
		if info.IsDir() {
			problems = append(problems, label+" is a directory: "+path)
		}
	}
	check("input file", inv.params.InputFile)
	check("protein sequence file", inv.params.ProteinSequenceFile)
	check("GTF file", inv.params.GTFFile)

	switch {
	case inv.settings.Binary == "":
		problems = append(problems, "PoGo binary not set")
	case strings.ContainsRune(inv.settings.Binary, filepath.Separator):
		if _, err := os.Stat(inv.settings.Binary); err != nil {
			problems = append(problems, "PoGo binary not found: "+inv.settings.Binary)
		}
	default:
		if _, err := osexec.LookPath(inv.settings.Binary); err != nil {
			problems = append(problems, "PoGo binary not on PATH: "+inv.settings.Binary)
		}
	}

	if len(problems) > 0 {
		return task.ValidationError(problems...)
	}
	return nil
}

// CommandLine renders the exact shell command for this run.
func (inv *Invocation) CommandLine() string {
	var args []string
	if inv.settings.TimePrefix {
		args = append(args, "time")
	}
	args = append(args, quote(inv.settings.Binary))
	if inv.params.TaxonomyID != "" {
		args = append(args, "-species", quote(inv.params.TaxonomyID))
	}
	if inv.params.Mismatches != nil {
		args = append(args, "-mm", strconv.Itoa(*inv.params.Mismatches))
	}
	args = append(args,
		"-fasta", quote(inv.params.ProteinSequenceFile),
		"-gtf", quote(inv.params.GTFFile),
		"-in", quote(inv.input),
	)
	return strings.Join(args, " ")
}

// Start validates, stages the input when isolation is on, then launches
// PoGo. Validation failures complete the task without spawning anything.
// A started or already cancelled invocation touches no files.
func (inv *Invocation) Start(ctx context.Context) error {
	if inv.Started() {
		return errors.Wrapf(task.ErrAlreadyStarted, "task %s", inv.ID())
	}
	if inv.IsDone() {
		return inv.Process.Start(ctx)
	}
	if err := inv.Validate(); err != nil {
		inv.logger.Warn("pogo_validation_failed", map[string]any{"input": inv.params.InputFile}, err)
		return inv.Reject(err)
	}
	if inv.input != inv.params.InputFile {
		if err := stage(inv.params.InputFile, inv.input); err != nil {
			inv.logger.Error("pogo_staging_failed", map[string]any{"input": inv.params.InputFile}, err)
			return inv.Reject(errors.Wrapf(task.ErrExecution, "stage input %s: %v", inv.params.InputFile, err))
		}
	}
	inv.logger.Info("pogo_started", map[string]any{"command": inv.Command})
	return inv.Process.Start(ctx)
}

// Result returns the cataloged outputs of a successful run.
func (inv *Invocation) Result() (*RunResult, error) {
	ok, err := inv.IsSuccess()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, inv.Err()
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.result == nil {
		res, err := NewRunResult(inv.params.TaxonomyID, inv.input)
		if err != nil {
			return nil, err
		}
		inv.result = res
	}
	return inv.result, nil
}

// stage links src at dst, copying when links are not possible. An
// existing dst is refused, never written through.
func stage(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if _, err := os.Lstat(dst); err == nil {
		return errors.Newf("staged input %s already exists", dst)
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	if err := os.Symlink(abs, dst); err == nil {
		return nil
	}
	in, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_./:=@%+,-]+$`)

func quote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
