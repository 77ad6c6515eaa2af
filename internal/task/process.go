package task

import (
	"context"
	"sync"
	"time"

	"github.com/joss/trackhub/internal/exec"
	"github.com/joss/trackhub/internal/logging"
)

// Process runs a shell command line as a Task.
type Process struct {
	*Base

	Command string
	Timeout time.Duration
	Grace   time.Duration
	Shell   string
	Dir     string

	runner exec.Runner

	mu         sync.Mutex
	returnCode int
	duration   time.Duration
}

// ProcessOption configures a Process.
type ProcessOption func(*processConfig)

type processConfig struct {
	id      string
	timeout time.Duration
	grace   time.Duration
	shell   string
	dir     string
	logger  *logging.Logger
}

// WithID sets the task identifier instead of a generated ULID.
func WithID(id string) ProcessOption {
	return func(c *processConfig) { c.id = id }
}

// WithTimeout bounds the run; 0 disables the timeout.
func WithTimeout(d time.Duration) ProcessOption {
	return func(c *processConfig) { c.timeout = d }
}

// WithGrace sets the SIGTERM to SIGKILL delay.
func WithGrace(d time.Duration) ProcessOption {
	return func(c *processConfig) { c.grace = d }
}

// WithShell sets the interpreter used for `-c`.
func WithShell(shell string) ProcessOption {
	return func(c *processConfig) { c.shell = shell }
}

// WithDir sets the working directory of the process.
func WithDir(dir string) ProcessOption {
	return func(c *processConfig) { c.dir = dir }
}

// WithLogger routes task events to l.
func WithLogger(l *logging.Logger) ProcessOption {
	return func(c *processConfig) { c.logger = l }
}

// NewProcess creates a pending process task for a command line.
func NewProcess(command string, runner exec.Runner, opts ...ProcessOption) *Process {
	cfg := processConfig{grace: exec.DefaultGrace}
	for _, opt := range opts {
		opt(&cfg)
	}
	if runner == nil {
		runner = exec.NewOSRunner()
	}
	return &Process{
		Base:       NewBase(cfg.id, cfg.logger),
		Command:    command,
		Timeout:    cfg.timeout,
		Grace:      cfg.grace,
		Shell:      cfg.shell,
		Dir:        cfg.dir,
		runner:     runner,
		returnCode: -1,
	}
}

func (p *Process) Start(ctx context.Context) error {
	return p.Launch(ctx, p.run)
}

func (p *Process) run(ctx context.Context) Result {
	log := p.Logger().With("task", p.ID())
	log.Debug("process_started", map[string]any{"command": p.Command})

	cmd := exec.Shell(p.Shell, p.Command)
	cmd.Dir = p.Dir
	out := p.runner.Run(ctx, cmd, exec.Options{Timeout: p.Timeout, Grace: p.Grace})

	p.mu.Lock()
	p.returnCode = out.ExitCode
	p.duration = out.Duration
	p.mu.Unlock()

	res := Result{Stdout: out.Stdout, Stderr: out.Stderr}
	switch {
	case out.Err != nil:
		res.Err = &ExitError{Code: -1, Command: p.Command, Cause: out.Err}
	case out.TimedOut:
		res.Err = &TimeoutError{After: p.Timeout, Command: p.Command}
	case out.Canceled:
		res.Err = ErrCanceled
	case out.ExitCode != 0:
		res.Err = &ExitError{Code: out.ExitCode, Command: p.Command}
	}

	extra := map[string]any{"return_code": out.ExitCode, "duration_ms": out.Duration.Milliseconds()}
	if res.Err != nil {
		log.Warn("process_failed", extra, res.Err)
	} else {
		log.Debug("process_finished", extra)
	}
	return res
}

// ReturnCode is the exit status once the task is done.
func (p *Process) ReturnCode() (int, error) {
	if _, err := p.terminal(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.returnCode, nil
}

// Duration is the wall-clock time the process ran.
func (p *Process) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}
