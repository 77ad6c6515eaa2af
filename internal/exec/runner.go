// Package exec provides a testable command execution abstraction.
// Subprocesses run in their own process group so a timeout or cancel
// reaches everything a shell spawned.
package exec

import (
	"bytes"
	"context"
	"errors"
	"os"
	osexec "os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultGrace is how long a terminated process group gets before SIGKILL.
const DefaultGrace = 5 * time.Second

// Command describes a process to launch.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the parent environment.
	Env []string
}

// Shell wraps a command line so it runs as `<shell> -c <line>`.
func Shell(shell, line string) Command {
	if shell == "" {
		shell = "/bin/sh"
	}
	return Command{Name: shell, Args: []string{"-c", line}}
}

// String renders the command for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Options bound a single run.
type Options struct {
	// Timeout is the wall-clock budget; 0 means none.
	Timeout time.Duration
	// Grace is the SIGTERM to SIGKILL delay on timeout or cancel.
	Grace time.Duration
}

// Outcome is everything observed about a finished run.
type Outcome struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	TimedOut bool
	Canceled bool
	// Err is set when the process could not be started.
	Err error
}

// Runner defines the interface for executing external commands.
// Inject this instead of calling exec.Command directly.
type Runner interface {
	// Run executes cmd and blocks until it exits, times out, or ctx ends.
	Run(ctx context.Context, cmd Command, opts Options) Outcome
}

// OSRunner implements Runner using os/exec.
type OSRunner struct {
	// Env overrides environment variables (nil = inherit from parent)
	Env []string
}

// NewOSRunner creates a new OS-based command runner.
func NewOSRunner() *OSRunner {
	return &OSRunner{}
}

// Run executes a command, capturing stdout and stderr separately.
func (r *OSRunner) Run(ctx context.Context, cmd Command, opts Options) Outcome {
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if ctx.Err() != nil {
		return Outcome{ExitCode: -1, Canceled: true}
	}

	c := osexec.Command(cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	switch {
	case r.Env != nil:
		c.Env = append(append([]string{}, r.Env...), cmd.Env...)
	case len(cmd.Env) > 0:
		c.Env = append(os.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	// Orphaned grandchildren holding the pipes must not block Wait forever.
	c.WaitDelay = opts.Grace + time.Second
	configureProcessGroup(c)

	start := time.Now()
	if err := c.Start(); err != nil {
		return Outcome{ExitCode: -1, Duration: time.Since(start), Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- c.Wait() }()

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var out Outcome
	var waitErr error
	select {
	case waitErr = <-done:
	case <-timeout:
		out.TimedOut = true
		waitErr = terminate(c, done, opts.Grace)
	case <-ctx.Done():
		out.Canceled = true
		waitErr = terminate(c, done, opts.Grace)
	}

	out.Duration = time.Since(start)
	out.Stdout = stdout.Bytes()
	out.Stderr = stderr.Bytes()
	out.ExitCode = exitCode(c, waitErr)
	return out
}

// terminate sends SIGTERM to the process group, waits grace, then SIGKILLs it.
func terminate(c *osexec.Cmd, done <-chan error, grace time.Duration) error {
	signalGroup(c, false)
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
	}
	signalGroup(c, true)
	return <-done
}

func exitCode(c *osexec.Cmd, waitErr error) int {
	if c.ProcessState != nil {
		return c.ProcessState.ExitCode()
	}
	var exitErr *osexec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

// MockRunner implements Runner for testing.
type MockRunner struct {
	mu sync.Mutex

	// Calls records all command invocations
	Calls []MockCall

	// Responses maps a full command string, or just the command name, to a response
	Responses map[string]MockResponse

	// Handler, when set, computes responses and takes precedence over Responses
	Handler func(ctx context.Context, cmd Command) Outcome
}

// MockCall records a single command invocation.
type MockCall struct {
	Name string
	Args []string
	Dir  string
	Opts Options
}

// MockResponse defines the response for a mocked command.
type MockResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
}

// NewMockRunner creates a new mock runner.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		Responses: make(map[string]MockResponse),
	}
}

// AddResponse sets the response for a command pattern.
func (m *MockRunner) AddResponse(key string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[key] = resp
}

// CallCount returns how many commands were run.
func (m *MockRunner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func (m *MockRunner) record(cmd Command, opts Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Name: cmd.Name, Args: cmd.Args, Dir: cmd.Dir, Opts: opts})
}

func (m *MockRunner) getResponse(cmd Command) MockResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if resp, ok := m.Responses[cmd.String()]; ok {
		return resp
	}
	if resp, ok := m.Responses[cmd.Name]; ok {
		return resp
	}
	return MockResponse{}
}

func (m *MockRunner) Run(ctx context.Context, cmd Command, opts Options) Outcome {
	m.record(cmd, opts)
	if m.Handler != nil {
		return m.Handler(ctx, cmd)
	}
	resp := m.getResponse(cmd)
	out := Outcome{Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: resp.ExitCode, Err: resp.Err}
	if resp.Err != nil {
		out.ExitCode = -1
	}
	if ctx.Err() != nil {
		out.Canceled = true
	}
	return out
}
