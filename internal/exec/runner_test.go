package exec

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skip on windows: needs a POSIX shell")
	}
}

func TestOSRunnerCapturesStreams(t *testing.T) {
	skipOnWindows(t)

	out := NewOSRunner().Run(context.Background(), Shell("sh", "echo out; echo err >&2"), Options{})

	require.NoError(t, out.Err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "out\n", string(out.Stdout))
	assert.Equal(t, "err\n", string(out.Stderr))
	assert.False(t, out.TimedOut)
	assert.False(t, out.Canceled)
}

func TestOSRunnerExitCode(t *testing.T) {
	skipOnWindows(t)

	out := NewOSRunner().Run(context.Background(), Shell("sh", "exit 3"), Options{})

	require.NoError(t, out.Err)
	assert.Equal(t, 3, out.ExitCode)
}

func TestOSRunnerTimeoutKeepsPartialOutput(t *testing.T) {
	skipOnWindows(t)

	start := time.Now()
	out := NewOSRunner().Run(context.Background(),
		Shell("sh", "echo partial; echo warn >&2; sleep 30"),
		Options{Timeout: 200 * time.Millisecond, Grace: 100 * time.Millisecond})

	assert.True(t, out.TimedOut)
	assert.NotEqual(t, 0, out.ExitCode)
	assert.Equal(t, "partial\n", string(out.Stdout))
	assert.Equal(t, "warn\n", string(out.Stderr))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestOSRunnerTermIgnoredEscalatesToKill(t *testing.T) {
	skipOnWindows(t)

	start := time.Now()
	out := NewOSRunner().Run(context.Background(),
		Shell("sh", "trap '' TERM; echo armed; sleep 30"),
		Options{Timeout: 200 * time.Millisecond, Grace: 200 * time.Millisecond})

	assert.True(t, out.TimedOut)
	assert.Equal(t, "armed\n", string(out.Stdout))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestOSRunnerCancel(t *testing.T) {
	skipOnWindows(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	out := NewOSRunner().Run(ctx, Shell("sh", "sleep 30"), Options{Grace: 100 * time.Millisecond})

	assert.True(t, out.Canceled)
	assert.False(t, out.TimedOut)
}

func TestOSRunnerCanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewOSRunner().Run(ctx, Command{Name: "definitely-not-run"}, Options{})

	assert.True(t, out.Canceled)
	assert.NoError(t, out.Err)
	assert.Equal(t, -1, out.ExitCode)
}

func TestOSRunnerSpawnFailure(t *testing.T) {
	out := NewOSRunner().Run(context.Background(), Command{Name: "/nonexistent/pogo-binary"}, Options{})

	require.Error(t, out.Err)
	assert.Equal(t, -1, out.ExitCode)
}

func TestShell(t *testing.T) {
	cmd := Shell("", "echo hi")
	assert.Equal(t, "/bin/sh", cmd.Name)
	assert.Equal(t, []string{"-c", "echo hi"}, cmd.Args)
	assert.True(t, strings.HasPrefix(cmd.String(), "/bin/sh -c"))
}

func TestMockRunner(t *testing.T) {
	m := NewMockRunner()
	m.AddResponse("pogo", MockResponse{Stdout: []byte("ok")})
	m.AddResponse("sh -c fail", MockResponse{Stderr: []byte("bad"), ExitCode: 2})
	m.AddResponse("missing", MockResponse{Err: errors.New("not found")})

	out := m.Run(context.Background(), Command{Name: "pogo", Args: []string{"-in", "x"}}, Options{})
	assert.Equal(t, "ok", string(out.Stdout))

	out = m.Run(context.Background(), Shell("sh", "fail"), Options{Timeout: time.Second})
	assert.Equal(t, 2, out.ExitCode)
	assert.Equal(t, "bad", string(out.Stderr))

	out = m.Run(context.Background(), Command{Name: "missing"}, Options{})
	assert.Error(t, out.Err)
	assert.Equal(t, -1, out.ExitCode)

	require.Equal(t, 3, m.CallCount())
	assert.Equal(t, time.Second, m.Calls[1].Opts.Timeout)
}
