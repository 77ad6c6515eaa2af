package task

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/trackhub/internal/exec"
)

func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skip on windows: needs a POSIX shell")
	}
}

func TestProcessSuccess(t *testing.T) {
	requirePOSIX(t)

	p := NewProcess("echo hello; echo oops >&2", nil, WithShell("sh"))
	_, err := p.ReturnCode()
	assert.ErrorIs(t, err, ErrNotDone)

	require.NoError(t, p.Start(context.Background()))
	waitDone(t, p)

	rc, err := p.ReturnCode()
	require.NoError(t, err)
	assert.Equal(t, 0, rc)

	stdout, err := p.Stdout()
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(stdout))
	stderr, err := p.Stderr()
	require.NoError(t, err)
	assert.Equal(t, "oops\n", string(stderr))

	ok, err := p.IsSuccess()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProcessNonzeroExit(t *testing.T) {
	requirePOSIX(t)

	p := NewProcess("exit 7", nil, WithShell("sh"))
	require.NoError(t, p.Start(context.Background()))
	waitDone(t, p)

	rc, err := p.ReturnCode()
	require.NoError(t, err)
	assert.Equal(t, 7, rc)
	assert.ErrorIs(t, p.Err(), ErrExecution)

	var exitErr *ExitError
	require.True(t, errors.As(p.Err(), &exitErr))
	assert.Equal(t, 7, exitErr.Code)
}

func TestProcessTimeoutKeepsPartialOutput(t *testing.T) {
	requirePOSIX(t)

	p := NewProcess("echo partial; sleep 5", nil,
		WithShell("sh"), WithTimeout(200*time.Millisecond), WithGrace(100*time.Millisecond))
	start := time.Now()
	require.NoError(t, p.Start(context.Background()))
	waitDone(t, p)

	assert.Less(t, time.Since(start), 4*time.Second)
	ok, err := p.IsSuccess()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, p.Err(), ErrTimeout)

	stdout, err := p.Stdout()
	require.NoError(t, err)
	assert.Equal(t, "partial\n", string(stdout))
}

func TestProcessCancel(t *testing.T) {
	requirePOSIX(t)

	p := NewProcess("sleep 5", nil, WithShell("sh"), WithGrace(100*time.Millisecond))
	require.NoError(t, p.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	p.Cancel()
	waitDone(t, p)

	assert.ErrorIs(t, p.Err(), ErrCanceled)
}

func TestProcessSpawnFailure(t *testing.T) {
	p := NewProcess("anything", nil, WithShell("/nonexistent/shell"))
	require.NoError(t, p.Start(context.Background()))
	waitDone(t, p)

	rc, err := p.ReturnCode()
	require.NoError(t, err)
	assert.Equal(t, -1, rc)
	assert.ErrorIs(t, p.Err(), ErrExecution)
}

func TestProcessUsesRunner(t *testing.T) {
	mock := exec.NewMockRunner()
	mock.AddResponse("bash -c PoGo -in x", exec.MockResponse{Stdout: []byte("done")})

	p := NewProcess("PoGo -in x", mock, WithShell("bash"), WithDir("/tmp/w"), WithTimeout(time.Minute), WithID("pogo-1"))
	require.NoError(t, p.Start(context.Background()))
	waitDone(t, p)

	require.Equal(t, 1, mock.CallCount())
	call := mock.Calls[0]
	assert.Equal(t, "bash", call.Name)
	assert.Equal(t, []string{"-c", "PoGo -in x"}, call.Args)
	assert.Equal(t, "/tmp/w", call.Dir)
	assert.Equal(t, time.Minute, call.Opts.Timeout)

	out, err := p.Stdout()
	require.NoError(t, err)
	assert.Equal(t, "done", string(out))
	assert.Equal(t, "pogo-1", p.ID())
}
