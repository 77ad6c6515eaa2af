package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapRunsFunction(t *testing.T) {
	executed := false
	NewRecoveryHandler("pool").WithLogger(Discard()).Wrap(func() {
		executed = true
	})
	assert.True(t, executed)
}

func TestWrapCapturesPanic(t *testing.T) {
	handler := NewRecoveryHandler("pool").WithLogger(Discard())

	var captured any
	var stack string
	handler.OnPanic = func(rec any, s string) {
		captured = rec
		stack = s
	}

	handler.Wrap(func() { panic("boom") })

	assert.Equal(t, "boom", captured)
	assert.Contains(t, stack, "TestWrapCapturesPanic")
}

func TestWrapErrorConvertsPanic(t *testing.T) {
	handler := NewRecoveryHandler("director").WithLogger(Discard())

	assert.NoError(t, handler.WrapError(func() error { return nil }))

	err := handler.WrapError(func() error { panic("stage exploded") })
	require.Error(t, err)
	assert.Equal(t, "panic in director: stage exploded", err.Error())
}

func TestPanicIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := NewFactory(LevelInfo, &buf).For("pool")

	NewRecoveryHandler("pool").WithLogger(logger).Wrap(func() {
		panic("logged panic")
	})

	out := buf.String()
	assert.Contains(t, out, `"msg":"panic_recovered"`)
	assert.Contains(t, out, "logged panic")
	assert.Contains(t, out, `"component":"pool"`)
}

func TestSafeGo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewFactory(LevelInfo, &buf).For("worker")
	done := make(chan struct{})

	SafeGo(logger, func() {
		defer close(done)
		panic("goroutine panic")
	})
	<-done
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := NewFactory(LevelInfo, &buf).For("pool")

	returned := func() (ok bool) {
		defer Recover(logger)
		ok = true
		panic("deferred panic")
	}()

	assert.True(t, returned)
	assert.Contains(t, buf.String(), "deferred panic")
}
