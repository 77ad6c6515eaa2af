package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestRecordAndGetRun(t *testing.T) {
	ctx := context.Background()
	h := openHistory(t)
	require.NoError(t, h.Ping(ctx))
	assert.Equal(t, DBFileName, filepath.Base(h.Path()))

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &Run{
		ID:         "run-1",
		Pipeline:   "create_trackhub_for_project",
		Status:     "WARNING",
		OK:         true,
		SessionDir: "/s/1",
		ReportPath: "/s/1/trackhub_creation.report",
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
	}
	require.NoError(t, h.RecordRun(ctx, run))

	got, err := h.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Pipeline, got.Pipeline)
	assert.Equal(t, "WARNING", got.Status)
	assert.True(t, got.OK)
	assert.Equal(t, run.ReportPath, got.ReportPath)
	assert.True(t, start.Equal(got.StartedAt))

	run.Status = "ERROR"
	run.OK = false
	require.NoError(t, h.RecordRun(ctx, run))
	got, err = h.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "ERROR", got.Status)
	assert.False(t, got.OK)
}

func TestGetRunNotFound(t *testing.T) {
	_, err := openHistory(t).GetRun(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestRecordRunRequiresID(t *testing.T) {
	err := openHistory(t).RecordRun(context.Background(), &Run{})
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	h := openHistory(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, p := range []string{"run_pogo_for_file", "create_trackhub_for_project", "run_pogo_for_file"} {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, h.RecordRun(ctx, &Run{
			ID: string(rune('a' + i)), Pipeline: p, Status: "SUCCESS", OK: true, StartedAt: at, FinishedAt: at,
		}))
	}

	all, err := h.ListRuns(ctx, DefaultFilter())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)

	pogo, err := h.ListRuns(ctx, DefaultFilter().WithWhere("pipeline", "run_pogo_for_file"))
	require.NoError(t, err)
	require.Len(t, pogo, 2)

	page, err := h.ListRuns(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)

	_, err = h.ListRuns(ctx, DefaultFilter().WithWhere("report_path; DROP TABLE runs", 1))
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestInvocations(t *testing.T) {
	ctx := context.Background()
	h := openHistory(t)

	first := &Invocation{
		RunID: "run-1", TaskID: "t1", TaxonomyID: "9606", InputFile: "/in/a.pogo",
		Command: "PoGo -in /in/a.pogo", Success: true, Duration: 1500 * time.Millisecond,
		RecordedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	second := &Invocation{
		RunID: "run-1", TaskID: "t2", TaxonomyID: "10090", InputFile: "/in/b.pogo",
		ReturnCode: -1, Error: "missing prerequisites",
		RecordedAt: time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC),
	}
	require.NoError(t, h.RecordInvocation(ctx, first))
	require.NoError(t, h.RecordInvocation(ctx, second))
	assert.NotEmpty(t, first.ID)
	assert.NoError(t, h.RecordInvocation(ctx, &Invocation{RunID: "run-2"}))
	assert.ErrorIs(t, h.RecordInvocation(ctx, &Invocation{}), ErrInvalidID)

	got, err := h.Invocations(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].TaskID)
	assert.True(t, got[0].Success)
	assert.Equal(t, 1500*time.Millisecond, got[0].Duration)
	assert.Equal(t, "10090", got[1].TaxonomyID)
	assert.Equal(t, -1, got[1].ReturnCode)
	assert.False(t, got[1].Success)
}
