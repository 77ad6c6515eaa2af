package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joss/trackhub/internal/task"
)

func TestRecordTaskFinished(t *testing.T) {
	m := New()

	for i := 0; i < 5; i++ {
		m.RecordTaskStarted()
	}
	m.RecordTaskFinished(nil, 120*time.Millisecond)
	m.RecordTaskFinished(task.ValidationError("gtf missing"), 0)
	m.RecordTaskFinished(&task.TimeoutError{After: time.Second}, time.Second)
	m.RecordTaskFinished(&task.ExitError{Code: 2}, 10*time.Millisecond)

	if got := m.TasksStarted.Load(); got != 5 {
		t.Errorf("expected 5 started, got %d", got)
	}
	if got := m.TasksInFlight.Load(); got != 1 {
		t.Errorf("expected 1 in flight, got %d", got)
	}
	if got := m.TasksSucceeded.Load(); got != 1 {
		t.Errorf("expected 1 success, got %d", got)
	}
	if got := m.TasksFailed.Load(); got != 3 {
		t.Errorf("expected 3 failures, got %d", got)
	}
	if got := m.ValidationFailures.Load(); got != 1 {
		t.Errorf("expected 1 validation failure, got %d", got)
	}
	if got := m.TasksTimedOut.Load(); got != 1 {
		t.Errorf("expected 1 timeout, got %d", got)
	}
	if got := m.LastTaskDurationMs.Load(); got != 10 {
		t.Errorf("expected last duration 10, got %d", got)
	}
}

func TestRecordPipeline(t *testing.T) {
	m := New()
	m.RecordPipeline(true)
	m.RecordPipeline(false)

	if m.PipelinesRun.Load() != 2 {
		t.Errorf("expected 2 runs, got %d", m.PipelinesRun.Load())
	}
	if m.PipelinesFailed.Load() != 1 {
		t.Errorf("expected 1 failure, got %d", m.PipelinesFailed.Load())
	}
}

func TestCallbacks(t *testing.T) {
	m := New()
	cb := m.Callbacks()

	tk := task.Func("t", func(context.Context) error { return errors.New("boom") })
	cb.OnTaskStarted(tk)
	if err := tk.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-tk.Done()
	cb.OnTaskFinished(tk, 5*time.Millisecond)

	if m.TasksFailed.Load() != 1 || m.TasksInFlight.Load() != 0 {
		t.Errorf("unexpected counters: failed=%d in_flight=%d", m.TasksFailed.Load(), m.TasksInFlight.Load())
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordTaskStarted()
	m.RecordTaskFinished(nil, 42*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler()(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"# TYPE trackhub_uptime_seconds gauge",
		"trackhub_tasks_started_total 1",
		"trackhub_tasks_succeeded_total 1",
		"trackhub_tasks_in_flight 0",
		"trackhub_last_task_duration_ms 42",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServer(t *testing.T) {
	m := New()
	s := NewServer(m, 0)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(context.Background())

	addr := s.Addr()
	if strings.HasPrefix(addr, "[::]") || strings.HasPrefix(addr, "0.0.0.0") {
		addr = "127.0.0.1" + addr[strings.LastIndex(addr, ":"):]
	}

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("health = %d %q", resp.StatusCode, body)
	}
}
