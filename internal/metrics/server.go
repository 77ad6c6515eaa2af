// Package metrics provides a simple Prometheus-compatible metrics endpoint.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/joss/trackhub/internal/pool"
	"github.com/joss/trackhub/internal/task"
)

// Metrics holds runtime counters for one trackhub process.
type Metrics struct {
	// Task lifecycle
	TasksStarted       atomic.Int64
	TasksSucceeded     atomic.Int64
	TasksFailed        atomic.Int64
	TasksTimedOut      atomic.Int64
	ValidationFailures atomic.Int64
	TasksCanceled      atomic.Int64
	TasksInFlight      atomic.Int64

	// Pipelines
	PipelinesRun    atomic.Int64
	PipelinesFailed atomic.Int64

	// Timing (last task duration in ms)
	LastTaskDurationMs atomic.Int64

	startTime time.Time
}

// New creates an empty metrics set.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordTaskStarted counts a task entering the running state.
func (m *Metrics) RecordTaskStarted() {
	m.TasksStarted.Add(1)
	m.TasksInFlight.Add(1)
}

// RecordTaskFinished classifies a finished task by its failure cause.
func (m *Metrics) RecordTaskFinished(err error, duration time.Duration) {
	m.TasksInFlight.Add(-1)
	m.LastTaskDurationMs.Store(duration.Milliseconds())
	switch {
	case err == nil:
		m.TasksSucceeded.Add(1)
		return
	case errors.Is(err, task.ErrValidation):
		m.ValidationFailures.Add(1)
	case errors.Is(err, task.ErrTimeout):
		m.TasksTimedOut.Add(1)
	case errors.Is(err, task.ErrCanceled):
		m.TasksCanceled.Add(1)
	}
	m.TasksFailed.Add(1)
}

// RecordPipeline records a finished pipeline run
func (m *Metrics) RecordPipeline(ok bool) {
	m.PipelinesRun.Add(1)
	if !ok {
		m.PipelinesFailed.Add(1)
	}
}

// Callbacks feeds the task counters from a pool.
func (m *Metrics) Callbacks() pool.Callbacks {
	return pool.Callbacks{
		OnTaskStarted: func(task.Task) { m.RecordTaskStarted() },
		OnTaskFinished: func(t task.Task, elapsed time.Duration) {
			m.RecordTaskFinished(t.Err(), elapsed)
		},
	}
}

type sample struct {
	name, help, kind string
	value            func() int64
}

func (m *Metrics) samples() []sample {
	return []sample{
		{"trackhub_tasks_started_total", "Total tasks started", "counter", m.TasksStarted.Load},
		{"trackhub_tasks_succeeded_total", "Total tasks that finished successfully", "counter", m.TasksSucceeded.Load},
		{"trackhub_tasks_failed_total", "Total tasks that failed for any reason", "counter", m.TasksFailed.Load},
		{"trackhub_tasks_timed_out_total", "Total tasks killed after their timeout", "counter", m.TasksTimedOut.Load},
		{"trackhub_validation_failures_total", "Total tasks rejected before launch", "counter", m.ValidationFailures.Load},
		{"trackhub_tasks_canceled_total", "Total tasks cancelled", "counter", m.TasksCanceled.Load},
		{"trackhub_tasks_in_flight", "Tasks currently running", "gauge", m.TasksInFlight.Load},
		{"trackhub_pipelines_total", "Total pipeline runs", "counter", m.PipelinesRun.Load},
		{"trackhub_pipelines_failed_total", "Total pipeline runs that ended in FAIL", "counter", m.PipelinesFailed.Load},
		{"trackhub_last_task_duration_ms", "Duration of the last finished task", "gauge", m.LastTaskDurationMs.Load},
	}
}

// Handler returns an HTTP handler for /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(w, "# HELP trackhub_uptime_seconds Time since trackhub started\n")
		fmt.Fprintf(w, "# TYPE trackhub_uptime_seconds gauge\n")
		fmt.Fprintf(w, "trackhub_uptime_seconds %.2f\n", time.Since(m.startTime).Seconds())

		for _, s := range m.samples() {
			fmt.Fprintf(w, "\n# HELP %s %s\n", s.name, s.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", s.name, s.kind)
			fmt.Fprintf(w, "%s %d\n", s.name, s.value())
		}
	}
}

// Server wraps the metrics HTTP server
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// NewServer creates a metrics server for m on the given port (0 picks one).
func NewServer(m *Metrics, port int) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start binds the port and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return errors.Wrapf(err, "metrics listen on %s", s.srv.Addr)
	}
	s.ln = ln
	go s.srv.Serve(ln)
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
