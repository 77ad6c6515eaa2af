// Package logging provides structured JSON logging for trackhub components.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ParseLevel maps a config string to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "warning":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fanout writes every record to all registered writers.
type fanout struct {
	mu      sync.Mutex
	writers []io.Writer
}

func (f *fanout) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.writers {
		_, _ = w.Write(p)
	}
	return len(p), nil
}

func (f *fanout) add(w io.Writer) {
	f.mu.Lock()
	f.writers = append(f.writers, w)
	f.mu.Unlock()
}

// Factory hands out component loggers that share one handler, so a log file
// attached mid-run is picked up by every logger created before it.
type Factory struct {
	out     *fanout
	level   *slog.LevelVar
	handler slog.Handler

	mu    sync.Mutex
	files []*os.File
}

// NewFactory creates a logger factory writing JSON lines to the given writers.
func NewFactory(level Level, writers ...io.Writer) *Factory {
	out := &fanout{}
	for _, w := range writers {
		out.add(w)
	}
	lv := &slog.LevelVar{}
	lv.Set(level.slog())
	return &Factory{
		out:     out,
		level:   lv,
		handler: slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lv}),
	}
}

// SetLevel changes the level of every logger issued by the factory.
func (f *Factory) SetLevel(level Level) {
	f.level.Set(level.slog())
}

// AddFile appends log output to the file at path, creating it if needed.
func (f *Factory) AddFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	f.mu.Lock()
	f.files = append(f.files, file)
	f.mu.Unlock()
	f.out.add(file)
	return nil
}

// LogFiles returns the paths of the files attached with AddFile.
func (f *Factory) LogFiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0, len(f.files))
	for _, file := range f.files {
		paths = append(paths, file.Name())
	}
	return paths
}

// Close closes the attached log files.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for _, file := range f.files {
		if err := file.Close(); err != nil && first == nil {
			first = err
		}
	}
	f.files = nil
	return first
}

// For returns a logger for the named component.
func (f *Factory) For(component string) *Logger {
	return &Logger{
		component: component,
		l:         slog.New(f.handler).With("component", component),
	}
}

var (
	stderrFactory     *Factory
	stderrFactoryOnce sync.Once
)

// New creates a stderr logger for a component. Long-running commands should
// prefer a Factory so output also reaches the session log.
func New(component string) *Logger {
	stderrFactoryOnce.Do(func() {
		stderrFactory = NewFactory(LevelInfo, os.Stderr)
	})
	return stderrFactory.For(component)
}

// Discard returns a logger that drops everything (for tests).
func Discard() *Logger {
	return NewFactory(LevelError, io.Discard).For("discard")
}

// Logger provides structured logging
type Logger struct {
	component string
	l         *slog.Logger
}

// Component returns the component name the logger was created for.
func (l *Logger) Component() string {
	return l.component
}

// With returns a logger that adds key=value to every event.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{component: l.component, l: l.l.With(key, value)}
}

// log emits a structured log event
func (l *Logger) log(level slog.Level, event string, extra map[string]any, err error) {
	attrs := make([]any, 0, len(extra)*2+2)
	for k, v := range extra {
		attrs = append(attrs, k, v)
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	l.l.Log(context.Background(), level, event, attrs...)
}

// Debug logs a debug event
func (l *Logger) Debug(event string, extra map[string]any) {
	l.log(slog.LevelDebug, event, extra, nil)
}

// Info logs an info event
func (l *Logger) Info(event string, extra map[string]any) {
	l.log(slog.LevelInfo, event, extra, nil)
}

// Warn logs a warning event
func (l *Logger) Warn(event string, extra map[string]any, err error) {
	l.log(slog.LevelWarn, event, extra, err)
}

// Error logs an error event
func (l *Logger) Error(event string, extra map[string]any, err error) {
	l.log(slog.LevelError, event, extra, err)
}

// TimedEvent logs an event with duration
func (l *Logger) TimedEvent(event string, start time.Time, extra map[string]any) {
	merged := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		merged[k] = v
	}
	merged["duration_ms"] = time.Since(start).Milliseconds()
	l.log(slog.LevelInfo, event, merged, nil)
}
