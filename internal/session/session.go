// Package session allocates the working directory of one pipeline run.
package session

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/oklog/ulid/v2"
)

// LogFileName is the per-session log every component writes to.
const LogFileName = "session.log"

// Session is the on-disk workspace of a single pipeline execution.
type Session struct {
	id       string
	pipeline string
	dir      string
}

// New creates <baseDir>/<pipeline>-<ULID>.
func New(baseDir, pipeline string) (*Session, error) {
	id := ulid.Make().String()
	dir := filepath.Join(baseDir, pipeline+"-"+id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create session dir %s", dir)
	}
	return &Session{id: id, pipeline: pipeline, dir: dir}, nil
}

func (s *Session) ID() string       { return s.id }
func (s *Session) Pipeline() string { return s.pipeline }
func (s *Session) Dir() string      { return s.dir }

// Path returns a file name inside the session directory.
func (s *Session) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// LogFile is where the session log is written.
func (s *Session) LogFile() string {
	return s.Path(LogFileName)
}

// ReportFile is where a pipeline report named name is written.
func (s *Session) ReportFile(name string) string {
	return s.Path(name)
}

// WorkDir returns a subdirectory for scratch output, creating it.
func (s *Session) WorkDir(name string) (string, error) {
	dir := s.Path(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "create work dir %s", dir)
	}
	return dir, nil
}
