// Package store persists the history of pipeline runs and the PoGo
// invocations they made.
package store

import (
	"context"
	"maps"
)

// Store is what `trackhub doctor` needs from a history backend.
type Store interface {
	Ping(ctx context.Context) error
	Close() error
}

// Filter selects runs for ListRuns. Where keys are column names and are
// checked against the runs table before use.
type Filter struct {
	Limit     int // 0 lists everything
	Offset    int
	OrderDesc bool
	Where     map[string]any
}

// DefaultFilter returns the newest 100 runs.
func DefaultFilter() Filter {
	return Filter{
		Limit:     100,
		OrderDesc: true,
	}
}

// WithLimit returns f with Limit set to n.
func (f Filter) WithLimit(n int) Filter {
	f.Limit = n
	return f
}

// WithOffset returns f with Offset set to n.
func (f Filter) WithOffset(n int) Filter {
	f.Offset = n
	return f
}

// WithWhere returns f with an equality condition on field. The receiver's
// map is copied, never mutated.
func (f Filter) WithWhere(field string, value any) Filter {
	where := maps.Clone(f.Where)
	if where == nil {
		where = make(map[string]any, 1)
	}
	where[field] = value
	f.Where = where
	return f
}
