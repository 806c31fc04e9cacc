// Package jobs queues and executes background tasks and records their results.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Task names.
const (
	TaskSync         = "fetch_activity_events"
	TaskSweepEvents  = "cleanup_old_activity_events"
	TaskSweepExports = "cleanup_old_csv_files"
	TaskExport       = "generate_csv"
	TaskSyncFields   = "populate_activity_fields"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
	// ErrLocked is recorded when another worker is already running the task.
	ErrLocked = errors.New("task already running")
)

// Task is one unit of background work.
type Task struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Args        map[string]any `json:"args,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// NewTask creates a task with a fresh id.
func NewTask(name string, args map[string]any) Task {
	return Task{
		ID:          uuid.NewString(),
		Name:        name,
		Args:        args,
		SubmittedAt: time.Now().UTC(),
	}
}

// IntArg reads a numeric argument. JSON round trips turn numbers into float64.
func (t Task) IntArg(key string) (int, bool) {
	switch v := t.Args[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// StringArgs returns the string-valued arguments.
func (t Task) StringArgs() map[string]string {
	out := make(map[string]string, len(t.Args))
	for k, v := range t.Args {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// Handler executes a task. A handler may return a result together with an
// error; both are recorded.
type Handler func(ctx context.Context, task Task) (any, error)

// Queue accepts tasks for asynchronous execution.
type Queue interface {
	Start(ctx context.Context) error
	Submit(ctx context.Context, task Task) error
	Close() error
}
