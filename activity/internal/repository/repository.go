package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/query"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
	// ErrStorage wraps every failure of the underlying store.
	ErrStorage = errors.New("storage error")
	// ErrInvalidData means the store rejected one event's values. The event
	// is not saved; the store itself is healthy.
	ErrInvalidData = errors.New("invalid event data")
	// ErrUnknownField is returned for attribute names outside the event schema.
	ErrUnknownField = errors.New("unknown field")
)

// Bucket is one group of a grouped count. Keys follow the requested group order.
type Bucket struct {
	Keys  []any `json:"keys"`
	Count int   `json:"count"`
}

// EventStore persists activity events.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	// SaveEvent inserts or updates by id and refreshes the timestamps on e.
	SaveEvent(ctx context.Context, e *models.Event) error
	CountEvents(ctx context.Context) (int, error)
	// DeleteEventsBefore removes events whose creationtime is strictly before cutoff.
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int, error)
	// ListEvents returns one page of matching events and the total match count.
	ListEvents(ctx context.Context, spec query.Spec, limit, offset int) ([]models.Event, int, error)
	// EachEvent streams every matching event in order.
	EachEvent(ctx context.Context, spec query.Spec, fn func(*models.Event) error) error
	DistinctValues(ctx context.Context, field string, limit int) ([]string, error)
	TimeRange(ctx context.Context, field string) (min, max *time.Time, err error)
	// CountBy groups events by fields, truncating timestamps to the hour.
	// A non-empty sinceField restricts to events where that field >= since.
	CountBy(ctx context.Context, fields []string, sinceField string, since time.Time) ([]Bucket, error)
}

// RunStore persists sync run outcomes.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.SyncRun) error
	GetRun(ctx context.Context, runID string) (*models.SyncRun, error)
	// ListRuns returns the newest runs first; an empty task name lists all tasks.
	ListRuns(ctx context.Context, taskName string, limit int) ([]models.SyncRun, error)
	LatestSuccessfulRun(ctx context.Context, taskName string) (*models.SyncRun, error)
}

// TaskStore persists job results written by the job dispatcher.
type TaskStore interface {
	CreateTaskResult(ctx context.Context, tr *models.TaskResult) error
	UpdateTaskResult(ctx context.Context, tr *models.TaskResult) error
	GetTaskResult(ctx context.Context, taskID string) (*models.TaskResult, error)
	LatestSuccessfulTask(ctx context.Context, taskName string) (*models.TaskResult, error)
}

// FieldStore persists field descriptors.
type FieldStore interface {
	// ListFields returns descriptors by display order (unset last), then name.
	ListFields(ctx context.Context) ([]models.FieldDescriptor, error)
	// SaveField inserts or updates by field name.
	SaveField(ctx context.Context, d *models.FieldDescriptor) error
	DeleteFields(ctx context.Context, names []string) (int, error)
}

// Repository is the full store used by the daemon and CLI.
type Repository interface {
	EventStore
	RunStore
	TaskStore
	FieldStore

	Ping(ctx context.Context) error
	Close()
}

func groupableField(name string) (models.EventField, error) {
	f, ok := models.LookupField(name)
	if !ok || f.Type == models.FieldTypeJSON {
		return models.EventField{}, ErrUnknownField
	}
	return f, nil
}
