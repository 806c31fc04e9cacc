package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across the daemon and CLI.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"
	FieldTaskID    = "task_id"
	FieldTaskName  = "task_name"
	FieldWindow    = "window"
	FieldURL       = "url"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldEventID   = "event_id"
	FieldCount     = "count"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// RunID returns a slog attribute for a sync run id.
func RunID(id string) slog.Attr {
	return slog.String(FieldRunID, id)
}

// TaskID returns a slog attribute for a job id.
func TaskID(id string) slog.Attr {
	return slog.String(FieldTaskID, id)
}

// TaskName returns a slog attribute for a logical task name.
func TaskName(name string) slog.Attr {
	return slog.String(FieldTaskName, name)
}

// Window groups the bounds of a sync window.
func Window(start, end time.Time) slog.Attr {
	return slog.Group(FieldWindow,
		slog.String("start", start.UTC().Format(time.RFC3339Nano)),
		slog.String("end", end.UTC().Format(time.RFC3339Nano)),
	)
}

// URL returns a slog attribute for an upstream URL.
func URL(u string) slog.Attr {
	return slog.String(FieldURL, u)
}

// Status returns a slog attribute for a status string.
func Status(status string) slog.Attr {
	return slog.String(FieldStatus, status)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// EventID returns a slog attribute for an activity event id.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// Count returns a slog attribute for a named count.
func Count(name string, n int) slog.Attr {
	return slog.Int(name, n)
}
