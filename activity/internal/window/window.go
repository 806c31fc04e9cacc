// Package window plans the time range of the next sync and splits it into
// day-aligned sub-windows.
package window

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Window is a time range whose bounds are both inclusive at microsecond resolution.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ErrInvalidDays is returned for a non-positive explicit day count.
var ErrInvalidDays = errors.New("days before must be positive")

// LastSuccessSource reports the start of the latest successful execution of a task.
// A nil time means no successful execution is known.
type LastSuccessSource interface {
	LatestSuccess(ctx context.Context, taskName string) (*time.Time, error)
}

// SourceFunc adapts a function to LastSuccessSource.
type SourceFunc func(ctx context.Context, taskName string) (*time.Time, error)

func (f SourceFunc) LatestSuccess(ctx context.Context, taskName string) (*time.Time, error) {
	return f(ctx, taskName)
}

// Planner computes the window of the next sync.
type Planner struct {
	TaskName    string
	MaxPastDays int
	BufferHours int
	// Sources are consulted in order; the latest success across all wins.
	Sources []LastSuccessSource
	Now     func() time.Time
}

func (p *Planner) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// Plan returns the window to sync. With daysBefore the window reaches back
// min(daysBefore, MaxPastDays) days; otherwise it resumes from the latest
// successful run minus the buffer, bounded by MaxPastDays.
func (p *Planner) Plan(ctx context.Context, daysBefore *int) (Window, error) {
	end := p.now()
	floor := end.AddDate(0, 0, -p.MaxPastDays)

	if daysBefore != nil {
		if *daysBefore <= 0 {
			return Window{}, fmt.Errorf("%w: %d", ErrInvalidDays, *daysBefore)
		}
		days := min(*daysBefore, p.MaxPastDays)
		return Window{Start: end.AddDate(0, 0, -days), End: end}, nil
	}

	last, err := p.latestSuccess(ctx)
	if err != nil {
		return Window{}, err
	}
	if last == nil {
		return Window{Start: floor, End: end}, nil
	}

	start := last.UTC().Add(-time.Duration(p.BufferHours) * time.Hour)
	if start.Before(floor) {
		start = floor
	}
	return Window{Start: start, End: end}, nil
}

func (p *Planner) latestSuccess(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	for _, src := range p.Sources {
		t, err := src.LatestSuccess(ctx, p.TaskName)
		if err != nil {
			return nil, fmt.Errorf("lookup last successful run: %w", err)
		}
		if t != nil && (latest == nil || t.After(*latest)) {
			latest = t
		}
	}
	return latest, nil
}

// SplitDays splits [start, end] into contiguous UTC calendar-day windows.
// The first window ends at 23:59:59.999999 of start's day, the last ends at
// end, and each window starts one microsecond after the previous one ends.
// Times are truncated to microseconds. An end before start yields nil.
func SplitDays(start, end time.Time) []Window {
	start = start.UTC().Truncate(time.Microsecond)
	end = end.UTC().Truncate(time.Microsecond)
	if end.Before(start) {
		return nil
	}

	var out []Window
	cur := start
	for {
		dayEnd := endOfDay(cur)
		if !dayEnd.Before(end) {
			out = append(out, Window{Start: cur, End: end})
			return out
		}
		out = append(out, Window{Start: cur, End: dayEnd})
		cur = dayEnd.Add(time.Microsecond)
	}
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999999000, time.UTC)
}
