package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/query"
)

// InMemoryRepository is a Repository for development and tests.
type InMemoryRepository struct {
	events map[string]*models.Event
	runs   map[string]*models.SyncRun
	tasks  map[string]*models.TaskResult
	fields map[string]*models.FieldDescriptor
	now    func() time.Time
	mu     sync.RWMutex
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		events: make(map[string]*models.Event),
		runs:   make(map[string]*models.SyncRun),
		tasks:  make(map[string]*models.TaskResult),
		fields: make(map[string]*models.FieldDescriptor),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) Ping(ctx context.Context) error { return nil }
func (r *InMemoryRepository) Close()                         {}

func cloneEvent(e *models.Event) *models.Event {
	c := *e
	if e.ExtraData != nil {
		c.ExtraData = make(map[string]any, len(e.ExtraData))
		for k, v := range e.ExtraData {
			c.ExtraData[k] = v
		}
	}
	return &c
}

func (r *InMemoryRepository) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEvent(e), nil
}

func (r *InMemoryRepository) SaveEvent(ctx context.Context, e *models.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if bad := models.Unstorable(e); len(bad) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidData, strings.Join(bad, ", "))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.events[e.ID]; ok {
		e.CreatedAt = existing.CreatedAt
	} else {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	r.events[e.ID] = cloneEvent(e)
	return nil
}

func (r *InMemoryRepository) CountEvents(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events), nil
}

func (r *InMemoryRepository) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.events {
		if e.CreationTime.Before(cutoff) {
			delete(r.events, id)
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) matching(spec query.Spec) []models.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Event, 0, len(r.events))
	for _, e := range r.events {
		if spec.Matches(e) {
			out = append(out, *cloneEvent(e))
		}
	}
	spec.Sort(out)
	return out
}

func (r *InMemoryRepository) ListEvents(ctx context.Context, spec query.Spec, limit, offset int) ([]models.Event, int, error) {
	all := r.matching(spec)
	total := len(all)

	if offset >= total {
		return []models.Event{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (r *InMemoryRepository) EachEvent(ctx context.Context, spec query.Spec, fn func(*models.Event) error) error {
	for _, e := range r.matching(spec) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(&e); err != nil {
			return err
		}
	}
	return nil
}

func (r *InMemoryRepository) DistinctValues(ctx context.Context, field string, limit int) ([]string, error) {
	f, err := groupableField(field)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	seen := map[string]bool{}
	for _, e := range r.events {
		if v := f.Value(e); v != nil {
			seen[fmt.Sprint(v)] = true
		}
	}
	r.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) TimeRange(ctx context.Context, field string) (*time.Time, *time.Time, error) {
	f, err := groupableField(field)
	if err != nil || f.Type != models.FieldTypeDateTime {
		return nil, nil, ErrUnknownField
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var lo, hi *time.Time
	for _, e := range r.events {
		t := f.Time(e)
		if t == nil {
			continue
		}
		if lo == nil || t.Before(*lo) {
			lo = t
		}
		if hi == nil || t.After(*hi) {
			hi = t
		}
	}
	return lo, hi, nil
}

func (r *InMemoryRepository) CountBy(ctx context.Context, fields []string, sinceField string, since time.Time) ([]Bucket, error) {
	defs := make([]models.EventField, len(fields))
	for i, name := range fields {
		f, err := groupableField(name)
		if err != nil {
			return nil, err
		}
		defs[i] = f
	}
	var sinceDef *models.EventField
	if sinceField != "" {
		f, err := groupableField(sinceField)
		if err != nil || f.Type != models.FieldTypeDateTime {
			return nil, ErrUnknownField
		}
		sinceDef = &f
	}

	r.mu.RLock()
	groups := map[string]*Bucket{}
	for _, e := range r.events {
		if sinceDef != nil {
			t := sinceDef.Time(e)
			if t == nil || t.Before(since) {
				continue
			}
		}
		keys := make([]any, len(defs))
		parts := make([]string, len(defs))
		for i, f := range defs {
			v := f.Value(e)
			if t, ok := v.(time.Time); ok {
				v = t.Truncate(time.Hour)
			}
			keys[i] = v
			parts[i] = fmt.Sprint(v)
		}
		k := strings.Join(parts, "\x00")
		if b, ok := groups[k]; ok {
			b.Count++
			continue
		}
		groups[k] = &Bucket{Keys: keys, Count: 1}
	}
	r.mu.RUnlock()

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Bucket, len(keys))
	for i, k := range keys {
		out[i] = *groups[k]
	}
	return out, nil
}

func (r *InMemoryRepository) CreateRun(ctx context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[run.RunID]; ok {
		return ErrExists
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = r.now()
	}
	c := *run
	r.runs[run.RunID] = &c
	return nil
}

func (r *InMemoryRepository) GetRun(ctx context.Context, runID string) (*models.SyncRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *run
	return &c, nil
}

func (r *InMemoryRepository) ListRuns(ctx context.Context, taskName string, limit int) ([]models.SyncRun, error) {
	r.mu.RLock()
	out := make([]models.SyncRun, 0, len(r.runs))
	for _, run := range r.runs {
		if taskName == "" || run.TaskName == taskName {
			out = append(out, *run)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) LatestSuccessfulRun(ctx context.Context, taskName string) (*models.SyncRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.SyncRun
	for _, run := range r.runs {
		if run.TaskName != taskName || !run.IsSuccess() {
			continue
		}
		if latest == nil || run.StartedAt.After(latest.StartedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	c := *latest
	return &c, nil
}

func (r *InMemoryRepository) CreateTaskResult(ctx context.Context, tr *models.TaskResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[tr.TaskID]; ok {
		return ErrExists
	}
	if tr.DateCreated.IsZero() {
		tr.DateCreated = r.now()
	}
	c := *tr
	r.tasks[tr.TaskID] = &c
	return nil
}

func (r *InMemoryRepository) UpdateTaskResult(ctx context.Context, tr *models.TaskResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[tr.TaskID]; !ok {
		return ErrNotFound
	}
	c := *tr
	r.tasks[tr.TaskID] = &c
	return nil
}

func (r *InMemoryRepository) GetTaskResult(ctx context.Context, taskID string) (*models.TaskResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tr, ok := r.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *tr
	return &c, nil
}

func (r *InMemoryRepository) LatestSuccessfulTask(ctx context.Context, taskName string) (*models.TaskResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.TaskResult
	for _, tr := range r.tasks {
		if tr.TaskName != taskName || !strings.EqualFold(tr.Status, models.StatusSuccess) {
			continue
		}
		if latest == nil || tr.DateCreated.After(latest.DateCreated) {
			latest = tr
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	c := *latest
	return &c, nil
}

func (r *InMemoryRepository) ListFields(ctx context.Context) ([]models.FieldDescriptor, error) {
	r.mu.RLock()
	out := make([]models.FieldDescriptor, 0, len(r.fields))
	for _, d := range r.fields {
		out = append(out, *d)
	}
	r.mu.RUnlock()

	models.SortDescriptors(out)
	return out, nil
}

func (r *InMemoryRepository) SaveField(ctx context.Context, d *models.FieldDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d.UpdatedAt = r.now()
	c := *d
	r.fields[d.FieldName] = &c
	return nil
}

func (r *InMemoryRepository) DeleteFields(ctx context.Context, names []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, name := range names {
		if _, ok := r.fields[name]; ok {
			delete(r.fields, name)
			n++
		}
	}
	return n, nil
}
