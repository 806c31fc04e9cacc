// Package syncer runs one incremental sync: plan the window, split it into
// days, fetch and merge each day, then record the outcome.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pbi-manager/activity-sync/activity/internal/merger"
	"github.com/pbi-manager/activity-sync/activity/internal/metrics"
	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/tokens"
	"github.com/pbi-manager/activity-sync/activity/internal/upstream"
	"github.com/pbi-manager/activity-sync/activity/internal/window"
	"github.com/pbi-manager/activity-sync/common/logging"
	"github.com/pbi-manager/activity-sync/common/messaging"
)

// Planner decides the overall sync window.
type Planner interface {
	Plan(ctx context.Context, daysBefore *int) (window.Window, error)
}

// Fetcher retrieves every upstream record in a window.
type Fetcher interface {
	FetchAll(ctx context.Context, start, end time.Time, token string) ([]upstream.RawRecord, []models.FailedRequest)
}

// Merger persists upstream records.
type Merger interface {
	Merge(ctx context.Context, records []upstream.RawRecord, runID string) (merger.Result, error)
}

// RunStore records finished runs.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.SyncRun) error
}

// Deps are the collaborators of an Orchestrator. Notifier is optional.
type Deps struct {
	Planner  Planner
	Tokens   tokens.Provider
	Fetcher  Fetcher
	Merger   Merger
	Runs     RunStore
	Notifier messaging.Publisher
	Logger   *logging.Logger
}

// Options control a single RunSync call.
type Options struct {
	// DaysBefore forces a window of that many days back from now.
	DaysBefore *int
	// RunID is generated when empty.
	RunID string
	// PersistRun stores a SyncRun when the run completes.
	PersistRun bool
}

// Orchestrator executes sync runs for one task name and credential.
type Orchestrator struct {
	TaskName   string
	Credential string

	deps Deps
	now  func() time.Time
}

func New(taskName, credential string, deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Orchestrator{
		TaskName:   taskName,
		Credential: credential,
		deps:       deps,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return models.RunIDPrefix + uuid.NewString()
}

// RunSync performs one sync. Page and record failures are reported in the
// result. Credential, storage and cancellation errors abort the run and no
// SyncRun is stored.
func (o *Orchestrator) RunSync(ctx context.Context, opts Options) (*models.RunResult, error) {
	runID := opts.RunID
	if runID == "" {
		runID = NewRunID()
	}
	ctx = logging.ContextWithRunID(ctx, runID)
	log := o.deps.Logger.WithContext(ctx).With(logging.TaskName(o.TaskName))

	startedAt := o.now()
	result := &models.RunResult{
		RunID:     runID,
		TaskName:  o.TaskName,
		StartedAt: startedAt,
	}

	w, err := o.deps.Planner.Plan(ctx, opts.DaysBefore)
	if err != nil {
		return nil, fmt.Errorf("plan window: %w", err)
	}
	result.Start, result.End = w.Start, w.End
	log.Info("sync started", logging.Window(w.Start, w.End))

	for _, sub := range window.SplitDays(w.Start, w.End) {
		detail, err := o.syncWindow(ctx, sub, runID)
		if err != nil {
			metrics.SyncRunsTotal.WithLabelValues("error").Inc()
			log.Error("sync aborted", logging.Window(sub.Start, sub.End), logging.Error(err))
			return nil, err
		}
		metrics.SubWindowsTotal.Inc()

		result.Created += detail.Created
		result.Updated += detail.Updated
		result.FailedRequests += len(detail.FailedRequests)
		result.FailedRecords += len(detail.FailedRecords)
		result.Warnings += len(detail.Warnings)
		result.Details = append(result.Details, detail)
	}
	result.HasFailedRequests = result.FailedRequests > 0
	result.HasFailedRecords = result.FailedRecords > 0
	result.FinishedAt = o.now()

	status := result.Status()
	if opts.PersistRun {
		run := &models.SyncRun{
			RunID:     runID,
			TaskName:  o.TaskName,
			Status:    status,
			Result:    result,
			StartedAt: startedAt,
		}
		if err := o.deps.Runs.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("store sync run: %w", err)
		}
	}

	metrics.SyncRunsTotal.WithLabelValues(status).Inc()
	metrics.SyncRunDuration.Observe(result.FinishedAt.Sub(startedAt).Seconds())
	if status == models.StatusSuccess {
		metrics.LastSuccessTimestamp.Set(float64(startedAt.Unix()))
	}

	log.Info("sync finished",
		logging.Status(status),
		logging.Count("created", result.Created),
		logging.Count("updated", result.Updated),
		logging.Count("failed_requests", result.FailedRequests),
		logging.Count("failed_records", result.FailedRecords),
		logging.Duration(result.FinishedAt.Sub(startedAt)),
	)

	o.notify(ctx, result)
	return result, nil
}

func (o *Orchestrator) syncWindow(ctx context.Context, w window.Window, runID string) (models.SubWindowResult, error) {
	detail := models.SubWindowResult{Start: w.Start, End: w.End}

	if err := ctx.Err(); err != nil {
		return detail, err
	}

	token, err := o.deps.Tokens.Token(ctx, o.Credential)
	if err != nil {
		return detail, fmt.Errorf("acquire token: %w", err)
	}

	records, failed := o.deps.Fetcher.FetchAll(ctx, w.Start, w.End, token)
	if err := ctx.Err(); err != nil {
		return detail, err
	}
	detail.Fetched = len(records)
	detail.FailedRequests = failed

	merged, err := o.deps.Merger.Merge(ctx, records, runID)
	if err != nil {
		return detail, fmt.Errorf("merge records: %w", err)
	}
	detail.Created = merged.Created
	detail.Updated = merged.Updated
	detail.FailedRecords = merged.FailedRecords
	detail.Warnings = merged.Warnings

	o.deps.Logger.WithContext(ctx).Debug("window synced",
		logging.Window(w.Start, w.End),
		logging.Count("fetched", detail.Fetched),
		logging.Count("created", detail.Created),
		logging.Count("updated", detail.Updated),
	)
	return detail, nil
}

// Completion is the payload published when a run finishes.
type Completion struct {
	RunID          string    `json:"run_id"`
	TaskName       string    `json:"task_name"`
	Status         string    `json:"status"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Created        int       `json:"created"`
	Updated        int       `json:"updated"`
	FailedRequests int       `json:"failed_requests"`
	FailedRecords  int       `json:"failed_records"`
}

func (o *Orchestrator) notify(ctx context.Context, r *models.RunResult) {
	if o.deps.Notifier == nil {
		return
	}
	data, err := json.Marshal(Completion{
		RunID:          r.RunID,
		TaskName:       r.TaskName,
		Status:         r.Status(),
		Start:          r.Start,
		End:            r.End,
		Created:        r.Created,
		Updated:        r.Updated,
		FailedRequests: r.FailedRequests,
		FailedRecords:  r.FailedRecords,
	})
	if err == nil {
		err = o.deps.Notifier.Publish(ctx, messaging.SubjectSyncCompleted, data)
	}
	if err != nil {
		o.deps.Logger.WarnContext(ctx, "failed to publish sync completion", logging.Error(err))
	}
}
