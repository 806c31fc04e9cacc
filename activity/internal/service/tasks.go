package service

import (
	"context"

	"github.com/pbi-manager/activity-sync/activity/internal/jobs"
)

// RegisterHandlers binds every job task name to the matching service operation.
func (s *ActivityService) RegisterHandlers(d *jobs.Dispatcher) {
	d.Register(jobs.TaskSync, s.handleSync)
	d.Register(jobs.TaskSweepEvents, func(ctx context.Context, t jobs.Task) (any, error) {
		days, _ := t.IntArg("retention_days")
		return s.SweepEvents(ctx, days)
	})
	d.Register(jobs.TaskSweepExports, func(ctx context.Context, t jobs.Task) (any, error) {
		hours, _ := t.IntArg("retention_hours")
		return s.SweepExports(ctx, hours)
	})
	d.Register(jobs.TaskExport, func(ctx context.Context, t jobs.Task) (any, error) {
		return s.ExportFilteredCSV(ctx, t.StringArgs())
	})
	d.Register(jobs.TaskSyncFields, func(ctx context.Context, t jobs.Task) (any, error) {
		return s.SyncFields(ctx)
	})
}

// handleSync records a run with failures as a failed job, keeping the result.
func (s *ActivityService) handleSync(ctx context.Context, t jobs.Task) (any, error) {
	var daysBefore *int
	if n, ok := t.IntArg("days_before"); ok {
		daysBefore = &n
	}
	res, err := s.RunSync(ctx, daysBefore)
	if err != nil {
		return nil, err
	}
	if res.HasFailedRequests || res.HasFailedRecords {
		return res, failure(res)
	}
	return res, nil
}
