// Package service wires the sync engine and its maintenance operations
// behind one facade used by the job handlers, the HTTP API and the CLI.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pbi-manager/activity-sync/activity/internal/export"
	"github.com/pbi-manager/activity-sync/activity/internal/fields"
	"github.com/pbi-manager/activity-sync/activity/internal/jobs"
	"github.com/pbi-manager/activity-sync/activity/internal/merger"
	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/repository"
	"github.com/pbi-manager/activity-sync/activity/internal/retention"
	"github.com/pbi-manager/activity-sync/activity/internal/seeder"
	"github.com/pbi-manager/activity-sync/activity/internal/syncer"
	"github.com/pbi-manager/activity-sync/activity/internal/tokens"
	"github.com/pbi-manager/activity-sync/activity/internal/window"
	"github.com/pbi-manager/activity-sync/common/config"
	"github.com/pbi-manager/activity-sync/common/logging"
	"github.com/pbi-manager/activity-sync/common/messaging"
)

// ErrRunFailed marks a sync that completed with failed requests or records.
var ErrRunFailed = errors.New("sync run reported failures")

// ActivityService is the application facade.
type ActivityService struct {
	cfg      *config.Config
	repo     repository.Repository
	planner  *window.Planner
	syncer   *syncer.Orchestrator
	merger   *merger.Merger
	sweeper  *retention.Sweeper
	exporter *export.Exporter
	fields   *fields.Reconciler
	notifier messaging.Publisher
	logger   *logging.Logger
	now      func() time.Time
}

// NewActivityService builds the service. notifier may be nil.
func NewActivityService(cfg *config.Config, repo repository.Repository, tp tokens.Provider, fetcher syncer.Fetcher, notifier messaging.Publisher, logger *logging.Logger) *ActivityService {
	if logger == nil {
		logger = logging.Default()
	}
	s := &ActivityService{
		cfg:      cfg,
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}

	s.planner = &window.Planner{
		TaskName:    cfg.Sync.TaskName,
		MaxPastDays: cfg.Sync.MaxPastDays,
		BufferHours: cfg.Sync.BufferHours,
		Sources:     []window.LastSuccessSource{window.SourceFunc(s.lastRun), window.SourceFunc(s.lastTask)},
	}
	s.merger = merger.New(repo, cfg.Sync.TruncationIsFailure, logger.Logger)
	s.syncer = syncer.New(cfg.Sync.TaskName, cfg.Auth.DefaultCredential, syncer.Deps{
		Planner:  s.planner,
		Tokens:   tp,
		Fetcher:  fetcher,
		Merger:   s.merger,
		Runs:     repo,
		Notifier: notifier,
		Logger:   logger,
	})
	s.sweeper = retention.NewSweeper(repo, cfg.Export.Dir, logger.Logger)
	s.exporter = export.NewExporter(repo, cfg.Export.Dir, cfg.Export.MaxFields, logger.Logger)
	s.fields = fields.NewReconciler(repo, logger.Logger)
	return s
}

func (s *ActivityService) lastRun(ctx context.Context, taskName string) (*time.Time, error) {
	run, err := s.repo.LatestSuccessfulRun(ctx, taskName)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run.StartedAt, nil
}

// lastTask reads the sync job's results, which are stored under the job
// name rather than the configured run task name.
func (s *ActivityService) lastTask(ctx context.Context, _ string) (*time.Time, error) {
	tr, err := s.repo.LatestSuccessfulTask(ctx, jobs.TaskSync)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tr.DateCreated, nil
}

// LastSuccess returns the time the latest successful sync started, if any.
func (s *ActivityService) LastSuccess(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	for _, src := range s.planner.Sources {
		t, err := src.LatestSuccess(ctx, s.cfg.Sync.TaskName)
		if err != nil {
			return nil, err
		}
		if t != nil && (latest == nil || t.After(*latest)) {
			latest = t
		}
	}
	return latest, nil
}

// RunSync runs one sync and stores its SyncRun. daysBefore forces the window.
func (s *ActivityService) RunSync(ctx context.Context, daysBefore *int) (*models.RunResult, error) {
	return s.syncer.RunSync(ctx, syncer.Options{DaysBefore: daysBefore, PersistRun: true})
}

// SweepEvents deletes events older than days; days <= 0 uses the configured retention.
func (s *ActivityService) SweepEvents(ctx context.Context, days int) (*retention.EventSweepResult, error) {
	if days <= 0 {
		days = s.cfg.Retention.EventDays
	}
	res, err := s.sweeper.SweepEvents(ctx, days)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, messaging.SubjectRetentionCompleted, map[string]any{"kind": "events", "result": res})
	return res, nil
}

// SweepExports deletes export files older than hours; hours <= 0 uses the configured retention.
func (s *ActivityService) SweepExports(ctx context.Context, hours int) (*retention.ExportSweepResult, error) {
	if hours <= 0 {
		hours = s.cfg.Retention.ExportHours
	}
	res, err := s.sweeper.SweepExports(ctx, hours)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, messaging.SubjectRetentionCompleted, map[string]any{"kind": "exports", "result": res})
	return res, nil
}

// ExportFilteredCSV writes the events matching filter to a CSV file and returns its path.
func (s *ActivityService) ExportFilteredCSV(ctx context.Context, filter map[string]string) (string, error) {
	return s.exporter.Export(ctx, filter)
}

// ExportDir is where ExportFilteredCSV writes files.
func (s *ActivityService) ExportDir() string {
	return s.exporter.Dir()
}

// SyncFields reconciles field descriptors with the event schema.
func (s *ActivityService) SyncFields(ctx context.Context) (map[string]string, error) {
	return s.fields.Sync(ctx)
}

// UpdateField changes display settings of one descriptor.
func (s *ActivityService) UpdateField(ctx context.Context, name string, p fields.Patch) (*models.FieldDescriptor, error) {
	return s.fields.Update(ctx, name, p)
}

// ListFields returns all descriptors in display order.
func (s *ActivityService) ListFields(ctx context.Context) ([]models.FieldDescriptor, error) {
	return s.repo.ListFields(ctx)
}

// ListRuns returns recent sync runs of the configured task, newest first.
func (s *ActivityService) ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	return s.repo.ListRuns(ctx, s.cfg.Sync.TaskName, limit)
}

// GetTask returns a recorded job result.
func (s *ActivityService) GetTask(ctx context.Context, taskID string) (*models.TaskResult, error) {
	return s.repo.GetTaskResult(ctx, taskID)
}

// Seed merges generated records into the store.
func (s *ActivityService) Seed(ctx context.Context, opts seeder.Options) (merger.Result, error) {
	return seeder.Seed(ctx, s.merger, opts)
}

// Ping checks the store.
func (s *ActivityService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// jsonPublisher is implemented by publishers that encode payloads themselves.
type jsonPublisher interface {
	PublishJSON(ctx context.Context, subject string, data any) error
}

func (s *ActivityService) publish(ctx context.Context, subject string, payload any) {
	if s.notifier == nil {
		return
	}
	var err error
	if jp, ok := s.notifier.(jsonPublisher); ok {
		err = jp.PublishJSON(ctx, subject, payload)
	} else {
		var data []byte
		if data, err = json.Marshal(payload); err == nil {
			err = s.notifier.Publish(ctx, subject, data)
		}
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish notification", "subject", subject, logging.Error(err))
	}
}

// failure wraps ErrRunFailed with the run counts.
func failure(r *models.RunResult) error {
	return fmt.Errorf("%w: %d failed requests, %d failed records", ErrRunFailed, r.FailedRequests, r.FailedRecords)
}
