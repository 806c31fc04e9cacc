// Package scheduler submits recurring tasks to the job queue.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pbi-manager/activity-sync/activity/internal/jobs"
)

// Submitter accepts tasks. jobs.Queue satisfies it.
type Submitter interface {
	Submit(ctx context.Context, task jobs.Task) error
}

// Entry is one recurring task.
type Entry struct {
	Task     string
	Interval time.Duration
	// Args is evaluated at each submission.
	Args func() map[string]any
}

// Scheduler submits every entry once at start and then on its interval.
type Scheduler struct {
	queue   Submitter
	entries []Entry
	logger  *slog.Logger
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewScheduler(queue Submitter, entries []Entry, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		queue:   queue,
		entries: entries,
		logger:  logger.With(slog.String("component", "scheduler")),
		stop:    make(chan struct{}),
	}
}

// Start launches one loop per entry and returns immediately.
// Entries with a non-positive interval are skipped.
func (s *Scheduler) Start(ctx context.Context) {
	for _, e := range s.entries {
		if e.Interval <= 0 {
			s.logger.Info("schedule disabled", slog.String("task", e.Task))
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
}

func (s *Scheduler) loop(ctx context.Context, e Entry) {
	defer s.wg.Done()

	s.logger.Info("schedule started", slog.String("task", e.Task), slog.Duration("interval", e.Interval))

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	s.submit(ctx, e)
	for {
		select {
		case <-ticker.C:
			s.submit(ctx, e)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) submit(ctx context.Context, e Entry) {
	var args map[string]any
	if e.Args != nil {
		args = e.Args()
	}
	task := jobs.NewTask(e.Task, args)
	if err := s.queue.Submit(ctx, task); err != nil {
		s.logger.Warn("failed to submit scheduled task",
			slog.String("task", e.Task), slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("scheduled task submitted", slog.String("task", e.Task), slog.String("task_id", task.ID))
}

// Stop signals every loop to exit and waits for them.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}
