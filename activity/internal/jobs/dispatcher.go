package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pbi-manager/activity-sync/activity/internal/metrics"
	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/repository"
	"github.com/pbi-manager/activity-sync/common/logging"
)

// Dispatcher routes tasks to registered handlers, guards each task name
// with a Locker and records a TaskResult for every task.
type Dispatcher struct {
	store    repository.TaskStore
	locker   Locker
	lockTTL  time.Duration
	handlers map[string]Handler
	logger   *logging.Logger
	mu       sync.RWMutex
}

func NewDispatcher(store repository.TaskStore, locker Locker, lockTTL time.Duration, logger *logging.Logger) *Dispatcher {
	if locker == nil {
		locker = NoopLocker{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		store:    store,
		locker:   locker,
		lockTTL:  lockTTL,
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register binds a handler to a task name, replacing any previous one.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

func (d *Dispatcher) handler(name string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[name]
	return h, ok
}

// Accept validates a task and records it as pending.
func (d *Dispatcher) Accept(ctx context.Context, task Task) error {
	if _, ok := d.handler(task.Name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, task.Name)
	}
	tr := &models.TaskResult{
		TaskID:      task.ID,
		TaskName:    task.Name,
		Status:      models.StatusPending,
		Args:        task.Args,
		DateCreated: task.SubmittedAt,
	}
	if err := d.store.CreateTaskResult(ctx, tr); err != nil {
		return fmt.Errorf("record task %s: %w", task.ID, err)
	}
	return nil
}

// Reject marks an accepted task as failed without running it.
func (d *Dispatcher) Reject(ctx context.Context, task Task, reason error) {
	done := time.Now().UTC()
	tr := &models.TaskResult{
		TaskID:      task.ID,
		TaskName:    task.Name,
		Status:      models.StatusFailure,
		Args:        task.Args,
		Error:       reason.Error(),
		DateCreated: task.SubmittedAt,
		DateDone:    &done,
	}
	if err := d.store.UpdateTaskResult(ctx, tr); err != nil {
		d.logger.WarnContext(ctx, "failed to record rejected task", logging.TaskID(task.ID), logging.Error(err))
	}
	metrics.JobsTotal.WithLabelValues(task.Name, tr.Status).Inc()
}

// Execute runs an accepted task and stores its outcome.
func (d *Dispatcher) Execute(ctx context.Context, task Task) *models.TaskResult {
	log := d.logger.WithContext(ctx).With(logging.TaskID(task.ID), logging.TaskName(task.Name))

	tr, err := d.store.GetTaskResult(ctx, task.ID)
	if err != nil {
		log.Warn("task result missing, recording anew", logging.Error(err))
		tr = &models.TaskResult{TaskID: task.ID, TaskName: task.Name, Args: task.Args, DateCreated: task.SubmittedAt}
		if cerr := d.store.CreateTaskResult(ctx, tr); cerr != nil && !errors.Is(cerr, repository.ErrExists) {
			log.Error("failed to record task", logging.Error(cerr))
		}
	}

	result, runErr := d.run(ctx, task)
	if errors.Is(runErr, ErrLocked) {
		metrics.JobsSkippedTotal.WithLabelValues(task.Name).Inc()
	}

	done := time.Now().UTC()
	tr.Result = result
	tr.DateDone = &done
	tr.Status = models.StatusSuccess
	tr.Error = ""
	if runErr != nil {
		tr.Status = models.StatusFailure
		tr.Error = runErr.Error()
	}
	metrics.JobsTotal.WithLabelValues(task.Name, tr.Status).Inc()

	// the outcome must be stored even when ctx was cancelled mid-run
	storeCtx := context.WithoutCancel(ctx)
	if err := d.store.UpdateTaskResult(storeCtx, tr); err != nil {
		log.Error("failed to store task result", logging.Error(err))
	}

	if runErr != nil {
		log.Warn("task failed", logging.Error(runErr), logging.Duration(done.Sub(task.SubmittedAt)))
	} else {
		log.Info("task succeeded", logging.Duration(done.Sub(task.SubmittedAt)))
	}
	return tr
}

func (d *Dispatcher) run(ctx context.Context, task Task) (result any, err error) {
	h, ok := d.handler(task.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, task.Name)
	}

	release, acquired, err := d.locker.Acquire(ctx, task.Name, d.lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrLocked
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return h(ctx, task)
}
