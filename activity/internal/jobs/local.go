package jobs

import (
	"context"
	"sync"

	"github.com/pbi-manager/activity-sync/activity/internal/metrics"
)

// LocalQueue runs tasks on an in-process worker pool fed by a bounded channel.
type LocalQueue struct {
	dispatcher *Dispatcher
	workers    int
	tasks      chan Task
	wg         sync.WaitGroup
	closed     bool
	mu         sync.RWMutex
}

func NewLocalQueue(d *Dispatcher, workers, size int) *LocalQueue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	return &LocalQueue{
		dispatcher: d,
		workers:    workers,
		tasks:      make(chan Task, size),
	}
}

// Start launches the workers. They exit when the queue is closed.
func (q *LocalQueue) Start(ctx context.Context) error {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for task := range q.tasks {
				metrics.QueueDepth.Set(float64(len(q.tasks)))
				q.dispatcher.Execute(ctx, task)
			}
		}()
	}
	return nil
}

// Submit records the task as pending and enqueues it without blocking.
func (q *LocalQueue) Submit(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	if err := q.dispatcher.Accept(ctx, task); err != nil {
		return err
	}
	select {
	case q.tasks <- task:
		metrics.QueueDepth.Set(float64(len(q.tasks)))
		return nil
	default:
		q.dispatcher.Reject(ctx, task, ErrQueueFull)
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}
