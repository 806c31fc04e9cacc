package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pbi-manager/activity-sync/common/messaging"
)

// NATSQueue publishes tasks on activity.tasks.<name> and executes them in
// the activity-workers queue group, so each task runs on one subscriber.
type NATSQueue struct {
	client     messaging.Client
	dispatcher *Dispatcher
	sub        messaging.Subscription
	logger     *slog.Logger
}

func NewNATSQueue(client messaging.Client, d *Dispatcher) *NATSQueue {
	return &NATSQueue{
		client:     client,
		dispatcher: d,
		logger:     slog.Default().With(slog.String("component", "nats-queue")),
	}
}

func (q *NATSQueue) Start(ctx context.Context) error {
	sub, err := q.client.QueueSubscribe(messaging.TaskWildcard(), messaging.QueueActivityWorkers, q.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to tasks: %w", err)
	}
	q.sub = sub

	q.logger.Info("NATS task queue started",
		slog.String("subject", messaging.TaskWildcard()),
		slog.String("queue_group", messaging.QueueActivityWorkers))
	return nil
}

func (q *NATSQueue) Submit(ctx context.Context, task Task) error {
	if err := q.dispatcher.Accept(ctx, task); err != nil {
		return err
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.client.Publish(ctx, messaging.TaskSubject(task.Name), data); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

func (q *NATSQueue) handle(ctx context.Context, msg *messaging.Message) error {
	var task Task
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		q.logger.Error("Failed to unmarshal task",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()))
		return err
	}
	q.dispatcher.Execute(ctx, task)
	return nil
}

// Close unsubscribes. The client itself is owned by the caller.
func (q *NATSQueue) Close() error {
	if q.sub == nil {
		return nil
	}
	return q.sub.Unsubscribe()
}
