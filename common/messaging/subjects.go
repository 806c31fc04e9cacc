package messaging

// Subjects follow {domain}.{kind}.{name}.
const (
	// SubjectTaskPrefix is suffixed with the task name, e.g. activity.tasks.sync.
	SubjectTaskPrefix = "activity.tasks"

	// SubjectSyncCompleted carries a summary of every finished sync run.
	SubjectSyncCompleted = "activity.sync.completed"

	// SubjectRetentionCompleted carries sweep reports.
	SubjectRetentionCompleted = "activity.retention.completed"
)

// QueueActivityWorkers is the queue group shared by all task workers.
const QueueActivityWorkers = "activity-workers"

// TaskSubject returns the subject a named task is dispatched on.
func TaskSubject(taskName string) string {
	return SubjectTaskPrefix + "." + taskName
}

// TaskWildcard matches every task subject.
func TaskWildcard() string {
	return SubjectTaskPrefix + ".>"
}
