package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskSubject(t *testing.T) {
	assert.Equal(t, "activity.tasks.sync", TaskSubject("sync"))
	assert.Equal(t, "activity.tasks.sweep_events", TaskSubject("sweep_events"))
	assert.Equal(t, "activity.tasks.>", TaskWildcard())
}
