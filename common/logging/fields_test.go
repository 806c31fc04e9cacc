package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, FieldRunID, RunID("r").Key)
	assert.Equal(t, "r", RunID("r").Value.String())
	assert.Equal(t, FieldTaskName, TaskName("sync").Key)
	assert.Equal(t, FieldTaskID, TaskID("t").Key)
	assert.Equal(t, FieldURL, URL("http://x").Key)
	assert.Equal(t, FieldEventID, EventID("e").Key)
	assert.Equal(t, "boom", Error(errors.New("boom")).Value.String())
	assert.Equal(t, "", Error(nil).Value.String())
	assert.Equal(t, int64(1500), Duration(1500*time.Millisecond).Value.Int64())
	assert.Equal(t, "created", Count("created", 3).Key)
}

func TestWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	attr := Window(start, end)
	assert.Equal(t, FieldWindow, attr.Key)

	group := attr.Value.Group()
	assert.Len(t, group, 2)
	assert.Equal(t, "2024-01-01T10:00:00Z", group[0].Value.String())
	assert.Equal(t, "2024-01-01T11:00:00Z", group[1].Value.String())
}
