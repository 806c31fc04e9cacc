package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbi-manager/activity-sync/activity/internal/jobs"
	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/common/config"
	"github.com/pbi-manager/activity-sync/common/logging"
)

func memoryConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Database.Type = "memory"
	cfg.Export.Dir = t.TempDir()
	return cfg
}

func TestNew_MemoryWithRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.URL = "redis://" + mr.Addr()

	a, err := New(context.Background(), cfg, logging.Default())
	require.NoError(t, err)
	defer a.Close()

	q, err := a.NewQueue()
	require.NoError(t, err)
	require.NoError(t, q.Start(context.Background()))

	task := jobs.NewTask(jobs.TaskSyncFields, nil)
	require.NoError(t, q.Submit(context.Background(), task))
	require.NoError(t, q.Close())

	tr, err := a.Service.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, tr.Status)
	assert.False(t, mr.Exists("activity:lock:"+jobs.TaskSyncFields), "lock is released after the task")
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.URL = "redis://127.0.0.1:1"

	_, err := New(context.Background(), cfg, logging.Default())
	assert.Error(t, err)
}

func TestNew_UnknownDatabase(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Database.Type = "sqlite"
	_, err := New(context.Background(), cfg, logging.Default())
	assert.ErrorContains(t, err, "unsupported database.type")
}

func TestNewQueue(t *testing.T) {
	cfg := memoryConfig(t)
	a, err := New(context.Background(), cfg, logging.Default())
	require.NoError(t, err)
	defer a.Close()

	cfg.Jobs.Backend = BackendNATS
	_, err = a.NewQueue()
	assert.ErrorContains(t, err, "requires nats.enabled")

	cfg.Jobs.Backend = "kafka"
	_, err = a.NewQueue()
	assert.ErrorContains(t, err, "unknown jobs.backend")
}

func TestEnsureExportDir(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Export.Dir = t.TempDir() + "/nested/exports"
	a, err := New(context.Background(), cfg, logging.Default())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.EnsureExportDir())
	assert.DirExists(t, cfg.Export.Dir)
}
