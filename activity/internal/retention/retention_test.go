package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbi-manager/activity-sync/activity/internal/export"
	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/repository"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newSweeper(t *testing.T, store EventStore, dir string) *Sweeper {
	t.Helper()
	s := NewSweeper(store, dir, nil)
	s.now = func() time.Time { return now }
	return s
}

func TestSweepEvents(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryRepository()

	// 10 events, 4 older than 90 days
	for i := 0; i < 10; i++ {
		age := 10 * 24 * time.Hour
		if i < 4 {
			age = 100 * 24 * time.Hour
		}
		e := &models.Event{ID: uuid.NewString(), CreationTime: now.Add(-age)}
		require.NoError(t, repo.SaveEvent(ctx, e))
	}

	res, err := newSweeper(t, repo, "").SweepEvents(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Before)
	assert.Equal(t, 4, res.Deleted)
	assert.Equal(t, 6, res.Remaining)
	assert.Equal(t, res.Before-res.Deleted, res.Remaining)
	assert.Equal(t, now.AddDate(0, 0, -90), res.Cutoff)
}

func TestSweepEvents_CutoffBoundary(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryRepository()
	cutoff := now.AddDate(0, 0, -30)

	for id, at := range map[string]time.Time{
		"before": cutoff.Add(-time.Microsecond),
		"at":     cutoff,
		"after":  cutoff.Add(time.Microsecond),
	} {
		require.NoError(t, repo.SaveEvent(ctx, &models.Event{ID: id, CreationTime: at}))
	}

	res, err := newSweeper(t, repo, "").SweepEvents(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, cutoff, res.Cutoff)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 2, res.Remaining)

	_, err = repo.GetEvent(ctx, "before")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	for _, id := range []string{"at", "after"} {
		_, err = repo.GetEvent(ctx, id)
		assert.NoError(t, err, id)
	}
}

func TestSweepEvents_NegativeDays(t *testing.T) {
	_, err := newSweeper(t, repository.NewInMemoryRepository(), "").SweepEvents(context.Background(), -1)
	assert.Error(t, err)
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("id\n"), 0o644))
}

func TestSweepExports(t *testing.T) {
	dir := t.TempDir()
	old := export.FileName(uuid.New(), now.Add(-48*time.Hour))
	fresh := export.FileName(uuid.New(), now.Add(-time.Hour))
	touch(t, dir, old)
	touch(t, dir, fresh)
	touch(t, dir, "manual_copy.csv")
	touch(t, dir, "readme.txt")

	res, err := newSweeper(t, nil, dir).SweepExports(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, []string{old}, res.FilesDeleted)
	assert.Equal(t, 1, res.NameErrors)
	assert.Equal(t, []string{"manual_copy.csv"}, res.NameErrorFiles)

	_, err = os.Stat(filepath.Join(dir, old))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, fresh))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "manual_copy.csv"))
	assert.NoError(t, err)
}

func TestSweepExports_RemoveFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	stuck := export.FileName(uuid.New(), now.Add(-72*time.Hour))
	old := export.FileName(uuid.New(), now.Add(-48*time.Hour))
	touch(t, dir, stuck)
	touch(t, dir, old)

	s := newSweeper(t, nil, dir)
	s.remove = func(path string) error {
		if filepath.Base(path) == stuck {
			return os.ErrPermission
		}
		return os.Remove(path)
	}

	res, err := s.SweepExports(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, []string{old}, res.FilesDeleted)
	assert.Equal(t, 1, res.RemoveErrors)
	assert.Equal(t, []string{stuck}, res.RemoveErrorFiles)

	_, err = os.Stat(filepath.Join(dir, stuck))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, old))
	assert.True(t, os.IsNotExist(err))
}

func TestSweepExports_MissingDir(t *testing.T) {
	res, err := newSweeper(t, nil, filepath.Join(t.TempDir(), "absent")).SweepExports(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Deleted)
	assert.Empty(t, res.FilesDeleted)
}
