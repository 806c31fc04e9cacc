package seeder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbi-manager/activity-sync/activity/internal/merger"
	"github.com/pbi-manager/activity-sync/activity/internal/repository"
)

func testOptions() Options {
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return Options{Events: 50, Users: 5, Start: end.AddDate(0, 0, -10), End: end, Seed: 42}
}

func TestGenerator_Reproducible(t *testing.T) {
	a, err := NewGenerator(testOptions())
	require.NoError(t, err)
	b, err := NewGenerator(testOptions())
	require.NoError(t, err)

	assert.Equal(t, a.Records(), b.Records())
}

func TestGenerator_Record(t *testing.T) {
	g, err := NewGenerator(testOptions())
	require.NoError(t, err)

	users := map[string]bool{}
	for _, rec := range g.Records() {
		assert.NotEmpty(t, rec["Id"])
		assert.NotEmpty(t, rec["activity"])
		users[rec["userid"].(string)] = true

		created, err := time.Parse(time.RFC3339Nano, rec["creationtime"].(string))
		require.NoError(t, err)
		assert.False(t, created.Before(testOptions().Start))
		assert.False(t, created.After(testOptions().End))
	}
	assert.LessOrEqual(t, len(users), 5)
}

func TestGenerator_InvalidOptions(t *testing.T) {
	_, err := NewGenerator(Options{Events: 0, Users: 1})
	assert.Error(t, err)

	opts := testOptions()
	opts.Start, opts.End = opts.End, opts.Start
	_, err = NewGenerator(opts)
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryRepository()

	res, err := Seed(ctx, merger.New(repo, true, nil), testOptions())
	require.NoError(t, err)
	assert.Equal(t, 50, res.Created)
	assert.Empty(t, res.FailedRecords)

	n, err := repo.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}
