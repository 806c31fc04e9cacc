package fields

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/repository"
)

func TestSync(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryRepository()
	r := NewReconciler(repo, nil)

	status, err := r.Sync(ctx)
	require.NoError(t, err)
	assert.Len(t, status, len(models.EventFields))
	assert.Equal(t, models.FieldCreated, status["activity"])
	assert.Equal(t, models.FieldCreated, status["extra_data"])

	// keep user settings, fix a drifted type, prune a stale entry
	require.NoError(t, repo.SaveField(ctx, &models.FieldDescriptor{
		FieldName: "activity", FieldType: models.FieldTypeString, DisplayName: "Activity", Filter: true,
	}))
	require.NoError(t, repo.SaveField(ctx, &models.FieldDescriptor{FieldName: "issuccess", FieldType: models.FieldTypeString}))
	require.NoError(t, repo.SaveField(ctx, &models.FieldDescriptor{FieldName: "legacy", FieldType: models.FieldTypeString}))

	status, err = r.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.FieldNoChange, status["activity"])
	assert.Equal(t, models.FieldUpdated, status["issuccess"])
	assert.Equal(t, models.FieldRemoved, status["legacy"])

	all, err := repo.ListFields(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(models.EventFields))
	for _, d := range all {
		if d.FieldName == "activity" {
			assert.True(t, d.Filter)
			assert.Equal(t, "Activity", d.DisplayName)
		}
		if d.FieldName == "issuccess" {
			assert.Equal(t, models.FieldTypeBoolean, d.FieldType)
		}
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryRepository()
	r := NewReconciler(repo, nil)
	_, err := r.Sync(ctx)
	require.NoError(t, err)

	yes, order := true, 3
	d, err := r.Update(ctx, "userid", Patch{Search: &yes, Export: &yes, DisplayOrder: &order})
	require.NoError(t, err)
	assert.True(t, d.Search)
	assert.True(t, d.Export)
	assert.False(t, d.Filter)
	require.NotNil(t, d.DisplayOrder)
	assert.Equal(t, 3, *d.DisplayOrder)

	all, err := repo.ListFields(ctx)
	require.NoError(t, err)
	assert.Equal(t, "userid", all[0].FieldName, "ordered fields come first")

	_, err = r.Update(ctx, "nope", Patch{})
	assert.ErrorIs(t, err, ErrUnknownField)
}
