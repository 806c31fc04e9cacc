package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/repository"
)

func TestFileName(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	at := time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC)

	name := FileName(id, at)
	assert.Equal(t, "activity_events_0f8fad5b-d9cb-469f-a165-70867728950e_20240301140509.csv", name)
	assert.True(t, ValidFileName(name))

	parsed, ok := ParseFileTime(name)
	require.True(t, ok)
	assert.Equal(t, at, parsed)
}

func TestParseFileTime_Invalid(t *testing.T) {
	for _, name := range []string{"notes.csv", "activity_events_x_2024.csv", "nounderscore20240101000000x.csv"} {
		_, ok := ParseFileTime(name)
		assert.False(t, ok, name)
	}
	assert.False(t, ValidFileName("../etc/passwd"))
}

func TestColumns(t *testing.T) {
	ds := []models.FieldDescriptor{
		{FieldName: "id"},
		{FieldName: "activity", Export: true},
		{FieldName: "userid", Export: true},
		{FieldName: "creationtime", Export: true},
		{FieldName: "retired"},
	}

	cols := Columns(ds, 2)
	require.Len(t, cols, 2)
	assert.Equal(t, "activity", cols[0].Name)
	assert.Equal(t, "userid", cols[1].Name)

	for i := range ds {
		ds[i].Export = false
	}
	cols = Columns(ds, 0)
	assert.Len(t, cols, 4, "unknown descriptors are skipped")
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryRepository()
	for _, d := range []models.FieldDescriptor{
		{FieldName: "id", FieldType: models.FieldTypeString, Export: true},
		{FieldName: "activity", FieldType: models.FieldTypeString, Export: true, Filter: true},
		{FieldName: "issuccess", FieldType: models.FieldTypeBoolean, Export: true},
		{FieldName: "creationtime", FieldType: models.FieldTypeDateTime, Export: true},
	} {
		require.NoError(t, repo.SaveField(ctx, &d))
	}

	created := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	for _, e := range []models.Event{
		{ID: "a", Activity: "ViewReport", IsSuccess: true, CreationTime: created},
		{ID: "b", Activity: "Export; Report", CreationTime: created},
		{ID: "c", Activity: "Other", CreationTime: created},
	} {
		require.NoError(t, repo.SaveEvent(ctx, &e))
	}

	dir := t.TempDir()
	x := NewExporter(repo, filepath.Join(dir, "exports"), 50, nil)
	x.now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }

	path, err := x.Export(ctx, map[string]string{
		"activity":          "Export; Report",
		"orderby_field":     "id",
		"orderby_direction": "asc",
	})
	require.NoError(t, err)
	assert.True(t, ValidFileName(filepath.Base(path)))
	assert.Contains(t, filepath.Base(path), "_20240201000000.csv")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = Delimiter
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"activity", "creationtime", "id", "issuccess"}, rows[0])
	assert.Equal(t, []string{"Export; Report", "2024-01-15T10:00:00Z", "b", "false"}, rows[1])
}

func TestExport_InvalidQuery(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryRepository()
	require.NoError(t, repo.SaveField(ctx, &models.FieldDescriptor{FieldName: "creationtime", Filter: true}))

	dir := t.TempDir()
	_, err := NewExporter(repo, dir, 50, nil).Export(ctx, map[string]string{"creationtime__gte": "soon"})
	require.Error(t, err)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "", FormatValue(map[string]any{}))
	assert.Equal(t, `{"k":"v"}`, FormatValue(map[string]any{"k": "v"}))
	assert.Equal(t, "2024-01-15T10:00:00.5Z", FormatValue(time.Date(2024, 1, 15, 10, 0, 0, 500000000, time.UTC)))
}
