package query

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbi-manager/activity-sync/activity/internal/models"
)

func descriptors() []models.FieldDescriptor {
	return []models.FieldDescriptor{
		{FieldName: "activity", Filter: true, Search: true},
		{FieldName: "workspacename", Filter: true, Search: true},
		{FieldName: "creationtime", Filter: true},
		{FieldName: "issuccess", Filter: true},
		{FieldName: "userid", Search: true},
		{FieldName: "operation"},
		{FieldName: "stale_field", Filter: true},
	}
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParse_DateRange(t *testing.T) {
	spec, err := Parse(map[string]string{
		"creationtime__gte": "2024-01-01",
		"creationtime__lte": "2024-01-31T08:00:00",
	}, descriptors())
	require.NoError(t, err)

	require.Len(t, spec.Conditions, 2)
	assert.Equal(t, Condition{Field: "creationtime", Op: OpGte, Value: ts("2024-01-01T00:00:00Z")}, spec.Conditions[0])
	assert.Equal(t, Condition{Field: "creationtime", Op: OpLte, Value: ts("2024-01-31T23:59:59.999999Z")}, spec.Conditions[1])
}

func TestParse_LtFallback(t *testing.T) {
	spec, err := Parse(map[string]string{"creationtime__lt": "2024-01-31"}, descriptors())
	require.NoError(t, err)

	require.Len(t, spec.Conditions, 1)
	assert.Equal(t, Condition{Field: "creationtime", Op: OpLt, Value: ts("2024-02-01T00:00:00Z")}, spec.Conditions[0])

	spec, err = Parse(map[string]string{"creationtime__lt": "2024-01-31", "creationtime__lte": "2024-01-10"}, descriptors())
	require.NoError(t, err)
	require.Len(t, spec.Conditions, 1)
	assert.Equal(t, OpLte, spec.Conditions[0].Op)
}

func TestParse_Equality(t *testing.T) {
	spec, err := Parse(map[string]string{
		"activity":      "ViewReport",
		"workspacename": Blank,
		"issuccess":     "true",
		"operation":     "ignored: not filterable",
		"stale_field":   "ignored: unknown attribute",
	}, descriptors())
	require.NoError(t, err)

	assert.ElementsMatch(t, []Condition{
		{Field: "activity", Op: OpEq, Value: "ViewReport"},
		{Field: "workspacename", Op: OpEq, Value: ""},
		{Field: "issuccess", Op: OpEq, Value: true},
	}, spec.Conditions)
}

func TestParse_Search(t *testing.T) {
	spec, err := Parse(map[string]string{"q": " sales "}, descriptors())
	require.NoError(t, err)
	assert.Equal(t, "sales", spec.Search)
	assert.Equal(t, []string{"activity", "workspacename", "userid"}, spec.SearchFields)

	spec, err = Parse(map[string]string{}, descriptors())
	require.NoError(t, err)
	assert.Empty(t, spec.SearchFields)
}

func TestParse_Order(t *testing.T) {
	spec, err := Parse(map[string]string{"orderby_field": "activity", "orderby_direction": "desc"}, descriptors())
	require.NoError(t, err)
	assert.Equal(t, []Order{{Field: "activity", Desc: true, Fold: true}}, spec.Order)

	spec, err = Parse(map[string]string{"orderby_fields": "creationtime", "orderby_directions": "asc"}, descriptors())
	require.NoError(t, err)
	assert.Equal(t, []Order{{Field: "creationtime"}}, spec.Order)

	spec, err = Parse(map[string]string{"orderby_field": "activity", "orderby_direction": "sideways"}, descriptors())
	require.NoError(t, err)
	assert.Empty(t, spec.Order)
	assert.Equal(t, DefaultOrder, spec.Orders())

	_, err = Parse(map[string]string{"orderby_field": "nope", "orderby_direction": "asc"}, descriptors())
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(map[string]string{"creationtime__gte": "yesterday"}, descriptors())
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = Parse(map[string]string{"issuccess": "maybe"}, descriptors())
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestBuildSQL(t *testing.T) {
	spec := Spec{
		Conditions: []Condition{
			{Field: "activity", Op: OpEq, Value: "ViewReport"},
			{Field: "creationtime", Op: OpGte, Value: ts("2024-01-01T00:00:00Z")},
		},
		Search:       "50%_off",
		SearchFields: []string{"activity", "userid"},
		Order:        []Order{{Field: "activity", Desc: true, Fold: true}},
	}

	got := BuildSQL(spec)
	assert.Equal(t, "WHERE activity = $1 AND creationtime >= $2 AND (activity ILIKE $3 OR userid ILIKE $3)", got.Where)
	assert.Equal(t, "ORDER BY LOWER(activity) DESC, id ASC", got.OrderBy)
	assert.Equal(t, []any{"ViewReport", ts("2024-01-01T00:00:00Z"), `%50\%\_off%`}, got.Args)
}

func TestBuildSQL_Empty(t *testing.T) {
	got := BuildSQL(Spec{})
	assert.Empty(t, got.Where)
	assert.Empty(t, got.Args)
	assert.Equal(t, "ORDER BY created_at DESC, id ASC", got.OrderBy)
}

func TestMatches_DateRangeScenario(t *testing.T) {
	spec, err := Parse(map[string]string{
		"creationtime__gte": "2024-01-01",
		"creationtime__lte": "2024-01-31",
	}, descriptors())
	require.NoError(t, err)

	cases := map[string]bool{
		"2023-12-31T23:59:59.999999Z": false,
		"2024-01-01T00:00:00Z":        true,
		"2024-01-15T12:00:00Z":        true,
		"2024-01-31T23:59:59.999999Z": true,
		"2024-02-01T00:00:00Z":        false,
	}
	for when, want := range cases {
		e := &models.Event{CreationTime: ts(when)}
		assert.Equal(t, want, spec.Matches(e), when)
	}
}

func TestMatches_SearchAndEquality(t *testing.T) {
	spec := Spec{
		Conditions:   []Condition{{Field: "issuccess", Op: OpEq, Value: true}},
		Search:       "SALES",
		SearchFields: []string{"workspacename", "activity"},
	}

	assert.True(t, spec.Matches(&models.Event{IsSuccess: true, WorkspaceName: "Global Sales"}))
	assert.False(t, spec.Matches(&models.Event{IsSuccess: false, WorkspaceName: "Global Sales"}))
	assert.False(t, spec.Matches(&models.Event{IsSuccess: true, WorkspaceName: "Finance"}))
}

func TestSort(t *testing.T) {
	events := []models.Event{
		{ID: "1", Activity: "beta"},
		{ID: "2", Activity: "Alpha"},
		{ID: "3", Activity: "alpha"},
		{ID: "4", Activity: "Gamma"},
	}
	Spec{Order: []Order{{Field: "activity", Fold: true}}}.Sort(events)

	var ids []string
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"2", "3", "1", "4"}, ids)
}

func TestFromValues(t *testing.T) {
	v := url.Values{"q": {"a", "b"}, "empty": {}}
	assert.Equal(t, map[string]string{"q": "a"}, FromValues(v))
}
