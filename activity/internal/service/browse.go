package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/query"
)

// ErrNoChartFields is returned when no descriptor enables charting.
var ErrNoChartFields = errors.New("no chart fields configured")

// ListEvents applies the filter contract to params and returns one page.
func (s *ActivityService) ListEvents(ctx context.Context, params map[string]string, limit, offset int) ([]models.Event, int, error) {
	descriptors, err := s.repo.ListFields(ctx)
	if err != nil {
		return nil, 0, err
	}
	spec, err := query.Parse(params, descriptors)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListEvents(ctx, spec, limit, offset)
}

// Facet lists the choices offered for one filter-enabled field. Datetime
// fields report the date range instead of values.
type Facet struct {
	Field       string           `json:"field"`
	DisplayName string           `json:"displayname"`
	Type        models.FieldType `json:"fieldtype"`
	Values      []string         `json:"values,omitempty"`
	MinDate     string           `json:"min_date,omitempty"`
	MaxDate     string           `json:"max_date,omitempty"`
}

// Facets returns filter choices for every filter-enabled field.
func (s *ActivityService) Facets(ctx context.Context) ([]Facet, error) {
	descriptors, err := s.repo.ListFields(ctx)
	if err != nil {
		return nil, err
	}

	var out []Facet
	for _, d := range descriptors {
		if !d.Filter {
			continue
		}
		f, ok := models.LookupField(d.FieldName)
		if !ok || f.Type == models.FieldTypeJSON {
			continue
		}
		facet := Facet{Field: f.Name, DisplayName: displayName(d), Type: f.Type}

		if f.Type == models.FieldTypeDateTime {
			lo, hi, err := s.repo.TimeRange(ctx, f.Name)
			if err != nil {
				return nil, fmt.Errorf("date range of %s: %w", f.Name, err)
			}
			facet.MinDate, facet.MaxDate = dateOf(lo), dateOf(hi)
		} else {
			values, err := s.repo.DistinctValues(ctx, f.Name, 0)
			if err != nil {
				return nil, fmt.Errorf("values of %s: %w", f.Name, err)
			}
			facet.Values = blankValues(values)
		}
		out = append(out, facet)
	}
	return out, nil
}

// ChartColumn describes one column of a chart dataset.
type ChartColumn struct {
	Field       string           `json:"field"`
	Type        models.FieldType `json:"fieldtype"`
	DisplayName string           `json:"displayname"`
	Values      []string         `json:"values,omitempty"`
	MinDate     string           `json:"min_date,omitempty"`
	MaxDate     string           `json:"max_date,omitempty"`
}

// Chart is a grouped count over the chart-enabled fields. Each dataset row
// holds one value per column followed by the count. Datetime values are
// truncated to the hour.
type Chart struct {
	Columns        []ChartColumn `json:"columns"`
	Dataset        [][]any       `json:"dataset"`
	LastDataUpdate *time.Time    `json:"last_data_update_time"`
	Since          *time.Time    `json:"since,omitempty"`
}

// Chart aggregates events for the chart-enabled fields. When a datetime
// field is charted, only events from the last charts.max_past_days days count.
func (s *ActivityService) Chart(ctx context.Context) (*Chart, error) {
	descriptors, err := s.repo.ListFields(ctx)
	if err != nil {
		return nil, err
	}

	chart := &Chart{Dataset: [][]any{}}
	var (
		groups     []string
		sinceField string
	)
	for _, d := range descriptors {
		if !d.Chart {
			continue
		}
		f, ok := models.LookupField(d.FieldName)
		if !ok || f.Type == models.FieldTypeJSON {
			continue
		}
		col := ChartColumn{Field: f.Name, Type: f.Type, DisplayName: displayName(d)}
		if f.Type == models.FieldTypeDateTime {
			if sinceField == "" {
				sinceField = f.Name
			}
			lo, hi, err := s.repo.TimeRange(ctx, f.Name)
			if err != nil {
				return nil, err
			}
			col.MinDate, col.MaxDate = dateOf(lo), dateOf(hi)
		} else {
			values, err := s.repo.DistinctValues(ctx, f.Name, 0)
			if err != nil {
				return nil, err
			}
			col.Values = blankValues(values)
		}
		groups = append(groups, f.Name)
		chart.Columns = append(chart.Columns, col)
	}
	if len(groups) == 0 {
		return nil, ErrNoChartFields
	}

	var since time.Time
	if sinceField != "" {
		since = s.now().AddDate(0, 0, -s.cfg.Charts.MaxPastDays)
		chart.Since = &since
	}
	buckets, err := s.repo.CountBy(ctx, groups, sinceField, since)
	if err != nil {
		return nil, err
	}
	for _, b := range buckets {
		row := make([]any, 0, len(b.Keys)+1)
		row = append(row, b.Keys...)
		chart.Dataset = append(chart.Dataset, append(row, b.Count))
	}

	last, err := s.LastSuccess(ctx)
	if err != nil {
		return nil, err
	}
	chart.LastDataUpdate = last
	return chart, nil
}

func displayName(d models.FieldDescriptor) string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.FieldName
}

func dateOf(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func blankValues(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if v == "" {
			v = query.Blank
		}
		out[i] = v
	}
	return out
}
