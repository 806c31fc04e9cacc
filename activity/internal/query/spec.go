// Package query turns request parameters into a typed filter specification
// and renders it as SQL or evaluates it in memory.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pbi-manager/activity-sync/activity/internal/models"
)

// ErrInvalidQuery is returned for parameters that cannot be applied.
var ErrInvalidQuery = errors.New("invalid query")

// Blank is the placeholder used by clients to select empty strings.
const Blank = "<blank>"

// Request parameter names.
const (
	ParamSearch          = "q"
	ParamOrderField      = "orderby_field"
	ParamOrderFields     = "orderby_fields"
	ParamOrderDirection  = "orderby_direction"
	ParamOrderDirections = "orderby_directions"
)

// Operator is a comparison applied by a Condition.
type Operator string

const (
	OpEq  Operator = "eq"
	OpGte Operator = "gte"
	OpLte Operator = "lte"
	OpLt  Operator = "lt"
)

// Condition compares one attribute to a value. Value is a string, bool or time.Time.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// Order sorts by one attribute. Fold orders strings case-insensitively.
type Order struct {
	Field string
	Desc  bool
	Fold  bool
}

// Spec is a parsed filter, search and ordering request. Conditions are ANDed;
// the search term matches when any SearchFields attribute contains it.
type Spec struct {
	Conditions   []Condition
	Search       string
	SearchFields []string
	Order        []Order
}

// DefaultOrder is applied when a request names no ordering.
var DefaultOrder = []Order{{Field: "created_at", Desc: true}}

// FromValues flattens URL query values, keeping the first value of each key.
func FromValues(v url.Values) map[string]string {
	out := make(map[string]string, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			out[k] = vals[0]
		}
	}
	return out
}

// Parse builds a Spec from request parameters. Only attributes whose
// descriptor enables filtering (or searching) take part; everything else in
// params is ignored.
func Parse(params map[string]string, descriptors []models.FieldDescriptor) (Spec, error) {
	var spec Spec

	for _, d := range descriptors {
		f, ok := models.LookupField(d.FieldName)
		if !ok {
			continue
		}
		if d.Filter {
			conds, err := parseFilter(f, params)
			if err != nil {
				return Spec{}, err
			}
			spec.Conditions = append(spec.Conditions, conds...)
		}
		if d.Search && f.Type == models.FieldTypeString {
			spec.SearchFields = append(spec.SearchFields, f.Name)
		}
	}

	spec.Search = strings.TrimSpace(params[ParamSearch])
	if spec.Search == "" {
		spec.SearchFields = nil
	}

	order, err := parseOrder(params)
	if err != nil {
		return Spec{}, err
	}
	spec.Order = order

	return spec, nil
}

func parseFilter(f models.EventField, params map[string]string) ([]Condition, error) {
	switch f.Type {
	case models.FieldTypeDateTime:
		return parseDateRange(f.Name, params)
	case models.FieldTypeBoolean:
		raw := params[f.Name]
		if raw == "" {
			return nil, nil
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a boolean, got %q", ErrInvalidQuery, f.Name, raw)
		}
		return []Condition{{Field: f.Name, Op: OpEq, Value: b}}, nil
	case models.FieldTypeString:
		raw := params[f.Name]
		if raw == "" {
			return nil, nil
		}
		if raw == Blank {
			raw = ""
		}
		return []Condition{{Field: f.Name, Op: OpEq, Value: raw}}, nil
	}
	return nil, nil
}

// parseDateRange reads field__gte and field__lte (or field__lt) using only
// the date part of each value. gte starts at midnight UTC, lte ends at the
// last microsecond of its day, lt excludes everything from the next midnight.
func parseDateRange(field string, params map[string]string) ([]Condition, error) {
	var conds []Condition

	if raw := params[field+"__gte"]; raw != "" {
		day, err := parseDay(field+"__gte", raw)
		if err != nil {
			return nil, err
		}
		conds = append(conds, Condition{Field: field, Op: OpGte, Value: day})
	}

	if raw := params[field+"__lte"]; raw != "" {
		day, err := parseDay(field+"__lte", raw)
		if err != nil {
			return nil, err
		}
		conds = append(conds, Condition{Field: field, Op: OpLte, Value: day.AddDate(0, 0, 1).Add(-time.Microsecond)})
	} else if raw := params[field+"__lt"]; raw != "" {
		day, err := parseDay(field+"__lt", raw)
		if err != nil {
			return nil, err
		}
		conds = append(conds, Condition{Field: field, Op: OpLt, Value: day.AddDate(0, 0, 1)})
	}

	return conds, nil
}

func parseDay(param, raw string) (time.Time, error) {
	if len(raw) > 10 {
		raw = raw[:10]
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must start with YYYY-MM-DD, got %q", ErrInvalidQuery, param, raw)
	}
	return day.UTC(), nil
}

func parseOrder(params map[string]string) ([]Order, error) {
	field := params[ParamOrderFields]
	if field == "" {
		field = params[ParamOrderField]
	}
	dir := params[ParamOrderDirections]
	if dir == "" {
		dir = params[ParamOrderDirection]
	}
	if field == "" || dir == "" {
		return nil, nil
	}

	f, ok := models.LookupField(field)
	if !ok || f.Type == models.FieldTypeJSON {
		return nil, fmt.Errorf("%w: cannot order by %q", ErrInvalidQuery, field)
	}

	var desc bool
	switch strings.ToLower(dir) {
	case "asc":
	case "desc":
		desc = true
	default:
		return nil, nil
	}

	return []Order{{Field: f.Name, Desc: desc, Fold: f.Type == models.FieldTypeString}}, nil
}

// Orders returns the spec's ordering or DefaultOrder.
func (s Spec) Orders() []Order {
	if len(s.Order) == 0 {
		return DefaultOrder
	}
	return s.Order
}
