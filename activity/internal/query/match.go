package query

import (
	"sort"
	"strings"
	"time"

	"github.com/pbi-manager/activity-sync/activity/internal/models"
)

// Matches reports whether e satisfies every condition and the search term.
func (s Spec) Matches(e *models.Event) bool {
	for _, c := range s.Conditions {
		if !matchCondition(c, e) {
			return false
		}
	}

	if s.Search == "" || len(s.SearchFields) == 0 {
		return true
	}
	needle := strings.ToLower(s.Search)
	for _, name := range s.SearchFields {
		f, ok := models.LookupField(name)
		if !ok {
			continue
		}
		if v := f.Str(e); v != nil && strings.Contains(strings.ToLower(*v), needle) {
			return true
		}
	}
	return false
}

func matchCondition(c Condition, e *models.Event) bool {
	f, ok := models.LookupField(c.Field)
	if !ok {
		return false
	}

	switch want := c.Value.(type) {
	case string:
		v := f.Str(e)
		return v != nil && *v == want
	case bool:
		return f.Bool(e) == want
	case time.Time:
		t := f.Time(e)
		if t == nil {
			return false
		}
		switch c.Op {
		case OpGte:
			return !t.Before(want)
		case OpLte:
			return !t.After(want)
		case OpLt:
			return t.Before(want)
		default:
			return t.Equal(want)
		}
	}
	return false
}

// Sort orders events in place with the same semantics as BuildSQL.
func (s Spec) Sort(events []models.Event) {
	orders := s.Orders()
	sort.SliceStable(events, func(i, j int) bool {
		for _, o := range orders {
			c := compare(o, &events[i], &events[j])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return events[i].ID < events[j].ID
	})
}

func compare(o Order, a, b *models.Event) int {
	f, ok := models.LookupField(o.Field)
	if !ok {
		return 0
	}

	switch f.Type {
	case models.FieldTypeString:
		x, y := *f.Str(a), *f.Str(b)
		if o.Fold {
			x, y = strings.ToLower(x), strings.ToLower(y)
		}
		return strings.Compare(x, y)
	case models.FieldTypeDateTime:
		x, y := f.Time(a), f.Time(b)
		switch {
		case x == nil && y == nil:
			return 0
		case x == nil:
			// NULLs sort last ascending, as in Postgres.
			return 1
		case y == nil:
			return -1
		}
		return x.Compare(*y)
	case models.FieldTypeBoolean:
		x, y := f.Bool(a), f.Bool(b)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	}
	return 0
}
