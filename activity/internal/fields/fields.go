// Package fields keeps field descriptors in step with the event schema.
package fields

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/repository"
	"github.com/pbi-manager/activity-sync/common/logging"
)

// ErrUnknownField is returned when updating a descriptor that does not exist.
var ErrUnknownField = errors.New("unknown field")

// Reconciler creates, updates and prunes descriptors.
type Reconciler struct {
	store  repository.FieldStore
	logger *slog.Logger
}

func NewReconciler(store repository.FieldStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger}
}

// Sync makes the stored descriptors match models.EventFields and returns
// the outcome per field name: created, updated, no change or removed.
// Existing display settings are preserved.
func (r *Reconciler) Sync(ctx context.Context) (map[string]string, error) {
	existing, err := r.store.ListFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	byName := make(map[string]models.FieldDescriptor, len(existing))
	for _, d := range existing {
		byName[d.FieldName] = d
	}

	status := make(map[string]string, len(models.EventFields))

	var stale []string
	for _, d := range existing {
		if _, ok := models.LookupField(d.FieldName); !ok {
			stale = append(stale, d.FieldName)
		}
	}
	if len(stale) > 0 {
		sort.Strings(stale)
		if _, err := r.store.DeleteFields(ctx, stale); err != nil {
			return nil, fmt.Errorf("delete stale fields: %w", err)
		}
		for _, name := range stale {
			status[name] = models.FieldRemoved
		}
	}

	for _, f := range models.EventFields {
		d, ok := byName[f.Name]
		switch {
		case !ok:
			d = models.FieldDescriptor{FieldName: f.Name, FieldType: f.Type, DisplayName: f.Name}
			status[f.Name] = models.FieldCreated
		case d.FieldType != f.Type:
			d.FieldType = f.Type
			status[f.Name] = models.FieldUpdated
		default:
			status[f.Name] = models.FieldNoChange
			continue
		}
		if err := r.store.SaveField(ctx, &d); err != nil {
			return nil, fmt.Errorf("save field %s: %w", f.Name, err)
		}
	}

	r.logger.InfoContext(ctx, "field descriptors synced",
		logging.Count("fields", len(models.EventFields)),
		logging.Count("removed", len(stale)),
	)
	return status, nil
}

// Patch holds optional descriptor changes. Nil members are left untouched.
type Patch struct {
	DisplayName  *string `json:"displayname,omitempty"`
	DisplayOrder *int    `json:"displayorder,omitempty"`
	Display      *bool   `json:"display,omitempty"`
	Filter       *bool   `json:"filter,omitempty"`
	OrderBy      *bool   `json:"orderby,omitempty"`
	Search       *bool   `json:"search,omitempty"`
	Export       *bool   `json:"export,omitempty"`
	Chart        *bool   `json:"chart,omitempty"`
}

// Update applies p to the named descriptor and returns the stored result.
func (r *Reconciler) Update(ctx context.Context, name string, p Patch) (*models.FieldDescriptor, error) {
	all, err := r.store.ListFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}

	var d *models.FieldDescriptor
	for i := range all {
		if all[i].FieldName == name {
			d = &all[i]
			break
		}
	}
	if d == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}

	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	if p.DisplayName != nil {
		d.DisplayName = *p.DisplayName
	}
	if p.DisplayOrder != nil {
		d.DisplayOrder = p.DisplayOrder
	}
	set(&d.Display, p.Display)
	set(&d.Filter, p.Filter)
	set(&d.OrderBy, p.OrderBy)
	set(&d.Search, p.Search)
	set(&d.Export, p.Export)
	set(&d.Chart, p.Chart)

	if err := r.store.SaveField(ctx, d); err != nil {
		return nil, fmt.Errorf("save field %s: %w", name, err)
	}
	return d, nil
}
