package models

import (
	"sort"
	"time"
)

// FieldDescriptor holds display and capability metadata for one Event attribute.
type FieldDescriptor struct {
	FieldName    string    `json:"fieldname"`
	FieldType    FieldType `json:"fieldtype"`
	DisplayName  string    `json:"displayname"`
	DisplayOrder *int      `json:"displayorder"`
	Display      bool      `json:"display"`
	Filter       bool      `json:"filter"`
	OrderBy      bool      `json:"orderby"`
	Search       bool      `json:"search"`
	Export       bool      `json:"export"`
	Chart        bool      `json:"chart"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SortDescriptors orders descriptors by display order (unset last), then name.
func SortDescriptors(ds []FieldDescriptor) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i].DisplayOrder, ds[j].DisplayOrder
		switch {
		case a != nil && b != nil && *a != *b:
			return *a < *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return ds[i].FieldName < ds[j].FieldName
	})
}

// Field reconciliation outcomes.
const (
	FieldCreated  = "created"
	FieldUpdated  = "updated"
	FieldNoChange = "no change"
	FieldRemoved  = "removed"
)
