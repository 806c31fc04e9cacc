// Package models defines the activity-sync domain types: events, field
// descriptors, sync runs and job results.
package models

import (
	"time"
)

// Event is one upstream activity-audit record keyed by the upstream id.
// String attributes are stored empty rather than NULL.
type Event struct {
	ID                                string         `json:"id"`
	ActivityID                        string         `json:"activityid"`
	DatasetName                       string         `json:"datasetname"`
	IsSuccess                         bool           `json:"issuccess"`
	ItemName                          string         `json:"itemname"`
	Activity                          string         `json:"activity"`
	Workload                          string         `json:"workload"`
	RefreshEnforcementPolicy          string         `json:"refreshenforcementpolicy"`
	Operation                         string         `json:"operation"`
	RecordType                        string         `json:"recordtype"`
	RequestID                         string         `json:"requestid"`
	OrganizationID                    string         `json:"organizationid"`
	UserType                          string         `json:"usertype"`
	WorkspaceID                       string         `json:"workspaceid"`
	DatasetID                         string         `json:"datasetid"`
	UserID                            string         `json:"userid"`
	CreationTime                      time.Time      `json:"creationtime"`
	ObjectID                          string         `json:"objectid"`
	WorkspaceName                     string         `json:"workspacename"`
	ClientIP                          string         `json:"clientip"`
	UserKey                           string         `json:"userkey"`
	ArtifactKind                      string         `json:"artifactkind"`
	UserAgent                         string         `json:"useragent"`
	ArtifactID                        string         `json:"artifactid"`
	CapacityID                        string         `json:"capacityid"`
	CapacityName                      string         `json:"capacityname"`
	ArtifactName                      string         `json:"artifactname"`
	LastRefreshTime                   *time.Time     `json:"lastrefreshtime,omitempty"`
	DataConnectivityMode              string         `json:"dataconnectivitymode"`
	DistributionMethod                string         `json:"distributionmethod"`
	ReportType                        string         `json:"reporttype"`
	ReportID                          string         `json:"reportid"`
	ReportName                        string         `json:"reportname"`
	RefreshType                       string         `json:"refreshtype"`
	ConsumptionMethod                 string         `json:"consumptionmethod"`
	ItemID                            string         `json:"itemid"`
	ModelsSnapshots                   string         `json:"modelssnapshots"`
	AggregatedWorkspaceInformation    string         `json:"aggregatedworkspaceinformation"`
	ImportDisplayName                 string         `json:"importdisplayname"`
	ImportType                        string         `json:"importtype"`
	ImportID                          string         `json:"importid"`
	ImportSource                      string         `json:"importsource"`
	AppName                           string         `json:"appname"`
	AppReportID                       string         `json:"appreportid"`
	AppID                             string         `json:"appid"`
	ExportEventStartDateTimeParameter *time.Time     `json:"exporteventstartdatetimeparameter,omitempty"`
	ExportEventEndDateTimeParameter   *time.Time     `json:"exporteventenddatetimeparameter,omitempty"`
	ExtraData                         map[string]any `json:"extra_data,omitempty"`
	CreatedAt                         time.Time      `json:"created_at"`
	UpdatedAt                         time.Time      `json:"updated_at"`
	TaskID                            string         `json:"task_id"`
}

// FieldType is the storage kind of an Event attribute.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeDateTime FieldType = "datetime"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeJSON     FieldType = "json"
)

// EventField describes one Event attribute: its column name, kind, limits and accessors.
type EventField struct {
	Name     string
	Type     FieldType
	MaxLen   int
	Required bool
	// System fields are maintained by the store and never mapped from upstream records.
	System bool

	str     func(*Event) *string
	getTime func(*Event) *time.Time
	setTime func(*Event, *time.Time)
	bl      func(*Event) *bool
	js      func(*Event) *map[string]any
	addr    func(*Event) any
}

// Addr returns a pointer to the attribute's storage, suitable as a scan target.
func (f EventField) Addr(e *Event) any {
	return f.addr(e)
}

// Str returns a pointer to the string attribute, or nil for other kinds.
func (f EventField) Str(e *Event) *string {
	if f.str == nil {
		return nil
	}
	return f.str(e)
}

// Time returns the attribute as a timestamp; nil when unset or not a timestamp.
func (f EventField) Time(e *Event) *time.Time {
	if f.getTime == nil {
		return nil
	}
	return f.getTime(e)
}

// SetTime stores a timestamp attribute; nil clears it.
func (f EventField) SetTime(e *Event, t *time.Time) {
	if f.setTime != nil {
		f.setTime(e, t)
	}
}

// Bool returns the boolean attribute; false for other kinds.
func (f EventField) Bool(e *Event) bool {
	if f.bl == nil {
		return false
	}
	return *f.bl(e)
}

// SetBool stores a boolean attribute.
func (f EventField) SetBool(e *Event, b bool) {
	if f.bl != nil {
		*f.bl(e) = b
	}
}

// Value returns the attribute as a plain Go value suitable for display and export.
// Unset timestamps return nil.
func (f EventField) Value(e *Event) any {
	switch {
	case f.str != nil:
		return *f.str(e)
	case f.getTime != nil:
		if t := f.getTime(e); t != nil {
			return *t
		}
		return nil
	case f.bl != nil:
		return *f.bl(e)
	case f.js != nil:
		return *f.js(e)
	}
	return nil
}

func str(name string, maxLen int, required bool, p func(*Event) *string) EventField {
	return EventField{
		Name: name, Type: FieldTypeString, MaxLen: maxLen, Required: required,
		str: p, addr: func(e *Event) any { return p(e) },
	}
}

// nullableTime binds a *time.Time attribute.
func nullableTime(name string, p func(*Event) **time.Time) EventField {
	return EventField{
		Name:    name,
		Type:    FieldTypeDateTime,
		getTime: func(e *Event) *time.Time { return *p(e) },
		setTime: func(e *Event, t *time.Time) { *p(e) = t },
		addr:    func(e *Event) any { return p(e) },
	}
}

// valueTime binds a time.Time attribute; the zero time reads as unset.
func valueTime(name string, required, system bool, p func(*Event) *time.Time) EventField {
	return EventField{
		Name:     name,
		Type:     FieldTypeDateTime,
		Required: required,
		System:   system,
		getTime: func(e *Event) *time.Time {
			t := *p(e)
			if t.IsZero() {
				return nil
			}
			return &t
		},
		setTime: func(e *Event, t *time.Time) {
			if t == nil {
				*p(e) = time.Time{}
				return
			}
			*p(e) = *t
		},
		addr: func(e *Event) any { return p(e) },
	}
}

// EventFields lists every Event attribute in schema order. It is built once
// and must not be modified.
var EventFields []EventField

var fieldIndex = map[string]int{}

// LookupField returns the attribute with the exact (lower-case) name.
func LookupField(name string) (EventField, bool) {
	i, ok := fieldIndex[name]
	if !ok {
		return EventField{}, false
	}
	return EventFields[i], true
}

// FieldNames returns every attribute name in schema order.
func FieldNames() []string {
	names := make([]string, len(EventFields))
	for i, f := range EventFields {
		names[i] = f.Name
	}
	return names
}

func init() {
	EventFields = []EventField{
		str("activityid", 60, false, func(e *Event) *string { return &e.ActivityID }),
		str("datasetname", 120, false, func(e *Event) *string { return &e.DatasetName }),
		{
			Name: "issuccess", Type: FieldTypeBoolean,
			bl:   func(e *Event) *bool { return &e.IsSuccess },
			addr: func(e *Event) any { return &e.IsSuccess },
		},
		str("itemname", 120, false, func(e *Event) *string { return &e.ItemName }),
		str("activity", 120, true, func(e *Event) *string { return &e.Activity }),
		str("workload", 60, false, func(e *Event) *string { return &e.Workload }),
		str("refreshenforcementpolicy", 60, false, func(e *Event) *string { return &e.RefreshEnforcementPolicy }),
		str("operation", 120, true, func(e *Event) *string { return &e.Operation }),
		str("recordtype", 60, false, func(e *Event) *string { return &e.RecordType }),
		str("requestid", 60, false, func(e *Event) *string { return &e.RequestID }),
		str("organizationid", 60, true, func(e *Event) *string { return &e.OrganizationID }),
		str("id", 60, true, func(e *Event) *string { return &e.ID }),
		str("usertype", 60, false, func(e *Event) *string { return &e.UserType }),
		str("workspaceid", 60, false, func(e *Event) *string { return &e.WorkspaceID }),
		str("datasetid", 60, false, func(e *Event) *string { return &e.DatasetID }),
		str("userid", 60, true, func(e *Event) *string { return &e.UserID }),
		valueTime("creationtime", true, false, func(e *Event) *time.Time { return &e.CreationTime }),
		str("objectid", 255, false, func(e *Event) *string { return &e.ObjectID }),
		str("workspacename", 120, false, func(e *Event) *string { return &e.WorkspaceName }),
		str("clientip", 60, false, func(e *Event) *string { return &e.ClientIP }),
		str("userkey", 60, true, func(e *Event) *string { return &e.UserKey }),
		str("artifactkind", 60, false, func(e *Event) *string { return &e.ArtifactKind }),
		str("useragent", 255, false, func(e *Event) *string { return &e.UserAgent }),
		str("artifactid", 60, false, func(e *Event) *string { return &e.ArtifactID }),
		str("capacityid", 60, false, func(e *Event) *string { return &e.CapacityID }),
		str("capacityname", 120, false, func(e *Event) *string { return &e.CapacityName }),
		str("artifactname", 120, false, func(e *Event) *string { return &e.ArtifactName }),
		nullableTime("lastrefreshtime", func(e *Event) **time.Time { return &e.LastRefreshTime }),
		str("dataconnectivitymode", 60, false, func(e *Event) *string { return &e.DataConnectivityMode }),
		str("distributionmethod", 60, false, func(e *Event) *string { return &e.DistributionMethod }),
		str("reporttype", 60, false, func(e *Event) *string { return &e.ReportType }),
		str("reportid", 60, false, func(e *Event) *string { return &e.ReportID }),
		str("reportname", 120, false, func(e *Event) *string { return &e.ReportName }),
		str("refreshtype", 60, false, func(e *Event) *string { return &e.RefreshType }),
		str("consumptionmethod", 60, false, func(e *Event) *string { return &e.ConsumptionMethod }),
		str("itemid", 60, false, func(e *Event) *string { return &e.ItemID }),
		str("modelssnapshots", 255, false, func(e *Event) *string { return &e.ModelsSnapshots }),
		str("aggregatedworkspaceinformation", 255, false, func(e *Event) *string { return &e.AggregatedWorkspaceInformation }),
		str("importdisplayname", 120, false, func(e *Event) *string { return &e.ImportDisplayName }),
		str("importtype", 60, false, func(e *Event) *string { return &e.ImportType }),
		str("importid", 60, false, func(e *Event) *string { return &e.ImportID }),
		str("importsource", 60, false, func(e *Event) *string { return &e.ImportSource }),
		str("appname", 120, false, func(e *Event) *string { return &e.AppName }),
		str("appreportid", 60, false, func(e *Event) *string { return &e.AppReportID }),
		str("appid", 60, false, func(e *Event) *string { return &e.AppID }),
		nullableTime("exporteventstartdatetimeparameter", func(e *Event) **time.Time { return &e.ExportEventStartDateTimeParameter }),
		nullableTime("exporteventenddatetimeparameter", func(e *Event) **time.Time { return &e.ExportEventEndDateTimeParameter }),
		{
			Name: "extra_data", Type: FieldTypeJSON, System: true,
			js:   func(e *Event) *map[string]any { return &e.ExtraData },
			addr: func(e *Event) any { return &e.ExtraData },
		},
		valueTime("created_at", false, true, func(e *Event) *time.Time { return &e.CreatedAt }),
		valueTime("updated_at", false, true, func(e *Event) *time.Time { return &e.UpdatedAt }),
		{
			Name: "task_id", Type: FieldTypeString, MaxLen: 60, System: true,
			str:  func(e *Event) *string { return &e.TaskID },
			addr: func(e *Event) any { return &e.TaskID },
		},
	}
	for i, f := range EventFields {
		fieldIndex[f.Name] = i
	}
}
