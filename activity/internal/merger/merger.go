// Package merger maps raw upstream records onto stored events.
package merger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pbi-manager/activity-sync/activity/internal/metrics"
	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/repository"
	"github.com/pbi-manager/activity-sync/activity/internal/upstream"
	"github.com/pbi-manager/activity-sync/common/logging"
)

// fieldTable maps lower-cased upstream keys to the attributes they populate.
// System attributes are never taken from upstream.
var fieldTable = buildFieldTable()

func buildFieldTable() map[string]models.EventField {
	table := make(map[string]models.EventField, len(models.EventFields))
	for _, f := range models.EventFields {
		if f.System || f.Name == "id" {
			continue
		}
		table[f.Name] = f
	}
	return table
}

// Store is the part of the event repository the merger needs.
type Store interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	SaveEvent(ctx context.Context, e *models.Event) error
}

// Result summarizes one Merge call.
type Result struct {
	Created       int
	Updated       int
	FailedRecords []models.FailedRecord
	Warnings      []models.FailedRecord
}

// Merger creates or updates events from upstream records.
type Merger struct {
	store Store
	// TruncationIsFailure reports truncated fields as failed records.
	// When false they are reported as warnings.
	TruncationIsFailure bool
	logger              *slog.Logger
}

func New(store Store, truncationIsFailure bool, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{store: store, TruncationIsFailure: truncationIsFailure, logger: logger}
}

// Merge applies every record in order. Per-record problems are collected in
// the result; only storage failures are returned as errors.
func (m *Merger) Merge(ctx context.Context, records []upstream.RawRecord, runID string) (Result, error) {
	var res Result

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		id := resolveID(rec)
		if id == "" {
			m.fail(&res, models.FailedRecord{
				Kind:  models.KindMissingIdentifier,
				Error: models.ErrMissingIdentifier.Error(),
			})
			continue
		}
		if err := checkID(id); err != nil {
			m.fail(&res, failure(id, err))
			continue
		}

		event, created, err := m.load(ctx, id)
		if err != nil {
			return res, err
		}

		truncated, err := apply(event, rec)
		if err != nil {
			m.fail(&res, failure(id, err))
			continue
		}
		if runID != "" {
			event.TaskID = runID
		}
		if err := validate(event); err != nil {
			m.fail(&res, failure(id, err))
			continue
		}

		if err := m.store.SaveEvent(ctx, event); err != nil {
			if errors.Is(err, repository.ErrInvalidData) {
				m.fail(&res, failure(id, fmt.Errorf("%w: %w", models.ErrValidation, err)))
				continue
			}
			return res, fmt.Errorf("save event %s: %w", id, err)
		}
		if created {
			res.Created++
			metrics.RecordsTotal.WithLabelValues("created").Inc()
		} else {
			res.Updated++
			metrics.RecordsTotal.WithLabelValues("updated").Inc()
		}

		if len(truncated) > 0 {
			fr := models.FailedRecord{
				ID:     id,
				Kind:   models.KindTruncatedField,
				Error:  fmt.Sprintf("%s: %s", models.ErrTruncatedField, strings.Join(truncated, ", ")),
				Fields: truncated,
			}
			if m.TruncationIsFailure {
				m.fail(&res, fr)
			} else {
				res.Warnings = append(res.Warnings, fr)
				metrics.RecordsTotal.WithLabelValues("warning").Inc()
				m.logger.WarnContext(ctx, "record stored with truncated fields",
					logging.EventID(id), slog.Any("fields", truncated))
			}
		}
	}

	return res, nil
}

func (m *Merger) load(ctx context.Context, id string) (*models.Event, bool, error) {
	existing, err := m.store.GetEvent(ctx, id)
	switch {
	case err == nil:
		return existing, false, nil
	case errors.Is(err, repository.ErrNotFound):
		return &models.Event{ID: id}, true, nil
	default:
		return nil, false, fmt.Errorf("load event %s: %w", id, err)
	}
}

func (m *Merger) fail(res *Result, fr models.FailedRecord) {
	res.FailedRecords = append(res.FailedRecords, fr)
	metrics.RecordsTotal.WithLabelValues("failed").Inc()
	m.logger.Warn("record failed",
		logging.EventID(fr.ID), slog.String("kind", fr.Kind), slog.String(logging.FieldError, fr.Error))
}

func failure(id string, err error) models.FailedRecord {
	fr := models.FailedRecord{ID: id, Kind: models.KindOf(err), Error: err.Error()}
	var fe *fieldError
	if errors.As(err, &fe) {
		fr.Fields = fe.fields
	}
	return fr
}

// fieldError carries the attribute names a record error applies to.
type fieldError struct {
	kind   error
	fields []string
	detail string
}

func (e *fieldError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.kind, strings.Join(e.fields, ", "))
	if e.detail != "" {
		msg += ": " + e.detail
	}
	return msg
}

func (e *fieldError) Unwrap() error { return e.kind }

// resolveID returns the record identifier, matching the key case-insensitively.
func resolveID(rec upstream.RawRecord) string {
	if v, ok := rec["Id"]; ok {
		return strings.TrimSpace(stringify(v))
	}
	for k, v := range rec {
		if strings.EqualFold(k, "id") {
			return strings.TrimSpace(stringify(v))
		}
	}
	return ""
}

// apply copies record values onto e and returns the names of truncated attributes.
// Attributes absent from the record keep their stored values; extra_data is replaced.
func apply(e *models.Event, rec upstream.RawRecord) ([]string, error) {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		truncated []string
		extra     map[string]any
	)
	for _, k := range keys {
		v := rec[k]
		lower := strings.ToLower(k)
		if lower == "id" {
			continue
		}

		f, ok := fieldTable[lower]
		if !ok {
			if extra == nil {
				extra = make(map[string]any)
			}
			extra[k] = v
			continue
		}

		switch f.Type {
		case models.FieldTypeString:
			s := stringify(v)
			if f.MaxLen > 0 && utf8.RuneCountInString(s) > f.MaxLen {
				s = truncateRunes(s, f.MaxLen)
				truncated = append(truncated, f.Name)
			}
			*f.Str(e) = s
		case models.FieldTypeDateTime:
			t, err := parseTimestamp(v)
			if err != nil {
				return nil, &fieldError{kind: models.ErrMalformedTimestamp, fields: []string{f.Name}, detail: err.Error()}
			}
			f.SetTime(e, t)
		case models.FieldTypeBoolean:
			f.SetBool(e, truthy(v))
		}
	}
	e.ExtraData = extra
	return truncated, nil
}

// validate checks that every required attribute is populated.
func validate(e *models.Event) error {
	var missing []string
	for _, f := range models.EventFields {
		if !f.Required {
			continue
		}
		switch f.Type {
		case models.FieldTypeString:
			if strings.TrimSpace(*f.Str(e)) == "" {
				missing = append(missing, f.Name)
			}
		case models.FieldTypeDateTime:
			if f.Time(e) == nil {
				missing = append(missing, f.Name)
			}
		}
	}
	if len(missing) > 0 {
		return &fieldError{kind: models.ErrValidation, fields: missing, detail: "required"}
	}
	if bad := models.Unstorable(e); len(bad) > 0 {
		return &fieldError{kind: models.ErrValidation, fields: bad, detail: "value cannot be stored"}
	}
	return nil
}

// checkID rejects identifiers the id column cannot hold. Ids are never truncated.
func checkID(id string) error {
	f, _ := models.LookupField("id")
	if strings.ContainsRune(id, 0) || utf8.RuneCountInString(id) > f.MaxLen {
		return &fieldError{kind: models.ErrValidation, fields: []string{"id"},
			detail: fmt.Sprintf("must be at most %d characters without NUL", f.MaxLen)}
	}
	return nil
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
