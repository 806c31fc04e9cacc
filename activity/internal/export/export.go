// Package export writes filtered events to semicolon separated CSV files.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pbi-manager/activity-sync/activity/internal/metrics"
	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/query"
	"github.com/pbi-manager/activity-sync/common/logging"
)

const (
	filePrefix = "activity_events_"
	fileTime   = "20060102150405"
	// Delimiter separates CSV columns.
	Delimiter = ';'
)

var fileNamePattern = regexp.MustCompile(`^activity_events_[0-9a-f-]+_\d{14}\.csv$`)

// FileName returns the export file name for a given id and creation time.
func FileName(id uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s%s_%s.csv", filePrefix, id, at.UTC().Format(fileTime))
}

// ParseFileTime extracts the creation time from the final _YYYYmmddHHMMSS
// segment of a CSV file name.
func ParseFileTime(name string) (time.Time, bool) {
	base := name[:len(name)-len(filepath.Ext(name))]
	i := len(base) - 1
	for i >= 0 && base[i] != '_' {
		i--
	}
	t, err := time.Parse(fileTime, base[i+1:])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ValidFileName reports whether name could have been produced by FileName.
func ValidFileName(name string) bool {
	return fileNamePattern.MatchString(name)
}

// Store is the part of the repository the exporter needs.
type Store interface {
	ListFields(ctx context.Context) ([]models.FieldDescriptor, error)
	EachEvent(ctx context.Context, spec query.Spec, fn func(*models.Event) error) error
}

// Exporter writes CSV files into a directory.
type Exporter struct {
	store     Store
	dir       string
	maxFields int
	logger    *slog.Logger
	now       func() time.Time
}

func NewExporter(store Store, dir string, maxFields int, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		store:     store,
		dir:       dir,
		maxFields: maxFields,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Dir is the directory exports are written to.
func (x *Exporter) Dir() string { return x.dir }

// Export writes every event matching params and returns the file path.
func (x *Exporter) Export(ctx context.Context, params map[string]string) (string, error) {
	descriptors, err := x.store.ListFields(ctx)
	if err != nil {
		return "", fmt.Errorf("list fields: %w", err)
	}
	spec, err := query.Parse(params, descriptors)
	if err != nil {
		return "", err
	}
	columns := Columns(descriptors, x.maxFields)

	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(x.dir, FileName(uuid.New(), x.now()))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	n, err := x.write(ctx, f, spec, columns)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write export: %w", err)
	}

	metrics.ExportsWrittenTotal.Inc()
	x.logger.InfoContext(ctx, "export written", slog.String("path", path), logging.Count("rows", n))
	return path, nil
}

func (x *Exporter) write(ctx context.Context, f *os.File, spec query.Spec, columns []models.EventField) (int, error) {
	w := csv.NewWriter(f)
	w.Comma = Delimiter

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Name
	}
	if err := w.Write(header); err != nil {
		return 0, err
	}

	n := 0
	row := make([]string, len(columns))
	err := x.store.EachEvent(ctx, spec, func(e *models.Event) error {
		for i, c := range columns {
			row[i] = FormatValue(c.Value(e))
		}
		n++
		return w.Write(row)
	})
	if err != nil {
		return n, err
	}
	w.Flush()
	return n, w.Error()
}

// Columns picks the exported attributes: descriptors flagged for export,
// or every descriptor when none are, capped at maxFields. Descriptors with
// no matching attribute are skipped.
func Columns(descriptors []models.FieldDescriptor, maxFields int) []models.EventField {
	var flagged []models.FieldDescriptor
	for _, d := range descriptors {
		if d.Export {
			flagged = append(flagged, d)
		}
	}
	if len(flagged) == 0 {
		flagged = descriptors
	}

	var out []models.EventField
	for _, d := range flagged {
		if maxFields > 0 && len(out) == maxFields {
			break
		}
		if f, ok := models.LookupField(d.FieldName); ok {
			out = append(out, f)
		}
	}
	return out
}

// FormatValue renders an attribute value as CSV cell text.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case map[string]any:
		if len(t) == 0 {
			return ""
		}
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
