// Package retention removes expired events and export files.
package retention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pbi-manager/activity-sync/activity/internal/export"
	"github.com/pbi-manager/activity-sync/activity/internal/metrics"
	"github.com/pbi-manager/activity-sync/common/logging"
)

// EventStore is the part of the repository retention needs.
type EventStore interface {
	CountEvents(ctx context.Context) (int, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// EventSweepResult reports one event sweep.
type EventSweepResult struct {
	Before    int       `json:"n_before"`
	Deleted   int       `json:"n_deleted"`
	Remaining int       `json:"n_remaining"`
	Cutoff    time.Time `json:"cutoff"`
}

// ExportSweepResult reports one export directory sweep.
type ExportSweepResult struct {
	Deleted        int      `json:"n_deleted"`
	FilesDeleted   []string `json:"files_deleted"`
	NameErrors     int      `json:"n_name_errors"`
	NameErrorFiles []string `json:"name_error_files"`

	// RemoveErrors counts expired files that could not be deleted.
	RemoveErrors     int      `json:"n_remove_errors"`
	RemoveErrorFiles []string `json:"remove_error_files"`
}

// Sweeper deletes events older than a number of days and export files
// older than a number of hours.
type Sweeper struct {
	store     EventStore
	exportDir string
	logger    *slog.Logger
	now       func() time.Time
	remove    func(name string) error
}

func NewSweeper(store EventStore, exportDir string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:     store,
		exportDir: exportDir,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		remove:    os.Remove,
	}
}

// SweepEvents deletes events created before now minus retentionDays.
func (s *Sweeper) SweepEvents(ctx context.Context, retentionDays int) (*EventSweepResult, error) {
	if retentionDays < 0 {
		return nil, fmt.Errorf("retention days must not be negative: %d", retentionDays)
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)

	before, err := s.store.CountEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	deleted, err := s.store.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("delete events: %w", err)
	}
	remaining, err := s.store.CountEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	metrics.EventsDeletedTotal.Add(float64(deleted))

	s.logger.InfoContext(ctx, "event retention sweep finished",
		slog.Time("cutoff", cutoff),
		logging.Count("before", before),
		logging.Count("deleted", deleted),
		logging.Count("remaining", remaining),
	)
	return &EventSweepResult{Before: before, Deleted: deleted, Remaining: remaining, Cutoff: cutoff}, nil
}

// SweepExports removes CSV exports whose embedded timestamp is older than
// now minus retentionHours. Files whose names carry no timestamp are
// reported and left alone, as are expired files that cannot be removed.
// A missing directory is not an error.
func (s *Sweeper) SweepExports(ctx context.Context, retentionHours int) (*ExportSweepResult, error) {
	res := &ExportSweepResult{FilesDeleted: []string{}, NameErrorFiles: []string{}, RemoveErrorFiles: []string{}}
	cutoff := s.now().Add(-time.Duration(retentionHours) * time.Hour)

	entries, err := os.ReadDir(s.exportDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, nil
		}
		return nil, fmt.Errorf("read export dir: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		created, ok := export.ParseFileTime(name)
		if !ok {
			res.NameErrors++
			res.NameErrorFiles = append(res.NameErrorFiles, name)
			continue
		}
		if !created.Before(cutoff) {
			continue
		}
		if err := s.remove(filepath.Join(s.exportDir, name)); err != nil {
			s.logger.WarnContext(ctx, "export file not removed", slog.String("file", name), logging.Error(err))
			res.RemoveErrors++
			res.RemoveErrorFiles = append(res.RemoveErrorFiles, name)
			continue
		}
		res.Deleted++
		res.FilesDeleted = append(res.FilesDeleted, name)
	}
	metrics.ExportsDeletedTotal.Add(float64(res.Deleted))

	s.logger.InfoContext(ctx, "export retention sweep finished",
		slog.Time("cutoff", cutoff),
		logging.Count("deleted", res.Deleted),
		logging.Count("name_errors", res.NameErrors),
		logging.Count("remove_errors", res.RemoveErrors),
	)
	return res, nil
}
