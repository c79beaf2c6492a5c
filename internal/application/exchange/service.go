package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
	sharedErrors "github.com/khanhnv2901/webrecon/internal/shared/errors"
)

// Restorer accepts finalized scans into the live stores.
type Restorer interface {
	Restore(report scan.Report) error
}

// ImportResult lists the task IDs written and the ones skipped as duplicates.
type ImportResult struct {
	Imported []string `json:"imported" yaml:"imported"`
	Skipped  []string `json:"skipped" yaml:"skipped"`
}

// Service exports archived scans and imports bundles into the archive.
type Service struct {
	archive scan.Archive
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(archive scan.Archive, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{archive: archive, logger: logger, now: time.Now}
}

// Export bundles the given archived scans, or every archived scan when no
// IDs are given.
func (s *Service) Export(ctx context.Context, ids ...string) (Bundle, error) {
	if len(ids) == 0 {
		tasks, err := s.archive.FindAll(ctx)
		if err != nil {
			return Bundle{}, fmt.Errorf("list archived scans: %w", err)
		}
		for _, task := range tasks {
			ids = append(ids, task.ID)
		}
	}

	bundle := Bundle{
		Version:    BundleVersion,
		ExportedAt: formatTime(s.now()),
		Scans:      make([]Record, 0, len(ids)),
	}
	for _, id := range ids {
		report, err := s.archive.FindByID(ctx, id)
		if err != nil {
			return Bundle{}, fmt.Errorf("export scan %s: %w", id, err)
		}
		bundle.Scans = append(bundle.Scans, FromReport(report))
	}

	s.logger.Info("scans exported", zap.Int("count", len(bundle.Scans)))
	return bundle, nil
}

// Import validates every record first, then saves the ones whose task ID is
// neither archived already nor repeated earlier in the bundle. An invalid
// record aborts the import before anything is written.
func (s *Service) Import(ctx context.Context, bundle Bundle) (ImportResult, error) {
	reports := make([]scan.Report, 0, len(bundle.Scans))
	for i, rec := range bundle.Scans {
		report, err := rec.ToReport()
		if err != nil {
			return ImportResult{}, fmt.Errorf("scan %d: %w", i, err)
		}
		reports = append(reports, report)
	}

	result := ImportResult{Imported: []string{}, Skipped: []string{}}
	seen := make(map[string]struct{}, len(reports))
	for _, report := range reports {
		id := report.Task.ID
		if _, dup := seen[id]; dup {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		seen[id] = struct{}{}

		exists, err := s.archive.Exists(ctx, id)
		if err != nil {
			return result, fmt.Errorf("check scan %s: %w", id, err)
		}
		if exists {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		if err := s.archive.Save(ctx, report); err != nil {
			return result, fmt.Errorf("save scan %s: %w", id, err)
		}
		result.Imported = append(result.Imported, id)
	}

	s.logger.Info("scans imported",
		zap.Int("imported", len(result.Imported)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

// Preload restores every archived scan into the live stores and returns how
// many were loaded. Scans the stores already hold are left alone.
func (s *Service) Preload(ctx context.Context, into Restorer) (int, error) {
	tasks, err := s.archive.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list archived scans: %w", err)
	}

	loaded := 0
	// oldest first so the store's pruning keeps the newest scans
	for i := len(tasks) - 1; i >= 0; i-- {
		report, err := s.archive.FindByID(ctx, tasks[i].ID)
		if err != nil {
			return loaded, fmt.Errorf("load scan %s: %w", tasks[i].ID, err)
		}
		if err := into.Restore(report); err != nil {
			if errors.Is(err, sharedErrors.ErrAlreadyExists) {
				continue
			}
			return loaded, fmt.Errorf("restore scan %s: %w", tasks[i].ID, err)
		}
		loaded++
	}
	s.logger.Debug("archived scans preloaded", zap.Int("count", loaded))
	return loaded, nil
}
