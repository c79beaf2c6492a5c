package memory

import (
	"fmt"
	"sync"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
	sharedErrors "github.com/khanhnv2901/webrecon/internal/shared/errors"
)

type reportEntry struct {
	report scan.Report
	sealed bool
}

// ReportStore maps task IDs to their accumulated report. It is kept separate
// from TaskStore so the two locks stay narrow.
type ReportStore struct {
	mu      sync.Mutex
	reports map[string]*reportEntry
}

func NewReportStore() *ReportStore {
	return &ReportStore{reports: make(map[string]*reportEntry)}
}

// Create starts an empty report for the task.
func (s *ReportStore) Create(task scan.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[task.ID]; ok {
		return fmt.Errorf("report %s: %w", task.ID, sharedErrors.ErrAlreadyExists)
	}
	s.reports[task.ID] = &reportEntry{report: scan.NewReport(task)}
	return nil
}

// Restore inserts an already finalized report, sealed.
func (s *ReportStore) Restore(report scan.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[report.Task.ID]; ok {
		return fmt.Errorf("report %s: %w", report.Task.ID, sharedErrors.ErrAlreadyExists)
	}
	s.reports[report.Task.ID] = &reportEntry{report: report.Clone(), sealed: true}
	return nil
}

// Get returns a deep copy of the report.
func (s *ReportStore) Get(id string) (scan.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.reports[id]
	if !ok {
		return scan.Report{}, fmt.Errorf("report %s: %w", id, sharedErrors.ErrNotFound)
	}
	return entry.report.Clone(), nil
}

// Commit applies one stage's already computed output to the report.
func (s *ReportStore) Commit(id string, apply func(*scan.Report)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.reports[id]
	if !ok {
		return fmt.Errorf("report %s: %w", id, sharedErrors.ErrNotFound)
	}
	if entry.sealed {
		return fmt.Errorf("report %s: %w", id, sharedErrors.ErrReportSealed)
	}
	apply(&entry.report)
	return nil
}

// Seal re-synchronizes the task snapshot and makes the report read-only.
func (s *ReportStore) Seal(task scan.Task) (scan.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.reports[task.ID]
	if !ok {
		return scan.Report{}, fmt.Errorf("report %s: %w", task.ID, sharedErrors.ErrNotFound)
	}
	if entry.sealed {
		return scan.Report{}, fmt.Errorf("report %s: %w", task.ID, sharedErrors.ErrReportSealed)
	}
	entry.report.Task = task.Clone()
	entry.sealed = true
	return entry.report.Clone(), nil
}

// Delete drops reports, typically after TaskStore pruned their tasks.
func (s *ReportStore) Delete(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.reports, id)
	}
}
