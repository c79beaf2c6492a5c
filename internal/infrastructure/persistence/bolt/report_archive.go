package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
	sharedErrors "github.com/khanhnv2901/webrecon/internal/shared/errors"
)

// Save stores a finalized report keyed by task ID and indexes it by target.
// Saving the same task again replaces the stored copy.
func (a *ReportArchive) Save(ctx context.Context, report scan.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !report.Task.Status.IsTerminal() {
		return fmt.Errorf("%w: report %s is not finalized (status %s)",
			sharedErrors.ErrInvalidInput, report.Task.ID, report.Task.Status)
	}

	data, err := json.Marshal(toDTO(report))
	if err != nil {
		return fmt.Errorf("%w: report %s: %v", sharedErrors.ErrSerializationFailed, report.Task.ID, err)
	}

	err = a.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(bucketReports)).Put([]byte(report.Task.ID), data); err != nil {
			return err
		}

		// target -> []task id
		index := tx.Bucket([]byte(bucketTargetIndex))
		targetKey := []byte(report.Task.Target)
		var ids []string
		if existing := index.Get(targetKey); existing != nil {
			if err := json.Unmarshal(existing, &ids); err != nil {
				return err
			}
		}
		for _, id := range ids {
			if id == report.Task.ID {
				return nil
			}
		}
		ids = append(ids, report.Task.ID)
		indexData, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		return index.Put(targetKey, indexData)
	})
	if err != nil {
		return fmt.Errorf("%w: save report %s: %v", sharedErrors.ErrRepositoryOperation, report.Task.ID, err)
	}
	return nil
}

// FindByID retrieves an archived report.
func (a *ReportArchive) FindByID(ctx context.Context, id string) (scan.Report, error) {
	if err := ctx.Err(); err != nil {
		return scan.Report{}, err
	}

	var data []byte
	err := a.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(bucketReports)).Get([]byte(id)); v != nil {
			// bbolt values are only valid inside the transaction
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return scan.Report{}, fmt.Errorf("%w: find report %s: %v", sharedErrors.ErrRepositoryOperation, id, err)
	}
	if data == nil {
		return scan.Report{}, fmt.Errorf("report %s: %w", id, sharedErrors.ErrNotFound)
	}
	return decodeReport(id, data)
}

// FindAll returns every archived task, newest first.
func (a *ReportArchive) FindAll(ctx context.Context) ([]scan.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tasks []scan.Task
	err := a.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketReports)).ForEach(func(k, v []byte) error {
			report, err := decodeReport(string(k), v)
			if err != nil {
				return err
			}
			tasks = append(tasks, report.Task)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list reports: %v", sharedErrors.ErrRepositoryOperation, err)
	}

	sortNewestFirst(tasks)
	return tasks, nil
}

// FindByTarget returns the archived tasks for one target, newest first.
func (a *ReportArchive) FindByTarget(ctx context.Context, target string) ([]scan.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tasks []scan.Task
	err := a.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketTargetIndex)).Get([]byte(target))
		if data == nil {
			return nil
		}
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
		reports := tx.Bucket([]byte(bucketReports))
		for _, id := range ids {
			v := reports.Get([]byte(id))
			if v == nil {
				continue
			}
			report, err := decodeReport(id, v)
			if err != nil {
				return err
			}
			tasks = append(tasks, report.Task)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list reports for %s: %v", sharedErrors.ErrRepositoryOperation, target, err)
	}

	sortNewestFirst(tasks)
	return tasks, nil
}

// Exists reports whether a task ID is already archived.
func (a *ReportArchive) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := a.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(bucketReports)).Get([]byte(id)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: lookup report %s: %v", sharedErrors.ErrRepositoryOperation, id, err)
	}
	return found, nil
}

func decodeReport(id string, data []byte) (scan.Report, error) {
	var dto reportDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return scan.Report{}, fmt.Errorf("%w: report %s: %v", sharedErrors.ErrDeserializationFailed, id, err)
	}
	report, err := fromDTO(dto)
	if err != nil {
		return scan.Report{}, fmt.Errorf("%w: report %s: %v", sharedErrors.ErrDeserializationFailed, id, err)
	}
	return report, nil
}

func sortNewestFirst(tasks []scan.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}
