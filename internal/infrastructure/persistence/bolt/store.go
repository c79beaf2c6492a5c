// Package bolt archives finalized scan reports in a bbolt database so they
// survive restarts of the service.
package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	sharedErrors "github.com/khanhnv2901/webrecon/internal/shared/errors"
)

const (
	bucketReports     = "reports"
	bucketTargetIndex = "target_index"
)

// ReportArchive implements scan.Archive on top of a bbolt file.
type ReportArchive struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the archive at path and initializes its buckets.
func Open(path string) (*ReportArchive, error) {
	if path == "" {
		return nil, fmt.Errorf("archive path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketReports, bucketTargetIndex} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize archive buckets: %w", err)
	}

	return &ReportArchive{db: db}, nil
}

// Path returns the file backing the archive.
func (a *ReportArchive) Path() string {
	return a.db.Path()
}

func (a *ReportArchive) Close() error {
	return a.db.Close()
}

// Ping verifies the archive can serve a read transaction.
func (a *ReportArchive) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(bucketReports)) == nil {
			return fmt.Errorf("%w: bucket %s missing", sharedErrors.ErrRepositoryOperation, bucketReports)
		}
		return nil
	})
}
