package scan

import "context"

// Archive persists finalized scans outside the in-memory stores.
type Archive interface {
	// Save stores a finalized report keyed by its task ID
	Save(ctx context.Context, report Report) error

	// FindByID retrieves an archived report
	FindByID(ctx context.Context, id string) (Report, error)

	// FindAll returns every archived task, newest first
	FindAll(ctx context.Context) ([]Task, error)

	// Exists reports whether a task ID is already archived
	Exists(ctx context.Context, id string) (bool, error)
}
