package scan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedErrors "github.com/khanhnv2901/webrecon/internal/shared/errors"
)

// Kind selects which stages a scan runs.
type Kind string

const (
	KindFull          Kind = "full"
	KindQuick         Kind = "quick"
	KindVulnerability Kind = "vulnerability"
	KindPort          Kind = "port"
	KindSSL           Kind = "ssl"
	KindHeaders       Kind = "headers"
)

// Kinds lists every accepted kind in display order.
func Kinds() []Kind {
	return []Kind{KindFull, KindQuick, KindVulnerability, KindPort, KindSSL, KindHeaders}
}

// ParseKind maps a user supplied string onto a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown scan kind %q", sharedErrors.ErrInvalidInput, s)
}

func (k Kind) String() string { return string(k) }

// Status represents the lifecycle state of a scan task
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ParseStatus maps a stored string onto a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", sharedErrors.ErrInvalidInput, s)
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) String() string { return string(s) }

// Task is one requested scan of one target.
type Task struct {
	ID          string     `json:"id"`
	Target      string     `json:"target"`
	Kind        Kind       `json:"kind"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// NewTask creates a pending task with a fresh identifier.
func NewTask(target string, kind Kind, now time.Time) Task {
	return Task{
		ID:        uuid.New().String(),
		Target:    target,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: now.UTC(),
	}
}

// Start moves a pending task to running.
func (t *Task) Start(now time.Time) error {
	if t.Status != StatusPending {
		return fmt.Errorf("%w: cannot start task in status %s", sharedErrors.ErrInvalidTransition, t.Status)
	}
	ts := now.UTC()
	if ts.Before(t.CreatedAt) {
		ts = t.CreatedAt
	}
	t.Status = StatusRunning
	t.StartedAt = &ts
	return nil
}

// Complete moves a running task to completed.
func (t *Task) Complete(now time.Time, reason string) error {
	if t.Status != StatusRunning {
		return fmt.Errorf("%w: cannot complete task in status %s", sharedErrors.ErrInvalidTransition, t.Status)
	}
	t.finish(StatusCompleted, now, reason)
	return nil
}

// Fail terminates a pending or running task.
func (t *Task) Fail(now time.Time, reason string) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot fail task in status %s", sharedErrors.ErrInvalidTransition, t.Status)
	}
	t.finish(StatusFailed, now, reason)
	return nil
}

func (t *Task) finish(status Status, now time.Time, reason string) {
	ts := now.UTC()
	// a clock step backwards must not break completed_at >= started_at
	if t.StartedAt != nil && ts.Before(*t.StartedAt) {
		ts = *t.StartedAt
	}
	if ts.Before(t.CreatedAt) {
		ts = t.CreatedAt
	}
	t.Status = status
	t.CompletedAt = &ts
	t.Error = reason
}

// Clone returns a copy that shares no pointers with t.
func (t Task) Clone() Task {
	out := t
	if t.StartedAt != nil {
		ts := *t.StartedAt
		out.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		out.CompletedAt = &ts
	}
	return out
}
