package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
	sharedErrors "github.com/khanhnv2901/webrecon/internal/shared/errors"
)

const defaultMaxTasks = 1000

// TaskStore is the concurrent registry of scan tasks. Every read hands out a
// copy so callers never observe a task while it is being mutated.
type TaskStore struct {
	mu          sync.Mutex
	tasks       map[string]*scan.Task
	subscribers map[chan scan.Task]struct{}
	maxTasks    int // Maximum number of terminal tasks kept before Prune drops the oldest
	logger      *zap.Logger
}

// TaskStoreOption configures a TaskStore.
type TaskStoreOption func(*TaskStore)

// WithMaxTasks bounds the number of tasks retained after pruning.
func WithMaxTasks(n int) TaskStoreOption {
	return func(s *TaskStore) {
		if n > 0 {
			s.maxTasks = n
		}
	}
}

// WithLogger attaches a logger used for dropped subscriber updates.
func WithLogger(logger *zap.Logger) TaskStoreOption {
	return func(s *TaskStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewTaskStore(opts ...TaskStoreOption) *TaskStore {
	s := &TaskStore{
		tasks:       make(map[string]*scan.Task),
		subscribers: make(map[chan scan.Task]struct{}),
		maxTasks:    defaultMaxTasks,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert registers a new task. IDs are never reused.
func (s *TaskStore) Insert(task scan.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("task %s: %w", task.ID, sharedErrors.ErrAlreadyExists)
	}
	stored := task.Clone()
	s.tasks[task.ID] = &stored
	s.broadcast(stored.Clone())
	return nil
}

// Update applies fn to a working copy of the task and commits it only when fn
// succeeds, so a rejected transition leaves the stored task untouched.
func (s *TaskStore) Update(id string, fn func(*scan.Task) error) (scan.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[id]
	if !ok {
		return scan.Task{}, fmt.Errorf("task %s: %w", id, sharedErrors.ErrNotFound)
	}
	working := current.Clone()
	if err := fn(&working); err != nil {
		return current.Clone(), err
	}
	working.ID = current.ID
	s.tasks[id] = &working
	s.broadcast(working.Clone())
	return working.Clone(), nil
}

// Get returns a copy of the task.
func (s *TaskStore) Get(id string) (scan.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return scan.Task{}, fmt.Errorf("task %s: %w", id, sharedErrors.ErrNotFound)
	}
	return task.Clone(), nil
}

// List returns copies of the tasks, newest first. A non-positive limit returns all.
func (s *TaskStore) List(limit int) []scan.Task {
	s.mu.Lock()
	tasks := make([]scan.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task.Clone())
	}
	s.mu.Unlock()

	sortNewestFirst(tasks)
	if limit > 0 && limit < len(tasks) {
		tasks = tasks[:limit]
	}
	return tasks
}

// Subscribe returns a channel receiving a snapshot after every change, and a
// function that unsubscribes and closes the channel.
func (s *TaskStore) Subscribe() (<-chan scan.Task, func()) {
	ch := make(chan scan.Task, 32)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
}

// Prune removes the oldest terminal tasks while the store holds more than its
// configured maximum and returns the removed IDs.
func (s *TaskStore) Prune() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) <= s.maxTasks {
		return nil
	}
	finished := make([]scan.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if task.Status.IsTerminal() {
			finished = append(finished, *task)
		}
	}
	// oldest first
	sort.Slice(finished, func(i, j int) bool {
		return finishedAt(finished[i]).Before(finishedAt(finished[j]))
	})
	toRemove := len(s.tasks) - s.maxTasks
	if toRemove > len(finished) {
		toRemove = len(finished)
	}
	removed := make([]string, 0, toRemove)
	for _, task := range finished[:toRemove] {
		delete(s.tasks, task.ID)
		removed = append(removed, task.ID)
	}
	return removed
}

// broadcast must be called with mu held.
func (s *TaskStore) broadcast(task scan.Task) {
	for ch := range s.subscribers {
		select {
		case ch <- task:
		default:
			s.logger.Debug("dropped task update for slow subscriber", zap.String("task_id", task.ID))
		}
	}
}

func finishedAt(task scan.Task) time.Time {
	if task.CompletedAt != nil {
		return *task.CompletedAt
	}
	return task.CreatedAt
}

func sortNewestFirst(tasks []scan.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}
