package a2a

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewTaskID returns a random UUIDv4 task ID.
func NewTaskID() string {
	return uuid.NewString()
}

// TaskStore is a concurrency-safe in-memory store of agent-side tasks.
// Insertion order is kept for deterministic pagination.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
	now   func() time.Time
}

// NewTaskStore returns an empty store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*Task), now: time.Now}
}

// Create stores a new task. IDs must be unique.
func (s *TaskStore) Create(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("a2a: task %q already exists", task.ID)
	}
	s.tasks[task.ID] = cloneTask(&task)
	s.order = append(s.order, task.ID)
	return nil
}

// Get returns a copy of the task, safe to mutate.
func (s *TaskStore) Get(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	return cloneTask(t), nil
}

// Update applies fn to the stored task under the write lock.
func (s *TaskStore) Update(id string, fn func(*Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	fn(t)
	return nil
}

// Len returns the number of stored tasks.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// List returns one page of tasks matching filter. PageToken is the ID of
// the last task of the previous page; PageSize <= 0 returns everything.
func (s *TaskStore) List(filter ListTasksRequest) (*ListTasksResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if filter.PageToken != "" {
		i := slices.Index(s.order, filter.PageToken)
		if i < 0 {
			return nil, fmt.Errorf("a2a: invalid page token %q", filter.PageToken)
		}
		start = i + 1
	}

	total := 0
	page := []Task{}
	next := ""
	for i, id := range s.order {
		t := s.tasks[id]
		if !matchesFilter(t, filter) {
			continue
		}
		total++
		if i < start {
			continue
		}
		if filter.PageSize > 0 && len(page) == filter.PageSize {
			next = page[len(page)-1].ID
			continue
		}
		page = append(page, *cloneTask(t))
	}

	return &ListTasksResponse{Tasks: page, TotalSize: total, NextPageToken: next}, nil
}

// Prune drops terminal tasks whose status is older than olderThan and
// returns how many were removed. Running tasks are never pruned.
func (s *TaskStore) Prune(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		t := s.tasks[id]
		if t.Status.State.IsTerminal() && t.Status.Timestamp.Before(cutoff) {
			delete(s.tasks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

func matchesFilter(t *Task, filter ListTasksRequest) bool {
	if filter.ContextID != "" && t.ContextID != filter.ContextID {
		return false
	}
	if filter.Status != "" && string(t.Status.State) != filter.Status {
		return false
	}
	return true
}

func cloneTask(src *Task) *Task {
	dst := *src
	dst.Metadata = slices.Clone(src.Metadata)
	if src.Artifacts != nil {
		dst.Artifacts = make([]Artifact, len(src.Artifacts))
		for i, a := range src.Artifacts {
			a.Parts = cloneParts(a.Parts)
			dst.Artifacts[i] = a
		}
	}
	if src.History != nil {
		dst.History = make([]Message, len(src.History))
		for i, m := range src.History {
			dst.History[i] = cloneMessage(m)
		}
	}
	if src.Status.Message != nil {
		m := cloneMessage(*src.Status.Message)
		dst.Status.Message = &m
	}
	return &dst
}

func cloneMessage(m Message) Message {
	m.Parts = cloneParts(m.Parts)
	m.Metadata = slices.Clone(m.Metadata)
	return m
}

func cloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	out := make([]Part, len(parts))
	for i, p := range parts {
		p.Data = slices.Clone(p.Data)
		out[i] = p
	}
	return out
}
