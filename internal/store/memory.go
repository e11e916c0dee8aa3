package store

import (
	"context"
	"sync"
)

// MemoryStore keeps processed tasks in memory. Used by tests and by
// gateways running without a database; everything is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*ProcessedTask
	order []string // insertion order, newest last
}

// NewMemoryStore creates an empty in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*ProcessedTask)}
}

func (s *MemoryStore) SaveTask(_ context.Context, task *ProcessedTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.TaskID]; !ok {
		s.order = append(s.order, task.TaskID)
	}
	cp := *task
	s.tasks[task.TaskID] = &cp
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, taskID string) (*ProcessedTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]ProcessedTask, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ProcessedTask
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.tasks[s.order[i]])
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
