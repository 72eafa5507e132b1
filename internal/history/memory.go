package history

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/kode4food/braid/pkg/api"
)

// MemoryStore is a process-local Store used by tests and the demo runner
type MemoryStore struct {
	logs map[api.InstanceID][]*api.HistoryEvent
	mu   sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		logs: map[api.InstanceID][]*api.HistoryEvent{},
	}
}

// Append implements Store
func (s *MemoryStore) Append(
	_ context.Context, id api.InstanceID, expected int64,
	evs ...*api.HistoryEvent,
) error {
	if len(evs) == 0 {
		return ErrEmptyAppend
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[id]
	if actual := int64(len(log)); actual != expected {
		return &ConflictError{Expected: expected, Actual: actual}
	}
	stamp(id, expected, evs)
	for _, ev := range evs {
		cp := *ev
		log = append(log, &cp)
	}
	s.logs[id] = log
	return nil
}

// Read implements Store
func (s *MemoryStore) Read(
	_ context.Context, id api.InstanceID,
) ([]*api.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[id]
	res := make([]*api.HistoryEvent, len(log))
	for i, ev := range log {
		cp := *ev
		res[i] = &cp
	}
	return res, nil
}

// Instances implements Store
func (s *MemoryStore) Instances(context.Context) ([]api.InstanceID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.logs)), nil
}
