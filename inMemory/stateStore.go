package inMemory

import (
	"context"
	"slices"
	"sync"

	ddd "github.com/paulvitic/ddd-projector"
)

// StateStore keeps current state documents in memory.
type StateStore struct {
	mu   sync.RWMutex
	docs map[string]*ddd.Document
}

func NewStateStore(docs ...*ddd.Document) *StateStore {
	s := &StateStore{docs: make(map[string]*ddd.Document)}
	s.Save(docs...)
	return s
}

// Save inserts or replaces documents
func (s *StateStore) Save(docs ...*ddd.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.docs[d.Id] = &ddd.Document{Id: d.Id, Deleted: d.Deleted, Values: d.Values.Clone()}
	}
}

func (s *StateStore) Records(_ context.Context, ids []string) ([]ddd.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []ddd.Record
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			records = append(records, &ddd.Document{Id: d.Id, Deleted: d.Deleted, Values: d.Values.Clone()})
		}
	}
	return records, nil
}

// ActiveIDs pages through non-deleted ids in ascending order
func (s *StateStore) ActiveIDs(_ context.Context, page, pageSize int) ([]string, error) {
	s.mu.RLock()
	var ids []string
	for id, d := range s.docs {
		if !d.Deleted {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	from := page * pageSize
	if pageSize <= 0 || from >= len(ids) {
		return nil, nil
	}
	to := min(from+pageSize, len(ids))
	return ids[from:to], nil
}
