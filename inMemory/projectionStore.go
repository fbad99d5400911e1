package inMemory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	ddd "github.com/paulvitic/ddd-projector"
)

// ProjectionStore keeps copies of projections in memory. Whatever goes in
// or comes out is cloned, so callers never share state with the store.
type ProjectionStore[P ddd.Projection] struct {
	mu            sync.RWMutex
	records       map[string]P
	newProjection func() P
	failing       map[string]error
}

func NewProjectionStore[P ddd.Projection](newProjection func() P) *ProjectionStore[P] {
	return &ProjectionStore[P]{
		records:       make(map[string]P),
		newProjection: newProjection,
		failing:       make(map[string]error),
	}
}

// FailWrites makes every later upsert of id fail with err.
func (s *ProjectionStore[P]) FailWrites(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[id] = err
}

func (s *ProjectionStore[P]) BulkUpsert(ctx context.Context, projections []P) error {
	return ddd.BulkWrite(ctx, projections, s.upsert)
}

func (s *ProjectionStore[P]) upsert(_ context.Context, p P) error {
	id := p.Base().ID()
	c, err := ddd.Clone(p, s.newProjection)
	if err != nil {
		return fmt.Errorf("projection %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing[id]; err != nil {
		return fmt.Errorf("projection %s: %w", id, err)
	}
	s.records[id] = c
	return nil
}

func (s *ProjectionStore[P]) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]P)
	return nil
}

// Uninitialized returns up to limit records in ascending id order
func (s *ProjectionStore[P]) Uninitialized(_ context.Context, limit int) ([]P, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, p := range s.records {
		if !p.Base().Initialized() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	found := make([]P, 0, len(ids))
	for _, id := range ids {
		c, err := ddd.Clone(s.records[id], s.newProjection)
		if err != nil {
			return nil, fmt.Errorf("projection %s: %w", id, err)
		}
		found = append(found, c)
	}
	return found, nil
}

func (s *ProjectionStore[P]) ByID(_ context.Context, id string) (P, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.records[id]
	if !ok {
		var zero P
		return zero, fmt.Errorf("projection %s: %w", id, ddd.ErrNotFound)
	}
	return ddd.Clone(p, s.newProjection)
}

// Len returns the number of stored projections
func (s *ProjectionStore[P]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
