package ddd

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"time"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

type profile struct {
	View
	LinkedID string   `json:"linkedId"`
	Name     string   `json:"name"`
	Tags     []string `json:"tags"`
	Score    int      `json:"score"`
}

var profileSubscriptions = SubscribedTo(Create, Update).DeletedBy(Delete)

func newProfile() *profile {
	return &profile{}
}

func profileWithID(id string) *profile {
	p := newProfile()
	p.Id = id
	return p
}

func (p *profile) Fields() Fields {
	return Fields{
		"linkedId": StringField(&p.LinkedID),
		"name":     StringField(&p.Name),
		"tags":     StringsField(&p.Tags),
		"score":    IntField(&p.Score),
	}
}

func (p *profile) Apply(e Event) error {
	return profileSubscriptions.Mutate(p, e)
}

// eventStore is an EventSource that records what it was asked for.
type eventStore struct {
	mu      sync.Mutex
	events  []Event
	queries [][]string
	err     error
}

func newEventStore(events ...Event) *eventStore {
	return &eventStore{events: events}
}

func (s *eventStore) EventsOf(ctx context.Context, ids []string, asOf *time.Time) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	asked := append([]string(nil), ids...)
	slices.Sort(asked)
	s.queries = append(s.queries, asked)
	if s.err != nil {
		return nil, s.err
	}

	var found []Event
	for _, e := range s.events {
		if slices.Contains(ids, e.AggregateRootID()) && OccurredBy(e, asOf) {
			found = append(found, e)
		}
	}
	SortEvents(found)
	return found, nil
}

func (s *eventStore) asked() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.queries...)
}

// remotes serves one eventStore per url.
type remotes map[string]*eventStore

func (r remotes) source(url string) EventSource {
	if s, ok := r[url]; ok {
		return s
	}
	return EventSourceFunc(func(context.Context, []string, *time.Time) ([]Event, error) {
		return nil, errors.New("unreachable " + url)
	})
}

type stateStore struct {
	docs map[string]*Document
}

func newStateStore(docs ...*Document) *stateStore {
	s := &stateStore{docs: make(map[string]*Document)}
	for _, d := range docs {
		s.docs[d.Id] = d
	}
	return s
}

func (s *stateStore) Records(_ context.Context, ids []string) ([]Record, error) {
	var records []Record
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			records = append(records, NewDocument(d.Id, d.Values.Clone()))
		}
	}
	return records, nil
}

func (s *stateStore) ActiveIDs(_ context.Context, page, pageSize int) ([]string, error) {
	var ids []string
	for id, d := range s.docs {
		if !d.Deleted {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	from := min(page*pageSize, len(ids))
	to := min(from+pageSize, len(ids))
	return ids[from:to], nil
}

type projectionStore struct {
	mu      sync.Mutex
	stored  map[string]*profile
	upserts int
	resets  int
	fail    error
	// stuck keeps returning every stored projection as uninitialized.
	stuck bool
}

func newProjectionStore() *projectionStore {
	return &projectionStore{stored: make(map[string]*profile)}
}

func (s *projectionStore) BulkUpsert(_ context.Context, projections []*profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.fail != nil {
		return s.fail
	}
	for _, p := range projections {
		c, _ := Clone(p, newProfile)
		s.stored[p.Id] = c
	}
	return nil
}

func (s *projectionStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.stored = make(map[string]*profile)
	return nil
}

func (s *projectionStore) Uninitialized(_ context.Context, limit int) ([]*profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, p := range s.stored {
		if s.stuck || !p.IsInitialized {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	var found []*profile
	for _, id := range ids[:min(limit, len(ids))] {
		c, _ := Clone(s.stored[id], newProfile)
		c.IsInitialized = false
		found = append(found, c)
	}
	return found, nil
}

func (s *projectionStore) ByID(_ context.Context, id string) (*profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.stored[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *projectionStore) put(projections ...*profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range projections {
		s.stored[p.Id] = p
	}
}

func (s *projectionStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

type sink struct {
	mu      sync.Mutex
	reports []Undelivered
}

func (s *sink) Undeliverable(_ context.Context, report Undelivered) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func quietLogger() *Logger {
	log := NewLogger()
	log.SetOutput(io.Discard)
	return log
}
