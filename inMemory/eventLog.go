package inMemory

import (
	"context"
	"sync"
	"time"

	ddd "github.com/paulvitic/ddd-projector"
)

// EventLog keeps events in memory. It records the ids of every query so
// tests can tell how often and for what it was asked.
type EventLog struct {
	mu      sync.RWMutex
	events  []ddd.Event
	queries [][]string
}

// NewEventLog creates a new instance
func NewEventLog(events ...ddd.Event) *EventLog {
	return &EventLog{events: append([]ddd.Event(nil), events...)}
}

// Append appends events to the log
func (l *EventLog) Append(_ context.Context, events ...ddd.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, events...)
	return nil
}

// EventsOf returns the events of the given aggregates sorted by timestamp
func (l *EventLog) EventsOf(ctx context.Context, aggregateRootIDs []string, asOf *time.Time) ([]ddd.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(aggregateRootIDs))
	for _, id := range aggregateRootIDs {
		wanted[id] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries = append(l.queries, append([]string(nil), aggregateRootIDs...))

	var found []ddd.Event
	for _, e := range l.events {
		if wanted[e.AggregateRootID()] && ddd.OccurredBy(e, asOf) {
			found = append(found, e)
		}
	}
	ddd.SortEvents(found)
	return found, nil
}

// Queries returns the ids asked for by each EventsOf call, in call order
func (l *EventLog) Queries() [][]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	queries := make([][]string, len(l.queries))
	for i, q := range l.queries {
		queries[i] = append([]string(nil), q...)
	}
	return queries
}

func (l *EventLog) Close() error {
	return nil
}
