package ddd

import (
	"context"
	"errors"
	"time"
)

var ErrNoRemoteSource = errors.New("no remote event source configured")

// EventSource answers "which events exist for these aggregates".
type EventSource interface {
	// EventsOf returns every event whose aggregate root id is in
	// aggregateRootIDs and, when asOf is set, whose timestamp is not after it.
	// Events come back sorted by timestamp.
	EventsOf(ctx context.Context, aggregateRootIDs []string, asOf *time.Time) ([]Event, error)
}

// EventLog is the append-only log owned by this service.
type EventLog interface {
	EventSource
	// Append adds events to the log
	Append(ctx context.Context, events ...Event) error
	// Close cleans up resources
	Close() error
}

// RemoteSource dials the event source served at url by another service.
type RemoteSource func(url string) EventSource

// EventSourceFunc adapts a function to EventSource.
type EventSourceFunc func(ctx context.Context, aggregateRootIDs []string, asOf *time.Time) ([]Event, error)

func (f EventSourceFunc) EventsOf(ctx context.Context, aggregateRootIDs []string, asOf *time.Time) ([]Event, error) {
	return f(ctx, aggregateRootIDs, asOf)
}

// OccurredBy reports whether e is visible at asOf. A nil asOf sees everything.
func OccurredBy(e Event, asOf *time.Time) bool {
	return asOf == nil || !e.TimeStamp().After(*asOf)
}
