package ddd

import (
	"sync"
	"time"
)

type EventProducer interface {
	RegisterEvent(aggregateRootID string, command Command, payload *Payload) EventProducer
	Events() []Event
	GetFirst() Event
}

type eventProducer struct {
	mu           sync.Mutex
	events       []Event
	partitionKey string
	userID       string
	now          func() time.Time
}

func NewEventProducer() EventProducer {
	return &eventProducer{
		events: make([]Event, 0),
		now:    time.Now,
	}
}

// NewRoutedEventProducer stamps every registered event with routing metadata.
func NewRoutedEventProducer(partitionKey, userID string) EventProducer {
	return &eventProducer{
		events:       make([]Event, 0),
		partitionKey: partitionKey,
		userID:       userID,
		now:          time.Now,
	}
}

// Events returns all the events that have been registered. It also clears the events.
func (ep *eventProducer) Events() []Event {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	e := ep.events
	ep.events = make([]Event, 0)
	return e
}

func (ep *eventProducer) RegisterEvent(aggregateRootID string, command Command, payload *Payload) EventProducer {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ev := NewEvent(GenerateID(), aggregateRootID, command, payload, ep.now()).
		WithRouting(ep.partitionKey, ep.userID)
	ep.events = append(ep.events, ev)
	return ep
}

func (ep *eventProducer) GetFirst() Event {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	pop := ep.events[0]
	ep.events = ep.events[1:]
	return pop
}
