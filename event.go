package ddd

import (
	"cmp"
	"encoding/json"
	"slices"
	"time"
)

// Event is an immutable fact about the aggregate identified by AggregateRootID.
type Event struct {
	id              string
	aggregateRootID string
	command         Command
	payload         *Payload
	timeStamp       time.Time
	partitionKey    string
	userID          string
}

// NewEvent creates an event. A nil payload is valid for delete style commands.
func NewEvent(id, aggregateRootID string, command Command, payload *Payload, timeStamp time.Time) Event {
	return Event{
		id:              id,
		aggregateRootID: aggregateRootID,
		command:         command,
		payload:         payload.Clone(),
		timeStamp:       timeStamp.UTC(),
	}
}

// WithRouting returns a copy of the event carrying partition and audit metadata.
func (e Event) WithRouting(partitionKey, userID string) Event {
	e.partitionKey = partitionKey
	e.userID = userID
	return e
}

func (e Event) ID() string {
	return e.id
}

func (e Event) AggregateRootID() string {
	return e.aggregateRootID
}

func (e Event) Command() Command {
	return e.command
}

// Payload returns a copy so callers cannot mutate the event.
func (e Event) Payload() *Payload {
	return e.payload.Clone()
}

func (e Event) TimeStamp() time.Time {
	return e.timeStamp
}

func (e Event) PartitionKey() string {
	return e.partitionKey
}

func (e Event) UserID() string {
	return e.userID
}

type eventRecord struct {
	ID              string    `json:"id"`
	AggregateRootID string    `json:"aggregateRootId"`
	Command         Command   `json:"command"`
	Payload         *Payload  `json:"payload"`
	Timestamp       time.Time `json:"timestamp"`
	PartitionKey    string    `json:"partitionKey"`
	UserID          string    `json:"userId"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventRecord{
		ID:              e.id,
		AggregateRootID: e.aggregateRootID,
		Command:         e.command,
		Payload:         e.payload,
		Timestamp:       e.timeStamp.UTC(),
		PartitionKey:    e.partitionKey,
		UserID:          e.userID,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var record eventRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return err
	}
	*e = Event{
		id:              record.ID,
		aggregateRootID: record.AggregateRootID,
		command:         record.Command,
		payload:         record.Payload,
		timeStamp:       record.Timestamp.UTC(),
		partitionKey:    record.PartitionKey,
		userID:          record.UserID,
	}
	return nil
}

func (e Event) ToJsonString() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func EventFromJsonString(jsonString string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(jsonString), &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// EventsFromJson decodes a JSON array of event envelopes.
func EventsFromJson(data []byte) ([]Event, error) {
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// SortEvents orders events by timestamp. Equal timestamps fall back to the
// event id so the order never depends on the input order.
func SortEvents(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		if c := a.timeStamp.Compare(b.timeStamp); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
}

// groupByAggregate buckets events by aggregate root id keeping their order.
func groupByAggregate(events []Event) map[string][]Event {
	groups := make(map[string][]Event)
	for _, e := range events {
		groups[e.aggregateRootID] = append(groups[e.aggregateRootID], e)
	}
	return groups
}
