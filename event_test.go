package ddd

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_WireShape(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	event := NewEvent("e1", "a1", Create, PayloadOf("name", "X"), time.Date(2024, 1, 1, 11, 0, 0, 0, berlin)).
		WithRouting("tenant", "user")

	str, err := event.ToJsonString()
	require.NoError(t, err)

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(str), &data))
	assert.Equal(t, "e1", data["id"])
	assert.Equal(t, "a1", data["aggregateRootId"])
	assert.Equal(t, map[string]any{"name": "Create", "isNew": true}, data["command"])
	assert.Equal(t, map[string]any{"name": "X"}, data["payload"])
	assert.Equal(t, "2024-01-01T10:00:00Z", data["timestamp"])
	assert.Equal(t, "tenant", data["partitionKey"])
	assert.Equal(t, "user", data["userId"])
}

func TestEventFromJsonString(t *testing.T) {
	event1 := NewEventProducer().
		RegisterEvent("a1", Update, PayloadOf("score", 3)).
		GetFirst()
	str, err := event1.ToJsonString()
	require.NoError(t, err)

	event2, err := EventFromJsonString(str)
	require.NoError(t, err)

	assert.Equal(t, event1.ID(), event2.ID())
	assert.Equal(t, event1.AggregateRootID(), event2.AggregateRootID())
	assert.True(t, event1.Command().Equals(event2.Command()))
	assert.True(t, event1.TimeStamp().Equal(event2.TimeStamp()))
	score, _ := event2.Payload().Get("score")
	assert.Equal(t, float64(3), score)

	_, err = EventFromJsonString("{")
	assert.Error(t, err)
}

func TestEventsFromJson(t *testing.T) {
	events, err := EventsFromJson([]byte(`[
		{"id":"e1","aggregateRootId":"a1","command":{"name":"Delete","isNew":false},"payload":null,"timestamp":"2024-01-01T10:00:00Z"}
	]`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, Delete.Equals(events[0].Command()))
	assert.Nil(t, events[0].Payload())

	_, err = EventsFromJson([]byte(`{"id":"e1"}`))
	assert.Error(t, err)
}

func TestEvent_PayloadIsCopied(t *testing.T) {
	event := NewEvent("e1", "a1", Create, PayloadOf("name", "X"), at(0))
	event.Payload().Set("name", "Y")

	name, _ := event.Payload().Get("name")
	assert.Equal(t, "X", name)
}

func TestSortEvents(t *testing.T) {
	events := []Event{
		NewEvent("c", "a1", Update, nil, at(2)),
		NewEvent("b", "a1", Update, nil, at(1)),
		NewEvent("a", "a1", Update, nil, at(1)),
	}
	SortEvents(events)

	var ids []string
	for _, e := range events {
		ids = append(ids, e.ID())
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
