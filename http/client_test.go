package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ddd "github.com/paulvitic/ddd-projector"
	"github.com/paulvitic/ddd-projector/inMemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func testEventLog() *inMemory.EventLog {
	return inMemory.NewEventLog(
		ddd.NewEvent("e1", "c1", ddd.Create, ddd.PayloadOf("name", "Alice"), base),
		ddd.NewEvent("e2", "c1", ddd.Update, ddd.PayloadOf("name", "Alicia"), base.Add(time.Hour)),
		ddd.NewEvent("e3", "c2", ddd.Create, ddd.PayloadOf("name", "Bob"), base),
	)
}

func eventsServer(t *testing.T, source ddd.EventSource) *httptest.Server {
	t.Helper()
	s := NewServer(":0")
	s.RegisterEndpoint(NewEventsEndpoints("/events", source)...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestEventClient_EventsOf(t *testing.T) {
	ts := eventsServer(t, testEventLog())
	client := NewEventClient(ts.URL+"/events", ts.Client())
	ctx := context.Background()

	t.Run("all events", func(t *testing.T) {
		events, err := client.EventsOf(ctx, []string{"c1"}, nil)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "e1", events[0].ID())
		assert.Equal(t, base, events[0].TimeStamp())
		assert.Equal(t, ddd.Create, events[0].Command())
		name, _ := events[1].Payload().Get("name")
		assert.Equal(t, "Alicia", name)
	})

	t.Run("as of a point in time", func(t *testing.T) {
		events, err := client.EventsOf(ctx, []string{"c1", "c2"}, &base)
		require.NoError(t, err)
		require.Len(t, events, 2)
		for _, e := range events {
			assert.False(t, e.TimeStamp().After(base))
		}
	})

	t.Run("unknown ids", func(t *testing.T) {
		events, err := client.EventsOf(ctx, []string{"missing"}, nil)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestEventClient_WireShape(t *testing.T) {
	var gotPath string
	var gotIDs []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotIDs)
		_, _ = w.Write([]byte(`[{"id":"e1","aggregateRootId":"c1","command":{"name":"Create","isNew":true},` +
			`"payload":{"name":"Alice"},"timestamp":"2024-03-01T10:00:00Z","partitionKey":"p","userId":"u"}]`))
	}))
	defer ts.Close()

	asOf := base.Add(1500 * time.Millisecond)
	events, err := NewEventClient(ts.URL+"/events/", nil).EventsOf(context.Background(), []string{"c1"}, &asOf)
	require.NoError(t, err)

	assert.Equal(t, "/events/2024-03-01T10:00:01.5Z", gotPath)
	assert.Equal(t, []string{"c1"}, gotIDs)
	require.Len(t, events, 1)
	assert.Equal(t, "p", events[0].PartitionKey())
	assert.Equal(t, "u", events[0].UserID())
}

func TestEventClient_Failures(t *testing.T) {
	t.Run("non success status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		_, err := NewEventClient(ts.URL, nil).EventsOf(context.Background(), []string{"c1"}, nil)
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
		assert.Equal(t, ts.URL, statusErr.Endpoint)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("malformed body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"not":"a list"`))
		}))
		defer ts.Close()

		_, err := NewEventClient(ts.URL, nil).EventsOf(context.Background(), []string{"c1"}, nil)
		assert.Error(t, err)
	})

	t.Run("unreachable", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		url := ts.URL
		ts.Close()

		_, err := NewEventClient(url, nil).EventsOf(context.Background(), []string{"c1"}, nil)
		assert.Error(t, err)
	})
}

func TestEventsEndpoint_BadRequests(t *testing.T) {
	ts := eventsServer(t, testEventLog())

	res, err := http.Post(ts.URL+"/events", "application/json", nil)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, err = http.Post(ts.URL+"/events/2024-13-45T99:00:00Z", "application/json", nil)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestAppendEndpoint(t *testing.T) {
	log := inMemory.NewEventLog()
	s := NewServer(":0")
	s.RegisterEndpoint(NewAppendEndpoint("/events/append", log))
	s.RegisterEndpoint(NewEventsEndpoints("/events", log)...)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body, err := json.Marshal([]ddd.Event{
		ddd.NewEvent("e1", "c1", ddd.Create, ddd.PayloadOf("name", "Alice"), base),
	})
	require.NoError(t, err)

	res, err := http.Post(ts.URL+"/events/append", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusAccepted, res.StatusCode)

	events, err := NewEventClient(ts.URL+"/events", nil).EventsOf(context.Background(), []string{"c1"}, nil)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
