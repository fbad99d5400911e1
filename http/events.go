package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	ddd "github.com/paulvitic/ddd-projector"
)

// asOfPattern keeps the point in time route apart from sibling routes.
const asOfPattern = "{asOf:[0-9]{4}-[^/]+}"

// EventsEndpoint serves this service's events to other services: a JSON
// array of aggregate ids in, a JSON array of events out.
type EventsEndpoint struct {
	*EndpointBase
	source ddd.EventSource
	pinned bool
}

// NewEventsEndpoints serves path and path/{asOf}.
func NewEventsEndpoints(path string, source ddd.EventSource) []Endpoint {
	return []Endpoint{
		&EventsEndpoint{EndpointBase: NewEndpoint(path, http.MethodPost), source: source},
		&EventsEndpoint{EndpointBase: NewEndpoint(path+"/"+asOfPattern, http.MethodPost), source: source, pinned: true},
	}
}

func (e *EventsEndpoint) Handler() func(http.ResponseWriter, *http.Request) {
	return func(writer http.ResponseWriter, request *http.Request) {
		var asOf *time.Time
		if e.pinned {
			at, err := time.Parse(time.RFC3339Nano, mux.Vars(request)["asOf"])
			if err != nil {
				e.log.Warn("Bad point in time: %v", err)
				http.Error(writer, "Bad request", http.StatusBadRequest)
				return
			}
			asOf = &at
		}

		ids, err := decodeIDs(request)
		if err != nil {
			e.log.Warn("Error decoding ids: %v", err)
			http.Error(writer, "Bad request", http.StatusBadRequest)
			return
		}

		events, err := e.source.EventsOf(request.Context(), ids, asOf)
		if err != nil {
			e.log.Error("Error querying events: %v", err)
			http.Error(writer, "Internal server error", http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []ddd.Event{}
		}
		e.writeJSON(writer, http.StatusOK, events)
	}
}

// AppendEndpoint appends a JSON array of events to the local log.
type AppendEndpoint struct {
	*EndpointBase
	eventLog ddd.EventLog
}

func NewAppendEndpoint(path string, eventLog ddd.EventLog) *AppendEndpoint {
	return &AppendEndpoint{EndpointBase: NewEndpoint(path, http.MethodPost), eventLog: eventLog}
}

func (e *AppendEndpoint) Handler() func(http.ResponseWriter, *http.Request) {
	return func(writer http.ResponseWriter, request *http.Request) {
		var events []ddd.Event
		if err := json.NewDecoder(request.Body).Decode(&events); err != nil {
			e.log.Warn("Error decoding events: %v", err)
			http.Error(writer, "Bad request", http.StatusBadRequest)
			return
		}
		if err := e.eventLog.Append(request.Context(), events...); err != nil {
			e.log.Error("Error appending events: %v", err)
			http.Error(writer, "Internal server error", http.StatusInternalServerError)
			return
		}
		writer.WriteHeader(http.StatusAccepted)
	}
}
