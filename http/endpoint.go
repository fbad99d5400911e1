package http

import (
	"encoding/json"
	"net/http"

	ddd "github.com/paulvitic/ddd-projector"
)

type Endpoint interface {
	Path() string
	Methods() []string
	Handler() func(http.ResponseWriter, *http.Request)
}

type EndpointBase struct {
	path    string
	methods []string
	log     *ddd.Logger
}

func NewEndpoint(path string, methods ...string) *EndpointBase {
	return &EndpointBase{
		path:    path,
		methods: methods,
		log:     ddd.NewLogger().Named(path),
	}
}

func (e *EndpointBase) Path() string {
	return e.path
}

func (e *EndpointBase) Methods() []string {
	return e.methods
}

func (e *EndpointBase) writeJSON(writer http.ResponseWriter, status int, body any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(body); err != nil {
		e.log.Error("Error encoding response: %v", err)
	}
}

// decodeIDs reads a JSON array of ids from the request body.
func decodeIDs(request *http.Request) ([]string, error) {
	var ids []string
	if err := json.NewDecoder(request.Body).Decode(&ids); err != nil {
		return nil, err
	}
	return ids, nil
}
