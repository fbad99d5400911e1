package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	ddd "github.com/paulvitic/ddd-projector"
)

// ProjectionReader reads stored projections by id.
type ProjectionReader[P ddd.Projection] interface {
	ByID(ctx context.Context, id string) (P, error)
}

type projectionEndpoint[P ddd.Projection] struct {
	*EndpointBase
	handler     func(*projectionEndpoint[P], http.ResponseWriter, *http.Request)
	initializer *ddd.Initializer[P]
	reader      ProjectionReader[P]
}

func (e *projectionEndpoint[P]) Handler() func(http.ResponseWriter, *http.Request) {
	return func(writer http.ResponseWriter, request *http.Request) {
		e.handler(e, writer, request)
	}
}

// NewProjectionEndpoints serves one projection type under path:
//
//	GET  path/{id}     the stored projection
//	POST path/init     initialize the base records with a JSON array of ids
//	POST path/rebuild  rebuild every projection of the type
func NewProjectionEndpoints[P ddd.Projection](path string, initializer *ddd.Initializer[P], reader ProjectionReader[P]) []Endpoint {
	return []Endpoint{
		&projectionEndpoint[P]{EndpointBase: NewEndpoint(path+"/init", http.MethodPost), handler: (*projectionEndpoint[P]).initByID, initializer: initializer},
		&projectionEndpoint[P]{EndpointBase: NewEndpoint(path+"/rebuild", http.MethodPost), handler: (*projectionEndpoint[P]).rebuild, initializer: initializer},
		&projectionEndpoint[P]{EndpointBase: NewEndpoint(path+"/{id}", http.MethodGet), handler: (*projectionEndpoint[P]).byID, reader: reader},
	}
}

func (e *projectionEndpoint[P]) byID(writer http.ResponseWriter, request *http.Request) {
	p, err := e.reader.ByID(request.Context(), mux.Vars(request)["id"])
	if errors.Is(err, ddd.ErrNotFound) {
		http.Error(writer, "Not found", http.StatusNotFound)
		return
	}
	if err != nil {
		e.log.Error("Error reading projection: %v", err)
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	e.writeJSON(writer, http.StatusOK, p)
}

func (e *projectionEndpoint[P]) initByID(writer http.ResponseWriter, request *http.Request) {
	ids, err := decodeIDs(request)
	if err != nil {
		e.log.Warn("Error decoding ids: %v", err)
		http.Error(writer, "Bad request", http.StatusBadRequest)
		return
	}
	projections, err := e.initializer.InitByID(request.Context(), ids)
	if err != nil {
		e.log.Error("Error initializing projections: %v", err)
		http.Error(writer, http.StatusText(statusOf(err)), statusOf(err))
		return
	}
	if projections == nil {
		projections = []P{}
	}
	e.writeJSON(writer, http.StatusOK, projections)
}

func (e *projectionEndpoint[P]) rebuild(writer http.ResponseWriter, request *http.Request) {
	count, err := e.initializer.RebuildContainer(request.Context())
	if err != nil {
		e.log.Error("Error rebuilding projections after %d: %v", count, err)
		http.Error(writer, http.StatusText(statusOf(err)), statusOf(err))
		return
	}
	e.writeJSON(writer, http.StatusOK, map[string]int{"rebuilt": count})
}

// statusOf maps remote source failures to a gateway error.
func statusOf(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
