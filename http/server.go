package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	ddd "github.com/paulvitic/ddd-projector"
)

type Server interface {
	Start() error
	Stop() error
	RegisterEndpoint(endpoints ...Endpoint)
	Handler() http.Handler
}

type server struct {
	srv    *http.Server
	router *mux.Router
	log    *ddd.Logger
}

// NewServer creates a server on addr with a health check at /.
func NewServer(addr string) Server {
	s := &server{
		srv: &http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router: mux.NewRouter(),
		log:    ddd.NewLogger().Named("http"),
	}
	s.router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "Status: UP")
	}).Methods(http.MethodGet)
	return s
}

// Start serves until Stop is called.
func (s *server) Start() error {
	s.srv.Handler = s.router
	s.log.Info("Starting server on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) // Set timeout for graceful shutdown
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *server) RegisterEndpoint(endpoints ...Endpoint) {
	for _, endpoint := range endpoints {
		s.router.HandleFunc(endpoint.Path(), endpoint.Handler()).Methods(endpoint.Methods()...)
		s.log.Info("Registered %v %s", endpoint.Methods(), endpoint.Path())
	}
}

func (s *server) Handler() http.Handler {
	return s.router
}
