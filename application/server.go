package application

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os/signal"
	"sync"
	"syscall"

	ddd "github.com/paulvitic/ddd-projector"
	"github.com/paulvitic/ddd-projector/amqp"
	"github.com/paulvitic/ddd-projector/http"
	"github.com/paulvitic/ddd-projector/inMemory"
	"github.com/paulvitic/ddd-projector/mongoDb"
	"github.com/paulvitic/ddd-projector/sqlite"
	"go.mongodb.org/mongo-driver/mongo"
)

// Server hosts the projections of one service: its event log, the endpoints
// other services read events from, and one initializer per projection type.
type Server struct {
	settings   *Settings
	log        *ddd.Logger
	httpServer http.Server
	eventLog   ddd.EventLog
	remote     ddd.RemoteSource
	sink       ddd.UndeliverableSink
	db         *mongo.Database
	states     map[string]*inMemory.StateStore
	jobs       []ddd.Job
	redeliver  map[string]func(ctx context.Context, ids []string) error
	closers    []func() error
	mu         sync.Mutex
}

// NewServer opens the backends named by settings. MongoDB is used when a URI
// is configured, memory otherwise; undeliverable reports go to RabbitMQ when
// a broker is configured and to the log otherwise.
func NewServer(ctx context.Context, settings *Settings) (*Server, error) {
	if settings == nil {
		settings = DefaultSettings()
	}
	log := ddd.NewLogger().Named(settings.Name)
	log.SetDebug(settings.Debug)

	s := &Server{
		settings:   settings,
		log:        log,
		httpServer: http.NewServer(":" + settings.Port),
		remote:     http.RemoteSource(&nethttp.Client{Timeout: settings.remoteTimeout()}),
		states:     make(map[string]*inMemory.StateStore),
		redeliver:  make(map[string]func(ctx context.Context, ids []string) error),
	}

	if settings.Mongo.URI != "" {
		client, err := mongoDb.Connect(ctx, settings.Mongo.URI)
		if err != nil {
			return nil, err
		}
		s.db = client.Database(settings.Mongo.Database)
		s.closers = append(s.closers, func() error { return client.Disconnect(context.Background()) })
		log.Info("Using MongoDB database %s", settings.Mongo.Database)
	}

	eventLog, err := s.openEventLog(ctx)
	if err != nil {
		_ = s.close()
		return nil, err
	}
	s.eventLog = eventLog

	if settings.AMQP.Enabled() {
		sink, err := amqp.NewDeadLetterSink(ctx, settings.AMQP)
		if err != nil {
			_ = s.close()
			return nil, err
		}
		s.sink = sink
		s.closers = append(s.closers, sink.Close)
	} else {
		s.sink = &logSink{log: log}
	}

	s.httpServer.RegisterEndpoint(http.NewAppendEndpoint("/events/append", s.eventLog))
	s.httpServer.RegisterEndpoint(http.NewEventsEndpoints("/events", s.eventLog)...)
	return s, nil
}

func (s *Server) openEventLog(ctx context.Context) (ddd.EventLog, error) {
	switch s.settings.EventLog.Driver {
	case MongoDriver:
		if s.db == nil {
			return nil, errors.New("mongo event log needs a mongo uri")
		}
		return mongoDb.NewEventLog(ctx, s.db, s.settings.EventLog.Collection)
	case SqliteDriver:
		eventLog, err := sqlite.Open(ctx, s.settings.EventLog.Path)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, eventLog.Close)
		return eventLog, nil
	case MemoryDriver:
		return inMemory.NewEventLog(), nil
	default:
		return nil, fmt.Errorf("unknown event log driver %q", s.settings.EventLog.Driver)
	}
}

func (s *Server) EventLog() ddd.EventLog {
	return s.eventLog
}

func (s *Server) Settings() *Settings {
	return s.settings
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() nethttp.Handler {
	return s.httpServer.Handler()
}

// StateStore returns the store of base records kept in collection. Without
// MongoDB the in-memory store is returned, so it can be seeded.
func (s *Server) StateStore(collection string) ddd.StateStore {
	if s.db != nil {
		return mongoDb.NewStateStore(s.db, collection)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.states[collection]
	if !ok {
		store = inMemory.NewStateStore()
		s.states[collection] = store
	}
	return store
}

// Run serves until ctx is done, then stops every job and closes the backends.
// Projections registered after Run started get no convergence job.
func (s *Server) Run(ctx context.Context) error {
	for _, job := range s.registeredJobs() {
		if err := job.OnStart(); err != nil {
			return err
		}
	}

	if s.settings.AMQP.Enabled() && s.redeliverable() {
		consumer, err := amqp.NewRedeliveryConsumer(ctx, s.settings.AMQP, s.redeliverReport)
		if err != nil {
			return err
		}
		if err := consumer.OnStart(); err != nil {
			return err
		}
		s.mu.Lock()
		s.jobs = append(s.jobs, consumer)
		s.mu.Unlock()
	}

	errs := make(chan error, 1)
	go func() { errs <- s.httpServer.Start() }()

	var err error
	select {
	case err = <-errs:
	case <-ctx.Done():
		s.log.Info("Exiting application")
		err = s.httpServer.Stop()
	}

	for _, job := range s.registeredJobs() {
		if stopErr := job.OnDestroy(); stopErr != nil {
			s.log.Warn("Stopping job: %v", stopErr)
		}
	}
	return errors.Join(err, s.close())
}

// Start runs until the process is interrupted.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

func (s *Server) registeredJobs() []ddd.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ddd.Job(nil), s.jobs...)
}

func (s *Server) redeliverable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redeliver) > 0
}

func (s *Server) redeliverReport(ctx context.Context, report ddd.Undelivered) error {
	s.mu.Lock()
	retry, ok := s.redeliver[report.Source]
	s.mu.Unlock()
	if !ok {
		s.log.Warn("No projection named %s to redeliver to", report.Source)
		return nil
	}
	return retry(ctx, report.ProjectionIDs)
}

func (s *Server) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// logSink reports undeliverable work to the log only.
type logSink struct {
	log *ddd.Logger
}

func (l *logSink) Undeliverable(_ context.Context, report ddd.Undelivered) error {
	l.log.Error("Undeliverable %s: %s %v", report.Source, report.Message, report.ProjectionIDs)
	return nil
}
