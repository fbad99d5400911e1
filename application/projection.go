package application

import (
	"context"

	ddd "github.com/paulvitic/ddd-projector"
	"github.com/paulvitic/ddd-projector/http"
	"github.com/paulvitic/ddd-projector/inMemory"
	"github.com/paulvitic/ddd-projector/mongoDb"
)

// Projection describes one projection type a service materializes.
type Projection[P ddd.Projection] struct {
	// Name is the route prefix, the collection and the report source.
	Name string
	// StateCollection holds the base records the projections start from.
	StateCollection string
	New             func() P
	// Configure adds selectors and requesters to the factory.
	Configure func(*ddd.Factory[P]) *ddd.Factory[P]
}

// Register wires a projection type into s: its store, factory, initializer,
// endpoints under /{name} and a convergence job.
func Register[P ddd.Projection](ctx context.Context, s *Server, projection Projection[P]) (*ddd.Initializer[P], error) {
	store, err := projectionStore(ctx, s, projection)
	if err != nil {
		return nil, err
	}

	factory := ddd.NewFactory(s.eventLog, s.remote, projection.New).WithLogger(s.log)
	if projection.Configure != nil {
		factory = projection.Configure(factory)
	}

	initializer := ddd.NewInitializer(factory, s.StateStore(projection.StateCollection), store, s.eventLog, s.sink).
		WithLogger(s.log).
		WithName(projection.Name).
		WithBatchSize(s.settings.BatchSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.httpServer.RegisterEndpoint(http.NewProjectionEndpoints("/"+projection.Name, initializer, store)...)
	s.jobs = append(s.jobs, ddd.NewConvergenceJob(projection.Name, s.settings.Convergence, initializer))
	s.redeliver[projection.Name] = func(ctx context.Context, ids []string) error {
		_, err := initializer.InitByID(ctx, ids)
		return err
	}
	s.log.Info("Registered projection %s", projection.Name)
	return initializer, nil
}

type projectionStoreOf[P ddd.Projection] interface {
	ddd.ProjectionStore[P]
	http.ProjectionReader[P]
}

func projectionStore[P ddd.Projection](ctx context.Context, s *Server, projection Projection[P]) (projectionStoreOf[P], error) {
	if s.db != nil {
		store, err := mongoDb.NewProjectionStore(ctx, s.db, projection.Name, projection.New)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return inMemory.NewProjectionStore(projection.New), nil
}
