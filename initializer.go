package ddd

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultBatchSize        = 1000
	DefaultConvergenceDelay = 2 * time.Second
)

// Initializer materializes projections of one type: it loads the base
// records, resolves the external events, applies them and persists the batch.
type Initializer[P Projection] struct {
	name        string
	factory     *Factory[P]
	states      StateStore
	projections ProjectionStore[P]
	local       EventSource
	sink        UndeliverableSink
	batchSize   int
	delay       time.Duration
	log         *Logger
}

func NewInitializer[P Projection](
	factory *Factory[P],
	states StateStore,
	projections ProjectionStore[P],
	local EventSource,
	sink UndeliverableSink) *Initializer[P] {
	return &Initializer[P]{
		name:        "initializer",
		factory:     factory,
		states:      states,
		projections: projections,
		local:       local,
		sink:        sink,
		batchSize:   DefaultBatchSize,
		delay:       DefaultConvergenceDelay,
		log:         NewLogger().Named("initializer"),
	}
}

func (i *Initializer[P]) WithBatchSize(size int) *Initializer[P] {
	if size > 0 {
		i.batchSize = size
	}
	return i
}

// WithConvergenceDelay sets how long a convergence pass waits before
// confirming that nothing is left to initialize.
func (i *Initializer[P]) WithConvergenceDelay(delay time.Duration) *Initializer[P] {
	i.delay = delay
	return i
}

func (i *Initializer[P]) WithLogger(log *Logger) *Initializer[P] {
	i.log = log.Named(i.name)
	return i
}

// WithName names the projection type in logs and undeliverable reports.
func (i *Initializer[P]) WithName(name string) *Initializer[P] {
	i.name = name
	i.log = i.log.Named(name)
	return i
}

func (i *Initializer[P]) Name() string {
	return i.name
}

// InitByID builds projections from the base records with the given ids and
// materializes them. Unknown ids are skipped.
func (i *Initializer[P]) InitByID(ctx context.Context, ids []string) ([]P, error) {
	records, err := i.states.Records(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load base records: %w", err)
	}

	projections := make([]P, 0, len(records))
	for _, record := range records {
		p := i.factory.newProjection()
		p.Base().Id = record.ID()
		if err := CopyFields(p.Fields(), record.Fields()); err != nil {
			i.log.Warn("base record %s copied partially: %v", record.ID(), err)
		}
		projections = append(projections, p)
	}
	return i.InitList(ctx, projections)
}

// InitList applies every event relevant to projections, marks them
// initialized and persists the whole batch. The given projections are not
// modified; the materialized copies are returned.
func (i *Initializer[P]) InitList(ctx context.Context, projections []P) ([]P, error) {
	if len(projections) == 0 {
		return nil, nil
	}

	targets := make([]P, len(projections))
	for n, p := range projections {
		c, err := Clone(p, i.factory.newProjection)
		if err != nil {
			i.log.Warn("projection %s copied partially: %v", p.Base().ID(), err)
		}
		targets[n] = c
	}

	correlations, err := i.factory.Resolve(ctx, targets)
	if err != nil {
		return nil, fmt.Errorf("resolve external events: %w", err)
	}

	combined := CombineByProjection(correlations)
	for _, t := range targets {
		if err := ApplyAll(t, combined[t.Base().ID()]); err != nil {
			i.log.Warn("projection %s: %v", t.Base().ID(), err)
		}
		t.Base().MarkInitialized()
	}

	if err := i.projections.BulkUpsert(ctx, targets); err != nil {
		return targets, fmt.Errorf("persist %d projections: %w", len(targets), err)
	}
	i.log.Info("initialized %d projections", len(targets))
	return targets, nil
}

// RebuildContainer drops every stored projection and materializes all active
// base records again, one batch of ids at a time. It returns how many
// projections were rebuilt.
func (i *Initializer[P]) RebuildContainer(ctx context.Context) (int, error) {
	if err := i.projections.Reset(ctx); err != nil {
		return 0, fmt.Errorf("reset projections: %w", err)
	}

	total := 0
	for page := 0; ; page++ {
		ids, err := i.states.ActiveIDs(ctx, page, i.batchSize)
		if err != nil {
			return total, fmt.Errorf("list active ids page %d: %w", page, err)
		}
		if len(ids) == 0 {
			break
		}

		projections, err := i.ownProjections(ctx, ids)
		if err != nil {
			return total, err
		}
		if _, err := i.InitList(ctx, projections); err != nil {
			return total, err
		}
		total += len(projections)
		i.log.Info("rebuilt page %d, %d projections so far", page, total)

		if len(ids) < i.batchSize {
			break
		}
	}
	return total, nil
}

// ownProjections builds fresh projections for ids from this service's own
// events only.
func (i *Initializer[P]) ownProjections(ctx context.Context, ids []string) ([]P, error) {
	events, err := i.local.EventsOf(ctx, ids, i.factory.asOf)
	if err != nil {
		return nil, fmt.Errorf("load own events of %d aggregates: %w", len(ids), err)
	}
	groups := groupByAggregate(events)

	projections := make([]P, len(ids))
	for n, id := range ids {
		p := i.factory.newProjection()
		p.Base().Id = id
		if err := ApplyAll(p, groups[id]); err != nil {
			i.log.Warn("projection %s: %v", id, err)
		}
		projections[n] = p
	}
	return projections, nil
}

// ConvergeUninitialized keeps initializing stored projections that are not
// yet initialized until none are left or maxIterations attempts were made.
// When the attempts run out the remaining ids are reported to the sink and
// converged is false; that is not an error.
func (i *Initializer[P]) ConvergeUninitialized(ctx context.Context, maxIterations int) (bool, error) {
	for attempt := 1; attempt <= maxIterations; attempt++ {
		pending, err := i.pending(ctx)
		if err != nil {
			return false, err
		}
		if len(pending) == 0 {
			return true, nil
		}

		i.log.Debug("convergence attempt %d of %d: %d pending", attempt, maxIterations, len(pending))
		if _, err := i.InitList(ctx, pending); err != nil {
			return false, fmt.Errorf("convergence attempt %d: %w", attempt, err)
		}
	}

	pending, err := i.pending(ctx)
	if err != nil {
		return false, err
	}
	if len(pending) == 0 {
		return true, nil
	}

	ids := make([]string, len(pending))
	for n, p := range pending {
		ids[n] = p.Base().ID()
	}
	i.log.Warn("%d projections still uninitialized after %d attempts", len(ids), maxIterations)

	report := Undelivered{
		Source:        i.name,
		Message:       fmt.Sprintf("projections still uninitialized after %d attempts", maxIterations),
		ProjectionIDs: ids,
		ReportedAt:    time.Now().UTC(),
	}
	if err := i.sink.Undeliverable(ctx, report); err != nil {
		return false, fmt.Errorf("report unconverged projections: %w", err)
	}
	return false, nil
}

// pending returns the next batch of uninitialized projections. An empty
// answer is confirmed once more after the convergence delay, since writes in
// flight may not be visible yet.
func (i *Initializer[P]) pending(ctx context.Context) ([]P, error) {
	pending, err := i.projections.Uninitialized(ctx, i.batchSize)
	if err != nil {
		return nil, fmt.Errorf("query uninitialized projections: %w", err)
	}
	if len(pending) > 0 {
		return pending, nil
	}

	timer := time.NewTimer(i.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	pending, err = i.projections.Uninitialized(ctx, i.batchSize)
	if err != nil {
		return nil, fmt.Errorf("query uninitialized projections: %w", err)
	}
	return pending, nil
}
