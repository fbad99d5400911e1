package ddd

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Factory finds every event, local or remote, needed to materialize a batch
// of projections. Some foreign ids are only known once a first round of
// events has been applied; dependent selectors cover those in a second round.
type Factory[P Projection] struct {
	local         EventSource
	remote        RemoteSource
	newProjection func() P
	asOf          *time.Time
	log           *Logger

	selectors     []IDSelector[P]
	listSelectors []IDsSelector[P]
	requesters    []*EventRequester[P]

	dependentSelectors     []IDSelector[P]
	dependentListSelectors []IDsSelector[P]
	dependentRequesters    []*EventRequester[P]
}

// NewFactory creates a factory reading this service's events from local and
// other services' events through remote. remote may be nil when no requesters
// are configured.
func NewFactory[P Projection](local EventSource, remote RemoteSource, newProjection func() P) *Factory[P] {
	return &Factory[P]{
		local:         local,
		remote:        remote,
		newProjection: newProjection,
		log:           NewLogger().Named("factory"),
	}
}

func (f *Factory[P]) WithLogger(log *Logger) *Factory[P] {
	f.log = log.Named("factory")
	return f
}

// Selecting adds same-service selectors used in the first round.
func (f *Factory[P]) Selecting(selectors ...IDSelector[P]) *Factory[P] {
	f.selectors = append(f.selectors, selectors...)
	return f
}

func (f *Factory[P]) SelectingLists(selectors ...IDsSelector[P]) *Factory[P] {
	f.listSelectors = append(f.listSelectors, selectors...)
	return f
}

// Requesting adds remote requesters used in the first round.
func (f *Factory[P]) Requesting(requesters ...*EventRequester[P]) *Factory[P] {
	f.requesters = append(f.requesters, requesters...)
	return f
}

// DependentSelecting adds same-service selectors evaluated against the
// projection after first round events are applied.
func (f *Factory[P]) DependentSelecting(selectors ...IDSelector[P]) *Factory[P] {
	f.dependentSelectors = append(f.dependentSelectors, selectors...)
	return f
}

func (f *Factory[P]) DependentSelectingLists(selectors ...IDsSelector[P]) *Factory[P] {
	f.dependentListSelectors = append(f.dependentListSelectors, selectors...)
	return f
}

func (f *Factory[P]) DependentRequesting(requesters ...*EventRequester[P]) *Factory[P] {
	f.dependentRequesters = append(f.dependentRequesters, requesters...)
	return f
}

// AsOf returns a copy of the factory that ignores events after t.
func (f *Factory[P]) AsOf(t time.Time) *Factory[P] {
	c := *f
	at := t.UTC()
	c.asOf = &at
	return &c
}

func (f *Factory[P]) hasDependents() bool {
	return len(f.dependentSelectors) > 0 ||
		len(f.dependentListSelectors) > 0 ||
		len(f.dependentRequesters) > 0
}

// Resolve returns the correlations for targets from both rounds. targets are
// never modified. Any remote failure fails the whole call.
func (f *Factory[P]) Resolve(ctx context.Context, targets []P) ([]ExternalDataEvent, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	first, askedLocally, err := f.resolveIndependent(ctx, targets)
	if err != nil {
		return nil, err
	}
	resolved := aggregateIDsOf(first)
	f.log.Debug("first round resolved %d correlations over %d aggregates", len(first), len(resolved))

	if !f.hasDependents() {
		return first, nil
	}

	second, err := f.resolveDependent(ctx, targets, first, resolved, askedLocally)
	if err != nil {
		return nil, err
	}
	f.log.Debug("dependent round resolved %d correlations", len(second))

	return append(first, second...), nil
}

// resolveIndependent runs the local lookup and every remote requester
// concurrently. It also returns the ids it asked the local source about.
func (f *Factory[P]) resolveIndependent(ctx context.Context, targets []P) ([]ExternalDataEvent, map[string]bool, error) {
	selectors := append(append([]IDSelector[P](nil), f.selectors...), ExpandSelectors(targets, f.listSelectors...)...)

	g, gctx := errgroup.WithContext(ctx)

	var local []ExternalDataEvent
	g.Go(func() error {
		var err error
		local, err = Correlate(gctx, f.local, targets, f.asOf, selectors...)
		if err != nil {
			return fmt.Errorf("local events: %w", err)
		}
		return nil
	})

	remote := make([][]ExternalDataEvent, len(f.requesters))
	for i, r := range f.requesters {
		g.Go(func() error {
			var err error
			remote[i], err = f.correlateRemote(gctx, r, targets, nil)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	result := local
	for _, r := range remote {
		result = append(result, r...)
	}

	askedLocally := make(map[string]bool)
	for _, target := range targets {
		for _, sel := range selectors {
			if id := sel(target); !IsEmptyID(id) {
				askedLocally[id] = true
			}
		}
	}
	return result, askedLocally, nil
}

// resolveDependent skips ids whose events the first round already returned.
// The local lookup also skips ids the local source was already asked about;
// remote requesters still ask for those, since another service may own them.
func (f *Factory[P]) resolveDependent(ctx context.Context, targets []P, first []ExternalDataEvent, resolved, askedLocally map[string]bool) ([]ExternalDataEvent, error) {
	provisional := f.Provision(targets, first)

	localSkip := make(map[string]bool, len(resolved)+len(askedLocally))
	for id := range resolved {
		localSkip[id] = true
	}
	for id := range askedLocally {
		localSkip[id] = true
	}

	selectors := guardSelectors(f.dependentSelectors, f.log)
	selectors = append(selectors, ExpandSelectors(provisional, guardListSelectors(f.dependentListSelectors, f.log)...)...)
	for i, sel := range selectors {
		selectors[i] = excluding(sel, localSkip)
	}

	g, gctx := errgroup.WithContext(ctx)

	var local []ExternalDataEvent
	g.Go(func() error {
		var err error
		local, err = Correlate(gctx, f.local, provisional, f.asOf, selectors...)
		if err != nil {
			return fmt.Errorf("dependent local events: %w", err)
		}
		return nil
	})

	remote := make([][]ExternalDataEvent, len(f.dependentRequesters))
	for i, r := range f.dependentRequesters {
		g.Go(func() error {
			var err error
			remote[i], err = f.correlateRemote(gctx, r.guarded(f.log), provisional, resolved)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := local
	for _, r := range remote {
		result = append(result, r...)
	}
	return result, nil
}

func (f *Factory[P]) correlateRemote(ctx context.Context, r *EventRequester[P], targets []P, skip map[string]bool) ([]ExternalDataEvent, error) {
	if f.remote == nil {
		return nil, fmt.Errorf("requester %s: %w", r.URL(), ErrNoRemoteSource)
	}
	selectors := r.Selectors(targets)
	if skip != nil {
		for i, sel := range selectors {
			selectors[i] = excluding(sel, skip)
		}
	}
	result, err := Correlate(ctx, f.remote(r.URL()), targets, f.asOf, selectors...)
	if err != nil {
		return nil, fmt.Errorf("remote events from %s: %w", r.URL(), err)
	}
	return result, nil
}

// Provision makes throwaway copies of targets with the given correlations
// applied, so dependent selectors can read fields only those events set.
// It costs one deep copy and one replay per target; targets stay untouched.
func (f *Factory[P]) Provision(targets []P, correlations []ExternalDataEvent) []P {
	combined := CombineByProjection(correlations)
	provisional := make([]P, len(targets))
	for i, target := range targets {
		c, err := Clone(target, f.newProjection)
		if err != nil {
			f.log.Warn("provisional copy of %s is incomplete: %v", target.Base().ID(), err)
		}
		if err := ApplyAll(c, combined[target.Base().ID()]); err != nil {
			f.log.Warn("provisional apply on %s: %v", target.Base().ID(), err)
		}
		provisional[i] = c
	}
	return provisional
}
