package ddd

import (
	"context"
	"fmt"
	"time"
)

// ExternalDataEvent joins a projection id with the events relevant to it.
type ExternalDataEvent struct {
	ProjectionID string
	Events       []Event
}

// Correlate asks source once for the events of every foreign id the selectors
// produce for targets, and returns them grouped per projection. Selectors
// that produce no id, or an id without events, contribute nothing.
func Correlate[P Projection](ctx context.Context, source EventSource, targets []P, asOf *time.Time, selectors ...IDSelector[P]) ([]ExternalDataEvent, error) {
	type pair struct {
		projectionID string
		foreignID    string
	}

	var pairs []pair
	var ids []string
	requested := make(map[string]bool)
	for _, target := range targets {
		for _, sel := range selectors {
			id := sel(target)
			if IsEmptyID(id) {
				continue
			}
			pairs = append(pairs, pair{target.Base().ID(), id})
			if !requested[id] {
				requested[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	events, err := source.EventsOf(ctx, ids, asOf)
	if err != nil {
		return nil, fmt.Errorf("query events of %d aggregates: %w", len(ids), err)
	}

	groups := groupByAggregate(events)
	for _, group := range groups {
		SortEvents(group)
	}

	var result []ExternalDataEvent
	emitted := make(map[pair]bool)
	for _, p := range pairs {
		group := groups[p.foreignID]
		if len(group) == 0 || emitted[p] {
			continue
		}
		emitted[p] = true
		result = append(result, ExternalDataEvent{
			ProjectionID: p.projectionID,
			Events:       append([]Event(nil), group...),
		})
	}
	return result, nil
}

// CombineByProjection concatenates the event lists of correlations that name
// the same projection.
func CombineByProjection(correlations []ExternalDataEvent) map[string][]Event {
	combined := make(map[string][]Event)
	for _, c := range correlations {
		combined[c.ProjectionID] = append(combined[c.ProjectionID], c.Events...)
	}
	return combined
}

func aggregateIDsOf(correlations []ExternalDataEvent) map[string]bool {
	ids := make(map[string]bool)
	for _, c := range correlations {
		for _, e := range c.Events {
			ids[e.AggregateRootID()] = true
		}
	}
	return ids
}
