package ddd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customersURL = "http://customers/events"

func byName(p *profile) string { return p.Name }

func newProfileFactory(local EventSource, remote RemoteSource) *Factory[*profile] {
	return NewFactory(local, remote, newProfile).WithLogger(quietLogger())
}

func TestFactory_Resolve_Empty(t *testing.T) {
	local := newEventStore()
	result, err := newProfileFactory(local, nil).Selecting(byLinkedID).Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, local.asked())
}

func TestFactory_Resolve_LocalAndRemote(t *testing.T) {
	local := newEventStore(NewEvent("e1", "f1", Update, PayloadOf("name", "local"), at(1)))
	customers := newEventStore(NewEvent("r1", "c1", Update, PayloadOf("score", 5), at(2)))

	p := profileWithID("p1")
	p.LinkedID = "f1"
	p.Tags = []string{"c1"}

	factory := newProfileFactory(local, remotes{customersURL: customers}.source).
		Selecting(byLinkedID).
		Requesting(NewEventRequester[*profile](customersURL).WithListSelectors(byTags))

	result, err := factory.Resolve(context.Background(), []*profile{p})
	require.NoError(t, err)

	combined := CombineByProjection(result)
	require.Len(t, combined["p1"], 2)
	assert.Equal(t, [][]string{{"f1"}}, local.asked())
	assert.Equal(t, [][]string{{"c1"}}, customers.asked())
}

func TestFactory_Resolve_NoDuplicateQuery(t *testing.T) {
	local := newEventStore(NewEvent("e1", "f1", Create, PayloadOf("name", "f1"), at(1)))
	customers := newEventStore(NewEvent("r1", "c1", Create, PayloadOf("linkedId", "c1"), at(1)))

	p := profileWithID("p1")
	p.LinkedID = "f1"
	p.Tags = []string{"c1"}

	factory := newProfileFactory(local, remotes{customersURL: customers}.source).
		Selecting(byLinkedID).
		DependentSelecting(byName).
		Requesting(NewEventRequester[*profile](customersURL).WithListSelectors(byTags)).
		DependentRequesting(NewEventRequester(customersURL, byLinkedID))

	result, err := factory.Resolve(context.Background(), []*profile{p})
	require.NoError(t, err)

	assert.Len(t, result, 2)
	assert.Equal(t, [][]string{{"f1"}}, local.asked())
	assert.Equal(t, [][]string{{"c1"}}, customers.asked())
}

func TestFactory_Resolve_DependentRemoteAsksForIDsMissingLocally(t *testing.T) {
	local := newEventStore()
	customers := newEventStore(NewEvent("r1", "c1", Create, PayloadOf("name", "remote"), at(1)))

	p := profileWithID("p1")
	p.LinkedID = "c1"

	result, err := newProfileFactory(local, remotes{customersURL: customers}.source).
		Selecting(byLinkedID).
		DependentSelecting(byLinkedID).
		DependentRequesting(NewEventRequester(customersURL, byLinkedID)).
		Resolve(context.Background(), []*profile{p})
	require.NoError(t, err)

	require.Len(t, result, 1)
	assert.Equal(t, "r1", result[0].Events[0].ID())
	assert.Equal(t, [][]string{{"c1"}}, local.asked())
	assert.Equal(t, [][]string{{"c1"}}, customers.asked())
}

func TestFactory_Resolve_SelectorIsolation(t *testing.T) {
	local := newEventStore(
		NewEvent("e1", "f1", Create, PayloadOf("name", "n1"), at(1)),
		NewEvent("e2", "f2", Create, PayloadOf("name", "n2"), at(1)),
		NewEvent("e3", "n1", Update, PayloadOf("score", 1), at(2)),
		NewEvent("e4", "n2", Update, PayloadOf("score", 2), at(2)),
	)
	p1 := profileWithID("p1")
	p1.LinkedID = "f1"
	p2 := profileWithID("p2")
	p2.LinkedID = "f2"

	broken := func(p *profile) string {
		if p.Id == "p1" {
			panic("field not populated")
		}
		return ""
	}
	brokenList := func(*profile) []string { panic("always") }

	factory := newProfileFactory(local, nil).
		Selecting(byLinkedID).
		DependentSelecting(broken, byName).
		DependentSelectingLists(brokenList)

	result, err := factory.Resolve(context.Background(), []*profile{p1, p2})
	require.NoError(t, err)

	combined := CombineByProjection(result)
	require.Len(t, combined["p1"], 2)
	require.Len(t, combined["p2"], 2)
	assert.Equal(t, "e3", combined["p1"][1].ID())
	assert.Equal(t, "e4", combined["p2"][1].ID())
	assert.Equal(t, [][]string{{"f1", "f2"}, {"n1", "n2"}}, local.asked())
}

func TestFactory_Resolve_DependentListSelectors(t *testing.T) {
	local := newEventStore(
		NewEvent("e1", "f1", Create, PayloadOf("tags", []any{"t1", "t2"}), at(1)),
		NewEvent("e2", "t1", Update, PayloadOf("score", 1), at(2)),
		NewEvent("e3", "t2", Update, PayloadOf("score", 2), at(3)),
	)
	p := profileWithID("p1")
	p.LinkedID = "f1"

	factory := newProfileFactory(local, nil).
		Selecting(byLinkedID).
		DependentSelectingLists(byTags)

	result, err := factory.Resolve(context.Background(), []*profile{p})
	require.NoError(t, err)
	assert.Len(t, CombineByProjection(result)["p1"], 3)
	assert.Empty(t, p.Tags)
}

func TestFactory_Resolve_TargetsUntouched(t *testing.T) {
	local := newEventStore(
		NewEvent("e1", "f1", Create, PayloadOf("name", "n1"), at(1)),
		NewEvent("e2", "n1", Create, PayloadOf("score", 9), at(1)),
	)
	p := profileWithID("p1")
	p.LinkedID = "f1"

	_, err := newProfileFactory(local, nil).
		Selecting(byLinkedID).
		DependentSelecting(byName).
		Resolve(context.Background(), []*profile{p})
	require.NoError(t, err)

	assert.Empty(t, p.Name)
	assert.Zero(t, p.Score)
	assert.False(t, p.Initialized())
}

func TestFactory_Resolve_NoRemoteSource(t *testing.T) {
	p := profileWithID("p1")
	p.LinkedID = "f1"

	_, err := newProfileFactory(newEventStore(), nil).
		Requesting(NewEventRequester(customersURL, byLinkedID)).
		Resolve(context.Background(), []*profile{p})
	assert.ErrorIs(t, err, ErrNoRemoteSource)
}

func TestFactory_Resolve_RemoteFailureFailsCall(t *testing.T) {
	customers := newEventStore(NewEvent("r1", "f1", Create, nil, at(1)))
	p := profileWithID("p1")
	p.LinkedID = "f1"

	_, err := newProfileFactory(newEventStore(), remotes{customersURL: customers}.source).
		Requesting(
			NewEventRequester(customersURL, byLinkedID),
			NewEventRequester("http://billing/events", byLinkedID),
		).
		Resolve(context.Background(), []*profile{p})
	assert.ErrorContains(t, err, "remote events from http://billing/events")
	assert.ErrorContains(t, err, "unreachable")
}

func TestFactory_Resolve_RemoteCallsRunConcurrently(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	both := make(chan struct{})
	go func() {
		wg.Wait()
		close(both)
	}()

	remote := func(url string) EventSource {
		return EventSourceFunc(func(ctx context.Context, ids []string, _ *time.Time) ([]Event, error) {
			wg.Done()
			select {
			case <-both:
				return []Event{NewEvent(url, ids[0], Create, nil, at(1))}, nil
			case <-time.After(2 * time.Second):
				return nil, errors.New("remote calls were issued sequentially")
			}
		})
	}

	p := profileWithID("p1")
	p.LinkedID = "f1"
	result, err := newProfileFactory(newEventStore(), remote).
		Requesting(
			NewEventRequester("http://a/events", byLinkedID),
			NewEventRequester("http://b/events", byLinkedID),
		).
		Resolve(context.Background(), []*profile{p})
	require.NoError(t, err)
	assert.Len(t, result, 2)
}

func TestFactory_AsOf(t *testing.T) {
	local := newEventStore(
		NewEvent("e1", "f1", Create, nil, at(1)),
		NewEvent("e2", "f1", Update, nil, at(10)),
	)
	p := profileWithID("p1")
	p.LinkedID = "f1"

	factory := newProfileFactory(local, nil).Selecting(byLinkedID)
	historic := factory.AsOf(at(5))

	result, err := historic.Resolve(context.Background(), []*profile{p})
	require.NoError(t, err)
	assert.Len(t, CombineByProjection(result)["p1"], 1)

	result, err = factory.Resolve(context.Background(), []*profile{p})
	require.NoError(t, err)
	assert.Len(t, CombineByProjection(result)["p1"], 2)
}

func TestFactory_Provision(t *testing.T) {
	p := profileWithID("p1")
	factory := newProfileFactory(newEventStore(), nil)

	provisional := factory.Provision([]*profile{p}, []ExternalDataEvent{
		{ProjectionID: "p1", Events: []Event{NewEvent("e1", "f1", Create, PayloadOf("name", "X"), at(1))}},
		{ProjectionID: "other", Events: []Event{NewEvent("e2", "f2", Create, PayloadOf("name", "Y"), at(1))}},
	})
	require.Len(t, provisional, 1)
	assert.Equal(t, "X", provisional[0].Name)
	assert.Equal(t, "p1", provisional[0].Id)
	assert.Empty(t, p.Name)
}
