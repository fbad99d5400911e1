package ddd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func byTags(p *profile) []string { return p.Tags }

func TestExpandSelectors(t *testing.T) {
	p1 := profileWithID("p1")
	p1.Tags = []string{"t1", "t2", "t3"}
	p2 := profileWithID("p2")
	p2.Tags = []string{"t4"}
	targets := []*profile{p1, p2}

	selectors := ExpandSelectors(targets, byTags)
	assert.Len(t, selectors, 3)

	var fromP1, fromP2 []string
	for _, sel := range selectors {
		fromP1 = append(fromP1, sel(p1))
		fromP2 = append(fromP2, sel(p2))
	}
	assert.Equal(t, []string{"t1", "t2", "t3"}, fromP1)
	assert.Equal(t, []string{"t4", "", ""}, fromP2)

	assert.Empty(t, ExpandSelectors(targets))
	assert.Empty(t, ExpandSelectors([]*profile{profileWithID("p3")}, byTags))
}

func TestExpandSelectors_EvaluatesEachListOnce(t *testing.T) {
	p1 := profileWithID("p1")
	p1.Tags = []string{"t1", "t2", "t3"}
	p2 := profileWithID("p2")
	p2.Tags = []string{"t4"}

	calls := 0
	counting := func(p *profile) []string {
		calls++
		return p.Tags
	}

	selectors := ExpandSelectors([]*profile{p1, p2}, counting)
	for _, sel := range selectors {
		sel(p1)
		sel(p2)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, selectors[0](profileWithID("p3")))
}

func TestGuardSelector(t *testing.T) {
	log := quietLogger()
	panicking := guardSelector(func(*profile) string { panic("not yet") }, log)
	assert.Empty(t, panicking(profileWithID("p1")))

	working := guardSelector(byLinkedID, log)
	p := profileWithID("p1")
	p.LinkedID = "f1"
	assert.Equal(t, "f1", working(p))

	panickingList := guardListSelector(func(*profile) []string { panic("not yet") }, log)
	assert.Nil(t, panickingList(p))
}

func TestExcluding(t *testing.T) {
	p := profileWithID("p1")
	p.LinkedID = "f1"

	assert.Empty(t, excluding(byLinkedID, map[string]bool{"f1": true})(p))
	assert.Equal(t, "f1", excluding(byLinkedID, map[string]bool{"f2": true})(p))
	assert.Equal(t, "f1", excluding(byLinkedID, nil)(p))
}

func TestEventRequester_Selectors(t *testing.T) {
	p := profileWithID("p1")
	p.LinkedID = "f1"
	p.Tags = []string{"t1", "t2"}

	requester := NewEventRequester("http://remote/events", byLinkedID)
	withLists := requester.WithListSelectors(byTags)

	assert.Equal(t, "http://remote/events", withLists.URL())
	assert.Len(t, requester.Selectors([]*profile{p}), 1)

	var ids []string
	for _, sel := range withLists.Selectors([]*profile{p}) {
		ids = append(ids, sel(p))
	}
	assert.Equal(t, []string{"f1", "t1", "t2"}, ids)

	guarded := NewEventRequester("u", func(*profile) string { panic("boom") }).guarded(quietLogger())
	assert.Empty(t, guarded.Selectors([]*profile{p})[0](p))
}
