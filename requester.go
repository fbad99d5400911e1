package ddd

// EventRequester describes which foreign ids to ask a remote service about.
type EventRequester[P Projection] struct {
	url           string
	selectors     []IDSelector[P]
	listSelectors []IDsSelector[P]
}

func NewEventRequester[P Projection](url string, selectors ...IDSelector[P]) *EventRequester[P] {
	return &EventRequester[P]{
		url:       url,
		selectors: selectors,
	}
}

// WithListSelectors returns a copy that also asks about every id in each list.
func (r *EventRequester[P]) WithListSelectors(selectors ...IDsSelector[P]) *EventRequester[P] {
	c := *r
	c.listSelectors = append(append([]IDsSelector[P](nil), r.listSelectors...), selectors...)
	return &c
}

func (r *EventRequester[P]) URL() string {
	return r.url
}

// Selectors returns the single id selectors plus the list selectors expanded
// against targets.
func (r *EventRequester[P]) Selectors(targets []P) []IDSelector[P] {
	selectors := append([]IDSelector[P](nil), r.selectors...)
	return append(selectors, ExpandSelectors(targets, r.listSelectors...)...)
}

func (r *EventRequester[P]) guarded(log *Logger) *EventRequester[P] {
	return &EventRequester[P]{
		url:           r.url,
		selectors:     guardSelectors(r.selectors, log),
		listSelectors: guardListSelectors(r.listSelectors, log),
	}
}
