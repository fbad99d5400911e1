package ddd

// IDSelector extracts one optional foreign id from a projection. An empty
// id means "nothing to ask about".
type IDSelector[P Projection] func(P) string

// IDsSelector extracts any number of foreign ids from a projection.
type IDsSelector[P Projection] func(P) []string

// ExpandSelectors turns list selectors into equivalent single id selectors by
// evaluating each list once against every target up front: the i-th
// generated selector yields the i-th id the list produced for a target.
// Projections that were not among the targets yield no id.
func ExpandSelectors[P Projection](targets []P, lists ...IDsSelector[P]) []IDSelector[P] {
	var selectors []IDSelector[P]
	for _, list := range lists {
		evaluated := make(map[string][]string, len(targets))
		width := 0
		for _, t := range targets {
			ids := list(t)
			evaluated[t.Base().ID()] = ids
			width = max(width, len(ids))
		}
		for i := range width {
			selectors = append(selectors, func(p P) string {
				ids := evaluated[p.Base().ID()]
				if i < len(ids) {
					return ids[i]
				}
				return ""
			})
		}
	}
	return selectors
}

// guardSelector makes a panicking selector yield no id.
func guardSelector[P Projection](sel IDSelector[P], log *Logger) IDSelector[P] {
	return func(p P) (id string) {
		defer func() {
			if r := recover(); r != nil {
				log.Warn("selector skipped for projection %s: %v", p.Base().ID(), r)
				id = ""
			}
		}()
		return sel(p)
	}
}

func guardListSelector[P Projection](sel IDsSelector[P], log *Logger) IDsSelector[P] {
	return func(p P) (ids []string) {
		defer func() {
			if r := recover(); r != nil {
				log.Warn("list selector skipped for projection %s: %v", p.Base().ID(), r)
				ids = nil
			}
		}()
		return sel(p)
	}
}

func guardSelectors[P Projection](selectors []IDSelector[P], log *Logger) []IDSelector[P] {
	guarded := make([]IDSelector[P], len(selectors))
	for i, sel := range selectors {
		guarded[i] = guardSelector(sel, log)
	}
	return guarded
}

func guardListSelectors[P Projection](selectors []IDsSelector[P], log *Logger) []IDsSelector[P] {
	guarded := make([]IDsSelector[P], len(selectors))
	for i, sel := range selectors {
		guarded[i] = guardListSelector(sel, log)
	}
	return guarded
}

// excluding wraps sel so that ids in skip are treated as absent.
func excluding[P Projection](sel IDSelector[P], skip map[string]bool) IDSelector[P] {
	return func(p P) string {
		id := sel(p)
		if skip[id] {
			return ""
		}
		return id
	}
}
