package query

import "github.com/relatedb/s4/internal/store"

// Condition is any node in a condition tree: a Filter leaf or a Combiner
// of other Conditions (spec.md §4.3).
type Condition interface {
	Monotonic() bool
	evalEntry(entry *store.Entry) bool
}

// Match reports whether entry satisfies the condition (spec.md §4.3
// "entry-evaluation algorithm").
func Match(c Condition, entry *store.Entry) bool {
	return c.evalEntry(entry)
}

// evalEntry implements spec.md §4.3's evaluation algorithm: a filter
// whose key equals the entry's own key_a, or that is PARENT-flagged with
// key==None (DESIGN.md Open Question 1), addresses entry.val_a directly.
// Otherwise it evaluates the attribute-tuple group under its key using
// the best-priority rule (evalGroup); key==None without PARENT loops
// over every distinct key_b group, any match winning.
func (f *Filter) evalEntry(entry *store.Entry) bool {
	if f.key == entry.KeyA || (f.parent && f.key == nil) {
		return f.evalValue(entry.ValA)
	}

	if f.key == nil {
		for _, group := range entry.Groups() {
			if evalGroup(f, group) {
				return true
			}
		}
		return false
	}

	group := entry.Group(f.key)
	if group == nil {
		return false
	}
	return evalGroup(f, group)
}
