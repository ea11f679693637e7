package query

import "github.com/relatedb/s4/internal/store"

// candidates implements spec.md §4.3's condition-driven entry selection:
// pick the cheapest index path the top-level condition admits, then let
// the caller apply the full condition to whatever candidate set comes
// back. A Combiner never drives index selection here — only a bare
// top-level Filter does; And/Or/Not conditions fall back to the full
// union scan, which remains correct (just unindexed).
func candidates(s *store.Store, cond Condition) []*store.Entry {
	f, ok := cond.(*Filter)
	if !ok {
		return unionScan(s)
	}

	if f.parent && f.key != nil {
		aIdx, ok := s.LookupAIndex(f.key)
		if !ok {
			return nil
		}
		if f.Monotonic() && f.kind == Equal {
			if e, ok := aIdx.Lookup(f.operand); ok {
				return []*store.Entry{e}
			}
			return nil
		}
		return aIdx.All()
	}

	if f.key != nil && s.IsDeclared(f.key) {
		bIdx, ok := s.BIndexFor(f.key)
		if ok {
			if f.kind == Equal {
				return bIdx.Lookup(f.operand)
			}
			return bIdx.All()
		}
	}

	return unionScan(s)
}

func unionScan(s *store.Store) []*store.Entry {
	var out []*store.Entry
	for _, idx := range s.AllAIndices() {
		out = append(out, idx.All()...)
	}
	return out
}

// Find evaluates cond over the store's entries, using whatever index
// candidates() selects, and returns every entry that matches.
func Find(s *store.Store, cond Condition) []*store.Entry {
	var out []*store.Entry
	for _, e := range candidates(s, cond) {
		if Match(cond, e) {
			out = append(out, e)
		}
	}
	return out
}

// FindAndFetch evaluates cond as Find does, then projects each matching
// entry through spec, returning one Row per match (spec.md §4.3's
// "Result construction").
func FindAndFetch(s *store.Store, cond Condition, spec *FetchSpec) []Row {
	entries := Find(s, cond)
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = Fetch(spec, e)
	}
	return rows
}
