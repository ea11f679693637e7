// Package store implements the entry store and its two index kinds
// (spec.md §3, §4.2, components C3/C4): Entry (an identifying pair plus a
// sorted multiset of attribute tuples), AIndex (val_a -> entry, keyed on
// key_a), and BIndex (val_b -> set of entries, keyed on a declared key_b).
//
// This package owns only the data structures and their pure mutations.
// The locking choreography and op-list bookkeeping described in spec.md
// §4.2's add/delete algorithm live in internal/txn, which composes this
// package with internal/lockmgr and internal/oplist. Grounded on
// original_source/src/lib/index.c for the sorted-vector shape and
// original_source/src/entry.c for the entry/attribute-tuple relationship
// (adapted: the original keys entries by raw string-pool ids, ours by
// interned pointers per spec.md §4.1).
package store

import (
	"sync"

	"github.com/relatedb/s4/internal/value"
)

// AttrTuple is one (key_b, val_b, src) attribute attached to an entry.
type AttrTuple struct {
	KeyB *value.InternedStr
	ValB *value.Value
	Src  *value.InternedStr
}

type tupleGroup struct {
	key    *value.InternedStr
	tuples []AttrTuple
}

// Entry is identified by (KeyA, ValA) and holds its attribute tuples
// grouped contiguously by KeyB, per spec.md §3's entry invariant.
type Entry struct {
	KeyA *value.InternedStr
	ValA *value.Value

	mu         sync.RWMutex
	groupIndex map[*value.InternedStr]int
	groups     []*tupleGroup
}

// NewEntry creates an empty entry identified by (keyA, valA).
func NewEntry(keyA *value.InternedStr, valA *value.Value) *Entry {
	return &Entry{
		KeyA:       keyA,
		ValA:       valA,
		groupIndex: make(map[*value.InternedStr]int),
	}
}

func sameTuple(a, b AttrTuple) bool {
	return a.Src == b.Src && value.Cmp(a.ValB, b.ValB, value.Binary) == 0
}

// Insert adds (keyB, valB, src) to the entry. Returns false if an
// identical tuple (binary-equal val_b, same interned src) already exists
// (spec.md §4.2 step 6: "no change").
func (e *Entry) Insert(t AttrTuple) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.groupIndex[t.KeyB]
	if !ok {
		e.groupIndex[t.KeyB] = len(e.groups)
		e.groups = append(e.groups, &tupleGroup{key: t.KeyB, tuples: []AttrTuple{t}})
		return true
	}
	g := e.groups[idx]
	for _, existing := range g.tuples {
		if sameTuple(existing, t) {
			return false
		}
	}
	g.tuples = append(g.tuples, t)
	return true
}

// Delete removes (keyB, valB, src) from the entry. Returns false if no
// matching tuple was present.
func (e *Entry) Delete(t AttrTuple) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.groupIndex[t.KeyB]
	if !ok {
		return false
	}
	g := e.groups[idx]
	for i, existing := range g.tuples {
		if sameTuple(existing, t) {
			g.tuples = append(g.tuples[:i], g.tuples[i+1:]...)
			if len(g.tuples) == 0 {
				e.removeGroup(idx)
			}
			return true
		}
	}
	return false
}

func (e *Entry) removeGroup(idx int) {
	removed := e.groups[idx]
	e.groups = append(e.groups[:idx], e.groups[idx+1:]...)
	delete(e.groupIndex, removed.key)
	for k, i := range e.groupIndex {
		if i > idx {
			e.groupIndex[k] = i - 1
		}
	}
}

// Tuples returns a flattened, read-only snapshot of the entry's attribute
// tuples, grouped contiguously by KeyB in first-seen order.
func (e *Entry) Tuples() []AttrTuple {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []AttrTuple
	for _, g := range e.groups {
		out = append(out, g.tuples...)
	}
	return out
}

// Group returns the tuples for a single KeyB (the contiguous run the
// source-preference projection in §4.3 iterates), or nil if the entry has
// no tuples under that key.
func (e *Entry) Group(keyB *value.InternedStr) []AttrTuple {
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx, ok := e.groupIndex[keyB]
	if !ok {
		return nil
	}
	out := make([]AttrTuple, len(e.groups[idx].tuples))
	copy(out, e.groups[idx].tuples)
	return out
}

// Groups returns every attribute-tuple group the entry currently holds,
// keyed by KeyB (the "loop over all distinct key_b" case of spec.md
// §4.3's evaluation algorithm when a filter's key is None).
func (e *Entry) Groups() map[*value.InternedStr][]AttrTuple {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[*value.InternedStr][]AttrTuple, len(e.groups))
	for _, g := range e.groups {
		tuples := make([]AttrTuple, len(g.tuples))
		copy(tuples, g.tuples)
		out[g.key] = tuples
	}
	return out
}

// Empty reports whether the entry has no attribute tuples left.
func (e *Entry) Empty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.groups) == 0
}
