package store

import (
	"sort"
	"sync"

	"github.com/relatedb/s4/internal/value"
)

// AIndex maps val_a -> *Entry for a single key_a, sorted by casefold
// comparison (spec.md §3: "a sorted vector of (val, set-of-entries)
// pairs, comparison by casefold"). Every entry with that identifying key
// appears exactly once, keyed by val_a.
type AIndex struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewAIndex creates an empty a-index.
func NewAIndex() *AIndex {
	return &AIndex{}
}

func (idx *AIndex) search(val *value.Value) (int, bool) {
	n := len(idx.entries)
	pos := sort.Search(n, func(i int) bool {
		return value.Cmp(idx.entries[i].ValA, val, value.Caseless) >= 0
	})
	if pos < n && value.Cmp(idx.entries[pos].ValA, val, value.Caseless) == 0 {
		return pos, true
	}
	return pos, false
}

// Lookup binary-searches for val_a and returns its entry, if any.
func (idx *AIndex) Lookup(val *value.Value) (*Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	pos, ok := idx.search(val)
	if !ok {
		return nil, false
	}
	return idx.entries[pos], true
}

// GetOrCreate returns the entry for val_a, creating and inserting a new
// one in sorted position if absent (spec.md §4.2 step 4).
func (idx *AIndex) GetOrCreate(keyA *value.InternedStr, val *value.Value) (entry *Entry, created bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	pos, ok := idx.search(val)
	if ok {
		return idx.entries[pos], false
	}
	e := NewEntry(keyA, val)
	idx.entries = append(idx.entries, nil)
	copy(idx.entries[pos+1:], idx.entries[pos:])
	idx.entries[pos] = e
	return e, true
}

// Remove deletes the entry keyed by val_a, e.g. once its tuple vector
// becomes empty and it is pruned from the index.
func (idx *AIndex) Remove(val *value.Value) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	pos, ok := idx.search(val)
	if !ok {
		return false
	}
	idx.entries = append(idx.entries[:pos], idx.entries[pos+1:]...)
	return true
}

// All returns a snapshot of every entry currently in the index, in
// casefold-sorted order.
func (idx *AIndex) All() []*Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*Entry, len(idx.entries))
	copy(out, idx.entries)
	return out
}

// Len reports the number of entries in the index.
func (idx *AIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}
