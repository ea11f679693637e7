package store

import (
	"sort"
	"sync"

	"github.com/relatedb/s4/internal/value"
)

type bBucket struct {
	val     *value.Value
	entries map[*Entry]struct{}
}

// BIndex maps val_b -> set of entries for one declared key_b, sorted by
// casefold comparison on val_b (spec.md §3). Only keys the database was
// opened to index get a BIndex; entries are deduplicated per entry
// pointer since an entry may carry several tuples with the same key_b.
type BIndex struct {
	mu      sync.RWMutex
	buckets []*bBucket
}

// NewBIndex creates an empty b-index.
func NewBIndex() *BIndex {
	return &BIndex{}
}

func (idx *BIndex) search(val *value.Value) (int, bool) {
	n := len(idx.buckets)
	pos := sort.Search(n, func(i int) bool {
		return value.Cmp(idx.buckets[i].val, val, value.Caseless) >= 0
	})
	if pos < n && value.Cmp(idx.buckets[pos].val, val, value.Caseless) == 0 {
		return pos, true
	}
	return pos, false
}

// Insert adds entry under val_b, idempotent by entry pointer (spec.md
// §4.2 step 7).
func (idx *BIndex) Insert(val *value.Value, entry *Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	pos, ok := idx.search(val)
	if !ok {
		b := &bBucket{val: val, entries: map[*Entry]struct{}{entry: {}}}
		idx.buckets = append(idx.buckets, nil)
		copy(idx.buckets[pos+1:], idx.buckets[pos:])
		idx.buckets[pos] = b
		return
	}
	idx.buckets[pos].entries[entry] = struct{}{}
}

// Delete removes entry from the bucket for val_b. If the bucket becomes
// empty it is pruned from the index.
func (idx *BIndex) Delete(val *value.Value, entry *Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	pos, ok := idx.search(val)
	if !ok {
		return
	}
	delete(idx.buckets[pos].entries, entry)
	if len(idx.buckets[pos].entries) == 0 {
		idx.buckets = append(idx.buckets[:pos], idx.buckets[pos+1:]...)
	}
}

// Lookup returns every entry bucketed under val_b.
func (idx *BIndex) Lookup(val *value.Value) []*Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	pos, ok := idx.search(val)
	if !ok {
		return nil
	}
	out := make([]*Entry, 0, len(idx.buckets[pos].entries))
	for e := range idx.buckets[pos].entries {
		out = append(out, e)
	}
	return out
}

// All returns every entry in the index (duplicates removed), in no
// particular cross-bucket order.
func (idx *BIndex) All() []*Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	seen := make(map[*Entry]struct{})
	var out []*Entry
	for _, b := range idx.buckets {
		for e := range b.entries {
			if _, ok := seen[e]; !ok {
				seen[e] = struct{}{}
				out = append(out, e)
			}
		}
	}
	return out
}
