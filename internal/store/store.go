package store

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/relatedb/s4/internal/value"
)

// storeMetrics holds OTel metric instruments for the entry store.
// Instruments register against the global delegating provider at init
// time, forwarding to the real provider once the caller wires one up.
var storeMetrics struct {
	aIndexCreated metric.Int64Counter
	bIndexInsert  metric.Int64Counter
	entryCreated  metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/relatedb/s4/store")
	storeMetrics.aIndexCreated, _ = m.Int64Counter("s4.store.a_index_created",
		metric.WithDescription("a-indices created on first add for a new key_a"),
		metric.WithUnit("{index}"),
	)
	storeMetrics.bIndexInsert, _ = m.Int64Counter("s4.store.b_index_insert",
		metric.WithDescription("entries inserted into a declared b-index"),
		metric.WithUnit("{insert}"),
	)
	storeMetrics.entryCreated, _ = m.Int64Counter("s4.store.entry_created",
		metric.WithDescription("entries created in an a-index"),
		metric.WithUnit("{entry}"),
	)
}

// Store is the database-wide collection of a-indices and b-indices
// (spec.md §3). It holds no locks of its own beyond the directory
// mutexes protecting the index maps — entry- and index-level
// shared/exclusive locking is internal/lockmgr's job, driven by
// internal/txn.
type Store struct {
	aMu       sync.Mutex
	aIndices  map[*value.InternedStr]*AIndex
	bMu       sync.Mutex
	bIndices  map[*value.InternedStr]*BIndex
	declared  map[*value.InternedStr]bool
	declaredM sync.RWMutex
}

// New creates an empty store with no declared b-indices.
func New() *Store {
	return &Store{
		aIndices: make(map[*value.InternedStr]*AIndex),
		bIndices: make(map[*value.InternedStr]*BIndex),
		declared: make(map[*value.InternedStr]bool),
	}
}

// AIndexFor returns the a-index for key_a, creating it if absent
// (spec.md §4.2 step 2: "create index if absent").
func (s *Store) AIndexFor(keyA *value.InternedStr) *AIndex {
	s.aMu.Lock()
	defer s.aMu.Unlock()
	idx, ok := s.aIndices[keyA]
	if !ok {
		idx = NewAIndex()
		s.aIndices[keyA] = idx
		storeMetrics.aIndexCreated.Add(context.Background(), 1)
	}
	return idx
}

// LookupAIndex returns the a-index for key_a without creating it.
func (s *Store) LookupAIndex(keyA *value.InternedStr) (*AIndex, bool) {
	s.aMu.Lock()
	defer s.aMu.Unlock()
	idx, ok := s.aIndices[keyA]
	return idx, ok
}

// AllAIndices returns a snapshot of every a-index keyed by its key_a.
func (s *Store) AllAIndices() map[*value.InternedStr]*AIndex {
	s.aMu.Lock()
	defer s.aMu.Unlock()
	out := make(map[*value.InternedStr]*AIndex, len(s.aIndices))
	for k, v := range s.aIndices {
		out[k] = v
	}
	return out
}

// DeclareBIndex marks key_b as indexed, creating an empty b-index for it.
// The database must be opened with the set of keys to index (spec.md §3:
// "exists only for keys the database was opened to index").
func (s *Store) DeclareBIndex(keyB *value.InternedStr) *BIndex {
	s.bMu.Lock()
	defer s.bMu.Unlock()
	s.declaredM.Lock()
	s.declared[keyB] = true
	s.declaredM.Unlock()
	idx, ok := s.bIndices[keyB]
	if !ok {
		idx = NewBIndex()
		s.bIndices[keyB] = idx
	}
	return idx
}

// IsDeclared reports whether key_b has a declared b-index.
func (s *Store) IsDeclared(keyB *value.InternedStr) bool {
	s.declaredM.RLock()
	defer s.declaredM.RUnlock()
	return s.declared[keyB]
}

// BIndexFor returns the b-index for key_b if one was declared.
func (s *Store) BIndexFor(keyB *value.InternedStr) (*BIndex, bool) {
	s.bMu.Lock()
	defer s.bMu.Unlock()
	idx, ok := s.bIndices[keyB]
	return idx, ok
}

// RecordBIndexInsert increments the b-index insertion counter; called by
// internal/txn after a successful idempotent insert.
func RecordBIndexInsert(ctx context.Context) {
	storeMetrics.bIndexInsert.Add(ctx, 1)
}

// RecordEntryCreated increments the entry-creation counter; called by
// internal/txn after AIndex.GetOrCreate reports created=true.
func RecordEntryCreated(ctx context.Context) {
	storeMetrics.entryCreated.Add(ctx, 1)
}
