// Package txn implements the transaction lifecycle and the add/delete
// choreography of spec.md §4.2 and §4.4 (components C6/C7): begin,
// fine-grained locked mutation against internal/store, op-list logging
// via internal/oplist, commit (serialize to the write-ahead log, release
// locks) and abort/rollback (replay inverse operations).
//
// Grounded on the teacher's transactional-unit-of-work shape
// (internal/storage/provider.go's RunInTransaction) for the
// begin/commit/abort envelope, and on original_source/src/lib/transaction.c
// plus src/lib/s4.c's s4_add/s4_del for the locking choreography.
package txn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/relatedb/s4/internal/lockmgr"
	"github.com/relatedb/s4/internal/oplist"
	"github.com/relatedb/s4/internal/s4err"
	"github.com/relatedb/s4/internal/store"
	"github.com/relatedb/s4/internal/value"
)

var txnTracer = otel.Tracer("github.com/relatedb/s4/txn")

// Flags control a transaction's behavior.
type Flags int

const (
	// ReadOnly transactions never log ops or touch the WAL; add/del on
	// one always fails with ErrReadOnly.
	ReadOnly Flags = 1 << iota
)

// WriteAheadLog is the subset of internal/walog's API a transaction needs
// at commit time. Kept as an interface here so this package has no
// dependency on the WAL's on-disk format.
type WriteAheadLog interface {
	Append(ctx context.Context, ops []oplist.Op) error
}

// FileLocker is the subset of internal/lockfile's API a transaction needs
// to exclude checkpoint while it runs (spec.md §4.4: "a single file-level
// read lock is held by the transaction to exclude checkpoint").
type FileLocker interface {
	LockShared() error
	Unlock() error
}

// Engine wires together the store, the lock manager, and (optionally) a
// write-ahead log and file locker, and mints transactions against them.
type Engine struct {
	Store *store.Store
	Locks *lockmgr.Manager
	Log   WriteAheadLog
	File  FileLocker

	nextID atomic.Uint64
}

// NewEngine creates an engine over an existing store and lock manager.
// Log and File may be left nil for standalone testing of the add/delete
// algorithm without WAL or file-lock plumbing.
func NewEngine(s *store.Store, locks *lockmgr.Manager) *Engine {
	return &Engine{Store: s, Locks: locks}
}

// Begin starts a new transaction (spec.md §4.4 "Lifecycle").
func (e *Engine) Begin(flags Flags) (*Txn, error) {
	id := lockmgr.TxnID(e.nextID.Add(1))
	t := &Txn{
		id:          id,
		engine:      e,
		flags:       flags,
		ops:         oplist.New(),
		restartable: true,
	}
	if e.File != nil {
		if err := e.File.LockShared(); err != nil {
			return nil, s4err.Wrap(s4err.ErrOpen, err)
		}
	}
	return t, nil
}

// Txn is a single unit of work against the store.
type Txn struct {
	id     lockmgr.TxnID
	engine *Engine
	flags  Flags
	ops    *oplist.List

	mu          sync.Mutex
	failed      bool
	failKind    s4err.Kind
	restartable bool
	heldKeys    map[string]struct{}
}

func (t *Txn) readOnly() bool { return t.flags&ReadOnly != 0 }

func (t *Txn) fail(kind s4err.Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.failed {
		t.failed = true
		t.failKind = kind
	}
}

// Failed reports whether the transaction has already failed; add/del
// become no-ops once true (spec.md §4.4).
func (t *Txn) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// MarkQueried records that a query ran against this transaction, which
// forbids restarting it (spec.md §4.4: "query ... sets restartable=false").
func (t *Txn) MarkQueried() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restartable = false
}

// LockEntryShared acquires a shared lock on the entry identified by
// (keyA, valA), held until commit/abort like every other lock this
// transaction takes. Callers executing a query (spec.md §4.3/§5: "the
// query is executed under shared locks on entries, which are held until
// the transaction commits/aborts") call this once per entry a query
// reads, mirroring the entryKey locking Add/Del already do for writes.
func (t *Txn) LockEntryShared(keyA *value.InternedStr, valA *value.Value) error {
	return t.acquire(entryKey(keyA, valA), lockmgr.Shared)
}

func canonVal(v *value.Value) string {
	if v.IsInt() {
		return fmt.Sprintf("i:%d", v.GetInt())
	}
	return fmt.Sprintf("s:%s", v.GetCasefolded())
}

func aIndexKey(keyA *value.InternedStr) string {
	return fmt.Sprintf("aidx:%p", keyA)
}

func bIndexKey(keyB *value.InternedStr) string {
	return fmt.Sprintf("bidx:%p", keyB)
}

func entryKey(keyA *value.InternedStr, valA *value.Value) string {
	return fmt.Sprintf("entry:%p:%s", keyA, canonVal(valA))
}

// acquire wraps lockmgr.Acquire, failing the transaction with ErrDeadlock
// and translating the result into an error.
func (t *Txn) acquire(key string, mode lockmgr.Mode) error {
	if t.engine.Locks.Acquire(t.id, key, mode) {
		slog.Default().Warn("s4: deadlock detected, aborting transaction", "txn", t.id, "key", key)
		t.fail(s4err.ErrDeadlock)
		return s4err.New(s4err.ErrDeadlock)
	}
	t.mu.Lock()
	if t.heldKeys == nil {
		t.heldKeys = make(map[string]struct{})
	}
	t.heldKeys[key] = struct{}{}
	t.mu.Unlock()
	return nil
}

// Add interns nothing itself (the caller contract per spec.md §4.2 is
// that keys, source, and values are already interned) and inserts
// (keyB, valB, src) under the entry identified by (keyA, valA), creating
// the a-index and entry as needed. Returns changed=false if an identical
// tuple already existed.
func (t *Txn) Add(ctx context.Context, keyA *value.InternedStr, valA *value.Value, keyB *value.InternedStr, valB *value.Value, src *value.InternedStr) (changed bool, err error) {
	ctx, span := txnTracer.Start(ctx, "txn.Add")
	defer span.End()

	if t.readOnly() {
		return false, s4err.New(s4err.ErrReadOnly)
	}
	if t.Failed() {
		return false, nil
	}

	aIdx := t.engine.Store.AIndexFor(keyA)
	if err := t.acquire(aIndexKey(keyA), lockmgr.Shared); err != nil {
		return false, err
	}

	entry, lookedUp := aIdx.Lookup(valA)
	if !lookedUp {
		if err := t.acquire(aIndexKey(keyA), lockmgr.Exclusive); err != nil {
			return false, err
		}
		var created bool
		entry, created = aIdx.GetOrCreate(keyA, valA)
		if created {
			store.RecordEntryCreated(ctx)
		}
	}

	if err := t.acquire(entryKey(keyA, valA), lockmgr.Exclusive); err != nil {
		return false, err
	}

	tuple := store.AttrTuple{KeyB: keyB, ValB: valB, Src: src}
	if !entry.Insert(tuple) {
		span.SetAttributes(attribute.Bool("s4.txn.changed", false))
		return false, nil
	}

	if bIdx, ok := t.engine.Store.BIndexFor(keyB); ok {
		if err := t.acquire(bIndexKey(keyB), lockmgr.Exclusive); err != nil {
			return false, err
		}
		bIdx.Insert(valB, entry)
		store.RecordBIndexInsert(ctx)
	}

	t.ops.InsertAdd(keyA, valA, keyB, valB, src)
	span.SetAttributes(attribute.Bool("s4.txn.changed", true))
	return true, nil
}

// Del removes (keyB, valB, src) from the entry identified by (keyA, valA).
// Absence of the a-index, the entry, or the tuple itself is reported as
// changed=false, err=nil — spec.md §4.2 leaves it to the caller to treat
// that as failure; rollback's own replay never calls Del; it reapplies
// inverse ops directly against the store.
func (t *Txn) Del(ctx context.Context, keyA *value.InternedStr, valA *value.Value, keyB *value.InternedStr, valB *value.Value, src *value.InternedStr) (changed bool, err error) {
	ctx, span := txnTracer.Start(ctx, "txn.Del")
	defer span.End()

	if t.readOnly() {
		return false, s4err.New(s4err.ErrReadOnly)
	}
	if t.Failed() {
		return false, nil
	}

	aIdx, ok := t.engine.Store.LookupAIndex(keyA)
	if !ok {
		return false, nil
	}
	if err := t.acquire(aIndexKey(keyA), lockmgr.Shared); err != nil {
		return false, err
	}

	entry, ok := aIdx.Lookup(valA)
	if !ok {
		return false, nil
	}

	if err := t.acquire(entryKey(keyA, valA), lockmgr.Exclusive); err != nil {
		return false, err
	}

	before := entry.Group(keyB)
	tuple := store.AttrTuple{KeyB: keyB, ValB: valB, Src: src}
	if !entry.Delete(tuple) {
		return false, nil
	}

	if bIdx, ok := t.engine.Store.BIndexFor(keyB); ok {
		if !groupStillHasVal(before, valB) {
			if err := t.acquire(bIndexKey(keyB), lockmgr.Exclusive); err != nil {
				return false, err
			}
			if !groupHasVal(entry.Group(keyB), valB) {
				bIdx.Delete(valB, entry)
			}
		}
	}

	t.ops.InsertDel(keyA, valA, keyB, valB, src)
	span.SetAttributes(attribute.Bool("s4.txn.changed", true))
	return true, nil
}

func groupHasVal(group []store.AttrTuple, val *value.Value) bool {
	for _, g := range group {
		if value.Cmp(g.ValB, val, value.Binary) == 0 {
			return true
		}
	}
	return false
}

// groupStillHasVal is a fast path: if more than one tuple in the
// pre-deletion group already shared val, removing one of them can't empty
// the b-index bucket for val, so the caller can skip the post-deletion
// recheck.
func groupStillHasVal(before []store.AttrTuple, val *value.Value) bool {
	count := 0
	for _, g := range before {
		if value.Cmp(g.ValB, val, value.Binary) == 0 {
			count++
		}
	}
	return count > 1
}

// Commit serializes the op list to the write-ahead log, releases all
// locks and the file lock, and frees the transaction (spec.md §4.4
// "Commit"). On a failed transaction, or on WAL failure, it rolls back
// instead.
func (t *Txn) Commit(ctx context.Context) error {
	ctx, span := txnTracer.Start(ctx, "txn.Commit")
	defer span.End()

	t.mu.Lock()
	failed := t.failed
	failKind := t.failKind
	t.mu.Unlock()

	if failed {
		t.rollback()
		t.release()
		return s4err.New(failKind)
	}

	if t.engine.Log != nil && !t.readOnly() && t.ops.Len() > 0 {
		if err := t.engine.Log.Append(ctx, t.ops.Ops()); err != nil {
			t.rollback()
			t.release()
			return s4err.Wrap(s4err.ErrLogFull, err)
		}
	}

	t.release()
	return nil
}

// Abort rolls back every logged operation and frees the transaction
// without touching the WAL.
func (t *Txn) Abort(ctx context.Context) {
	t.rollback()
	t.release()
}

func (t *Txn) rollback() {
	for _, inv := range t.ops.Rollback() {
		switch inv.Kind {
		case oplist.Add:
			aIdx := t.engine.Store.AIndexFor(inv.KeyA)
			entry, _ := aIdx.GetOrCreate(inv.KeyA, inv.ValA)
			entry.Insert(store.AttrTuple{KeyB: inv.KeyB, ValB: inv.ValB, Src: inv.Src})
			if bIdx, ok := t.engine.Store.BIndexFor(inv.KeyB); ok {
				bIdx.Insert(inv.ValB, entry)
			}
		case oplist.Del:
			aIdx, ok := t.engine.Store.LookupAIndex(inv.KeyA)
			if !ok {
				continue
			}
			entry, ok := aIdx.Lookup(inv.ValA)
			if !ok {
				continue
			}
			entry.Delete(store.AttrTuple{KeyB: inv.KeyB, ValB: inv.ValB, Src: inv.Src})
		}
	}
}

func (t *Txn) release() {
	t.engine.Locks.ReleaseAll(t.id)
	if t.engine.File != nil {
		_ = t.engine.File.Unlock()
	}
}
