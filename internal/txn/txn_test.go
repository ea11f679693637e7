package txn

import (
	"context"
	"testing"
	"time"

	"github.com/relatedb/s4/internal/lockmgr"
	"github.com/relatedb/s4/internal/oplist"
	"github.com/relatedb/s4/internal/s4err"
	"github.com/relatedb/s4/internal/store"
	"github.com/relatedb/s4/internal/value"
)

func newTestEngine() (*Engine, *value.Pool) {
	pool := value.NewPool()
	return NewEngine(store.New(), lockmgr.New()), pool
}

func valStr(s string) *value.Value {
	v := value.Str(s)
	return &v
}

func TestAddCreatesEntryAndTuple(t *testing.T) {
	e, pool := newTestEngine()
	ctx := context.Background()
	tx, err := e.Begin(0)
	if err != nil {
		t.Fatal(err)
	}

	keyA := pool.InternStr("title")
	keyB := pool.InternStr("artist")
	src := pool.InternStr("server")

	changed, err := tx.Add(ctx, keyA, valStr("Foobar"), keyB, valStr("Radiohead"), src)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected first add to report a change")
	}

	aIdx, ok := e.Store.LookupAIndex(keyA)
	if !ok {
		t.Fatal("expected a-index to be created")
	}
	entry, ok := aIdx.Lookup(valStr("foobar"))
	if !ok {
		t.Fatal("expected caseless lookup to find the new entry")
	}
	if len(entry.Tuples()) != 1 {
		t.Fatalf("expected 1 tuple, got %d", len(entry.Tuples()))
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
}

func TestAddDuplicateReportsNoChange(t *testing.T) {
	e, pool := newTestEngine()
	ctx := context.Background()
	tx, _ := e.Begin(0)

	keyA := pool.InternStr("title")
	keyB := pool.InternStr("artist")
	src := pool.InternStr("server")

	tx.Add(ctx, keyA, valStr("Foobar"), keyB, valStr("Radiohead"), src)
	changed, err := tx.Add(ctx, keyA, valStr("Foobar"), keyB, valStr("Radiohead"), src)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Fatal("expected duplicate add to report no change")
	}
}

func TestDelRemovesTupleAndPrunesBIndexBucket(t *testing.T) {
	e, pool := newTestEngine()
	ctx := context.Background()

	keyA := pool.InternStr("title")
	keyB := pool.InternStr("artist")
	src := pool.InternStr("server")
	e.Store.DeclareBIndex(keyB)

	tx, _ := e.Begin(0)
	tx.Add(ctx, keyA, valStr("Foobar"), keyB, valStr("Radiohead"), src)
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	bIdx, _ := e.Store.BIndexFor(keyB)
	if got := bIdx.Lookup(valStr("Radiohead")); len(got) != 1 {
		t.Fatalf("expected entry indexed under Radiohead, got %d", len(got))
	}

	tx2, _ := e.Begin(0)
	changed, err := tx2.Del(ctx, keyA, valStr("Foobar"), keyB, valStr("Radiohead"), src)
	if err != nil || !changed {
		t.Fatalf("expected delete to succeed, got changed=%v err=%v", changed, err)
	}
	tx2.Commit(ctx)

	if got := bIdx.Lookup(valStr("Radiohead")); len(got) != 0 {
		t.Fatalf("expected b-index bucket to be pruned, got %d entries", len(got))
	}
}

func TestDelOnMissingAIndexIsNoOp(t *testing.T) {
	e, pool := newTestEngine()
	ctx := context.Background()
	tx, _ := e.Begin(0)

	keyA := pool.InternStr("title")
	keyB := pool.InternStr("artist")
	src := pool.InternStr("server")

	changed, err := tx.Del(ctx, keyA, valStr("Foobar"), keyB, valStr("Radiohead"), src)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Fatal("expected delete against nonexistent a-index to report no change")
	}
}

func TestReadOnlyTxnRejectsAdd(t *testing.T) {
	e, pool := newTestEngine()
	ctx := context.Background()
	tx, _ := e.Begin(ReadOnly)

	keyA := pool.InternStr("title")
	keyB := pool.InternStr("artist")
	src := pool.InternStr("server")

	_, err := tx.Add(ctx, keyA, valStr("Foobar"), keyB, valStr("Radiohead"), src)
	se, ok := err.(*s4err.Error)
	if !ok || se.Kind != s4err.ErrReadOnly {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestAbortRollsBackAdd(t *testing.T) {
	e, pool := newTestEngine()
	ctx := context.Background()
	tx, _ := e.Begin(0)

	keyA := pool.InternStr("title")
	keyB := pool.InternStr("artist")
	src := pool.InternStr("server")

	tx.Add(ctx, keyA, valStr("Foobar"), keyB, valStr("Radiohead"), src)
	tx.Abort(ctx)

	aIdx, ok := e.Store.LookupAIndex(keyA)
	if !ok {
		t.Fatal("expected a-index to still exist after abort (creation isn't rolled back)")
	}
	entry, ok := aIdx.Lookup(valStr("Foobar"))
	if !ok {
		t.Fatal("expected entry to still exist after abort")
	}
	if len(entry.Tuples()) != 0 {
		t.Fatalf("expected tuple to be rolled back, got %d tuples", len(entry.Tuples()))
	}
}

type fakeLog struct {
	appended [][]oplist.Op
	failNext bool
}

func (f *fakeLog) Append(ctx context.Context, ops []oplist.Op) error {
	if f.failNext {
		return context.DeadlineExceeded
	}
	f.appended = append(f.appended, ops)
	return nil
}

func TestCommitAppendsToWAL(t *testing.T) {
	e, pool := newTestEngine()
	log := &fakeLog{}
	e.Log = log
	ctx := context.Background()

	keyA := pool.InternStr("title")
	keyB := pool.InternStr("artist")
	src := pool.InternStr("server")

	tx, _ := e.Begin(0)
	tx.Add(ctx, keyA, valStr("Foobar"), keyB, valStr("Radiohead"), src)
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	if len(log.appended) != 1 || len(log.appended[0]) != 1 {
		t.Fatalf("expected 1 op appended to the log, got %+v", log.appended)
	}
}

func TestCommitOnLogFailureRollsBack(t *testing.T) {
	e, pool := newTestEngine()
	log := &fakeLog{failNext: true}
	e.Log = log
	ctx := context.Background()

	keyA := pool.InternStr("title")
	keyB := pool.InternStr("artist")
	src := pool.InternStr("server")

	tx, _ := e.Begin(0)
	tx.Add(ctx, keyA, valStr("Foobar"), keyB, valStr("Radiohead"), src)
	err := tx.Commit(ctx)
	se, ok := err.(*s4err.Error)
	if !ok || se.Kind != s4err.ErrLogFull {
		t.Fatalf("expected ErrLogFull, got %v", err)
	}

	aIdx, _ := e.Store.LookupAIndex(keyA)
	entry, _ := aIdx.Lookup(valStr("Foobar"))
	if len(entry.Tuples()) != 0 {
		t.Fatal("expected tuple to be rolled back after log failure")
	}
}

func TestDeadlockFailsTransaction(t *testing.T) {
	e, pool := newTestEngine()

	keyA1 := pool.InternStr("title")
	keyA2 := pool.InternStr("album")

	tx1, _ := e.Begin(0)
	tx2, _ := e.Begin(0)

	if err := tx1.acquire(aIndexKey(keyA1), lockmgr.Exclusive); err != nil {
		t.Fatal(err)
	}
	if err := tx2.acquire(aIndexKey(keyA2), lockmgr.Exclusive); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- tx1.acquire(aIndexKey(keyA2), lockmgr.Exclusive) }()
	time.Sleep(50 * time.Millisecond)

	if err := tx2.acquire(aIndexKey(keyA1), lockmgr.Exclusive); err == nil {
		t.Fatal("expected tx2's request to close the wait-for cycle and fail")
	}
	if !tx2.Failed() {
		t.Fatal("expected tx2 to be marked failed after detecting deadlock")
	}

	tx2.release()
	if err := <-done; err != nil {
		t.Fatalf("expected tx1 to proceed once tx2 released its locks, got %v", err)
	}
}
