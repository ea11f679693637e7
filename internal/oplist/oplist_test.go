package oplist

import (
	"testing"

	"github.com/relatedb/s4/internal/value"
)

func TestInverseFlipsAddAndDel(t *testing.T) {
	pool := value.NewPool()
	keyA := pool.InternStr("title")

	op := Op{Kind: Add, KeyA: keyA}
	inv := op.Inverse()
	if inv.Kind != Del {
		t.Fatalf("expected Add to invert to Del, got %v", inv.Kind)
	}
	if inv.Inverse().Kind != Add {
		t.Fatalf("expected double inverse to round-trip to Add")
	}
}

func TestInverseOnWritingPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic inverting a Writing marker")
		}
	}()
	Op{Kind: Writing}.Inverse()
}

func TestRollbackReversesAndInverts(t *testing.T) {
	pool := value.NewPool()
	keyA := pool.InternStr("title")
	keyB := pool.InternStr("artist")
	src := pool.InternStr("server")
	v1 := value.Str("one")
	v2 := value.Str("two")

	l := New()
	l.InsertAdd(keyA, &v1, keyB, &v1, src)
	l.InsertWriting()
	l.InsertDel(keyA, &v2, keyB, &v2, src)

	rb := l.Rollback()
	if len(rb) != 2 {
		t.Fatalf("expected 2 rollback entries (Writing skipped), got %d", len(rb))
	}
	if rb[0].Kind != Add || rb[0].ValA != &v2 {
		t.Fatalf("expected first rollback entry to invert the Del of v2, got %+v", rb[0])
	}
	if rb[1].Kind != Del || rb[1].ValA != &v1 {
		t.Fatalf("expected second rollback entry to invert the Add of v1, got %+v", rb[1])
	}
}

func TestOpsPreservesCommitOrder(t *testing.T) {
	pool := value.NewPool()
	keyA := pool.InternStr("title")
	l := New()
	l.InsertAdd(keyA, nil, nil, nil, nil)
	l.InsertWriting()
	l.InsertDel(keyA, nil, nil, nil, nil)

	ops := l.Ops()
	if len(ops) != 3 {
		t.Fatalf("expected 3 ops, got %d", len(ops))
	}
	if ops[0].Kind != Add || ops[1].Kind != Writing || ops[2].Kind != Del {
		t.Fatalf("expected Add, Writing, Del order, got %+v", ops)
	}
}
