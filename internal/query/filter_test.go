package query

import (
	"testing"

	"github.com/relatedb/s4/internal/sourcepref"
	"github.com/relatedb/s4/internal/store"
	"github.com/relatedb/s4/internal/value"
)

func vs(s string) *value.Value {
	v := value.Str(s)
	return &v
}

func vi(i int32) *value.Value {
	v := value.Int(i)
	return &v
}

func TestFilterMonotonicity(t *testing.T) {
	cases := []struct {
		f    *Filter
		want bool
	}{
		{NewEqual(nil, vs("x"), value.Caseless), true},
		{NewNotEqual(nil, vs("x"), value.Caseless), false},
		{NewGreater(nil, vs("x"), value.Caseless), true},
		{NewExists(nil), true},
		{NewToken(nil, "x", false), false},
		{NewCustom(nil, nil, true), true},
		{NewCustom(nil, nil, false), false},
	}
	for i, c := range cases {
		if got := c.f.Monotonic(); got != c.want {
			t.Errorf("case %d: Monotonic() = %v, want %v", i, got, c.want)
		}
	}
}

func TestEvalValueComparisons(t *testing.T) {
	f := NewEqual(nil, vi(5), value.Binary)
	if !f.evalValue(vi(5)) {
		t.Error("expected 5 == 5")
	}
	if f.evalValue(vi(6)) {
		t.Error("expected 5 != 6")
	}

	g := NewGreater(nil, vi(5), value.Binary)
	if !g.evalValue(vi(6)) || g.evalValue(vi(4)) {
		t.Error("Greater filter misbehaved")
	}
}

func TestTokenFilterMatchesStringAndInt(t *testing.T) {
	f := NewToken(nil, "radio*", true)
	if !f.evalValue(vs("Radiohead")) {
		t.Error("expected prefix token match on string value")
	}
	if f.evalValue(vs("Beatles")) {
		t.Error("unexpected token match")
	}

	g := NewToken(nil, "42", false)
	if !g.evalValue(vi(42)) {
		t.Error("expected exact token match on int value formatted as decimal")
	}
	if g.evalValue(vi(43)) {
		t.Error("unexpected int token match")
	}
}

func TestEvalGroupBestPriorityAndSemantics(t *testing.T) {
	pool := value.NewPool()
	srcA := pool.InternStr("scriptA")
	srcB := pool.InternStr("scriptB")
	sp := sourcepref.New([]string{"scriptA", "scriptB"})

	f := NewEqual(nil, vs("Radiohead"), value.Caseless).WithSourcePref(sp)

	group := []store.AttrTuple{
		{Src: srcA, ValB: vs("Radiohead")},
		{Src: srcB, ValB: vs("Muse")},
	}
	if !evalGroup(f, group) {
		t.Error("expected match: sole best-priority tuple (scriptA) satisfies filter")
	}

	group2 := []store.AttrTuple{
		{Src: srcA, ValB: vs("Radiohead")},
		{Src: pool.InternStr("scriptA"), ValB: vs("Muse")},
	}
	if evalGroup(f, group2) {
		t.Error("expected no match: two tuples tie for best priority, one fails the filter")
	}
}

func TestEvalGroupEmpty(t *testing.T) {
	f := NewExists(nil)
	if evalGroup(f, nil) {
		t.Error("expected no match against an empty group")
	}
}
