package query

import (
	"testing"

	"github.com/relatedb/s4/internal/store"
	"github.com/relatedb/s4/internal/value"
)

func TestCompileSimpleEquality(t *testing.T) {
	pool := value.NewPool()
	cond, err := Compile(`title=Foobar`, pool)
	if err != nil {
		t.Fatal(err)
	}
	titleKey := pool.InternStr("title")
	entry := store.NewEntry(titleKey, vs("Foobar"))
	if !Match(cond, entry) {
		t.Error("expected compiled equality to match")
	}
}

func TestCompileIntOperand(t *testing.T) {
	pool := value.NewPool()
	cond, err := Compile(`year>1999`, pool)
	if err != nil {
		t.Fatal(err)
	}
	yearKey := pool.InternStr("year")
	entry := store.NewEntry(yearKey, vi(2000))
	if !Match(cond, entry) {
		t.Error("expected year>1999 to match year=2000")
	}
}

func TestCompileAndOrNotPrecedence(t *testing.T) {
	pool := value.NewPool()
	cond, err := Compile(`title=Foobar AND (artist=Radiohead OR artist=Muse)`, pool)
	if err != nil {
		t.Fatal(err)
	}

	titleKey := pool.InternStr("title")
	artistKey := pool.InternStr("artist")
	src := pool.InternStr("server")
	entry := store.NewEntry(titleKey, vs("Foobar"))
	entry.Insert(store.AttrTuple{KeyB: artistKey, ValB: vs("Muse"), Src: src})

	if !Match(cond, entry) {
		t.Error("expected compiled And/Or expression to match")
	}
}

func TestCompileNot(t *testing.T) {
	pool := value.NewPool()
	cond, err := Compile(`NOT title=Other`, pool)
	if err != nil {
		t.Fatal(err)
	}
	titleKey := pool.InternStr("title")
	entry := store.NewEntry(titleKey, vs("Foobar"))
	if !Match(cond, entry) {
		t.Error("expected NOT title=Other to match an entry titled Foobar")
	}
}

func TestCompileRejectsEmptyInput(t *testing.T) {
	pool := value.NewPool()
	if _, err := Compile("", pool); err == nil {
		t.Error("expected an error for empty input")
	}
}

func TestCompileRejectsTrailingGarbage(t *testing.T) {
	pool := value.NewPool()
	if _, err := Compile("title=Foobar )", pool); err == nil {
		t.Error("expected an error for unbalanced trailing input")
	}
}
