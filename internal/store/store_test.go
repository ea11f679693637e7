package store

import (
	"testing"

	"github.com/relatedb/s4/internal/value"
)

func internStr(pool *value.Pool, s string) *value.InternedStr {
	return pool.InternStr(s)
}

func vs(s string) *value.Value {
	v := value.Str(s)
	return &v
}

func TestEntryInsertDeduplicatesByBinaryEquality(t *testing.T) {
	pool := value.NewPool()
	keyB := internStr(pool, "artist")
	src1 := internStr(pool, "plugin/id3v2")

	e := NewEntry(internStr(pool, "title"), vs("Foobar"))
	tup := AttrTuple{KeyB: keyB, ValB: vs("Radiohead"), Src: src1}

	if !e.Insert(tup) {
		t.Fatal("expected first insert to report a change")
	}
	if e.Insert(tup) {
		t.Fatal("expected duplicate insert to report no change")
	}
	if got := len(e.Tuples()); got != 1 {
		t.Fatalf("expected 1 tuple, got %d", got)
	}
}

func TestEntryGroupsByKeyB(t *testing.T) {
	pool := value.NewPool()
	keyArtist := internStr(pool, "artist")
	keyAlbum := internStr(pool, "album")
	src := internStr(pool, "server")

	e := NewEntry(internStr(pool, "title"), vs("Foobar"))
	e.Insert(AttrTuple{KeyB: keyArtist, ValB: vs("A"), Src: src})
	e.Insert(AttrTuple{KeyB: keyAlbum, ValB: vs("B"), Src: src})
	e.Insert(AttrTuple{KeyB: keyArtist, ValB: vs("A2"), Src: src})

	tuples := e.Tuples()
	if len(tuples) != 3 {
		t.Fatalf("expected 3 tuples, got %d", len(tuples))
	}
	if tuples[0].KeyB != keyArtist || tuples[1].KeyB != keyArtist {
		t.Fatalf("expected the two artist tuples contiguous at the front, got %+v", tuples)
	}
	if got := e.Group(keyArtist); len(got) != 2 {
		t.Fatalf("expected 2 tuples in artist group, got %d", len(got))
	}
}

func TestEntryDeleteEmptiesGroup(t *testing.T) {
	pool := value.NewPool()
	keyB := internStr(pool, "artist")
	src := internStr(pool, "server")
	tup := AttrTuple{KeyB: keyB, ValB: vs("A"), Src: src}

	e := NewEntry(internStr(pool, "title"), vs("Foobar"))
	e.Insert(tup)
	if !e.Delete(tup) {
		t.Fatal("expected delete of existing tuple to succeed")
	}
	if e.Delete(tup) {
		t.Fatal("expected second delete to report no change")
	}
	if !e.Empty() {
		t.Fatal("expected entry to be empty after deleting its only tuple")
	}
}

func TestAIndexGetOrCreateAndLookup(t *testing.T) {
	pool := value.NewPool()
	keyA := internStr(pool, "title")
	idx := NewAIndex()

	e1, created := idx.GetOrCreate(keyA, vs("Alpha"))
	if !created {
		t.Fatal("expected first GetOrCreate to create")
	}
	e2, created := idx.GetOrCreate(keyA, vs("alpha"))
	if created {
		t.Fatal("expected caseless match to reuse existing entry")
	}
	if e1 != e2 {
		t.Fatal("expected same entry pointer for caseless-equal val_a")
	}

	found, ok := idx.Lookup(vs("ALPHA"))
	if !ok || found != e1 {
		t.Fatal("expected casefold lookup to find the entry")
	}
}

func TestAIndexMaintainsSortedOrder(t *testing.T) {
	pool := value.NewPool()
	keyA := internStr(pool, "title")
	idx := NewAIndex()
	idx.GetOrCreate(keyA, vs("charlie"))
	idx.GetOrCreate(keyA, vs("alpha"))
	idx.GetOrCreate(keyA, vs("bravo"))

	all := idx.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if value.Cmp(all[i-1].ValA, all[i].ValA, value.Caseless) > 0 {
			t.Fatalf("expected sorted order, got %v then %v", all[i-1].ValA, all[i].ValA)
		}
	}
}

func TestBIndexInsertIsIdempotentByEntryPointer(t *testing.T) {
	pool := value.NewPool()
	keyA := internStr(pool, "title")
	e := NewEntry(keyA, vs("Foobar"))
	idx := NewBIndex()

	idx.Insert(vs("Radiohead"), e)
	idx.Insert(vs("radiohead"), e)

	got := idx.Lookup(vs("RADIOHEAD"))
	if len(got) != 1 {
		t.Fatalf("expected 1 deduplicated entry, got %d", len(got))
	}
}

func TestBIndexDeleteEmptiesBucket(t *testing.T) {
	pool := value.NewPool()
	keyA := internStr(pool, "title")
	e := NewEntry(keyA, vs("Foobar"))
	idx := NewBIndex()

	idx.Insert(vs("Radiohead"), e)
	idx.Delete(vs("Radiohead"), e)

	if got := idx.Lookup(vs("Radiohead")); len(got) != 0 {
		t.Fatalf("expected empty bucket to be pruned, got %d entries", len(got))
	}
}

func TestStoreDeclareBIndex(t *testing.T) {
	pool := value.NewPool()
	keyB := internStr(pool, "artist")
	s := New()

	if s.IsDeclared(keyB) {
		t.Fatal("expected key to start undeclared")
	}
	s.DeclareBIndex(keyB)
	if !s.IsDeclared(keyB) {
		t.Fatal("expected key to be declared after DeclareBIndex")
	}
	if _, ok := s.BIndexFor(keyB); !ok {
		t.Fatal("expected a b-index to exist for the declared key")
	}
}

func TestStoreAIndexForCreatesOnce(t *testing.T) {
	pool := value.NewPool()
	keyA := internStr(pool, "title")
	s := New()

	idx1 := s.AIndexFor(keyA)
	idx2 := s.AIndexFor(keyA)
	if idx1 != idx2 {
		t.Fatal("expected AIndexFor to return the same index on repeated calls")
	}
}
