package query

import (
	"testing"

	"github.com/relatedb/s4/internal/store"
	"github.com/relatedb/s4/internal/value"
)

func seedEntry(s *store.Store, pool *value.Pool, keyA, valA, keyB, valB, src string) *store.Entry {
	aKey := pool.InternStr(keyA)
	entry, _ := s.AIndexFor(aKey).GetOrCreate(aKey, vs(valA))
	if keyB != "" {
		bKey := pool.InternStr(keyB)
		entry.Insert(store.AttrTuple{KeyB: bKey, ValB: vs(valB), Src: pool.InternStr(src)})
		if bIdx, ok := s.BIndexFor(bKey); ok {
			bIdx.Insert(vs(valB), entry)
		}
	}
	return entry
}

func TestFindParentEqualUsesAIndexLookup(t *testing.T) {
	s := store.New()
	pool := value.NewPool()
	seedEntry(s, pool, "title", "Foobar", "artist", "Radiohead", "server")
	seedEntry(s, pool, "title", "Other", "", "", "")

	titleKey := pool.InternStr("title")
	f := NewEqual(titleKey, vs("Foobar"), value.Caseless).WithParent()
	got := Find(s, f)
	if len(got) != 1 || got[0].ValA.GetStr() != "Foobar" {
		t.Fatalf("expected exactly the Foobar entry, got %+v", got)
	}
}

func TestFindUsesDeclaredBIndex(t *testing.T) {
	s := store.New()
	pool := value.NewPool()
	artistKey := pool.InternStr("artist")
	s.DeclareBIndex(artistKey)
	seedEntry(s, pool, "title", "Foobar", "artist", "Radiohead", "server")
	seedEntry(s, pool, "title", "Other", "artist", "Muse", "server")

	f := NewEqual(artistKey, vs("Radiohead"), value.Caseless)
	got := Find(s, f)
	if len(got) != 1 || got[0].ValA.GetStr() != "Foobar" {
		t.Fatalf("expected exactly the Foobar entry via b-index, got %+v", got)
	}
}

func TestFindFallsBackToUnionScan(t *testing.T) {
	s := store.New()
	pool := value.NewPool()
	seedEntry(s, pool, "title", "Foobar", "artist", "Radiohead", "server")
	seedEntry(s, pool, "album", "OK Computer", "artist", "Radiohead", "server")

	artistKey := pool.InternStr("artist")
	f := NewEqual(artistKey, vs("Radiohead"), value.Caseless)
	got := Find(s, f)
	if len(got) != 2 {
		t.Fatalf("expected a full union scan across both a-indices, got %d entries", len(got))
	}
}

func TestFindAndFetch(t *testing.T) {
	s := store.New()
	pool := value.NewPool()
	seedEntry(s, pool, "title", "Foobar", "artist", "Radiohead", "server")

	titleKey := pool.InternStr("title")
	artistKey := pool.InternStr("artist")
	f := NewEqual(titleKey, vs("Foobar"), value.Caseless).WithParent()
	spec := &FetchSpec{Items: []FetchItem{{Parent: true}, {Key: artistKey, Data: true}}}

	rows := FindAndFetch(s, f, spec)
	if len(rows) != 1 || len(rows[0].Columns) != 2 {
		t.Fatalf("expected one row with two columns, got %+v", rows)
	}
}
