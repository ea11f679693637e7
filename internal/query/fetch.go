package query

import (
	"github.com/relatedb/s4/internal/sourcepref"
	"github.com/relatedb/s4/internal/store"
	"github.com/relatedb/s4/internal/value"
)

// FetchItem is one projected column (spec.md §4.3 "Projection (fetch
// spec)"): a key (or nil for "every key the entry has"), a source
// preference used to pick the best-priority tuples, and flags selecting
// whether to emit the entry's own identity and/or its attribute tuples.
type FetchItem struct {
	Key     *value.InternedStr
	SrcPref *sourcepref.SourcePref
	Parent  bool
	Data    bool
}

// FetchSpec is an ordered list of fetch items; Fetch assembles one Row
// per matched entry by evaluating each item in order.
type FetchSpec struct {
	Items []FetchItem
}

// identitySrc marks a column cell synthesized from an entry's own
// identity (val_a) rather than drawn from an attribute tuple; it never
// equals a real interned source.
var identitySrc *value.InternedStr

// Column is the ordered (per source preference) set of tuples a single
// fetch item produced for one entry — spec.md's "linked list of results
// in source order" for that column.
type Column []store.AttrTuple

// Row is one assembled result: one Column per value a fetch item
// produced for the matched entry, in fetch-spec order.
type Row struct {
	Entry   *store.Entry
	Columns []Column
}

// Fetch projects entry through spec, producing one Row (spec.md §4.3).
func Fetch(spec *FetchSpec, entry *store.Entry) Row {
	row := Row{Entry: entry}
	for _, item := range spec.Items {
		if item.Parent {
			row.Columns = append(row.Columns, Column{{
				KeyB: entry.KeyA,
				ValB: entry.ValA,
				Src:  identitySrc,
			}})
		}
		if !item.Data {
			continue
		}
		if item.Key == nil {
			for _, group := range entry.Groups() {
				if col := fetchGroup(item.SrcPref, group); col != nil {
					row.Columns = append(row.Columns, col)
				}
			}
			continue
		}
		group := entry.Group(item.Key)
		if group == nil {
			continue
		}
		if col := fetchGroup(item.SrcPref, group); col != nil {
			row.Columns = append(row.Columns, col)
		}
	}
	return row
}

// fetchGroup collects every tuple at the group's best (lowest) priority,
// in source order, without re-evaluating any predicate against them
// (DESIGN.md Open Question 2 — unlike evalGroup, projection doesn't
// reject a group just because not every best-priority tuple "matches";
// there's no predicate here to match against).
func fetchGroup(sp *sourcepref.SourcePref, group []store.AttrTuple) Column {
	if len(group) == 0 {
		return nil
	}
	priority := func(src *value.InternedStr) int {
		if sp == nil {
			return 0
		}
		return sp.GetPriority(src.String())
	}
	best := priority(group[0].Src)
	for _, t := range group[1:] {
		if p := priority(t.Src); p < best {
			best = p
		}
	}
	var col Column
	for _, t := range group {
		if priority(t.Src) == best {
			col = append(col, t)
		}
	}
	return col
}
