// Package resultset implements the query result container (spec.md
// §4.3 "Result construction"/"Sorting", component C9): a ref-counted set
// of rows, each row a fixed number of columns (cells referencing the
// entry's live attribute tuples), with a stable multi-key sort and a
// seeded shuffle.
//
// Grounded on original_source/src/lib/resultset.c: s4_resultset_t's
// GPtrArray of ref-counted s4_resultrow_t rows, s4_order_t's column-choice
// + direction + collation entries (or a random entry with its own seeded
// GRand), and _compare_rows's nulls-first, original-position tie-break
// comparator.
package resultset

import (
	"math/rand"
	"sort"
	"sync/atomic"

	"github.com/relatedb/s4/internal/query"
	"github.com/relatedb/s4/internal/value"
)

// Direction is a sort order entry's direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// OrderEntry is one entry in a sort order: either a column-choice list
// (try Columns[0]; if that cell is empty, Columns[1]; ...) with a
// direction and comparison mode, or — when Random is non-nil — a
// shuffle draw from a seeded PRNG (spec.md §4.3's order_entry union).
type OrderEntry struct {
	Columns   []int
	Direction Direction
	Mode      value.CmpMode
	Random    *rand.Rand
}

// Order is an ordered sequence of OrderEntry, applied left to right
// until one entry produces a non-zero comparison.
type Order struct {
	Entries []OrderEntry
}

// NewOrder creates an empty sort order.
func NewOrder() *Order { return &Order{} }

// AddColumn appends a column-choice order entry and returns it so the
// caller can record the fallback column list with AddChoice.
func (o *Order) AddColumn(mode value.CmpMode, dir Direction) *OrderEntry {
	o.Entries = append(o.Entries, OrderEntry{Mode: mode, Direction: dir})
	return &o.Entries[len(o.Entries)-1]
}

// AddRandom appends a random order entry seeded deterministically.
func (o *Order) AddRandom(seed int64) *OrderEntry {
	o.Entries = append(o.Entries, OrderEntry{Random: rand.New(rand.NewSource(seed))})
	return &o.Entries[len(o.Entries)-1]
}

// AddChoice appends a fallback column index to a column-choice entry.
func (e *OrderEntry) AddChoice(col int) {
	e.Columns = append(e.Columns, col)
}

// Row is one result row: col cells, each possibly nil (an unmatched
// fetch item). Tuple references inside a Row's cells point into the
// live entry data (spec.md §4.3: valid for as long as the transaction
// holds its shared locks).
type Row struct {
	Cols []query.Column
	refs int32
}

// NewRow wraps a query.Row's columns as an unreferenced result row.
func NewRow(qr query.Row) *Row {
	return &Row{Cols: qr.Columns}
}

// Ref increments the row's reference count.
func (r *Row) Ref() { atomic.AddInt32(&r.refs, 1) }

// Unref decrements the row's reference count (spec.md §4.3's
// add_row/unref bookkeeping; Go's GC reclaims the row once nothing
// references it, this just mirrors the original's accounting surface
// for callers that track it explicitly).
func (r *Row) Unref() { atomic.AddInt32(&r.refs, -1) }

// Col returns the row's cell at col, or nil if out of range or unset.
func (r *Row) Col(col int) query.Column {
	if col < 0 || col >= len(r.Cols) {
		return nil
	}
	return r.Cols[col]
}

// Set is a ref-counted collection of same-shaped rows.
type Set struct {
	colCount int
	rows     []*Row
	refs     int32
}

// New creates an empty Set expecting colCount columns per row.
func New(colCount int) *Set {
	return &Set{colCount: colCount, refs: 1}
}

// AddRow appends row to the set, taking a reference on it.
func (s *Set) AddRow(row *Row) {
	row.Ref()
	s.rows = append(s.rows, row)
}

// Row returns the row at index, or nil if out of bounds.
func (s *Set) Row(index int) (*Row, bool) {
	if index < 0 || index >= len(s.rows) {
		return nil, false
	}
	return s.rows[index], true
}

// RowCount reports how many rows the set holds.
func (s *Set) RowCount() int { return len(s.rows) }

// ColCount reports the fixed number of columns every row has.
func (s *Set) ColCount() int { return s.colCount }

// Ref increments the set's reference count.
func (s *Set) Ref() { atomic.AddInt32(&s.refs, 1) }

// Unref decrements the set's reference count.
func (s *Set) Unref() { atomic.AddInt32(&s.refs, -1) }

// cellValue returns the representative value of a column cell: the
// first tuple's val_b (a column may hold several tuples tied for best
// priority; the comparator only looks at the first, matching the
// original's direct s4_result_get_val on the head of the result list).
func cellValue(col query.Column) (*value.Value, bool) {
	if len(col) == 0 {
		return nil, false
	}
	return col[0].ValB, true
}

func firstNonEmpty(row *Row, choices []int) (*value.Value, bool) {
	for _, col := range choices {
		if v, ok := cellValue(row.Col(col)); ok {
			return v, true
		}
	}
	return nil, false
}

// compareEntry compares two rows on a single order entry, returning a
// signed int the way value.Cmp does, with nulls (no non-empty column in
// the choice list) sorting first.
func compareEntry(e OrderEntry, a, b *Row) int {
	if e.Random != nil {
		return e.Random.Intn(3) - 1 // {-1, 0, 1}, mirrors GRand's [-1,2) draw
	}

	av, aok := firstNonEmpty(a, e.Columns)
	bv, bok := firstNonEmpty(b, e.Columns)

	var ret int
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	default:
		ret = value.Cmp(av, bv, e.Mode)
	}

	if e.Direction == Desc {
		ret = -ret
	}
	return ret
}

// Sort orders the set's rows per order, breaking ties by original
// position (a stable sort, matching _compare_rows's row1-row2 tie-break).
func (s *Set) Sort(order *Order) {
	if len(order.Entries) == 0 {
		return
	}
	sort.SliceStable(s.rows, func(i, j int) bool {
		for _, e := range order.Entries {
			if c := compareEntry(e, s.rows[i], s.rows[j]); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// Shuffle reorders the set's rows pseudo-randomly using rnd.
func (s *Set) Shuffle(rnd *rand.Rand) {
	rnd.Shuffle(len(s.rows), func(i, j int) {
		s.rows[i], s.rows[j] = s.rows[j], s.rows[i]
	})
}
