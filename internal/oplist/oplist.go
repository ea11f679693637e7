// Package oplist implements the per-transaction logical operation log
// (spec.md §3, §4.4, component C6): an ordered list of Add/Del/Writing
// entries, replayable in reverse as inverse operations for rollback.
//
// Grounded on original_source/src/lib/oplist.c, which prepends ops to a
// GList and walks it with a cursor; adapted here to a plain append-only
// Go slice (insertion order is already the commit order we need, and Go
// has no cheap O(1)-prepend list worth reaching for).
package oplist

import "github.com/relatedb/s4/internal/value"

// Kind distinguishes an operation's effect.
type Kind int

const (
	Add Kind = iota
	Del
	// Writing is a marker the checkpoint process inserts to record that
	// every operation above it has already been serialized to the
	// snapshot file (spec.md §3, §4.5).
	Writing
)

// Op is one entry in a transaction's operation log.
type Op struct {
	Kind Kind
	KeyA *value.InternedStr
	ValA *value.Value
	KeyB *value.InternedStr
	ValB *value.Value
	Src  *value.InternedStr
}

// Inverse returns the operation that undoes Op: Add inverts to Del and
// vice versa. Calling Inverse on a Writing marker panics, since markers
// are never rolled back individually.
func (op Op) Inverse() Op {
	switch op.Kind {
	case Add:
		inv := op
		inv.Kind = Del
		return inv
	case Del:
		inv := op
		inv.Kind = Add
		return inv
	default:
		panic("oplist: Writing markers have no inverse")
	}
}

// List is a transaction's append-only operation log.
type List struct {
	ops []Op
}

// New creates an empty operation list.
func New() *List {
	return &List{}
}

// InsertAdd appends an Add entry.
func (l *List) InsertAdd(keyA *value.InternedStr, valA *value.Value, keyB *value.InternedStr, valB *value.Value, src *value.InternedStr) {
	l.ops = append(l.ops, Op{Kind: Add, KeyA: keyA, ValA: valA, KeyB: keyB, ValB: valB, Src: src})
}

// InsertDel appends a Del entry.
func (l *List) InsertDel(keyA *value.InternedStr, valA *value.Value, keyB *value.InternedStr, valB *value.Value, src *value.InternedStr) {
	l.ops = append(l.ops, Op{Kind: Del, KeyA: keyA, ValA: valA, KeyB: keyB, ValB: valB, Src: src})
}

// InsertWriting appends a Writing marker.
func (l *List) InsertWriting() {
	l.ops = append(l.ops, Op{Kind: Writing})
}

// Ops returns the log in commit order.
func (l *List) Ops() []Op {
	out := make([]Op, len(l.ops))
	copy(out, l.ops)
	return out
}

// Len reports the number of entries logged so far.
func (l *List) Len() int {
	return len(l.ops)
}

// Rollback returns the inverse of every non-marker operation logged so
// far, in reverse order — the sequence internal/txn replays against the
// store to undo a failed transaction (spec.md §4.4: "abort rolls back the
// op list in reverse, applying inverse operations").
func (l *List) Rollback() []Op {
	inverses := make([]Op, 0, len(l.ops))
	for i := len(l.ops) - 1; i >= 0; i-- {
		if l.ops[i].Kind == Writing {
			continue
		}
		inverses = append(inverses, l.ops[i].Inverse())
	}
	return inverses
}
