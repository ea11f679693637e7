package query

import "github.com/relatedb/s4/internal/store"

// CombinerKind identifies a Combiner's boolean operation (spec.md §4.3).
type CombinerKind int

const (
	And CombinerKind = iota
	Or
	Not
	CustomCombiner
)

// Combiner is an internal condition-tree node combining other Conditions
// (spec.md §4.3 "Combiner nodes"). And/Or short-circuit; Not takes
// exactly one child; Custom declares its own monotonicity and combines
// its children with an arbitrary boolean function.
type Combiner struct {
	kind     CombinerKind
	children []Condition

	customFn   func(results []bool) bool
	customMono bool
}

// NewAnd builds an And combiner: true iff every child is true, short-
// circuiting on the first false.
func NewAnd(children ...Condition) *Combiner {
	return &Combiner{kind: And, children: children}
}

// NewOr builds an Or combiner: true iff any child is true, short-
// circuiting on the first true.
func NewOr(children ...Condition) *Combiner {
	return &Combiner{kind: Or, children: children}
}

// NewNot builds a Not combiner negating a single child.
func NewNot(child Condition) *Combiner {
	return &Combiner{kind: Not, children: []Condition{child}}
}

// NewCustomCombiner builds a Custom combiner around fn, declaring its own
// monotonicity (spec.md §4.3: "Custom declares itself").
func NewCustomCombiner(fn func(results []bool) bool, monotonic bool, children ...Condition) *Combiner {
	return &Combiner{kind: CustomCombiner, children: children, customFn: fn, customMono: monotonic}
}

// Monotonic reports whether the combiner preserves monotonicity: And/Or
// are monotonic iff every child is; Not is never monotonic (negation
// flips order); Custom declares itself.
func (c *Combiner) Monotonic() bool {
	switch c.kind {
	case And, Or:
		for _, ch := range c.children {
			if !ch.Monotonic() {
				return false
			}
		}
		return true
	case CustomCombiner:
		return c.customMono
	default:
		return false
	}
}

func (c *Combiner) evalChildren(entry *store.Entry) []bool {
	out := make([]bool, len(c.children))
	for i, ch := range c.children {
		out[i] = ch.evalEntry(entry)
	}
	return out
}

func (c *Combiner) evalEntry(entry *store.Entry) bool {
	switch c.kind {
	case And:
		for _, ch := range c.children {
			if !ch.evalEntry(entry) {
				return false
			}
		}
		return true
	case Or:
		for _, ch := range c.children {
			if ch.evalEntry(entry) {
				return true
			}
		}
		return false
	case Not:
		return !c.children[0].evalEntry(entry)
	case CustomCombiner:
		return c.customFn(c.evalChildren(entry))
	default:
		return false
	}
}
