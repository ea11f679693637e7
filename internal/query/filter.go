// Package query implements the condition tree, entry-selection strategy,
// and projection (fetch) logic of spec.md §4.3 (components C8, C10):
// Filter and Combiner nodes evaluated against store.Entry, condition-
// driven index-hint-vs-full-scan selection, and FetchSpec-driven row
// projection into internal/resultset rows.
//
// Grounded on the teacher's internal/query/evaluator.go for the general
// shape of a condition tree plus an optional textual DSL compiling into
// it (lexer.go/parser.go, adapted here to this domain's Filter/Combiner
// nodes instead of issue-tracker ComparisonNode/AndNode/OrNode), and on
// original_source/src/lib/cond.c for the Filter/Combiner kind set and the
// monotonic/best-priority evaluation rules themselves.
package query

import (
	"strconv"

	"github.com/relatedb/s4/internal/pattern"
	"github.com/relatedb/s4/internal/sourcepref"
	"github.com/relatedb/s4/internal/store"
	"github.com/relatedb/s4/internal/value"
)

// Kind identifies a Filter's comparison (spec.md §4.3).
type Kind int

const (
	Equal Kind = iota
	NotEqual
	Greater
	Smaller
	GreaterEq
	SmallerEq
	Match
	Exists
	Token
	Custom
)

// Filter is a leaf condition node (spec.md §4.3 "Filter nodes").
type Filter struct {
	kind    Kind
	key     *value.InternedStr // nil = "any key" (None)
	operand *value.Value
	pat     *pattern.Pattern
	tokOp   string
	casefol bool
	mode    value.CmpMode
	parent  bool
	srcPref *sourcepref.SourcePref

	customFn   func(v *value.Value) bool
	customMono bool
}

// NewEqual builds an Equal filter comparing entries/tuples under key to
// operand using mode.
func NewEqual(key *value.InternedStr, operand *value.Value, mode value.CmpMode) *Filter {
	return &Filter{kind: Equal, key: key, operand: operand, mode: mode}
}

// NewNotEqual builds a NotEqual filter.
func NewNotEqual(key *value.InternedStr, operand *value.Value, mode value.CmpMode) *Filter {
	return &Filter{kind: NotEqual, key: key, operand: operand, mode: mode}
}

// NewGreater builds a Greater filter.
func NewGreater(key *value.InternedStr, operand *value.Value, mode value.CmpMode) *Filter {
	return &Filter{kind: Greater, key: key, operand: operand, mode: mode}
}

// NewSmaller builds a Smaller filter.
func NewSmaller(key *value.InternedStr, operand *value.Value, mode value.CmpMode) *Filter {
	return &Filter{kind: Smaller, key: key, operand: operand, mode: mode}
}

// NewGreaterEq builds a GreaterEq filter.
func NewGreaterEq(key *value.InternedStr, operand *value.Value, mode value.CmpMode) *Filter {
	return &Filter{kind: GreaterEq, key: key, operand: operand, mode: mode}
}

// NewSmallerEq builds a SmallerEq filter.
func NewSmallerEq(key *value.InternedStr, operand *value.Value, mode value.CmpMode) *Filter {
	return &Filter{kind: SmallerEq, key: key, operand: operand, mode: mode}
}

// NewMatch builds a glob Match filter (non-monotonic).
func NewMatch(key *value.InternedStr, pat *pattern.Pattern) *Filter {
	return &Filter{kind: Match, key: key, pat: pat}
}

// NewExists builds an Exists filter: matches any tuple/value present
// under key regardless of content.
func NewExists(key *value.InternedStr) *Filter {
	return &Filter{kind: Exists, key: key}
}

// NewToken builds a Token filter: matches if operand equals, or (if
// operand ends in '*') prefix-matches, a whitespace-separated token of
// the candidate string, or the decimal form of a candidate int.
func NewToken(key *value.InternedStr, operand string, casefold bool) *Filter {
	return &Filter{kind: Token, key: key, tokOp: operand, casefol: casefold}
}

// NewCustom builds a Custom filter around fn, declaring its own
// monotonicity (spec.md §4.3: "Custom declares itself").
func NewCustom(key *value.InternedStr, fn func(v *value.Value) bool, monotonic bool) *Filter {
	return &Filter{kind: Custom, key: key, customFn: fn, customMono: monotonic}
}

// WithSourcePref attaches a source preference used to compute the
// best-priority subset during group evaluation (spec.md §4.3). Returns f
// for chaining.
func (f *Filter) WithSourcePref(sp *sourcepref.SourcePref) *Filter {
	f.srcPref = sp
	return f
}

// WithParent sets the PARENT flag: the filter also (or instead, when key
// is None) addresses the entry's own identifying value (spec.md §4.3,
// §9; see DESIGN.md Open Question 1).
func (f *Filter) WithParent() *Filter {
	f.parent = true
	return f
}

// Key returns the filter's key, or nil for "any key".
func (f *Filter) Key() *value.InternedStr { return f.key }

// Parent reports whether the PARENT flag is set.
func (f *Filter) Parent() bool { return f.parent }

// Monotonic reports whether the filter preserves casefold index order
// (spec.md §4.3): Equal/Greater/Smaller/GreaterEq/SmallerEq/Exists do;
// NotEqual/Match/Token don't; Custom declares itself.
func (f *Filter) Monotonic() bool {
	switch f.kind {
	case Equal, Greater, Smaller, GreaterEq, SmallerEq, Exists:
		return true
	case Custom:
		return f.customMono
	default:
		return false
	}
}

// evalValue applies the filter directly to a single value (used both for
// PARENT/val_a evaluation and per-tuple evaluation within a group).
func (f *Filter) evalValue(v *value.Value) bool {
	switch f.kind {
	case Equal:
		return value.Cmp(v, f.operand, f.mode) == 0
	case NotEqual:
		return value.Cmp(v, f.operand, f.mode) != 0
	case Greater:
		return value.Cmp(v, f.operand, f.mode) > 0
	case Smaller:
		return value.Cmp(v, f.operand, f.mode) < 0
	case GreaterEq:
		return value.Cmp(v, f.operand, f.mode) >= 0
	case SmallerEq:
		return value.Cmp(v, f.operand, f.mode) <= 0
	case Match:
		if v.IsInt() {
			return f.pat.MatchInt(v.GetInt())
		}
		return f.pat.Match(v.GetStr())
	case Exists:
		return true
	case Token:
		s := v.GetStr()
		if v.IsInt() {
			s = strconv.Itoa(int(v.GetInt()))
		}
		return pattern.MatchToken(s, f.tokOp, f.casefol)
	case Custom:
		return f.customFn(v)
	default:
		return false
	}
}

func (f *Filter) priority(src *value.InternedStr) int {
	if f.srcPref == nil {
		return 0
	}
	return f.srcPref.GetPriority(src.String())
}

// evalGroup applies the best-priority rule (spec.md §4.3, DESIGN.md Open
// Question 2): compute the minimum priority among the group's tuples,
// then require every tuple at that best priority to satisfy the filter
// (AND semantics within the best-priority subset).
func evalGroup(f *Filter, group []store.AttrTuple) bool {
	if len(group) == 0 {
		return false
	}
	best := f.priority(group[0].Src)
	for _, t := range group[1:] {
		if p := f.priority(t.Src); p < best {
			best = p
		}
	}
	matched := false
	for _, t := range group {
		if f.priority(t.Src) != best {
			continue
		}
		matched = true
		if !f.evalValue(t.ValB) {
			return false
		}
	}
	return matched
}
