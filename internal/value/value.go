// Package value implements the tagged scalar value type shared by every
// attribute in the store (spec.md §3, §4.1): an integer or a string, with
// lazily computed case-fold and collation keys, plus the per-database
// interning pools that make pointer equality stand in for value equality.
package value

import (
	"strconv"
	"strings"
	"sync"
)

// CmpMode selects which derived key two string values (or a string and an
// int) are compared under.
type CmpMode int

const (
	// Binary compares the raw bytes of strings.
	Binary CmpMode = iota
	// Caseless compares the Unicode case-folded form.
	Caseless
	// Collate compares the locale-aware collation key.
	Collate
)

// Value is either an integer or a string scalar. The zero Value is the
// integer 0; use Int or Str to construct one explicitly.
type Value struct {
	isStr bool
	i     int32
	s     string

	// lazily computed, guarded by mu; nil until first requested.
	mu       sync.Mutex
	casefold *string
	collate  *string
}

// Int constructs an integer value.
func Int(i int32) Value {
	return Value{isStr: false, i: i}
}

// Str constructs an owning string value. Use the database's Pool.InternStr
// instead when the caller wants pointer-equality semantics.
func Str(s string) Value {
	return Value{isStr: true, s: s}
}

// IsInt reports whether the value holds an integer.
func (v *Value) IsInt() bool { return !v.isStr }

// IsStr reports whether the value holds a string.
func (v *Value) IsStr() bool { return v.isStr }

// GetInt returns the integer payload; valid only if IsInt().
func (v *Value) GetInt() int32 { return v.i }

// GetStr returns the raw string payload; valid only if IsStr().
func (v *Value) GetStr() string { return v.s }

// GetCasefolded returns (and caches) the Unicode case-fold key for a string
// value. Valid only if IsStr().
func (v *Value) GetCasefolded() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.casefold == nil {
		cf := strings.ToLower(v.s)
		v.casefold = &cf
	}
	return *v.casefold
}

// GetCollated returns (and caches) the collation key for a string value.
// Valid only if IsStr(). The collation key used here is a simple
// locale-agnostic fold-and-normalize; see Pool for the interned, shared
// variant used by indices.
func (v *Value) GetCollated() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.collate == nil {
		ck := collationKey(v.s)
		v.collate = &ck
	}
	return *v.collate
}

// Copy produces an independent owning copy of v (derived keys are
// recomputed lazily on the copy, not shared).
func Copy(v Value) Value {
	if v.isStr {
		return Str(v.s)
	}
	return Int(v.i)
}

// collationKey produces a locale-aware-ish sort key: case-folded, with
// runs of digits zero-padded so "track2" sorts before "track10". This is a
// bespoke, deliberately simple collation — see DESIGN.md for why no
// ecosystem collation library was used.
func collationKey(s string) string {
	folded := strings.ToLower(s)
	var sb strings.Builder
	sb.Grow(len(folded) + 8)
	i := 0
	for i < len(folded) {
		c := folded[i]
		if c >= '0' && c <= '9' {
			j := i
			for j < len(folded) && folded[j] >= '0' && folded[j] <= '9' {
				j++
			}
			digits := folded[i:j]
			// zero-pad to a fixed width so numeric runs compare correctly
			// lexicographically regardless of magnitude.
			for len(digits) < 20 {
				digits = "0" + digits
			}
			sb.WriteString(digits)
			i = j
		} else {
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

// parseLeadingInt parses s as an integer with optional trailing non-numeric
// text, returning the integer, whether trailing text followed it, and
// whether s parsed as an integer at all.
func parseLeadingInt(s string) (n int64, hasTrailing bool, ok bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, false, false
	}
	i := 0
	if t[0] == '-' || t[0] == '+' {
		i++
	}
	start := i
	for i < len(t) && t[i] >= '0' && t[i] <= '9' {
		i++
	}
	if i == start {
		return 0, false, false
	}
	numPart := t[:i]
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, false, false
	}
	return n, i < len(t), true
}

// Cmp compares two values under mode, per spec.md §4.1:
//   - Int vs Int: numeric order.
//   - Str vs Str: compare the key implied by mode.
//   - Int vs Str under Binary/Caseless: integers sort after strings.
//   - Int vs Str under Collate: if the string parses as a leading integer,
//     compare numerically (tie broken by "has trailing text" — the value
//     with trailing text sorts after the pure integer); otherwise compare
//     the collation key of "1" against the collation key of the string,
//     which places the integer at the conventional numeric bucket.
func Cmp(a, b *Value, mode CmpMode) int {
	if !a.isStr && !b.isStr {
		return cmpInt32(a.i, b.i)
	}
	if a.isStr && b.isStr {
		switch mode {
		case Binary:
			return strings.Compare(a.s, b.s)
		case Caseless:
			return strings.Compare(a.GetCasefolded(), b.GetCasefolded())
		default:
			return strings.Compare(a.GetCollated(), b.GetCollated())
		}
	}

	// Mixed Int/Str.
	var iv *Value
	var sv *Value
	flip := false
	if a.isStr {
		sv, iv = a, b
		flip = true
	} else {
		iv, sv = a, b
	}

	var result int
	switch mode {
	case Binary, Caseless:
		// Integers sort after strings, unconditionally.
		result = 1
	default: // Collate
		if n, trailing, ok := parseLeadingInt(sv.s); ok {
			switch {
			case int64(iv.i) < n:
				result = -1
			case int64(iv.i) > n:
				result = 1
			case !trailing:
				result = 0
			default:
				// equal numeric prefix, string has trailing text -> string
				// sorts after the bare integer.
				result = -1
			}
		} else {
			oneKey := collationKey("1")
			result = strings.Compare(oneKey, sv.GetCollated())
			if result == 0 {
				// degenerate: shouldn't happen since sv isn't numeric, but
				// keep antisymmetry well-defined.
				result = -1
			}
		}
	}
	if flip {
		return -result
	}
	return result
}

func cmpInt32(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
