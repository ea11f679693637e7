// Package pattern implements the glob matcher used by Match filters, Token
// filters, and source preference (spec.md §6 Pattern): '?' matches any one
// character, '*' matches any run (possibly empty). A numeric pattern
// (digits, '?', '*' only, optionally prefixed by '-') additionally matches
// integer values digit-wise, used by Match filters against Int values.
//
// Grounded on original_source/src/lib/pattern.c's backtracking matcher.
package pattern

import (
	"strconv"
	"strings"
)

// Pattern is a compiled glob, optionally case-folding its input before
// matching.
type Pattern struct {
	raw      string
	casefold bool
	numeric  bool // true if raw contains only digits, '?', '*', optional leading '-'
}

// New compiles pattern p. If casefold is true, Match first case-folds the
// candidate string (the pattern itself is expected to already be in the
// casefolded form the caller wants to match against, mirroring the C API's
// contract of pre-folding both sides).
func New(p string, casefold bool) *Pattern {
	return &Pattern{raw: p, casefold: casefold, numeric: isNumericGlob(p)}
}

// IsNumeric reports whether the compiled pattern consists solely of
// digits/'?'/'*' (optionally prefixed by '-'), making it eligible for
// digit-wise integer matching.
func (pt *Pattern) IsNumeric() bool { return pt.numeric }

// Match reports whether s satisfies the pattern.
func (pt *Pattern) Match(s string) bool {
	cand := s
	if pt.casefold {
		cand = strings.ToLower(cand)
	}
	return globMatch(pt.raw, cand)
}

// MatchInt reports whether the decimal representation of i satisfies a
// numeric pattern, matched digit-wise (spec.md §6). Returns false if the
// pattern isn't numeric.
func (pt *Pattern) MatchInt(i int32) bool {
	if !pt.numeric {
		return false
	}
	return globMatch(pt.raw, strconv.FormatInt(int64(i), 10))
}

func isNumericGlob(p string) bool {
	if p == "" {
		return false
	}
	i := 0
	if p[0] == '-' {
		i = 1
	}
	if i >= len(p) {
		return false
	}
	for ; i < len(p); i++ {
		c := p[i]
		if !(c >= '0' && c <= '9') && c != '?' && c != '*' {
			return false
		}
	}
	return true
}

// globMatch implements standard shell-style glob matching with '?' and '*'
// using a simple two-pointer backtracking algorithm (no '/' special-casing,
// unlike path/filepath.Match, which spec.md's integer-pattern extension
// rules out as a fit).
func globMatch(pattern, s string) bool {
	pr := []rune(pattern)
	sr := []rune(s)
	return matchRunes(pr, sr)
}

func matchRunes(p, s []rune) bool {
	var pi, si int
	var starIdx = -1
	var matchIdx int

	for si < len(s) {
		if pi < len(p) && (p[pi] == '?' || p[pi] == s[si]) {
			pi++
			si++
		} else if pi < len(p) && p[pi] == '*' {
			starIdx = pi
			matchIdx = si
			pi++
		} else if starIdx != -1 {
			pi = starIdx + 1
			matchIdx++
			si = matchIdx
		} else {
			return false
		}
	}

	for pi < len(p) && p[pi] == '*' {
		pi++
	}

	return pi == len(p)
}

// Tokens splits s on Unicode whitespace, matching spec.md §4.3's Token
// filter ("whitespace-separated token match with optional trailing '*'").
func Tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

// MatchToken implements the Token filter kind: s matches if any
// whitespace-separated token of s equals operand, or — if operand ends in
// '*' — left-factor-matches (prefix match) any token.
func MatchToken(s, operand string, casefold bool) bool {
	prefix := false
	op := operand
	if strings.HasSuffix(op, "*") {
		prefix = true
		op = op[:len(op)-1]
	}
	if casefold {
		op = strings.ToLower(op)
	}
	for _, tok := range Tokens(s) {
		cand := tok
		if casefold {
			cand = strings.ToLower(cand)
		}
		if prefix {
			if strings.HasPrefix(cand, op) {
				return true
			}
		} else if cand == op {
			return true
		}
	}
	return false
}
