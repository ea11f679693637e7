// Package sourcepref implements source preference: an ordered list of glob
// patterns assigning each source name a priority, the lower the better
// (spec.md §3, §4.1, §6).
package sourcepref

import "github.com/relatedb/s4/internal/pattern"

// MaxPriority is the priority assigned to a source that matches no pattern
// (spec.md §6: "INT_MAX when no pattern matches").
const MaxPriority = int(^uint(0) >> 1)

// SourcePref is an ordered list of glob patterns.
type SourcePref struct {
	patterns []*pattern.Pattern
}

// New compiles an ordered pattern list into a SourcePref.
func New(patterns []string) *SourcePref {
	sp := &SourcePref{patterns: make([]*pattern.Pattern, len(patterns))}
	for i, p := range patterns {
		sp.patterns[i] = pattern.New(p, false)
	}
	return sp
}

// GetPriority returns the index of the first pattern matching src, or
// MaxPriority if none match.
func (sp *SourcePref) GetPriority(src string) int {
	if sp == nil {
		return MaxPriority
	}
	for i, p := range sp.patterns {
		if p.Match(src) {
			return i
		}
	}
	return MaxPriority
}
