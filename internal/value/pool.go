package value

import "sync"

// InternedStr is a pointer to a canonicalized string. Within one Pool,
// pointer equality of *InternedStr values is equivalent to string equality
// (spec.md §3, "Key"/"Source"). The zero value is not valid; obtain one
// from Pool.InternStr.
type InternedStr struct {
	s string
}

// String returns the underlying string.
func (is *InternedStr) String() string { return is.s }

// InternedValue is a pointer to a canonicalized integer constant
// (spec.md §4.1, intern_int).
type InternedValue struct {
	i int32
}

// Int returns the underlying integer.
func (iv *InternedValue) Int() int32 { return iv.i }

// Pool is the per-database interning authority for keys, sources, and
// integer constants (spec.md §4.1, §4.2: "Keys presented to the store are
// interned; within one database, pointer equality of keys is equivalent to
// string equality"). All four caches are mutex-protected maps, matching the
// original s4 strstore/constant-pool design (see DESIGN.md).
type Pool struct {
	mu       sync.Mutex
	strs     map[string]*InternedStr
	casefold map[*InternedStr]*InternedStr
	collate  map[*InternedStr]*InternedStr
	ints     map[int32]*InternedValue
}

// NewPool creates an empty interning pool.
func NewPool() *Pool {
	return &Pool{
		strs:     make(map[string]*InternedStr),
		casefold: make(map[*InternedStr]*InternedStr),
		collate:  make(map[*InternedStr]*InternedStr),
		ints:     make(map[int32]*InternedValue),
	}
}

// InternStr returns the canonical *InternedStr for s, creating it on first
// use. Safe for concurrent use.
func (p *Pool) InternStr(s string) *InternedStr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if is, ok := p.strs[s]; ok {
		return is
	}
	is := &InternedStr{s: s}
	p.strs[s] = is
	return is
}

// InternInt returns the canonical *InternedValue for i, creating it on
// first use.
func (p *Pool) InternInt(i int32) *InternedValue {
	p.mu.Lock()
	defer p.mu.Unlock()
	if iv, ok := p.ints[i]; ok {
		return iv
	}
	iv := &InternedValue{i: i}
	p.ints[i] = iv
	return iv
}

// InternCasefold returns the canonical case-folded InternedStr derived from
// is, computing and caching it on first use.
func (p *Pool) InternCasefold(is *InternedStr) *InternedStr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cf, ok := p.casefold[is]; ok {
		return cf
	}
	cf := p.strs[lowerKey(is.s)]
	if cf == nil {
		cf = &InternedStr{s: lowerKey(is.s)}
	}
	p.casefold[is] = cf
	return cf
}

// InternCollate returns the canonical collation-key InternedStr derived
// from is, computing and caching it on first use.
func (p *Pool) InternCollate(is *InternedStr) *InternedStr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ck, ok := p.collate[is]; ok {
		return ck
	}
	ck := &InternedStr{s: collationKey(is.s)}
	p.collate[is] = ck
	return ck
}

func lowerKey(s string) string {
	v := Str(s)
	return v.GetCasefolded()
}
