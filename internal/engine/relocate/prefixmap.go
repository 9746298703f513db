package relocate

import (
	"bytes"
	"cmp"
	"slices"
	"strings"
)

// Pair is one old to new prefix substitution.
type Pair struct {
	Old string
	New string
}

// PrefixMap is an ordered set of prefix substitutions, longest old prefix first.
type PrefixMap struct {
	pairs []Pair
}

// NewPrefixMap builds a PrefixMap from old to new prefixes. Trailing
// slashes are trimmed and empty old prefixes are dropped. A prefix mapped
// onto itself is kept so it still shadows shorter prefixes.
func NewPrefixMap(m map[string]string) *PrefixMap {
	pairs := make([]Pair, 0, len(m))
	for o, n := range m {
		o, n = trimSlash(o), trimSlash(n)
		if o == "" || o == "/" {
			continue
		}
		pairs = append(pairs, Pair{Old: o, New: n})
	}
	slices.SortFunc(pairs, func(a, b Pair) int {
		return cmp.Or(cmp.Compare(len(b.Old), len(a.Old)), strings.Compare(a.Old, b.Old))
	})
	return &PrefixMap{pairs: pairs}
}

// Pairs returns the substitutions in application order.
func (p *PrefixMap) Pairs() []Pair {
	return slices.Clone(p.pairs)
}

// Len returns the number of substitutions.
func (p *PrefixMap) Len() int {
	return len(p.pairs)
}

// Changes reports whether any substitution maps a prefix elsewhere.
func (p *PrefixMap) Changes() bool {
	return slices.ContainsFunc(p.pairs, func(pr Pair) bool { return pr.Old != pr.New })
}

// Contains reports whether data mentions any old prefix that would change.
func (p *PrefixMap) Contains(data []byte) bool {
	for _, pr := range p.pairs {
		if pr.Old != pr.New && bytes.Contains(data, []byte(pr.Old)) {
			return true
		}
	}
	return false
}

// Rewrite substitutes old prefixes in a single left to right pass. Where a
// new prefix already starts at the current offset and is at least as long as
// the longest matching old prefix, it is copied unchanged, so rewriting
// relocated data again is a no-op.
func (p *PrefixMap) Rewrite(data []byte) ([]byte, bool) {
	if !p.Contains(data) {
		return data, false
	}

	out := make([]byte, 0, len(data))
	changed := false
	for i := 0; i < len(data); {
		rest := data[i:]

		oldIdx := -1
		for j, pr := range p.pairs {
			if bytes.HasPrefix(rest, []byte(pr.Old)) {
				oldIdx = j
				break
			}
		}
		newLen := 0
		for _, pr := range p.pairs {
			if len(pr.New) > newLen && bytes.HasPrefix(rest, []byte(pr.New)) {
				newLen = len(pr.New)
			}
		}

		switch {
		case newLen > 0 && (oldIdx < 0 || newLen >= len(p.pairs[oldIdx].Old)):
			out = append(out, rest[:newLen]...)
			i += newLen
		case oldIdx >= 0:
			pr := p.pairs[oldIdx]
			out = append(out, pr.New...)
			i += len(pr.Old)
			changed = changed || pr.Old != pr.New
		default:
			out = append(out, data[i])
			i++
		}
	}
	return out, changed
}

// RewritePath substitutes the longest old prefix that matches s on a path
// component boundary. A path already below a new prefix at least as long as
// that old prefix is left unchanged, as in Rewrite.
func (p *PrefixMap) RewritePath(s string) (string, bool) {
	newLen := 0
	for _, pr := range p.pairs {
		if len(pr.New) > newLen && hasPathPrefix(s, pr.New) {
			newLen = len(pr.New)
		}
	}
	for _, pr := range p.pairs {
		if !hasPathPrefix(s, pr.Old) {
			continue
		}
		if pr.Old == pr.New || newLen >= len(pr.Old) {
			return s, false
		}
		return pr.New + s[len(pr.Old):], true
	}
	return s, false
}

func hasPathPrefix(s, prefix string) bool {
	return s == prefix || strings.HasPrefix(s, prefix+"/")
}

func trimSlash(s string) string {
	if len(s) > 1 {
		return strings.TrimRight(s, "/")
	}
	return s
}

// Within reports whether path is root or lies below it.
func Within(path, root string) bool {
	return hasPathPrefix(path, trimSlash(root))
}
