package domain

import (
	"cmp"
	"slices"
	"strings"
)

// SpecRecord locates one archive for a spec on a mirror.
type SpecRecord struct {
	MirrorURL string
	Spec      *Spec
}

// SpecRecords maps dag hashes to the mirrors hosting a matching archive.
type SpecRecords struct {
	byHash map[string][]SpecRecord
}

// NewSpecRecords returns an empty record set.
func NewSpecRecords() *SpecRecords {
	return &SpecRecords{byHash: make(map[string][]SpecRecord)}
}

// Merge adds records. A record for a mirror already present under the same
// dag hash replaces that mirror's spec; otherwise the record is appended.
func (r *SpecRecords) Merge(recs ...SpecRecord) {
	for _, rec := range recs {
		h := rec.Spec.DAGHash()
		existing := r.byHash[h]
		i := slices.IndexFunc(existing, func(e SpecRecord) bool {
			return e.MirrorURL == rec.MirrorURL
		})
		if i >= 0 {
			existing[i] = rec
			continue
		}
		r.byHash[h] = append(existing, rec)
	}
}

// Find returns the records for dagHash. A non-empty fullHash keeps only
// records whose spec has exactly that full hash.
func (r *SpecRecords) Find(dagHash, fullHash string) []SpecRecord {
	var out []SpecRecord
	for _, rec := range r.byHash[dagHash] {
		if fullHash != "" && rec.Spec.FullHash() != fullHash {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Specs returns one spec per dag hash, ordered by name then hash.
func (r *SpecRecords) Specs() []*Spec {
	out := make([]*Spec, 0, len(r.byHash))
	for _, recs := range r.byHash {
		if len(recs) > 0 {
			out = append(out, recs[0].Spec)
		}
	}
	slices.SortFunc(out, func(a, b *Spec) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.DAGHash(), b.DAGHash()))
	})
	return out
}

// Len returns the number of distinct dag hashes.
func (r *SpecRecords) Len() int {
	return len(r.byHash)
}
