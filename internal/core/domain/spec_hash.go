package domain

import (
	"crypto/sha256"
	"encoding/base32"
	"hash"
	"slices"
	"strings"
)

// SpecHashLength is the number of characters kept from an encoded spec digest.
const SpecHashLength = 32

var specHashEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// DAGHash returns the digest over package identity and the dependency DAG.
// Recipe revision and patches do not contribute.
func (s *Spec) DAGHash() string {
	return s.digest(false, make(map[*Spec]string))
}

// FullHash returns the digest that additionally covers the recipe hash,
// patch digests, and the full hashes of all dependencies.
func (s *Spec) FullHash() string {
	return s.digest(true, make(map[*Spec]string))
}

func (s *Spec) digest(full bool, memo map[*Spec]string) string {
	if v, ok := memo[s]; ok {
		return v
	}

	h := sha256.New()
	writeField(h, "name", s.Name)
	writeField(h, "version", s.Version)
	writeField(h, "platform", s.Arch.Platform)
	writeField(h, "platform_os", s.Arch.OS)
	writeField(h, "target", s.Arch.Target)
	writeField(h, "compiler", s.Compiler.Name)
	writeField(h, "compiler_version", s.Compiler.Version)

	keys := make([]string, 0, len(s.Variants))
	for k := range s.Variants {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		writeField(h, "variant", k)
		writeField(h, "value", s.Variants[k])
	}

	if full {
		writeField(h, "package_hash", s.PackageHash)
		for _, p := range slices.Sorted(slices.Values(s.Patches)) {
			writeField(h, "patch", p)
		}
	}

	deps := make([]depDigest, 0, len(s.Dependencies))
	for _, d := range s.Dependencies {
		types := slices.Sorted(slices.Values(d.Types))
		deps = append(deps, depDigest{
			name:  d.Spec.Name,
			hash:  d.Spec.digest(full, memo),
			types: strings.Join(types, ","),
		})
	}
	slices.SortFunc(deps, func(a, b depDigest) int {
		if c := strings.Compare(a.name, b.name); c != 0 {
			return c
		}
		return strings.Compare(a.hash, b.hash)
	})
	for _, d := range deps {
		writeField(h, "dependency", d.name)
		writeField(h, "hash", d.hash)
		writeField(h, "type", d.types)
	}

	sum := strings.ToLower(specHashEncoding.EncodeToString(h.Sum(nil)))[:SpecHashLength]
	memo[s] = sum
	return sum
}

type depDigest struct {
	name  string
	hash  string
	types string
}

// writeField writes a key/value pair with separator bytes so that adjacent
// fields cannot be confused.
func writeField(h hash.Hash, key, value string) {
	_, _ = h.Write([]byte(key))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(value))
	_, _ = h.Write([]byte{0})
}
