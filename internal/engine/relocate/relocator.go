// Package relocate rewrites the install prefixes embedded in binaries, text
// files, and symlinks.
package relocate

import (
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/zerr"
)

// LinkKind classifies a dynamic-linker string inside a binary.
type LinkKind int

// Link string kinds.
const (
	KindRpath LinkKind = iota
	KindNeeded
	KindInterp
	KindDylib
	KindID
)

// LinkString is a dynamic-linker string located in a binary. Capacity is the
// largest replacement that fits in place, excluding the terminating NUL.
type LinkString struct {
	Kind     LinkKind
	Offset   int64
	Capacity int
	Value    string
}

// BinaryRelocator rewrites the link metadata of one binary format.
type BinaryRelocator interface {
	// Format names the binary format.
	Format() string
	// Match reports whether header starts a file of this format.
	Match(header []byte) bool
	// LinkStrings lists the dynamic-linker strings of the file at path.
	LinkStrings(path string) ([]LinkString, error)
	// Relocate rewrites every link string through pm.
	Relocate(path string, pm *PrefixMap) error
	// MakeRelative rewrites link strings pointing inside root relative to the
	// binary's original location origPath.
	MakeRelative(path, origPath, root string) error
}

// patchLinkStrings applies rewrite to every link string and writes the
// results in place, NUL padded to the original slot.
func patchLinkStrings(path string, strs []LinkString, rewrite func(LinkString) string) error {
	type patch struct {
		offset int64
		data   []byte
	}
	var patches []patch
	seen := map[int64]bool{}

	for _, ls := range strs {
		if seen[ls.Offset] {
			continue
		}
		seen[ls.Offset] = true

		updated := rewrite(ls)
		if updated == ls.Value {
			continue
		}
		if len(updated) > ls.Capacity {
			return zerr.With(zerr.With(zerr.Wrap(domain.ErrNotRelocatable, "replacement does not fit in place"),
				"path", path), "string", updated)
		}
		data := make([]byte, ls.Capacity+1)
		copy(data, updated)
		patches = append(patches, patch{offset: ls.Offset, data: data})
	}
	if len(patches) == 0 {
		return nil
	}

	return withWritable(path, func() error {
		//nolint:gosec // Path is a file inside the prefix being relocated
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", path)
		}
		for _, p := range patches {
			if _, err := f.WriteAt(p.data, p.offset); err != nil {
				_ = f.Close()
				return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
			}
		}
		return f.Close()
	})
}

// rewriteSearchPath rewrites each element of a colon separated search path.
func rewriteSearchPath(value string, fn func(string) string) string {
	parts := strings.Split(value, ":")
	for i, p := range parts {
		parts[i] = fn(p)
	}
	return strings.Join(parts, ":")
}

// relativeTo returns target relative to the directory of origPath when
// target is absolute and inside root, using anchor as the origin token.
func relativeTo(anchor, target, origPath, root string) (string, bool) {
	if !filepath.IsAbs(target) || !hasPathPrefix(target, trimSlash(root)) {
		return target, false
	}
	rel, err := filepath.Rel(filepath.Dir(origPath), target)
	if err != nil {
		return target, false
	}
	if rel == "." {
		return anchor, true
	}
	return anchor + "/" + filepath.ToSlash(rel), true
}

// withWritable runs fn with the owner write bit set on path and restores
// the original mode afterwards.
func withWritable(path string, fn func() error) error {
	info, err := os.Stat(path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", path)
	}
	mode := info.Mode().Perm()
	if mode&0o200 != 0 {
		return fn()
	}
	if err := os.Chmod(path, mode|0o200); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
	}
	fnErr := fn()
	if err := os.Chmod(path, mode); err != nil && fnErr == nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
	}
	return fnErr
}
