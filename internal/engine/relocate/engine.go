package relocate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/core/ports"
	"go.trai.ch/zerr"
)

const maxReportedString = 120

// Engine applies prefix relocation to the files of an install prefix.
type Engine struct {
	relocators []BinaryRelocator
	logger     ports.Logger
}

// NewEngine creates an Engine. Without relocators, ELF and Mach-O are supported.
func NewEngine(logger ports.Logger, relocators ...BinaryRelocator) *Engine {
	if len(relocators) == 0 {
		relocators = []BinaryRelocator{ELFRelocator{}, MachORelocator{}}
	}
	return &Engine{relocators: relocators, logger: logger}
}

// Sniff returns the relocator for the binary at path, or nil when the file
// is not a supported binary. Object files are never relocated.
func (e *Engine) Sniff(path string) (BinaryRelocator, error) {
	if strings.HasSuffix(path, ".o") {
		return nil, nil
	}
	head, err := readHead(path, 8)
	if err != nil {
		return nil, err
	}
	for _, r := range e.relocators {
		if r.Match(head) {
			return r, nil
		}
	}
	return nil, nil
}

// IsText reports whether the file at path looks like UTF-8 text.
func (e *Engine) IsText(path string) (bool, error) {
	head, err := readHead(path, sniffSize)
	if err != nil {
		return false, err
	}
	return looksLikeText(head), nil
}

// Mentions reports whether the file at path contains any of needles.
func (e *Engine) Mentions(path string, needles []string) (bool, error) {
	//nolint:gosec // Path is a file inside the prefix being inspected
	data, err := os.ReadFile(path)
	if err != nil {
		return false, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", path)
	}
	for _, n := range needles {
		if n != "" && bytes.Contains(data, []byte(n)) {
			return true, nil
		}
	}
	return false, nil
}

// RelocateBinaries rewrites the link metadata of every binary through pm.
func (e *Engine) RelocateBinaries(paths []string, pm *PrefixMap) error {
	for _, p := range paths {
		r, err := e.mustSniff(p)
		if err != nil {
			return err
		}
		if err := r.Relocate(p, pm); err != nil {
			return err
		}
	}
	e.debug(fmt.Sprintf("relocated %d binaries", len(paths)))
	return nil
}

// MakeBinariesRelative rewrites link metadata pointing inside root relative
// to each binary's original location. origPaths pairs with paths.
func (e *Engine) MakeBinariesRelative(paths, origPaths []string, root string) error {
	if len(paths) != len(origPaths) {
		return zerr.Wrap(domain.ErrInvalidManifest, "binary and original path lists differ in length")
	}
	for i, p := range paths {
		r, err := e.mustSniff(p)
		if err != nil {
			return err
		}
		if err := r.MakeRelative(p, origPaths[i], root); err != nil {
			return err
		}
	}
	return nil
}

// RaiseIfNotRelocatable fails when a binary embeds one of roots in a string
// that is not link metadata, since such strings cannot be rewritten safely.
// allowRoot disables the check.
func (e *Engine) RaiseIfNotRelocatable(paths, roots []string, allowRoot bool) error {
	if allowRoot {
		e.debug("skipping relocatability check, hard-coded roots are allowed")
		return nil
	}
	for _, p := range paths {
		r, err := e.mustSniff(p)
		if err != nil {
			return err
		}
		if err := checkRelocatable(r, p, roots); err != nil {
			return err
		}
	}
	return nil
}

func checkRelocatable(r BinaryRelocator, path string, roots []string) error {
	links, err := r.LinkStrings(path)
	if err != nil {
		return err
	}
	//nolint:gosec // Path is a file inside the prefix being inspected
	data, err := os.ReadFile(path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", path)
	}

	covered := func(start, end int64) bool {
		for _, ls := range links {
			if start < ls.Offset+int64(ls.Capacity)+1 && ls.Offset < end {
				return true
			}
		}
		return false
	}

	for start := 0; start < len(data); {
		end := bytes.IndexByte(data[start:], 0)
		if end < 0 {
			end = len(data)
		} else {
			end += start
		}
		segment := data[start:end]
		for _, root := range roots {
			if root == "" || !bytes.Contains(segment, []byte(root)) {
				continue
			}
			if !covered(int64(start), int64(end)) {
				s := string(segment)
				if len(s) > maxReportedString {
					s = s[:maxReportedString] + "..."
				}
				return zerr.With(zerr.With(zerr.Wrap(domain.ErrNotRelocatable, "binary hard-codes an install root"),
					"path", path), "string", s)
			}
		}
		start = end + 1
	}
	return nil
}

// RelocateText substitutes prefixes in text files. Editor backups are skipped.
func (e *Engine) RelocateText(paths []string, pm *PrefixMap) error {
	for _, p := range paths {
		if strings.HasSuffix(p, "~") {
			continue
		}
		if err := rewriteText(p, pm); err != nil {
			return err
		}
	}
	e.debug(fmt.Sprintf("relocated %d text files", len(paths)))
	return nil
}

// RelocateTextBin substitutes prefixes in every NUL terminated string of
// the given binaries.
func (e *Engine) RelocateTextBin(paths []string, pm *PrefixMap) error {
	for _, p := range paths {
		if err := rewriteBinaryText(p, pm); err != nil {
			return err
		}
	}
	return nil
}

// RelocateLinks rewrites absolute symlink targets through pm.
func (e *Engine) RelocateLinks(paths []string, pm *PrefixMap) error {
	for _, p := range paths {
		target, err := os.Readlink(p)
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", p)
		}
		if !filepath.IsAbs(target) {
			continue
		}
		updated, ok := pm.RewritePath(target)
		if !ok {
			continue
		}
		if err := replaceLink(p, updated); err != nil {
			return err
		}
	}
	return nil
}

// MakeLinksRelative rewrites absolute symlink targets inside root relative
// to each link's original directory. origPaths pairs with paths.
func (e *Engine) MakeLinksRelative(paths, origPaths []string, root string) error {
	if len(paths) != len(origPaths) {
		return zerr.Wrap(domain.ErrInvalidManifest, "link and original path lists differ in length")
	}
	for i, p := range paths {
		target, err := os.Readlink(p)
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", p)
		}
		if !filepath.IsAbs(target) || !hasPathPrefix(target, trimSlash(root)) {
			continue
		}
		rel, err := filepath.Rel(filepath.Dir(origPaths[i]), target)
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrNotRelocatable.Error()), "path", p)
		}
		if err := replaceLink(p, rel); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) debug(msg string) {
	if e.logger != nil {
		e.logger.Debug(msg)
	}
}

func (e *Engine) mustSniff(path string) (BinaryRelocator, error) {
	r, err := e.Sniff(path)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrNotRelocatable, "unsupported binary format"), "path", path)
	}
	return r, nil
}

func replaceLink(path, target string) error {
	tmp := fmt.Sprintf("%s.relocate-%d", path, os.Getpid())
	if err := os.Symlink(target, tmp); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
	}
	return nil
}
