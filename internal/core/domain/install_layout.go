package domain

import (
	"path/filepath"
	"strings"
)

// DefaultProjection places every spec under arch/compiler/name-version-hash.
const DefaultProjection = "{architecture}/{compiler.name}-{compiler.version}/{name}-{version}-{hash}"

// Layout maps specs to install prefixes under a root directory.
type Layout struct {
	Root       string
	Projection string
}

// RelativePath returns the prefix of s relative to the layout root.
func (l Layout) RelativePath(s *Spec) string {
	projection := l.Projection
	if projection == "" {
		projection = DefaultProjection
	}
	hash := s.DAGHash()
	r := strings.NewReplacer(
		"{name}", s.Name,
		"{version}", s.Version,
		"{hash:7}", hash[:7],
		"{hash}", hash,
		"{architecture}", s.Arch.String(),
		"{platform}", s.Arch.Platform,
		"{os}", s.Arch.OS,
		"{target}", s.Arch.Target,
		"{compiler.name}", s.Compiler.Name,
		"{compiler.version}", s.Compiler.Version,
	)
	return filepath.FromSlash(r.Replace(projection))
}

// PathFor returns the absolute install prefix of s.
func (l Layout) PathFor(s *Spec) string {
	return filepath.Join(l.Root, l.RelativePath(s))
}
