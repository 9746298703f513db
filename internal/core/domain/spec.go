package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Dependency types recorded on spec edges.
const (
	DepBuild = "build"
	DepLink  = "link"
	DepRun   = "run"
)

// Arch identifies the platform a spec was built for.
type Arch struct {
	Platform string `yaml:"platform" json:"platform"`
	OS       string `yaml:"platform_os" json:"platform_os"`
	Target   string `yaml:"target" json:"target"`
}

// String returns the platform-os-target triple.
func (a Arch) String() string {
	return a.Platform + "-" + a.OS + "-" + a.Target
}

// Compiler identifies the toolchain a spec was built with.
type Compiler struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`
}

// String returns the compiler in name@version form.
func (c Compiler) String() string {
	return c.Name + "@" + c.Version
}

// DirName returns the compiler in a form safe for file names.
func (c Compiler) DirName() string {
	return c.Name + "-" + c.Version
}

// Dependency is an edge from a spec to one of its dependencies.
type Dependency struct {
	Spec  *Spec
	Types []string
}

// HasType reports whether the edge carries the given dependency type.
func (d Dependency) HasType(t string) bool {
	return slices.Contains(d.Types, t)
}

// Spec is a fully resolved build: package identity plus dependency edges.
// A Spec is treated as immutable once constructed.
type Spec struct {
	Name         string
	Version      string
	Arch         Arch
	Compiler     Compiler
	Variants     map[string]string
	Patches      []string
	PackageHash  string
	Dependencies []Dependency
}

// ShortSpec returns a human readable identity: name@version%compiler arch.
func (s *Spec) ShortSpec() string {
	return fmt.Sprintf("%s@%s%%%s arch=%s", s.Name, s.Version, s.Compiler, s.Arch)
}

// String returns the short spec followed by the abbreviated dag hash.
func (s *Spec) String() string {
	return s.ShortSpec() + " /" + s.DAGHash()[:7]
}

// Traverse returns every node of the DAG once, dependencies before dependents.
// The root is always the last element.
func (s *Spec) Traverse() []*Spec {
	var out []*Spec
	seen := make(map[string]bool)

	var visit func(n *Spec)
	visit = func(n *Spec) {
		h := n.DAGHash()
		if seen[h] {
			return
		}
		seen[h] = true
		for _, d := range n.sortedDependencies() {
			visit(d.Spec)
		}
		out = append(out, n)
	}
	visit(s)

	return out
}

// RuntimeDependencies returns the transitive link and run dependencies of s,
// excluding s itself, ordered dependencies first.
func (s *Spec) RuntimeDependencies() []*Spec {
	var out []*Spec
	seen := make(map[string]bool)

	var visit func(n *Spec)
	visit = func(n *Spec) {
		for _, d := range n.sortedDependencies() {
			if !d.HasType(DepLink) && !d.HasType(DepRun) {
				continue
			}
			h := d.Spec.DAGHash()
			if seen[h] {
				continue
			}
			seen[h] = true
			visit(d.Spec)
			out = append(out, d.Spec)
		}
	}
	visit(s)

	return out
}

func (s *Spec) sortedDependencies() []Dependency {
	deps := slices.Clone(s.Dependencies)
	slices.SortFunc(deps, func(a, b Dependency) int {
		return cmp.Or(
			strings.Compare(a.Spec.Name, b.Spec.Name),
			strings.Compare(a.Spec.DAGHash(), b.Spec.DAGHash()),
		)
	})
	return deps
}
