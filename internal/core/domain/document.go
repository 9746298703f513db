package domain

import (
	"slices"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// ChecksumAlgorithm is the digest recorded for archive payloads.
const ChecksumAlgorithm = "sha256"

// SpecNode is the serialized form of a single spec in the DAG.
type SpecNode struct {
	Name         string            `yaml:"name" json:"name"`
	Version      string            `yaml:"version" json:"version"`
	Arch         Arch              `yaml:"arch" json:"arch"`
	Compiler     Compiler          `yaml:"compiler" json:"compiler"`
	Variants     map[string]string `yaml:"variants,omitempty" json:"variants,omitempty"`
	Patches      []string          `yaml:"patches,omitempty" json:"patches,omitempty"`
	PackageHash  string            `yaml:"package_hash,omitempty" json:"package_hash,omitempty"`
	Hash         string            `yaml:"hash" json:"hash"`
	FullHash     string            `yaml:"full_hash" json:"full_hash"`
	Dependencies []DependencyRef   `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// DependencyRef links a node to a dependency by dag hash.
type DependencyRef struct {
	Name  string   `yaml:"name" json:"name"`
	Hash  string   `yaml:"hash" json:"hash"`
	Types []string `yaml:"type" json:"type"`
}

// Checksum records the digest of an archive payload.
type Checksum struct {
	HashAlgorithm string `yaml:"hash_algorithm"`
	Hash          string `yaml:"hash"`
}

// BuildInfoSummary is the subset of the manifest published in the spec document.
type BuildInfoSummary struct {
	RelativePrefix string `yaml:"relative_prefix"`
	RelativeRpaths bool   `yaml:"relative_rpaths"`
}

// SpecDocument is the spec description published alongside every archive.
type SpecDocument struct {
	Spec                []SpecNode        `yaml:"spec"`
	FullHash            string            `yaml:"full_hash,omitempty"`
	BinaryCacheChecksum *Checksum         `yaml:"binary_cache_checksum,omitempty"`
	BuildInfo           *BuildInfoSummary `yaml:"buildinfo,omitempty"`
}

// NewSpecDocument serializes s with no archive metadata attached.
func NewSpecDocument(s *Spec) *SpecDocument {
	return &SpecDocument{Spec: SpecNodes(s)}
}

// ParseSpecDocument decodes a YAML spec document.
func ParseSpecDocument(data []byte) (*SpecDocument, error) {
	var doc SpecDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, zerr.Wrap(err, ErrInvalidSpec.Error())
	}
	if len(doc.Spec) == 0 {
		return nil, zerr.Wrap(ErrInvalidSpec, "spec document has no nodes")
	}
	return &doc, nil
}

// Marshal encodes the document as YAML.
func (d *SpecDocument) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// Root rebuilds the spec DAG described by the document.
func (d *SpecDocument) Root() (*Spec, error) {
	return SpecFromNodes(d.Spec)
}

// SpecNodes flattens s into nodes, root first and the rest in traversal order.
func SpecNodes(s *Spec) []SpecNode {
	all := s.Traverse()
	nodes := make([]SpecNode, 0, len(all))
	nodes = append(nodes, nodeOf(s))
	for _, n := range all[:len(all)-1] {
		nodes = append(nodes, nodeOf(n))
	}
	return nodes
}

func nodeOf(s *Spec) SpecNode {
	n := SpecNode{
		Name:        s.Name,
		Version:     s.Version,
		Arch:        s.Arch,
		Compiler:    s.Compiler,
		Variants:    s.Variants,
		Patches:     s.Patches,
		PackageHash: s.PackageHash,
		Hash:        s.DAGHash(),
		FullHash:    s.FullHash(),
	}
	for _, d := range s.sortedDependencies() {
		n.Dependencies = append(n.Dependencies, DependencyRef{
			Name:  d.Spec.Name,
			Hash:  d.Spec.DAGHash(),
			Types: slices.Sorted(slices.Values(d.Types)),
		})
	}
	return n
}

// SpecFromNodes rebuilds a spec DAG; the first node is the root.
func SpecFromNodes(nodes []SpecNode) (*Spec, error) {
	if len(nodes) == 0 {
		return nil, zerr.Wrap(ErrInvalidSpec, "no nodes")
	}

	byHash := make(map[string]SpecNode, len(nodes))
	for _, n := range nodes {
		byHash[n.Hash] = n
	}

	built := make(map[string]*Spec, len(nodes))
	var build func(hash string, depth int) (*Spec, error)
	build = func(hash string, depth int) (*Spec, error) {
		if s, ok := built[hash]; ok {
			return s, nil
		}
		if depth > len(nodes) {
			return nil, zerr.With(zerr.Wrap(ErrInvalidSpec, "dependency cycle"), "hash", hash)
		}
		n, ok := byHash[hash]
		if !ok {
			return nil, zerr.With(zerr.Wrap(ErrInvalidSpec, "missing dependency node"), "hash", hash)
		}
		s := &Spec{
			Name:        n.Name,
			Version:     n.Version,
			Arch:        n.Arch,
			Compiler:    n.Compiler,
			Variants:    n.Variants,
			Patches:     n.Patches,
			PackageHash: n.PackageHash,
		}
		for _, ref := range n.Dependencies {
			dep, err := build(ref.Hash, depth+1)
			if err != nil {
				return nil, err
			}
			s.Dependencies = append(s.Dependencies, Dependency{Spec: dep, Types: ref.Types})
		}
		built[hash] = s
		return s, nil
	}

	return build(nodes[0].Hash, 0)
}
