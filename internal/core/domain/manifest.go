package domain

import (
	"path/filepath"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// BuildManifest describes what inside an archive needs relocation and how.
// It is written once when the archive is built and only read afterwards.
type BuildManifest struct {
	BuildPath         string            `yaml:"buildpath"`
	ToolPrefix        string            `yaml:"toolprefix"`
	RelativePrefix    string            `yaml:"relative_prefix"`
	RelativeRpaths    bool              `yaml:"relative_rpaths"`
	RelocateBinaries  []string          `yaml:"relocate_binaries"`
	RelocateTextFiles []string          `yaml:"relocate_textfiles"`
	RelocateLinks     []string          `yaml:"relocate_links"`
	PrefixToHash      map[string]string `yaml:"prefix_to_hash,omitempty"`
	Fingerprints      map[string]string `yaml:"fingerprints,omitempty"`
}

// OldPrefix returns the absolute prefix the archive was built from.
func (m *BuildManifest) OldPrefix() string {
	return filepath.Join(m.BuildPath, m.RelativePrefix)
}

// ParseManifest decodes a YAML build manifest.
func ParseManifest(data []byte) (*BuildManifest, error) {
	var m BuildManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, zerr.Wrap(err, ErrInvalidManifest.Error())
	}
	if m.BuildPath == "" {
		return nil, zerr.Wrap(ErrInvalidManifest, "manifest has no buildpath")
	}
	return &m, nil
}

// Marshal encodes the manifest as YAML.
func (m *BuildManifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}
