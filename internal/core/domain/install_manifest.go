package domain

import (
	"encoding/json"

	"go.trai.ch/zerr"
)

// Install manifest entry types.
const (
	EntryFile = "file"
	EntryLink = "link"
	EntryDir  = "dir"
)

// InstallEntry describes one path of an installed prefix.
type InstallEntry struct {
	Type        string `json:"type"`
	Mode        uint32 `json:"mode"`
	Fingerprint string `json:"hash,omitempty"`
	Target      string `json:"dest,omitempty"`
}

// InstallManifest maps prefix-relative paths to what was installed there.
type InstallManifest map[string]InstallEntry

// ParseInstallManifest decodes a JSON install manifest.
func ParseInstallManifest(data []byte) (InstallManifest, error) {
	var m InstallManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, zerr.Wrap(err, ErrInvalidManifest.Error())
	}
	return m, nil
}

// Marshal encodes the manifest with sorted keys.
func (m InstallManifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
