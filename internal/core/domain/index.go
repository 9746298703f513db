package domain

import (
	"encoding/json"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// IndexVersion is the schema version written into generated indexes.
const IndexVersion = "1"

// IndexRecord is one install entry in a mirror index.
type IndexRecord struct {
	Spec     []SpecNode `json:"spec"`
	RefCount int        `json:"ref_count"`
}

// Hash returns the dag hash of the record's root spec.
func (r IndexRecord) Hash() string {
	if len(r.Spec) == 0 {
		return ""
	}
	return r.Spec[0].Hash
}

// IndexDatabase is the body of an index document.
type IndexDatabase struct {
	Version  string                 `json:"version"`
	Installs map[string]IndexRecord `json:"installs"`
}

// IndexDocument is the package index published at build_cache/index.json.
type IndexDocument struct {
	Database IndexDatabase `json:"database"`
}

// NewIndexDocument builds an index over the given records.
func NewIndexDocument(records []IndexRecord) *IndexDocument {
	installs := make(map[string]IndexRecord, len(records))
	for _, r := range records {
		installs[r.Hash()] = r
	}
	return &IndexDocument{Database: IndexDatabase{Version: IndexVersion, Installs: installs}}
}

// ParseIndexDocument decodes a JSON index document.
func ParseIndexDocument(data []byte) (*IndexDocument, error) {
	var doc IndexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, zerr.Wrap(err, "failed to parse index document")
	}
	return &doc, nil
}

// Marshal encodes the document. Map keys are sorted, so output is deterministic.
func (d *IndexDocument) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Records returns the install records ordered by hash.
func (d *IndexDocument) Records() []IndexRecord {
	out := make([]IndexRecord, 0, len(d.Database.Installs))
	for _, r := range d.Database.Installs {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b IndexRecord) int {
		return strings.Compare(a.Hash(), b.Hash())
	})
	return out
}

// MirrorIndexEntry records the cached copy of one mirror's index.
type MirrorIndexEntry struct {
	IndexHash string `json:"index_hash"`
	IndexPath string `json:"index_path"`
}

// IndexBlobName returns the local file name for a cached index with the given hash.
func IndexBlobName(hash string) string {
	return "index_" + hash[:min(10, len(hash))] + ".json"
}
