package domain

// RebuildSpec names one spec that must be rebuilt.
type RebuildSpec struct {
	ShortSpec string `json:"short_spec"`
	Hash      string `json:"hash"`
}

// MirrorRebuilds lists the stale specs on one mirror.
type MirrorRebuilds struct {
	MirrorName   string        `json:"mirrorName"`
	MirrorURL    string        `json:"mirrorUrl"`
	RebuildSpecs []RebuildSpec `json:"rebuildSpecs"`
}

// RebuildReport maps mirror URLs to the specs that need rebuilding there.
type RebuildReport map[string]*MirrorRebuilds

// NeedsRebuild reports whether any mirror has a stale spec.
func (r RebuildReport) NeedsRebuild() bool {
	for _, m := range r {
		if len(m.RebuildSpecs) > 0 {
			return true
		}
	}
	return false
}
