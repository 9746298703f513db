package ports

import "iter"

// Walker enumerates the entries of an install prefix.
type Walker interface {
	// WalkFiles yields every non-directory entry below root, symlinks included,
	// skipping directories whose name matches one of ignores.
	WalkFiles(root string, ignores []string) iter.Seq[string]
}
