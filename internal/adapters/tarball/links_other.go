//go:build !unix

package tarball

import "io/fs"

type linkTracker struct{}

func newLinkTracker() *linkTracker {
	return &linkTracker{}
}

func (l *linkTracker) seen(fs.FileInfo, string) (string, bool) {
	return "", false
}
