//go:build unix

package tarball

import (
	"io/fs"
	"syscall"
)

type inode struct {
	dev uint64
	ino uint64
}

type linkTracker struct {
	names map[inode]string
}

func newLinkTracker() *linkTracker {
	return &linkTracker{names: make(map[inode]string)}
}

// seen records name for the inode behind info and returns the first name
// recorded for it when the file has more than one link.
func (l *linkTracker) seen(info fs.FileInfo, name string) (string, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || st.Nlink < 2 {
		return "", false
	}
	//nolint:unconvert // Dev width differs across platforms
	key := inode{dev: uint64(st.Dev), ino: uint64(st.Ino)}
	if first, ok := l.names[key]; ok {
		return first, true
	}
	l.names[key] = name
	return "", false
}
