package domain

import (
	"net/url"
	"path/filepath"
	"strings"
)

// JoinURL appends path elements to a mirror URL or a bare filesystem path.
func JoinURL(base string, elems ...string) string {
	u, err := url.Parse(base)
	if err != nil || len(u.Scheme) <= 1 {
		return filepath.Join(append([]string{base}, elems...)...)
	}
	return u.JoinPath(elems...).String()
}

// BuildCacheURL returns the build_cache root of a mirror.
func BuildCacheURL(mirror string, elems ...string) string {
	return JoinURL(mirror, append([]string{BuildCacheDirName}, elems...)...)
}

// LocalPath returns the filesystem path for a file:// URL or bare path.
// It reports false for any other scheme.
func LocalPath(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || len(u.Scheme) <= 1 {
		return raw, true
	}
	if u.Scheme != "file" {
		return "", false
	}
	p := u.Path
	if u.Host != "" && u.Host != "localhost" {
		p = "/" + u.Host + p
	}
	return filepath.FromSlash(strings.TrimSuffix(p, "/")), true
}
