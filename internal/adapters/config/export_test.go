package config

// WithSearchPaths replaces the directories searched for bincache.yaml.
func (l *Loader) WithSearchPaths(paths ...string) *Loader {
	l.searchPaths = paths
	return l
}
