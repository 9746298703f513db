package domain

import "slices"

const (
	// BuildCacheDirName is the well-known subpath under every mirror root.
	BuildCacheDirName = "build_cache"

	// KeysDirName is the directory under build_cache holding public keys.
	KeysDirName = "_pgp"

	// IndexFileName is the name of the package index inside build_cache.
	IndexFileName = "index.json"

	// IndexHashFileName is the name of the index content-hash sidecar.
	IndexHashFileName = "index.json.hash"

	// MetadataDirName is the metadata directory inside every installed prefix.
	MetadataDirName = ".bincache"

	// ManifestFileName is the build manifest inside the metadata directory.
	ManifestFileName = "binary_distribution"

	// SpecFileName is the installed spec document inside the metadata directory.
	SpecFileName = "spec.yaml"

	// InstallManifestFileName is written by the install pipeline after a successful install.
	InstallManifestFileName = "install_manifest.json"

	// IndicesDirName is the directory under the cache root holding cached mirror indexes.
	IndicesDirName = "indices"

	// ContentsFileName is the index of indices.
	ContentsFileName = "contents.json"

	// StageDirName is the directory under the cache root where downloaded archives land.
	StageDirName = "stage"

	// ConfigFileName is the configuration file name searched by the config loader.
	ConfigFileName = "bincache.yaml"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600
)

// Archive file extensions.
const (
	PayloadExt       = ".tar.gz"
	LegacyPayloadExt = ".tar.bz2"
	SpecExt          = ".spec.yaml"
	SignatureExt     = ".asc"
	ContainerExt     = ".bcache"
	PublicKeyExt     = ".pub"
)

// ManifestBlacklist lists prefix subdirectories that are never classified for relocation.
var ManifestBlacklist = []string{MetadataDirName, "man"}

// IsBlacklisted reports whether a directory name is excluded from relocation.
func IsBlacklisted(name string) bool {
	return slices.Contains(ManifestBlacklist, name)
}
