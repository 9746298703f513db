package domain

import "go.trai.ch/zerr"

var (
	// ErrDestinationExists is returned when an archive or prefix already exists and force is not set.
	ErrDestinationExists = zerr.New("destination already exists")

	// ErrSigningUnavailable is returned when signing is requested but no signer is configured.
	ErrSigningUnavailable = zerr.New("signing is unavailable, no signer configured")

	// ErrAmbiguousSigningKey is returned when several signing identities exist and none was chosen.
	ErrAmbiguousSigningKey = zerr.New("multiple signing identities available, specify one with --key")

	// ErrNoSigningIdentity is returned when the signer has no secret keys.
	ErrNoSigningIdentity = zerr.New("no signing identity available")

	// ErrSignatureMissing is returned when an archive carries no detached signature.
	ErrSignatureMissing = zerr.New("archive is not signed")

	// ErrSignatureInvalid is returned when a detached signature does not verify.
	ErrSignatureInvalid = zerr.New("signature verification failed")

	// ErrChecksumMismatch is returned when a payload digest differs from the recorded checksum.
	ErrChecksumMismatch = zerr.New("checksum mismatch")

	// ErrIncompatibleLayout is returned when a legacy archive targets a different directory layout.
	ErrIncompatibleLayout = zerr.New("archive was built for an incompatible directory layout")

	// ErrNotRelocatable is returned when a file cannot be rewritten for a new prefix.
	ErrNotRelocatable = zerr.New("file is not relocatable")

	// ErrIndexTransmissionError is returned when a fetched index does not match its published hash.
	ErrIndexTransmissionError = zerr.New("index content does not match published hash")

	// ErrMirrorUnreachable is returned when a mirror cannot be contacted.
	ErrMirrorUnreachable = zerr.New("mirror unreachable")

	// ErrCacheCorruption is returned when the local index cache fails its integrity check.
	ErrCacheCorruption = zerr.New("local index cache is corrupt")

	// ErrNotFound is returned when a mirror object does not exist.
	ErrNotFound = zerr.New("object not found")

	// ErrUnsupportedScheme is returned for mirror URLs with an unknown scheme.
	ErrUnsupportedScheme = zerr.New("unsupported mirror url scheme")

	// ErrArchiveNotFound is returned when no configured mirror hosts an archive for a spec.
	ErrArchiveNotFound = zerr.New("no mirror hosts an archive for spec")

	// ErrRebuildRequired is returned when at least one spec is stale on a mirror.
	ErrRebuildRequired = zerr.New("rebuild required")

	// ErrPrefixNotFound is returned when the install prefix of a spec does not exist.
	ErrPrefixNotFound = zerr.New("install prefix not found")

	// ErrInvalidSpec is returned when a spec document cannot be interpreted.
	ErrInvalidSpec = zerr.New("invalid spec document")

	// ErrInvalidManifest is returned when a build manifest cannot be interpreted.
	ErrInvalidManifest = zerr.New("invalid build manifest")

	// ErrInvalidArchive is returned when an archive container is malformed.
	ErrInvalidArchive = zerr.New("invalid archive container")

	// ErrUnsafeArchivePath is returned when a tar member would escape its destination.
	ErrUnsafeArchivePath = zerr.New("archive member escapes destination directory")

	// ErrNoMirrors is returned when an operation needs mirrors but none are configured.
	ErrNoMirrors = zerr.New("no mirrors configured")

	// ErrCacheClosed is returned when the index cache is used outside its open lifecycle.
	ErrCacheClosed = zerr.New("index cache is not open")

	// ErrStoreReadFailed is returned when the index cache cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read index cache")

	// ErrStoreWriteFailed is returned when the index cache cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write index cache")

	// ErrStoreMarshalFailed is returned when the index cache cannot be marshaled.
	ErrStoreMarshalFailed = zerr.New("failed to marshal index cache")

	// ErrSpecDBFailed is returned when the embedded spec database fails.
	ErrSpecDBFailed = zerr.New("spec database operation failed")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrConfigInvalid is returned when the loaded configuration fails validation.
	ErrConfigInvalid = zerr.New("invalid configuration")

	// ErrFileOpenFailed is returned when a file cannot be opened.
	ErrFileOpenFailed = zerr.New("failed to open file")

	// ErrFileHashFailed is returned when hashing a file fails.
	ErrFileHashFailed = zerr.New("failed to hash file content")

	// ErrArchiveWriteFailed is returned when a tarball cannot be written.
	ErrArchiveWriteFailed = zerr.New("failed to write archive")

	// ErrArchiveReadFailed is returned when a tarball cannot be read.
	ErrArchiveReadFailed = zerr.New("failed to read archive")

	// ErrKeyringReadFailed is returned when a keyring cannot be loaded.
	ErrKeyringReadFailed = zerr.New("failed to read keyring")

	// ErrSigningFailed is returned when producing a signature fails.
	ErrSigningFailed = zerr.New("failed to sign file")
)
