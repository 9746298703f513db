package ports

// Hasher computes content digests for archives, indexes, and files.
//
//go:generate go run go.uber.org/mock/mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type Hasher interface {
	// HashBytes returns the hex sha256 digest of data.
	HashBytes(data []byte) string
	// HashFile returns the hex sha256 digest of the file at path.
	HashFile(path string) (string, error)
	// Fingerprint returns a fast non-cryptographic digest of the file at path.
	Fingerprint(path string) (string, error)
}
