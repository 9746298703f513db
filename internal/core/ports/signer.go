package ports

import "io"

// Signer produces and checks detached signatures.
//
//go:generate go run go.uber.org/mock/mockgen -source=signer.go -destination=mocks/mock_signer.go -package=mocks
type Signer interface {
	// SigningIdentities lists the key IDs that can sign.
	SigningIdentities() ([]string, error)
	// Sign writes an ASCII-armored detached signature of data to sig.
	Sign(keyID string, data io.Reader, sig io.Writer) error
	// Verify checks a detached signature against the trusted keys.
	Verify(data, sig io.Reader) error
	// Trust adds armored public keys to the trusted set and returns their IDs.
	Trust(armored io.Reader) ([]string, error)
	// ExportPublicKeys writes the public half of every signing identity.
	ExportPublicKeys(w io.Writer) error
}
