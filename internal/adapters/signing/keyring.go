// Package signing implements ports.Signer with OpenPGP keyrings on disk.
package signing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/crypto/openpgp"        //nolint:staticcheck // Detached armored signatures only
	"golang.org/x/crypto/openpgp/armor"  //nolint:staticcheck // Detached armored signatures only
	"golang.org/x/crypto/openpgp/packet" //nolint:staticcheck // Detached armored signatures only
)

var _ ports.Signer = (*Keyring)(nil)

// Keyring signs with the keys of an armored secret keyring and verifies
// against the union of the public and secret keyrings. Missing keyring
// files are treated as empty.
type Keyring struct {
	publicPath string
	secretPath string

	mu     sync.Mutex
	loaded bool
	public openpgp.EntityList
	secret openpgp.EntityList
}

// NewKeyring creates a Keyring backed by the given armored keyring files.
func NewKeyring(publicPath, secretPath string) *Keyring {
	return &Keyring{publicPath: publicPath, secretPath: secretPath}
}

// SigningIdentities lists the key IDs of every secret key.
func (k *Keyring) SigningIdentities() ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.load(); err != nil {
		return nil, err
	}

	var ids []string
	for _, e := range k.secret {
		if e.PrivateKey != nil {
			ids = append(ids, keyID(e))
		}
	}
	return ids, nil
}

// Sign writes an armored detached signature of data made with keyID.
func (k *Keyring) Sign(id string, data io.Reader, sig io.Writer) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.load(); err != nil {
		return err
	}

	signer := findEntity(k.secret, id)
	if signer == nil || signer.PrivateKey == nil {
		return zerr.With(zerr.Wrap(domain.ErrNoSigningIdentity, "no secret key matches"), "key", id)
	}
	if signer.PrivateKey.Encrypted {
		return zerr.With(zerr.Wrap(domain.ErrSigningFailed, "secret key is passphrase protected"), "key", id)
	}

	if err := openpgp.ArmoredDetachSign(sig, signer, data, nil); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrSigningFailed.Error()), "key", id)
	}
	return nil
}

// Verify checks an armored detached signature against every known key.
func (k *Keyring) Verify(data, sig io.Reader) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.load(); err != nil {
		return err
	}

	trusted := append(append(openpgp.EntityList{}, k.public...), k.secret...)
	if len(trusted) == 0 {
		return zerr.Wrap(domain.ErrSignatureInvalid, "no trusted keys")
	}
	if _, err := openpgp.CheckArmoredDetachedSignature(trusted, data, sig); err != nil {
		return errors.Join(domain.ErrSignatureInvalid, err)
	}
	return nil
}

// Trust adds armored public keys to the public keyring and persists it.
func (k *Keyring) Trust(armored io.Reader) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.load(); err != nil {
		return nil, err
	}

	entities, err := openpgp.ReadArmoredKeyRing(armored)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrKeyringReadFailed.Error())
	}

	var ids []string
	for _, e := range entities {
		id := keyID(e)
		ids = append(ids, id)
		if findEntity(k.public, id) == nil {
			k.public = append(k.public, e)
		}
	}

	if k.publicPath == "" {
		return ids, nil
	}

	var buf bytes.Buffer
	if err := writePublic(&buf, k.public); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(k.publicPath, buf.Bytes()); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", k.publicPath)
	}
	return ids, nil
}

// ExportPublicKeys writes the public half of every signing key.
func (k *Keyring) ExportPublicKeys(w io.Writer) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.load(); err != nil {
		return err
	}
	return writePublic(w, k.secret)
}

func (k *Keyring) load() error {
	if k.loaded {
		return nil
	}

	public, err := readKeyring(k.publicPath)
	if err != nil {
		return err
	}
	secret, err := readKeyring(k.secretPath)
	if err != nil {
		return err
	}

	k.public, k.secret, k.loaded = public, secret, true
	return nil
}

func readKeyring(path string) (openpgp.EntityList, error) {
	if path == "" {
		return nil, nil
	}
	//nolint:gosec // Keyring paths come from configuration
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrKeyringReadFailed.Error()), "path", path)
	}
	defer func() { _ = f.Close() }()

	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrKeyringReadFailed.Error()), "path", path)
	}
	return entities, nil
}

func writePublic(w io.Writer, entities openpgp.EntityList) error {
	aw, err := armor.Encode(w, openpgp.PublicKeyType, nil)
	if err != nil {
		return zerr.Wrap(err, domain.ErrSigningFailed.Error())
	}
	for _, e := range entities {
		if err := e.Serialize(aw); err != nil {
			_ = aw.Close()
			return zerr.With(zerr.Wrap(err, domain.ErrSigningFailed.Error()), "key", keyID(e))
		}
	}
	return aw.Close()
}

// WriteSecretKeyring writes entities with their private keys as an armored keyring.
func WriteSecretKeyring(path string, entities ...*openpgp.Entity) error {
	var buf bytes.Buffer
	aw, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		return err
	}
	for _, e := range entities {
		if err := e.SerializePrivate(aw, &packet.Config{}); err != nil {
			_ = aw.Close()
			return err
		}
	}
	if err := aw.Close(); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

func findEntity(list openpgp.EntityList, id string) *openpgp.Entity {
	needle := strings.ToUpper(strings.TrimPrefix(strings.TrimPrefix(id, "0x"), "0X"))
	for _, e := range list {
		fp := fmt.Sprintf("%X", e.PrimaryKey.Fingerprint[:])
		if needle != "" && strings.HasSuffix(fp, needle) {
			return e
		}
		for name := range e.Identities {
			if name == id {
				return e
			}
		}
	}
	return nil
}

func keyID(e *openpgp.Entity) string {
	return fmt.Sprintf("%016X", e.PrimaryKey.KeyId)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".keyring-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, domain.PrivateFilePerm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
