// Package bindist builds, publishes, fetches, and installs binary archives.
package bindist

import (
	"errors"
	"os"
	"path/filepath"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/core/ports"
	"go.trai.ch/bincache/internal/engine/relocate"
	"go.trai.ch/zerr"
)

// Deps are the collaborators shared by Builder and Installer.
type Deps struct {
	Layout    domain.Layout
	ToolRoot  string
	Storage   ports.MirrorStorage
	Archiver  ports.Archiver
	Hasher    ports.Hasher
	Walker    ports.Walker
	Relocator *relocate.Engine
	Logger    ports.Logger
	// Signer may be nil, in which case only unsigned operation is possible.
	Signer ports.Signer
	// ScratchDir is where build workdirs are created. Empty uses the
	// system temp directory.
	ScratchDir string
}

// withKind keeps sentinel in the errors.Is chain of err.
func withKind(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return errors.Join(sentinel, err)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
	}
	if err := os.WriteFile(path, data, domain.FilePerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
	}
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", path)
}

// joinAll returns root joined with every relative path.
func joinAll(root string, rels []string) []string {
	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = filepath.Join(root, r)
	}
	return out
}
