package bindist

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/engine/relocate"
	"go.trai.ch/zerr"
)

// InstallOptions control how an archive is installed.
type InstallOptions struct {
	// Force replaces an existing install prefix.
	Force bool
	// Unsigned skips signature verification.
	Unsigned bool
	// AllowRoot accepts binaries that hard-code the old install root.
	AllowRoot bool
}

// Installer verifies archives and installs them into the local layout.
type Installer struct {
	Deps
}

// NewInstaller creates an Installer.
func NewInstaller(deps Deps) *Installer {
	return &Installer{Deps: deps}
}

// Fetch downloads the container of s from mirrorURL into dir and returns
// its path. The caller owns the downloaded file.
func (i *Installer) Fetch(ctx context.Context, s *domain.Spec, mirrorURL, dir string) (string, error) {
	src := domain.BuildCacheURL(mirrorURL, domain.ContainerPath(s))
	rc, err := i.Storage.Get(ctx, src)
	if err != nil {
		return "", zerr.With(zerr.With(err, "spec", s.ShortSpec()), "mirror", mirrorURL)
	}
	defer func() { _ = rc.Close() }()

	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", dir)
	}
	dst := filepath.Join(dir, domain.ArchiveBaseName(s)+domain.ContainerExt)
	//nolint:gosec // Destination is inside the caller's download directory
	f, err := os.Create(dst)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", dst)
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return "", zerr.With(zerr.With(withKind(domain.ErrMirrorUnreachable, err), "mirror", mirrorURL), "path", src)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return "", zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", dst)
	}
	return dst, nil
}

// Install verifies the container at archivePath and installs it into the
// layout prefix of s. The archive itself is left in place.
func (i *Installer) Install(ctx context.Context, s *domain.Spec, archivePath string, opts InstallOptions) (err error) {
	dest := i.Layout.PathFor(s)
	present, err := exists(dest)
	if err != nil {
		return err
	}
	if present && !opts.Force {
		return zerr.With(zerr.With(zerr.Wrap(domain.ErrDestinationExists, "prefix already installed, use --force to replace it"),
			"spec", s.ShortSpec()), "path", dest)
	}

	// Scratch lives under the layout root so the final move is a rename.
	if err := os.MkdirAll(i.Layout.Root, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", i.Layout.Root)
	}
	scratch, err := os.MkdirTemp(i.Layout.Root, ".bincache-stage-*")
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", i.Layout.Root)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	if err := i.Archiver.Unpack(archivePath, scratch); err != nil {
		return zerr.With(err, "spec", s.ShortSpec())
	}

	doc, payload, err := i.verify(s, scratch, opts.Unsigned)
	if err != nil {
		return zerr.With(zerr.With(err, "spec", s.ShortSpec()), "path", archivePath)
	}

	unpacked := filepath.Join(scratch, "payload")
	if err := i.Archiver.Unpack(payload, unpacked); err != nil {
		return zerr.With(err, "spec", s.ShortSpec())
	}
	workdir, manifest, err := findManifest(unpacked)
	if err != nil {
		return zerr.With(zerr.With(err, "spec", s.ShortSpec()), "path", archivePath)
	}

	newRel := filepath.ToSlash(i.Layout.RelativePath(s))
	if manifest.RelativePrefix != newRel && len(manifest.PrefixToHash) == 0 {
		return zerr.With(zerr.With(zerr.Wrap(domain.ErrIncompatibleLayout, "archive predates dependency prefix tracking"),
			"spec", s.ShortSpec()), "path", archivePath)
	}

	if ok, _ := exists(filepath.Join(workdir, domain.MetadataDirName, domain.InstallManifestFileName)); !ok {
		i.Logger.Warn(fmt.Sprintf("no install manifest in archive for %s", s.ShortSpec()))
	}

	pm, changed := i.prefixMap(s, manifest, dest)
	if changed {
		binaries := joinAll(workdir, manifest.RelocateBinaries)
		roots := []string{manifest.BuildPath}
		if err := i.Relocator.RaiseIfNotRelocatable(binaries, roots, opts.AllowRoot); err != nil {
			return zerr.With(err, "spec", s.ShortSpec())
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", dest)
	}
	// The replaced prefix is parked in scratch until the new one is complete.
	previous := ""
	if present {
		previous = filepath.Join(scratch, "previous")
		if err := os.Rename(dest, previous); err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", dest)
		}
	}
	defer func() {
		if err == nil {
			return
		}
		_ = os.RemoveAll(dest)
		if previous != "" {
			if rerr := os.Rename(previous, dest); rerr != nil {
				i.Logger.Warn(fmt.Sprintf("failed to restore the previous install of %s", s.ShortSpec()))
			}
		}
	}()
	if err := os.Rename(workdir, dest); err != nil {
		if cerr := i.Archiver.CopyTree(ctx, workdir, dest); cerr != nil {
			return zerr.With(cerr, "spec", s.ShortSpec())
		}
	}

	if err := i.relocate(dest, manifest, pm, changed); err != nil {
		return zerr.With(zerr.With(err, "spec", s.ShortSpec()), "path", dest)
	}
	if err := i.verifyFingerprints(dest, manifest); err != nil {
		return zerr.With(err, "spec", s.ShortSpec())
	}
	if err := i.record(dest, s, doc); err != nil {
		return err
	}

	i.Logger.Info(fmt.Sprintf("installed %s to %s", s.ShortSpec(), dest))
	return nil
}

// verify checks the signature and the payload checksum of an extracted
// container and returns the spec document and the payload path.
func (i *Installer) verify(s *domain.Spec, dir string, unsigned bool) (*domain.SpecDocument, string, error) {
	specFile, err := findMember(dir, domain.SpecFilePath(s), "*"+domain.SpecExt)
	if err != nil {
		return nil, "", err
	}
	//nolint:gosec // Path is inside the scratch directory
	docData, err := os.ReadFile(specFile)
	if err != nil {
		return nil, "", zerr.With(zerr.Wrap(err, domain.ErrArchiveReadFailed.Error()), "path", specFile)
	}

	if !unsigned {
		if err := i.verifySignature(specFile, docData); err != nil {
			return nil, "", err
		}
	}

	doc, err := domain.ParseSpecDocument(docData)
	if err != nil {
		return nil, "", err
	}
	root, err := doc.Root()
	if err != nil {
		return nil, "", err
	}
	if root.DAGHash() != s.DAGHash() {
		return nil, "", zerr.With(zerr.With(zerr.Wrap(domain.ErrInvalidArchive, "archive describes another spec"),
			"archived", root.ShortSpec()), "hash", root.DAGHash())
	}

	payload, err := findMember(dir, domain.PayloadName(s), "*"+domain.PayloadExt)
	if err != nil {
		legacy, lerr := findMember(dir, domain.ArchiveBaseName(s)+domain.LegacyPayloadExt, "*"+domain.LegacyPayloadExt)
		if lerr != nil {
			return nil, "", err
		}
		payload = legacy
	}

	if doc.BinaryCacheChecksum == nil || doc.BinaryCacheChecksum.Hash == "" {
		return nil, "", zerr.Wrap(domain.ErrChecksumMismatch, "spec document records no payload checksum")
	}
	actual, err := i.Hasher.HashFile(payload)
	if err != nil {
		return nil, "", err
	}
	if actual != doc.BinaryCacheChecksum.Hash {
		return nil, "", zerr.With(zerr.With(zerr.Wrap(domain.ErrChecksumMismatch, "payload failed checksum verification"),
			"expected", doc.BinaryCacheChecksum.Hash), "actual", actual)
	}
	return doc, payload, nil
}

func (i *Installer) verifySignature(specFile string, data []byte) error {
	//nolint:gosec // Path is inside the scratch directory
	sig, err := os.Open(specFile + domain.SignatureExt)
	if err != nil {
		if os.IsNotExist(err) {
			return zerr.Wrap(domain.ErrSignatureMissing, "use --unsigned to install unsigned archives")
		}
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveReadFailed.Error()), "path", specFile+domain.SignatureExt)
	}
	defer func() { _ = sig.Close() }()

	if i.Signer == nil {
		return zerr.Wrap(domain.ErrSigningUnavailable, "cannot verify archive signature")
	}
	if err := i.Signer.Verify(bytes.NewReader(data), sig); err != nil {
		return withKind(domain.ErrSignatureInvalid, err)
	}
	return nil
}

// prefixMap returns the substitutions that move the archive into dest and
// reports whether the install root or prefix changed.
func (i *Installer) prefixMap(s *domain.Spec, m *domain.BuildManifest, dest string) (*relocate.PrefixMap, bool) {
	hashToPrefix := map[string]string{s.DAGHash(): dest}
	for _, d := range s.RuntimeDependencies() {
		hashToPrefix[d.DAGHash()] = i.Layout.PathFor(d)
	}

	mapping := map[string]string{}
	for old, hash := range m.PrefixToHash {
		if p, ok := hashToPrefix[hash]; ok {
			mapping[old] = p
		}
	}
	oldPrefix := m.OldPrefix()
	mapping[oldPrefix] = dest
	mapping[m.BuildPath] = i.Layout.Root
	if m.ToolPrefix != "" && i.ToolRoot != "" {
		mapping[m.ToolPrefix] = i.ToolRoot
	}

	changed := filepath.Clean(m.BuildPath) != filepath.Clean(i.Layout.Root) || filepath.Clean(oldPrefix) != filepath.Clean(dest)
	return relocate.NewPrefixMap(mapping), changed
}

func (i *Installer) relocate(dest string, m *domain.BuildManifest, pm *relocate.PrefixMap, changed bool) error {
	text := joinAll(dest, m.RelocateTextFiles)
	if !changed {
		if m.ToolPrefix == i.ToolRoot {
			return nil
		}
		i.Logger.Debug("install root unchanged, relocating the tool root in text files")
		return i.Relocator.RelocateText(text, pm)
	}

	i.Logger.Debug(fmt.Sprintf("relocating from %s to %s", m.BuildPath, i.Layout.Root))
	binaries := joinAll(dest, m.RelocateBinaries)
	if err := i.Relocator.RelocateBinaries(binaries, pm); err != nil {
		return err
	}
	if err := i.Relocator.RelocateLinks(joinAll(dest, m.RelocateLinks), pm); err != nil {
		return err
	}
	if err := i.Relocator.RelocateText(text, pm); err != nil {
		return err
	}

	needles := []string{m.OldPrefix(), m.BuildPath}
	for old := range m.PrefixToHash {
		needles = append(needles, old)
	}
	var stale []string
	for _, b := range binaries {
		holds, err := i.Relocator.Mentions(b, needles)
		if err != nil {
			return err
		}
		if holds {
			stale = append(stale, b)
		}
	}
	return i.Relocator.RelocateTextBin(stale, pm)
}

func (i *Installer) verifyFingerprints(dest string, m *domain.BuildManifest) error {
	for rel, want := range m.Fingerprints {
		p := filepath.Join(dest, filepath.FromSlash(rel))
		got, err := i.Hasher.Fingerprint(p)
		if err != nil {
			return err
		}
		if got != want {
			return zerr.With(zerr.With(zerr.Wrap(domain.ErrChecksumMismatch, "installed file differs from the archive"),
				"path", p), "expected", want)
		}
	}
	return nil
}

// record writes the installed spec and the install manifest into dest.
func (i *Installer) record(dest string, s *domain.Spec, doc *domain.SpecDocument) error {
	installed := domain.NewSpecDocument(s)
	installed.FullHash = doc.FullHash
	data, err := installed.Marshal()
	if err != nil {
		return zerr.Wrap(err, domain.ErrInvalidSpec.Error())
	}
	meta := filepath.Join(dest, domain.MetadataDirName)
	if err := writeFile(filepath.Join(meta, domain.SpecFileName), data); err != nil {
		return err
	}

	manifest := domain.InstallManifest{}
	for p := range i.Walker.WalkFiles(dest, []string{domain.MetadataDirName}) {
		rel, err := filepath.Rel(dest, p)
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrInvalidManifest.Error()), "path", p)
		}
		info, err := os.Lstat(p)
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", p)
		}
		entry := domain.InstallEntry{Type: domain.EntryFile, Mode: uint32(info.Mode().Perm())}
		if info.Mode()&os.ModeSymlink != 0 {
			entry.Type = domain.EntryLink
			entry.Target, _ = os.Readlink(p)
		} else if info.Mode().IsRegular() {
			if entry.Fingerprint, err = i.Hasher.Fingerprint(p); err != nil {
				return err
			}
		}
		manifest[filepath.ToSlash(rel)] = entry
	}
	data, err = manifest.Marshal()
	if err != nil {
		return zerr.Wrap(err, domain.ErrInvalidManifest.Error())
	}
	return writeFile(filepath.Join(meta, domain.InstallManifestFileName), data)
}

// findManifest returns the single prefix directory below dir that carries
// a build manifest, and the parsed manifest.
func findManifest(dir string) (string, *domain.BuildManifest, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*", domain.MetadataDirName, domain.ManifestFileName))
	if err != nil || len(matches) != 1 {
		return "", nil, zerr.With(zerr.Wrap(domain.ErrInvalidArchive, "payload must contain exactly one build manifest"),
			"found", len(matches))
	}
	//nolint:gosec // Path is inside the scratch directory
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return "", nil, zerr.With(zerr.Wrap(err, domain.ErrArchiveReadFailed.Error()), "path", matches[0])
	}
	m, err := domain.ParseManifest(data)
	if err != nil {
		return "", nil, err
	}
	return filepath.Dir(filepath.Dir(matches[0])), m, nil
}

// findMember returns dir/name, or the single member matching pattern when
// the archive was published under another base name.
func findMember(dir, name, pattern string) (string, error) {
	p := filepath.Join(dir, name)
	if ok, _ := exists(p); ok {
		return p, nil
	}
	matches, _ := filepath.Glob(filepath.Join(dir, pattern))
	if len(matches) == 1 {
		return matches[0], nil
	}
	return "", zerr.With(zerr.Wrap(domain.ErrInvalidArchive, "container member missing"), "member", name)
}
