package bindist

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/engine/relocate"
	"go.trai.ch/zerr"
)

// BuildRequest names the spec to package and the prefix it is installed in.
// An empty Prefix uses the layout prefix of Spec.
type BuildRequest struct {
	Spec   *domain.Spec
	Prefix string
}

// BuildOptions control how an archive is built and published.
type BuildOptions struct {
	// Force replaces an archive already present on the mirror.
	Force bool
	// Relative makes binaries and links prefix-relative before packaging.
	Relative bool
	// Unsigned skips signing the spec document.
	Unsigned bool
	// AllowRoot accepts binaries that hard-code the install root.
	AllowRoot bool
	// Key selects the signing identity. Empty requires exactly one.
	Key string
	// RegenerateIndex rebuilds the mirror index after publishing.
	RegenerateIndex bool
}

// IndexGenerator rebuilds the package index of a mirror.
type IndexGenerator interface {
	GeneratePackageIndex(ctx context.Context, mirrorURL string) error
}

// Builder packages installed prefixes into archives and publishes them.
type Builder struct {
	Deps
	indexer IndexGenerator
}

// NewBuilder creates a Builder. indexer may be nil when index regeneration
// is never requested.
func NewBuilder(deps Deps, indexer IndexGenerator) *Builder {
	return &Builder{Deps: deps, indexer: indexer}
}

// Build packages the prefix of req.Spec and pushes the archive to mirrorURL.
// Nothing is published unless every step succeeds.
func (b *Builder) Build(ctx context.Context, req BuildRequest, mirrorURL string, opts BuildOptions) error {
	s := req.Spec
	prefix := req.Prefix
	if prefix == "" {
		prefix = b.Layout.PathFor(s)
	}
	if info, err := os.Stat(prefix); err != nil || !info.IsDir() {
		return zerr.With(zerr.With(zerr.Wrap(domain.ErrPrefixNotFound, "cannot build archive"),
			"spec", s.ShortSpec()), "path", prefix)
	}

	containerURL := domain.BuildCacheURL(mirrorURL, domain.ContainerPath(s))
	specURL := domain.BuildCacheURL(mirrorURL, domain.SpecFilePath(s))
	stale, err := b.checkDestination(ctx, s, mirrorURL, opts.Force, specURL, containerURL)
	if err != nil {
		return err
	}

	scratch, err := os.MkdirTemp(b.ScratchDir, "bincache-build-*")
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	workdir := filepath.Join(scratch, filepath.Base(prefix))
	if err := b.Archiver.CopyTree(ctx, prefix, workdir); err != nil {
		return zerr.With(err, "spec", s.ShortSpec())
	}

	manifest, err := b.manifest(s, prefix, workdir, opts.Relative)
	if err != nil {
		return zerr.With(err, "spec", s.ShortSpec())
	}
	data, err := manifest.Marshal()
	if err != nil {
		return zerr.Wrap(err, domain.ErrInvalidManifest.Error())
	}
	if err := writeFile(filepath.Join(workdir, domain.MetadataDirName, domain.ManifestFileName), data); err != nil {
		return err
	}

	if err := b.prepareBinaries(workdir, prefix, manifest, opts); err != nil {
		return zerr.With(err, "spec", s.ShortSpec())
	}

	payload := filepath.Join(scratch, domain.PayloadName(s))
	if err := b.Archiver.Pack(payload, workdir, filepath.Base(prefix)); err != nil {
		return err
	}
	checksum, err := b.Hasher.HashFile(payload)
	if err != nil {
		return err
	}

	doc := domain.NewSpecDocument(s)
	doc.FullHash = s.FullHash()
	doc.BinaryCacheChecksum = &domain.Checksum{HashAlgorithm: domain.ChecksumAlgorithm, Hash: checksum}
	doc.BuildInfo = &domain.BuildInfoSummary{
		RelativePrefix: manifest.RelativePrefix,
		RelativeRpaths: manifest.RelativeRpaths,
	}
	docData, err := doc.Marshal()
	if err != nil {
		return zerr.Wrap(err, domain.ErrInvalidSpec.Error())
	}
	specFile := filepath.Join(scratch, domain.SpecFilePath(s))
	if err := writeFile(specFile, docData); err != nil {
		return err
	}

	files := []string{payload, specFile}
	if !opts.Unsigned {
		sigFile := filepath.Join(scratch, domain.SignatureName(s))
		if err := b.sign(opts.Key, docData, sigFile); err != nil {
			return zerr.With(err, "spec", s.ShortSpec())
		}
		files = append(files, sigFile)
	}

	container := filepath.Join(scratch, domain.ArchiveBaseName(s)+domain.ContainerExt)
	if err := b.Archiver.WriteContainer(container, files); err != nil {
		return err
	}

	if err := b.publish(ctx, stale, container, specFile, containerURL, specURL); err != nil {
		return zerr.With(zerr.With(err, "spec", s.ShortSpec()), "mirror", mirrorURL)
	}
	b.Logger.Info(fmt.Sprintf("pushed %s to %s", s.ShortSpec(), mirrorURL))

	if opts.RegenerateIndex {
		if b.indexer == nil {
			return zerr.With(zerr.Wrap(domain.ErrNoMirrors, "no index generator configured"), "mirror", mirrorURL)
		}
		return b.indexer.GeneratePackageIndex(ctx, mirrorURL)
	}
	return nil
}

// checkDestination returns the urls already present on the mirror. They are
// only an error without force; publish removes them once the new archive is
// ready.
func (b *Builder) checkDestination(ctx context.Context, s *domain.Spec, mirrorURL string, force bool, urls ...string) ([]string, error) {
	var stale []string
	for _, u := range urls {
		ok, err := b.Storage.Exists(ctx, u)
		if err != nil {
			return nil, zerr.With(err, "mirror", mirrorURL)
		}
		if !ok {
			continue
		}
		if !force {
			return nil, zerr.With(zerr.With(zerr.With(zerr.Wrap(domain.ErrDestinationExists, "archive already published, use --force to replace it"),
				"spec", s.ShortSpec()), "mirror", mirrorURL), "path", u)
		}
		stale = append(stale, u)
	}
	return stale, nil
}

// manifest classifies the entries of workdir, a copy of prefix.
func (b *Builder) manifest(s *domain.Spec, prefix, workdir string, relative bool) (*domain.BuildManifest, error) {
	relPrefix, err := filepath.Rel(b.Layout.Root, prefix)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrInvalidManifest.Error()), "path", prefix)
	}

	m := &domain.BuildManifest{
		BuildPath:      b.Layout.Root,
		ToolPrefix:     b.ToolRoot,
		RelativePrefix: filepath.ToSlash(relPrefix),
		RelativeRpaths: relative,
		PrefixToHash:   map[string]string{prefix: s.DAGHash()},
		Fingerprints:   map[string]string{},
	}
	for _, d := range s.RuntimeDependencies() {
		m.PrefixToHash[b.Layout.PathFor(d)] = d.DAGHash()
	}

	needles := []string{b.Layout.Root, b.ToolRoot}
	for p := range b.Walker.WalkFiles(workdir, domain.ManifestBlacklist) {
		rel, err := filepath.Rel(workdir, p)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrInvalidManifest.Error()), "path", p)
		}
		rel = filepath.ToSlash(rel)

		info, err := os.Lstat(p)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", p)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(p)
			if err != nil {
				return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", p)
			}
			if !filepath.IsAbs(target) {
				continue
			}
			if relocate.Within(target, b.Layout.Root) {
				m.RelocateLinks = append(m.RelocateLinks, rel)
				continue
			}
			b.Logger.Warn(fmt.Sprintf("symbolic link %s points outside the install root to %s", rel, target))
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		r, err := b.Relocator.Sniff(p)
		if err != nil {
			return nil, err
		}
		if r != nil {
			m.RelocateBinaries = append(m.RelocateBinaries, rel)
			continue
		}

		text, err := b.Relocator.IsText(p)
		if err != nil {
			return nil, err
		}
		if text {
			mentions, err := b.Relocator.Mentions(p, needles)
			if err != nil {
				return nil, err
			}
			if mentions {
				m.RelocateTextFiles = append(m.RelocateTextFiles, rel)
				continue
			}
		}

		fp, err := b.Hasher.Fingerprint(p)
		if err != nil {
			return nil, err
		}
		m.Fingerprints[rel] = fp
	}
	return m, nil
}

// prepareBinaries makes the workdir prefix-relative or checks that it can be
// relocated as is.
func (b *Builder) prepareBinaries(workdir, prefix string, m *domain.BuildManifest, opts BuildOptions) error {
	binaries := joinAll(workdir, m.RelocateBinaries)
	if !opts.Relative {
		return b.Relocator.RaiseIfNotRelocatable(binaries, []string{b.Layout.Root}, opts.AllowRoot)
	}

	if err := b.Relocator.MakeBinariesRelative(binaries, joinAll(prefix, m.RelocateBinaries), b.Layout.Root); err != nil {
		return err
	}
	if err := b.Relocator.RaiseIfNotRelocatable(binaries, []string{b.Layout.Root}, opts.AllowRoot); err != nil {
		return err
	}
	return b.Relocator.MakeLinksRelative(joinAll(workdir, m.RelocateLinks), joinAll(prefix, m.RelocateLinks), b.Layout.Root)
}

func (b *Builder) sign(key string, data []byte, dst string) error {
	if b.Signer == nil {
		return zerr.Wrap(domain.ErrSigningUnavailable, "cannot sign archive")
	}
	if key == "" {
		ids, err := b.Signer.SigningIdentities()
		if err != nil {
			return err
		}
		switch len(ids) {
		case 0:
			return zerr.Wrap(domain.ErrNoSigningIdentity, "create or import a secret key to sign archives")
		case 1:
			key = ids[0]
		default:
			return zerr.With(zerr.Wrap(domain.ErrAmbiguousSigningKey, "choose a key"), "keys", ids)
		}
	}

	var sig bytes.Buffer
	if err := b.Signer.Sign(key, bytes.NewReader(data), &sig); err != nil {
		return withKind(domain.ErrSigningFailed, err)
	}
	return writeFile(dst, sig.Bytes())
}

// publish pushes the container before the spec file, so a visible spec file
// always has its archive. A failed spec file push retracts the container.
func (b *Builder) publish(ctx context.Context, stale []string, container, specFile, containerURL, specURL string) error {
	for _, u := range stale {
		if err := b.Storage.Delete(ctx, u); err != nil {
			return zerr.With(err, "path", u)
		}
	}
	if err := b.Storage.Put(ctx, container, containerURL); err != nil {
		return zerr.With(err, "path", containerURL)
	}
	if err := b.Storage.Put(ctx, specFile, specURL); err != nil {
		if derr := b.Storage.Delete(ctx, containerURL); derr != nil {
			b.Logger.Warn(fmt.Sprintf("failed to remove %s after a failed push", containerURL))
		}
		return zerr.With(err, "path", specURL)
	}
	return nil
}
