package bindist_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bincache/internal/adapters/fs"
	"go.trai.ch/bincache/internal/adapters/mirror"
	"go.trai.ch/bincache/internal/adapters/tarball"
	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/core/domain/domaintest"
	"go.trai.ch/bincache/internal/core/ports/mocks"
	"go.trai.ch/bincache/internal/engine/bindist"
	"go.trai.ch/bincache/internal/engine/relocate"
	"go.trai.ch/bincache/internal/engine/relocate/relocatetest"
	"go.uber.org/mock/gomock"
)

type env struct {
	t       *testing.T
	ctrl    *gomock.Controller
	logger  *mocks.MockLogger
	oldRoot string
	newRoot string
	tool    string
	mirror  string
	zlib    *domain.Spec
	libpng  *domain.Spec
}

// newEnv creates two install roots of equal length, so every relocated
// string fits in place.
func newEnv(t *testing.T) *env {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any()).AnyTimes()
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()

	zlib := domaintest.Zlib()
	return &env{
		t:       t,
		ctrl:    ctrl,
		logger:  log,
		oldRoot: filepath.Join(t.TempDir(), "opt"),
		newRoot: filepath.Join(t.TempDir(), "opt"),
		tool:    t.TempDir(),
		mirror:  t.TempDir(),
		zlib:    zlib,
		libpng:  domaintest.Libpng(zlib),
	}
}

func (e *env) deps(layout domain.Layout) bindist.Deps {
	return bindist.Deps{
		Layout:     layout,
		ToolRoot:   e.tool,
		Storage:    mirror.NewFileStorage(),
		Archiver:   tarball.New(),
		Hasher:     fs.NewHasher(),
		Walker:     fs.NewWalker(),
		Relocator:  relocate.NewEngine(e.logger),
		Logger:     e.logger,
		ScratchDir: e.t.TempDir(),
	}
}

func (e *env) oldLayout() domain.Layout { return domain.Layout{Root: e.oldRoot} }
func (e *env) newLayout() domain.Layout { return domain.Layout{Root: e.newRoot} }

// populate installs a fake libpng into the old layout.
func (e *env) populate(extra ...string) string {
	t := e.t
	t.Helper()
	prefix := e.oldLayout().PathFor(e.libpng)
	zlibLib := filepath.Join(e.oldLayout().PathFor(e.zlib), "lib")

	for _, d := range []string{"lib/pkgconfig", "share/doc", "bin"} {
		require.NoError(t, os.MkdirAll(filepath.Join(prefix, d), 0o755))
	}
	require.NoError(t, relocatetest.WriteELF(filepath.Join(prefix, "lib", "libpng.so"), relocatetest.ELF{
		Runpath: prefix + "/lib:" + zlibLib,
		Needed:  []string{"libc.so.6", zlibLib + "/libz.so.1"},
		Strings: extra,
	}))
	pc := "prefix=" + prefix + "\nlibdir=${prefix}/lib\nzlib=" + zlibLib + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(prefix, "lib", "pkgconfig", "libpng.pc"), []byte(pc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(prefix, "bin", "libpng-config"), []byte("#!"+e.tool+"/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(prefix, "share", "doc", "README"), []byte("libpng docs\n"), 0o644))
	require.NoError(t, os.Symlink(prefix+"/lib/libpng.so", filepath.Join(prefix, "lib", "libpng.so.16")))
	require.NoError(t, os.Symlink("libpng.so", filepath.Join(prefix, "lib", "libpng-local.so")))
	return prefix
}

func (e *env) build(deps bindist.Deps, opts bindist.BuildOptions) error {
	return bindist.NewBuilder(deps, nil).Build(context.Background(), bindist.BuildRequest{Spec: e.libpng}, e.mirror, opts)
}

func (e *env) fetch() string {
	e.t.Helper()
	path, err := bindist.NewInstaller(e.deps(e.newLayout())).Fetch(context.Background(), e.libpng, e.mirror, e.t.TempDir())
	require.NoError(e.t, err)
	return path
}

func (e *env) install(deps bindist.Deps, archive string, opts bindist.InstallOptions) error {
	return bindist.NewInstaller(deps).Install(context.Background(), e.libpng, archive, opts)
}

func linkValues(t *testing.T, path string) map[relocate.LinkKind][]string {
	t.Helper()
	strs, err := relocate.ELFRelocator{}.LinkStrings(path)
	require.NoError(t, err)
	out := map[relocate.LinkKind][]string{}
	for _, ls := range strs {
		out[ls.Kind] = append(out[ls.Kind], ls.Value)
	}
	return out
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestBuildInstall_RoundTrip(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.populate()

	require.NoError(t, e.build(e.deps(e.oldLayout()), bindist.BuildOptions{Unsigned: true}))
	assert.FileExists(t, filepath.Join(e.mirror, domain.BuildCacheDirName, domain.ContainerPath(e.libpng)))
	assert.FileExists(t, filepath.Join(e.mirror, domain.BuildCacheDirName, domain.SpecFilePath(e.libpng)))

	archive := e.fetch()
	require.NoError(t, e.install(e.deps(e.newLayout()), archive, bindist.InstallOptions{Unsigned: true}))
	assert.FileExists(t, archive, "the fetched archive belongs to the caller")

	dest := e.newLayout().PathFor(e.libpng)
	zlibLib := filepath.Join(e.newLayout().PathFor(e.zlib), "lib")

	got := linkValues(t, filepath.Join(dest, "lib", "libpng.so"))
	assert.Equal(t, []string{dest + "/lib:" + zlibLib}, got[relocate.KindRpath])
	assert.Equal(t, []string{zlibLib + "/libz.so.1"}, got[relocate.KindNeeded])

	assert.Equal(t, "prefix="+dest+"\nlibdir=${prefix}/lib\nzlib="+zlibLib+"\n",
		readFile(t, filepath.Join(dest, "lib", "pkgconfig", "libpng.pc")))
	assert.Equal(t, "#!"+e.tool+"/bin/sh\n", readFile(t, filepath.Join(dest, "bin", "libpng-config")))
	assert.Equal(t, "libpng docs\n", readFile(t, filepath.Join(dest, "share", "doc", "README")))

	target, err := os.Readlink(filepath.Join(dest, "lib", "libpng.so.16"))
	require.NoError(t, err)
	assert.Equal(t, dest+"/lib/libpng.so", target)
	target, err = os.Readlink(filepath.Join(dest, "lib", "libpng-local.so"))
	require.NoError(t, err)
	assert.Equal(t, "libpng.so", target)

	meta := filepath.Join(dest, domain.MetadataDirName)
	assert.FileExists(t, filepath.Join(meta, domain.ManifestFileName))
	assert.FileExists(t, filepath.Join(meta, domain.SpecFileName))
	installed, err := domain.ParseInstallManifest([]byte(readFile(t, filepath.Join(meta, domain.InstallManifestFileName))))
	require.NoError(t, err)
	assert.Equal(t, domain.EntryLink, installed["lib/libpng.so.16"].Type)
	assert.NotEmpty(t, installed["share/doc/README"].Fingerprint)

	doc, err := domain.ParseSpecDocument([]byte(readFile(t, filepath.Join(meta, domain.SpecFileName))))
	require.NoError(t, err)
	root, err := doc.Root()
	require.NoError(t, err)
	assert.Equal(t, e.libpng.DAGHash(), root.DAGHash())

	entries, err := os.ReadDir(e.newRoot)
	require.NoError(t, err)
	require.Len(t, entries, 1, "scratch directories are removed")
	assert.Equal(t, domaintest.Arch.String(), entries[0].Name())
}

func TestBuild_Manifest(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	prefix := e.populate()

	require.NoError(t, e.build(e.deps(e.oldLayout()), bindist.BuildOptions{Unsigned: true}))

	_, m := unpackArchive(t, filepath.Join(e.mirror, domain.BuildCacheDirName, domain.ContainerPath(e.libpng)))
	assert.Equal(t, e.oldRoot, m.BuildPath)
	assert.Equal(t, e.tool, m.ToolPrefix)
	assert.Equal(t, filepath.ToSlash(e.oldLayout().RelativePath(e.libpng)), m.RelativePrefix)
	assert.Equal(t, []string{"lib/libpng.so"}, m.RelocateBinaries)
	assert.Equal(t, []string{"bin/libpng-config", "lib/pkgconfig/libpng.pc"}, m.RelocateTextFiles)
	assert.Equal(t, []string{"lib/libpng.so.16"}, m.RelocateLinks)
	assert.Equal(t, map[string]string{
		prefix:                        e.libpng.DAGHash(),
		e.oldLayout().PathFor(e.zlib): e.zlib.DAGHash(),
	}, m.PrefixToHash)
	assert.Contains(t, m.Fingerprints, "share/doc/README")
	assert.NotContains(t, m.Fingerprints, "lib/libpng.so")

	_, err := os.Stat(filepath.Join(prefix, domain.MetadataDirName))
	assert.True(t, os.IsNotExist(err), "the source prefix is never modified")
}

func TestBuild_DestinationExists(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.populate()
	deps := e.deps(e.oldLayout())

	require.NoError(t, e.build(deps, bindist.BuildOptions{Unsigned: true}))
	err := e.build(deps, bindist.BuildOptions{Unsigned: true})
	require.ErrorIs(t, err, domain.ErrDestinationExists)

	require.NoError(t, e.build(deps, bindist.BuildOptions{Unsigned: true, Force: true}))
}

func TestBuild_ForceKeepsPublishedOnFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.populate()
	deps := e.deps(e.oldLayout())

	require.NoError(t, e.build(deps, bindist.BuildOptions{Unsigned: true}))
	container := filepath.Join(e.mirror, domain.BuildCacheDirName, domain.ContainerPath(e.libpng))
	specFile := filepath.Join(e.mirror, domain.BuildCacheDirName, domain.SpecFilePath(e.libpng))
	published := readFile(t, container)

	err := e.build(deps, bindist.BuildOptions{Force: true})
	require.ErrorIs(t, err, domain.ErrSigningUnavailable)
	assert.FileExists(t, specFile)
	assert.Equal(t, published, readFile(t, container), "failed rebuild leaves the published archive")
}

func TestBuild_MissingPrefix(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	err := e.build(e.deps(e.oldLayout()), bindist.BuildOptions{Unsigned: true})
	require.ErrorIs(t, err, domain.ErrPrefixNotFound)
}

func TestBuild_NotRelocatable(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.populate("datadir=" + e.oldRoot + "/share")
	deps := e.deps(e.oldLayout())

	err := e.build(deps, bindist.BuildOptions{Unsigned: true})
	require.ErrorIs(t, err, domain.ErrNotRelocatable)
	assert.NoDirExists(t, filepath.Join(e.mirror, domain.BuildCacheDirName), "nothing is published")

	require.NoError(t, e.build(deps, bindist.BuildOptions{Unsigned: true, AllowRoot: true}))
}

func TestBuild_Relative(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	prefix := e.populate()

	require.NoError(t, e.build(e.deps(e.oldLayout()), bindist.BuildOptions{Unsigned: true, Relative: true}))

	workdir, m := unpackArchive(t, filepath.Join(e.mirror, domain.BuildCacheDirName, domain.ContainerPath(e.libpng)))
	assert.True(t, m.RelativeRpaths)

	zlibRel, err := filepath.Rel(filepath.Join(prefix, "lib"), filepath.Join(e.oldLayout().PathFor(e.zlib), "lib"))
	require.NoError(t, err)
	got := linkValues(t, filepath.Join(workdir, "lib", "libpng.so"))
	assert.Equal(t, []string{"$ORIGIN:$ORIGIN/" + zlibRel}, got[relocate.KindRpath])

	target, err := os.Readlink(filepath.Join(workdir, "lib", "libpng.so.16"))
	require.NoError(t, err)
	assert.Equal(t, "libpng.so", target)

	archive := e.fetch()
	require.NoError(t, e.install(e.deps(e.newLayout()), archive, bindist.InstallOptions{Unsigned: true}))
	dest := e.newLayout().PathFor(e.libpng)
	got = linkValues(t, filepath.Join(dest, "lib", "libpng.so"))
	assert.Equal(t, []string{"$ORIGIN:$ORIGIN/" + zlibRel}, got[relocate.KindRpath])
	assert.Equal(t, []string{filepath.Join(e.newLayout().PathFor(e.zlib), "lib") + "/libz.so.1"}, got[relocate.KindNeeded])
}

func TestBuild_PushRollback(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.populate()

	store := mocks.NewMockMirrorStorage(e.ctrl)
	containerURL := domain.BuildCacheURL(e.mirror, domain.ContainerPath(e.libpng))
	specURL := domain.BuildCacheURL(e.mirror, domain.SpecFilePath(e.libpng))
	pushErr := errors.Join(domain.ErrMirrorUnreachable, errors.New("connection reset"))

	store.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil).Times(2)
	gomock.InOrder(
		store.EXPECT().Put(gomock.Any(), gomock.Any(), containerURL).Return(nil),
		store.EXPECT().Put(gomock.Any(), gomock.Any(), specURL).Return(pushErr),
		store.EXPECT().Delete(gomock.Any(), containerURL).Return(nil),
	)

	deps := e.deps(e.oldLayout())
	deps.Storage = store
	err := e.build(deps, bindist.BuildOptions{Unsigned: true})
	require.ErrorIs(t, err, domain.ErrMirrorUnreachable)

	scratch, err := os.ReadDir(deps.ScratchDir)
	require.NoError(t, err)
	assert.Empty(t, scratch, "scratch is removed on failure")
}

type indexRecorder struct{ mirrors []string }

func (r *indexRecorder) GeneratePackageIndex(_ context.Context, mirrorURL string) error {
	r.mirrors = append(r.mirrors, mirrorURL)
	return nil
}

func TestBuild_RegenerateIndex(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.populate()

	rec := &indexRecorder{}
	b := bindist.NewBuilder(e.deps(e.oldLayout()), rec)
	err := b.Build(context.Background(), bindist.BuildRequest{Spec: e.libpng}, e.mirror,
		bindist.BuildOptions{Unsigned: true, RegenerateIndex: true})
	require.NoError(t, err)
	assert.Equal(t, []string{e.mirror}, rec.mirrors)
}

func TestBuild_SigningErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ids    []string
		noSign bool
		want   error
	}{
		{name: "no signer", noSign: true, want: domain.ErrSigningUnavailable},
		{name: "no identities", ids: nil, want: domain.ErrNoSigningIdentity},
		{name: "ambiguous", ids: []string{"AAAA", "BBBB"}, want: domain.ErrAmbiguousSigningKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t)
			e.populate()

			deps := e.deps(e.oldLayout())
			if !tt.noSign {
				signer := mocks.NewMockSigner(e.ctrl)
				signer.EXPECT().SigningIdentities().Return(tt.ids, nil)
				deps.Signer = signer
			}

			err := e.build(deps, bindist.BuildOptions{})
			require.ErrorIs(t, err, tt.want)
			assert.NoDirExists(t, filepath.Join(e.mirror, domain.BuildCacheDirName))
		})
	}
}

func signedEnv(t *testing.T) (*env, *mocks.MockSigner, string) {
	t.Helper()
	e := newEnv(t)
	e.populate()

	signer := mocks.NewMockSigner(e.ctrl)
	signer.EXPECT().SigningIdentities().Return([]string{"0123456789ABCDEF"}, nil)
	signer.EXPECT().Sign("0123456789ABCDEF", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ string, _ io.Reader, sig io.Writer) error {
			_, err := io.WriteString(sig, "-----BEGIN PGP SIGNATURE-----\n")
			return err
		})

	deps := e.deps(e.oldLayout())
	deps.Signer = signer
	require.NoError(t, e.build(deps, bindist.BuildOptions{}))
	return e, signer, e.fetch()
}

func TestInstall_Signed(t *testing.T) {
	t.Parallel()
	e, signer, archive := signedEnv(t)

	signer.EXPECT().Verify(gomock.Any(), gomock.Any()).DoAndReturn(func(data, sig io.Reader) error {
		b, err := io.ReadAll(sig)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(b), "-----BEGIN PGP SIGNATURE-----"))
		return nil
	})

	deps := e.deps(e.newLayout())
	deps.Signer = signer
	require.NoError(t, e.install(deps, archive, bindist.InstallOptions{}))
	assert.DirExists(t, e.newLayout().PathFor(e.libpng))
}

func TestInstall_BadSignature(t *testing.T) {
	t.Parallel()
	e, signer, archive := signedEnv(t)

	signer.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(errors.New("openpgp: invalid signature"))

	deps := e.deps(e.newLayout())
	deps.Signer = signer
	err := e.install(deps, archive, bindist.InstallOptions{})
	require.ErrorIs(t, err, domain.ErrSignatureInvalid)
	assert.NoDirExists(t, e.newLayout().PathFor(e.libpng))
}

func TestInstall_SignatureMissing(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.populate()
	require.NoError(t, e.build(e.deps(e.oldLayout()), bindist.BuildOptions{Unsigned: true}))

	deps := e.deps(e.newLayout())
	deps.Signer = mocks.NewMockSigner(e.ctrl)
	err := e.install(deps, e.fetch(), bindist.InstallOptions{})
	require.ErrorIs(t, err, domain.ErrSignatureMissing)
	assert.NoDirExists(t, e.newLayout().PathFor(e.libpng))
}

func TestInstall_Tampered(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.populate()
	require.NoError(t, e.build(e.deps(e.oldLayout()), bindist.BuildOptions{Unsigned: true}))

	err := e.install(e.deps(e.newLayout()), tamper(t, e, e.fetch()), bindist.InstallOptions{Unsigned: true})
	require.ErrorIs(t, err, domain.ErrChecksumMismatch)
	assert.NoDirExists(t, e.newLayout().PathFor(e.libpng))
}

func TestInstall_ForceKeepsPreviousInstall(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.populate()
	require.NoError(t, e.build(e.deps(e.oldLayout()), bindist.BuildOptions{Unsigned: true}))
	archive := e.fetch()
	deps := e.deps(e.newLayout())

	require.NoError(t, e.install(deps, archive, bindist.InstallOptions{Unsigned: true}))
	dest := e.newLayout().PathFor(e.libpng)
	marker := filepath.Join(dest, "marker")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))

	t.Run("checksum mismatch", func(t *testing.T) {
		err := e.install(deps, tamper(t, e, archive), bindist.InstallOptions{Unsigned: true, Force: true})
		require.ErrorIs(t, err, domain.ErrChecksumMismatch)
		assert.FileExists(t, marker)
	})

	t.Run("failure after the move", func(t *testing.T) {
		broken := rewriteManifest(t, e, archive, func(m *domain.BuildManifest) {
			m.Fingerprints["share/doc/README"] = "0000000000000000"
		})
		err := e.install(deps, broken, bindist.InstallOptions{Unsigned: true, Force: true})
		require.ErrorIs(t, err, domain.ErrChecksumMismatch)
		assert.FileExists(t, marker)
		assert.FileExists(t, filepath.Join(dest, "lib", "libpng.so"))
	})
}

func TestInstall_ArchiveOfAnotherSpec(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.populate()
	require.NoError(t, e.build(e.deps(e.oldLayout()), bindist.BuildOptions{Unsigned: true}))

	deps := e.deps(e.newLayout())
	err := bindist.NewInstaller(deps).Install(context.Background(), e.zlib, e.fetch(), bindist.InstallOptions{Unsigned: true})
	require.ErrorIs(t, err, domain.ErrInvalidArchive)
	assert.NoDirExists(t, e.newLayout().PathFor(e.zlib))
}

func TestInstall_DestinationExists(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.populate()
	require.NoError(t, e.build(e.deps(e.oldLayout()), bindist.BuildOptions{Unsigned: true}))
	archive := e.fetch()
	deps := e.deps(e.newLayout())

	require.NoError(t, e.install(deps, archive, bindist.InstallOptions{Unsigned: true}))
	marker := filepath.Join(e.newLayout().PathFor(e.libpng), "marker")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))

	err := e.install(deps, archive, bindist.InstallOptions{Unsigned: true})
	require.ErrorIs(t, err, domain.ErrDestinationExists)
	assert.FileExists(t, marker)

	require.NoError(t, e.install(deps, archive, bindist.InstallOptions{Unsigned: true, Force: true}))
	assert.NoFileExists(t, marker)
}

func TestInstall_IncompatibleLayout(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.populate()
	require.NoError(t, e.build(e.deps(e.oldLayout()), bindist.BuildOptions{Unsigned: true}))

	legacy := rewriteManifest(t, e, e.fetch(), func(m *domain.BuildManifest) { m.PrefixToHash = nil })

	layout := domain.Layout{Root: e.newRoot, Projection: "{name}-{version}-{hash}"}
	err := e.install(e.deps(layout), legacy, bindist.InstallOptions{Unsigned: true})
	require.ErrorIs(t, err, domain.ErrIncompatibleLayout)
	assert.NoDirExists(t, layout.PathFor(e.libpng))

	// The same legacy archive still installs into a matching layout.
	require.NoError(t, e.install(e.deps(e.newLayout()), legacy, bindist.InstallOptions{Unsigned: true}))
}

func TestInstall_FingerprintMismatch(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.populate()
	require.NoError(t, e.build(e.deps(e.oldLayout()), bindist.BuildOptions{Unsigned: true}))

	broken := rewriteManifest(t, e, e.fetch(), func(m *domain.BuildManifest) {
		m.Fingerprints["share/doc/README"] = "0000000000000000"
	})

	err := e.install(e.deps(e.newLayout()), broken, bindist.InstallOptions{Unsigned: true})
	require.ErrorIs(t, err, domain.ErrChecksumMismatch)
	assert.NoDirExists(t, e.newLayout().PathFor(e.libpng), "a failed install leaves no prefix")
}

// tamper repackages an unsigned container with one extra payload byte.
func tamper(t *testing.T, e *env, container string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, tarball.New().Unpack(container, dir))
	payload := filepath.Join(dir, domain.PayloadName(e.libpng))
	f, err := os.OpenFile(payload, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("x")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out := filepath.Join(t.TempDir(), "tampered.bcache")
	require.NoError(t, tarball.New().WriteContainer(out, []string{payload, filepath.Join(dir, domain.SpecFilePath(e.libpng))}))
	return out
}

// unpackArchive extracts the payload of a container and returns the prefix
// directory and its manifest.
func unpackArchive(t *testing.T, container string) (string, *domain.BuildManifest) {
	t.Helper()
	a := tarball.New()
	dir := t.TempDir()
	require.NoError(t, a.Unpack(container, dir))

	payloads, err := filepath.Glob(filepath.Join(dir, "*"+domain.PayloadExt))
	require.NoError(t, err)
	require.Len(t, payloads, 1)

	out := t.TempDir()
	require.NoError(t, a.Unpack(payloads[0], out))
	manifests, err := filepath.Glob(filepath.Join(out, "*", domain.MetadataDirName, domain.ManifestFileName))
	require.NoError(t, err)
	require.Len(t, manifests, 1)

	m, err := domain.ParseManifest([]byte(readFile(t, manifests[0])))
	require.NoError(t, err)
	return filepath.Dir(filepath.Dir(manifests[0])), m
}

// rewriteManifest edits the build manifest of an unsigned container and
// repackages it with a matching checksum.
func rewriteManifest(t *testing.T, e *env, container string, edit func(*domain.BuildManifest)) string {
	t.Helper()
	a := tarball.New()
	dir := t.TempDir()
	require.NoError(t, a.Unpack(container, dir))

	workdir, m := unpackArchive(t, container)
	edit(m)
	data, err := m.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(workdir, domain.MetadataDirName, domain.ManifestFileName), data, 0o644))

	payload := filepath.Join(dir, domain.PayloadName(e.libpng))
	require.NoError(t, a.Pack(payload, workdir, filepath.Base(workdir)))
	sum, err := fs.NewHasher().HashFile(payload)
	require.NoError(t, err)

	specFile := filepath.Join(dir, domain.SpecFilePath(e.libpng))
	doc, err := domain.ParseSpecDocument([]byte(readFile(t, specFile)))
	require.NoError(t, err)
	doc.BinaryCacheChecksum.Hash = sum
	docData, err := doc.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(specFile, docData, 0o644))

	out := filepath.Join(t.TempDir(), "rewritten.bcache")
	require.NoError(t, a.WriteContainer(out, []string{payload, specFile}))
	return out
}
