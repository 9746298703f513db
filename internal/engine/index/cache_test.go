package index_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bincache/internal/adapters/cas"
	"go.trai.ch/bincache/internal/adapters/fs"
	"go.trai.ch/bincache/internal/adapters/mirror"
	"go.trai.ch/bincache/internal/adapters/specdb"
	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/core/domain/domaintest"
	"go.trai.ch/bincache/internal/core/ports"
	"go.trai.ch/bincache/internal/core/ports/mocks"
	"go.trai.ch/bincache/internal/engine/index"
	"go.uber.org/mock/gomock"
)

func quietLogger(t *testing.T) *mocks.MockLogger {
	t.Helper()
	log := mocks.NewMockLogger(gomock.NewController(t))
	log.EXPECT().Debug(gomock.Any()).AnyTimes()
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()
	return log
}

func newCache(t *testing.T, store *cas.Store) *index.Cache {
	t.Helper()
	c := index.NewCache(store, mirror.NewFileStorage(), fs.NewHasher(), specdb.NewFactory(), quietLogger(t))
	require.NoError(t, c.Open())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// countingStorage counts Get calls per url.
type countingStorage struct {
	ports.MirrorStorage

	mu   sync.Mutex
	gets map[string]int
}

func newCountingStorage() *countingStorage {
	return &countingStorage{MirrorStorage: mirror.NewFileStorage(), gets: map[string]int{}}
}

func (s *countingStorage) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	s.mu.Lock()
	s.gets[url]++
	s.mu.Unlock()
	return s.MirrorStorage.Get(ctx, url)
}

func (s *countingStorage) count(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[url]
}

// publish writes the spec files of specs into a fresh mirror and generates
// its index.
func publish(t *testing.T, specs ...*domain.Spec) string {
	t.Helper()
	root := t.TempDir()
	for _, s := range specs {
		writeSpecFile(t, root, s)
	}
	gen := index.NewCache(cas.NewStore(t.TempDir()), mirror.NewFileStorage(), fs.NewHasher(), specdb.NewFactory(), quietLogger(t))
	require.NoError(t, gen.GeneratePackageIndex(context.Background(), root))
	return root
}

func writeSpecFile(t *testing.T, root string, s *domain.Spec) {
	t.Helper()
	doc := domain.NewSpecDocument(s)
	doc.FullHash = s.FullHash()
	data, err := doc.Marshal()
	require.NoError(t, err)
	path := filepath.Join(root, domain.BuildCacheDirName, domain.SpecFilePath(s))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func publishedHash(t *testing.T, root string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, domain.BuildCacheDirName, domain.IndexHashFileName))
	require.NoError(t, err)
	return string(data)
}

func TestFetchAndCacheIndex(t *testing.T) {
	ctx := context.Background()
	m := publish(t, domaintest.Zlib())
	store := cas.NewStore(t.TempDir())
	c := newCache(t, store)

	updated, err := c.FetchAndCacheIndex(ctx, m, "")
	require.NoError(t, err)
	assert.True(t, updated)

	hash := publishedHash(t, m)
	entry := c.Entries()[m]
	assert.Equal(t, hash, entry.IndexHash)
	assert.Equal(t, domain.IndexBlobName(hash), entry.IndexPath)
	_, err = store.ReadIndex(entry.IndexPath, entry.IndexHash)
	require.NoError(t, err)

	updated, err = c.FetchAndCacheIndex(ctx, m, hash)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestFetchAndCacheIndex_SupersededBlobRemoved(t *testing.T) {
	ctx := context.Background()
	m := publish(t, domaintest.Zlib())
	store := cas.NewStore(t.TempDir())
	c := newCache(t, store)

	_, err := c.FetchAndCacheIndex(ctx, m, "")
	require.NoError(t, err)
	first := c.Entries()[m]

	writeSpecFile(t, m, domaintest.Named("cmake", "3.20.2"))
	require.NoError(t, c.GeneratePackageIndex(ctx, m))

	updated, err := c.FetchAndCacheIndex(ctx, m, first.IndexHash)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.NotEqual(t, first.IndexPath, c.Entries()[m].IndexPath)
	assert.NoFileExists(t, filepath.Join(store.Root(), first.IndexPath))
}

func TestFetchAndCacheIndex_TransmissionError(t *testing.T) {
	ctx := context.Background()
	m := publish(t, domaintest.Zlib())
	hashFile := filepath.Join(m, domain.BuildCacheDirName, domain.IndexHashFileName)
	require.NoError(t, os.WriteFile(hashFile, []byte("0000"), 0o600))

	c := newCache(t, cas.NewStore(t.TempDir()))
	updated, err := c.FetchAndCacheIndex(ctx, m, "")
	require.ErrorIs(t, err, domain.ErrIndexTransmissionError)
	assert.False(t, updated)
	assert.Empty(t, c.Entries())
}

func TestFetchAndCacheIndex_DigestComputedByHasher(t *testing.T) {
	m := publish(t, domaintest.Zlib())
	hasher := mocks.NewMockHasher(gomock.NewController(t))
	hasher.EXPECT().HashBytes(gomock.Any()).Return("feedface")

	c := index.NewCache(cas.NewStore(t.TempDir()), mirror.NewFileStorage(), hasher, specdb.NewFactory(), quietLogger(t))
	require.NoError(t, c.Open())
	t.Cleanup(func() { _ = c.Close() })

	_, err := c.FetchAndCacheIndex(context.Background(), m, "")
	require.ErrorIs(t, err, domain.ErrIndexTransmissionError)
	assert.Empty(t, c.Entries())
}

func TestFetchAndCacheIndex_MissingIndex(t *testing.T) {
	c := newCache(t, cas.NewStore(t.TempDir()))
	_, err := c.FetchAndCacheIndex(context.Background(), t.TempDir(), "")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, c.Entries())
}

func TestUpdateLocalIndexCache_Reconciles(t *testing.T) {
	ctx := context.Background()
	zlib := domaintest.Zlib()
	a := publish(t, zlib)
	b := publish(t, domaintest.Libpng(zlib))
	cm := publish(t, domaintest.Named("cmake", "3.20.2"))
	store := cas.NewStore(t.TempDir())
	storage := newCountingStorage()

	c := index.NewCache(store, storage, fs.NewHasher(), specdb.NewFactory(), quietLogger(t))
	require.NoError(t, c.Open())
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.UpdateLocalIndexCache(ctx, []string{a, b}))
	require.Len(t, c.Entries(), 2)
	aBlob := c.Entries()[a].IndexPath
	bEntry := c.Entries()[b]

	bIndex := domain.BuildCacheURL(b, domain.IndexFileName)
	bHash := domain.BuildCacheURL(b, domain.IndexHashFileName)
	require.Equal(t, 1, storage.count(bIndex))
	require.Equal(t, 1, storage.count(bHash))

	require.NoError(t, c.UpdateLocalIndexCache(ctx, []string{b, cm}))
	assert.Equal(t, 1, storage.count(bIndex), "unchanged index is not downloaded again")
	assert.Equal(t, 2, storage.count(bHash))
	entries := c.Entries()
	assert.Equal(t, bEntry.IndexPath, entries[b].IndexPath)
	assert.Len(t, entries, 2)
	assert.Contains(t, entries, b)
	assert.Contains(t, entries, cm)
	assert.NotContains(t, entries, a)
	assert.NoFileExists(t, filepath.Join(store.Root(), aBlob))

	reloaded := newCache(t, store)
	assert.Equal(t, entries, reloaded.Entries())
}

func TestUpdateLocalIndexCache_SharedBlobKept(t *testing.T) {
	ctx := context.Background()
	a := publish(t, domaintest.Zlib())
	b := publish(t, domaintest.Zlib())
	store := cas.NewStore(t.TempDir())

	c := newCache(t, store)
	require.NoError(t, c.UpdateLocalIndexCache(ctx, []string{a, b}))
	shared := c.Entries()[b]
	require.Equal(t, c.Entries()[a].IndexPath, shared.IndexPath)

	require.NoError(t, c.UpdateLocalIndexCache(ctx, []string{b}))
	_, err := store.ReadIndex(shared.IndexPath, shared.IndexHash)
	require.NoError(t, err)
}

func TestUpdateLocalIndexCache_UnreachableMirrorKeepsEntry(t *testing.T) {
	ctx := context.Background()
	m := publish(t, domaintest.Zlib())
	store := cas.NewStore(t.TempDir())

	c := newCache(t, store)
	require.NoError(t, c.UpdateLocalIndexCache(ctx, []string{m}))
	known := c.Entries()[m]

	require.NoError(t, os.RemoveAll(filepath.Join(m, domain.BuildCacheDirName)))
	require.NoError(t, c.UpdateLocalIndexCache(ctx, []string{m}))
	assert.Equal(t, known, c.Entries()[m])

	records, err := c.RegenerateSpecCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, records.Len())
}

func TestUpdateLocalIndexCache_NewMirrorUnreachable(t *testing.T) {
	c := newCache(t, cas.NewStore(t.TempDir()))
	require.NoError(t, c.UpdateLocalIndexCache(context.Background(), []string{t.TempDir()}))
	assert.Empty(t, c.Entries())
}

func TestRegenerateSpecCache(t *testing.T) {
	ctx := context.Background()
	zlib := domaintest.Zlib()
	libpng := domaintest.Libpng(zlib)
	a := publish(t, zlib)
	b := publish(t, libpng)

	c := newCache(t, cas.NewStore(t.TempDir()))
	require.NoError(t, c.UpdateLocalIndexCache(ctx, []string{a, b}))

	records, err := c.RegenerateSpecCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, records.Len())
	assert.Same(t, records, c.Records())

	hits := records.Find(libpng.DAGHash(), libpng.FullHash())
	require.Len(t, hits, 1)
	assert.Equal(t, b, hits[0].MirrorURL)
	assert.Equal(t, libpng.DAGHash(), hits[0].Spec.DAGHash())
	require.Len(t, hits[0].Spec.Dependencies, 1)
	assert.Equal(t, "zlib", hits[0].Spec.Dependencies[0].Spec.Name)

	hits = records.Find(zlib.DAGHash(), "")
	require.Len(t, hits, 1)
	assert.Equal(t, a, hits[0].MirrorURL)
}

func TestRegenerateSpecCache_CorruptBlobRefetched(t *testing.T) {
	ctx := context.Background()
	zlib := domaintest.Zlib()
	m := publish(t, zlib)
	store := cas.NewStore(t.TempDir())

	c := newCache(t, store)
	require.NoError(t, c.UpdateLocalIndexCache(ctx, []string{m}))
	blob := filepath.Join(store.Root(), c.Entries()[m].IndexPath)
	require.NoError(t, os.WriteFile(blob, []byte("garbage"), 0o600))

	records, err := c.RegenerateSpecCache(ctx)
	require.NoError(t, err)
	assert.Len(t, records.Find(zlib.DAGHash(), ""), 1)

	_, err = store.ReadIndex(c.Entries()[m].IndexPath, c.Entries()[m].IndexHash)
	require.NoError(t, err)
}

func TestGeneratePackageIndex_SkipsUnreadableSpecFiles(t *testing.T) {
	ctx := context.Background()
	zlib := domaintest.Zlib()
	root := t.TempDir()
	writeSpecFile(t, root, zlib)

	bc := filepath.Join(root, domain.BuildCacheDirName)
	require.NoError(t, os.WriteFile(filepath.Join(bc, "broken"+domain.SpecExt), []byte("spec: [}"), 0o600))
	nested := filepath.Join(bc, "linux-ubuntu20.04-x86_64", "nested"+domain.SpecExt)
	require.NoError(t, os.MkdirAll(filepath.Dir(nested), 0o750))
	require.NoError(t, os.WriteFile(nested, []byte("garbage"), 0o600))

	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Warn(gomock.Any()).Times(1)
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	c := index.NewCache(cas.NewStore(t.TempDir()), mirror.NewFileStorage(), fs.NewHasher(), specdb.NewFactory(), log)

	require.NoError(t, c.GeneratePackageIndex(ctx, root))

	data, err := os.ReadFile(filepath.Join(bc, domain.IndexFileName))
	require.NoError(t, err)
	doc, err := domain.ParseIndexDocument(data)
	require.NoError(t, err)
	records := doc.Records()
	require.Len(t, records, 1)
	assert.Equal(t, zlib.DAGHash(), records[0].Hash())
	assert.Equal(t, fs.NewHasher().HashBytes(data), publishedHash(t, root))
}

func TestGeneratePackageIndex_EmptyMirror(t *testing.T) {
	root := t.TempDir()
	c := index.NewCache(cas.NewStore(t.TempDir()), mirror.NewFileStorage(), fs.NewHasher(), specdb.NewFactory(), quietLogger(t))
	require.NoError(t, c.GeneratePackageIndex(context.Background(), root))

	data, err := os.ReadFile(filepath.Join(root, domain.BuildCacheDirName, domain.IndexFileName))
	require.NoError(t, err)
	doc, err := domain.ParseIndexDocument(data)
	require.NoError(t, err)
	assert.Empty(t, doc.Records())
}

func TestCache_Closed(t *testing.T) {
	ctx := context.Background()
	c := index.NewCache(cas.NewStore(t.TempDir()), mirror.NewFileStorage(), fs.NewHasher(), specdb.NewFactory(), quietLogger(t))

	_, err := c.FetchAndCacheIndex(ctx, t.TempDir(), "")
	require.ErrorIs(t, err, domain.ErrCacheClosed)

	require.NoError(t, c.Open())
	require.NoError(t, c.Close())

	require.ErrorIs(t, c.UpdateLocalIndexCache(ctx, nil), domain.ErrCacheClosed)
	_, err = c.RegenerateSpecCache(ctx)
	require.ErrorIs(t, err, domain.ErrCacheClosed)
}

func TestCache_Open_CorruptContents(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, domain.ContentsFileName), []byte(`{"entries":{},"digest":"bad"}`), 0o600))

	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Warn(gomock.Any()).Times(1)
	c := index.NewCache(cas.NewStore(dir), mirror.NewFileStorage(), fs.NewHasher(), specdb.NewFactory(), log)

	require.NoError(t, c.Open())
	assert.Empty(t, c.Entries())
}
