package domain_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/bincache/internal/core/domain"
)

func TestArchiveNames(t *testing.T) {
	t.Parallel()

	zlib := newZlib()
	h := zlib.DAGHash()

	assert.Equal(t, "linux-ubuntu20.04-x86_64-gcc-9.3.0-zlib-1.2.11-"+h, domain.ArchiveBaseName(zlib))
	assert.Equal(t, "linux-ubuntu20.04-x86_64/gcc-9.3.0/zlib-1.2.11", domain.ArchiveDirName(zlib))
	assert.Equal(t,
		"linux-ubuntu20.04-x86_64/gcc-9.3.0/zlib-1.2.11/linux-ubuntu20.04-x86_64-gcc-9.3.0-zlib-1.2.11-"+h+".bcache",
		domain.ContainerPath(zlib))
	assert.Equal(t, domain.ArchiveBaseName(zlib)+".spec.yaml", domain.SpecFilePath(zlib))
	assert.Equal(t, domain.ArchiveBaseName(zlib)+".spec.yaml.asc", domain.SignatureName(zlib))
}

func TestLayout_PathFor(t *testing.T) {
	t.Parallel()

	zlib := newZlib()

	def := domain.Layout{Root: "/opt/root"}
	assert.Equal(t,
		filepath.Join("/opt/root", "linux-ubuntu20.04-x86_64", "gcc-9.3.0", "zlib-1.2.11-"+zlib.DAGHash()),
		def.PathFor(zlib))

	custom := domain.Layout{Root: "/opt/root", Projection: "{name}-v2/{version}"}
	assert.Equal(t, filepath.Join("zlib-v2", "1.2.11"), custom.RelativePath(zlib))

	short := domain.Layout{Root: "/r", Projection: "{name}/{hash:7}"}
	assert.Equal(t, filepath.Join("zlib", zlib.DAGHash()[:7]), short.RelativePath(zlib))
}

func TestJoinURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base string
		want string
	}{
		{base: "file:///srv/mirror", want: "file:///srv/mirror/build_cache/index.json"},
		{base: "https://example.com/cache/", want: "https://example.com/cache/build_cache/index.json"},
		{base: "s3://bucket/prefix", want: "s3://bucket/prefix/build_cache/index.json"},
		{base: "/srv/mirror", want: filepath.Join("/srv/mirror", "build_cache", "index.json")},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, domain.BuildCacheURL(tt.base, domain.IndexFileName))
		})
	}
}

func TestLocalPath(t *testing.T) {
	t.Parallel()

	p, ok := domain.LocalPath("file:///srv/mirror/")
	assert.True(t, ok)
	assert.Equal(t, filepath.FromSlash("/srv/mirror"), p)

	p, ok = domain.LocalPath("/plain/path")
	assert.True(t, ok)
	assert.Equal(t, "/plain/path", p)

	_, ok = domain.LocalPath("https://example.com")
	assert.False(t, ok)
}
