package relocate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/bincache/internal/engine/relocate"
)

func TestPrefixMap_Order(t *testing.T) {
	t.Parallel()

	pm := relocate.NewPrefixMap(map[string]string{
		"/old":            "/new",
		"/old/pkgs/zlib/": "/new/zlib",
		"/old/pkgs":       "/new/pkgs",
		"":                "/ignored",
	})

	assert.Equal(t, []relocate.Pair{
		{Old: "/old/pkgs/zlib", New: "/new/zlib"},
		{Old: "/old/pkgs", New: "/new/pkgs"},
		{Old: "/old", New: "/new"},
	}, pm.Pairs())
	assert.True(t, pm.Changes())
}

func TestPrefixMap_Rewrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mapping map[string]string
		in      string
		want    string
		changed bool
	}{
		{
			name:    "longest prefix wins",
			mapping: map[string]string{"/old": "/new", "/old/zlib": "/store/zlib-abc"},
			in:      "ZLIB=/old/zlib/lib ROOT=/old/bin",
			want:    "ZLIB=/store/zlib-abc/lib ROOT=/new/bin",
			changed: true,
		},
		{
			name:    "new prefix extends old prefix",
			mapping: map[string]string{"/opt/a": "/opt/a/b"},
			in:      "/opt/a/lib",
			want:    "/opt/a/b/lib",
			changed: true,
		},
		{
			name:    "no match",
			mapping: map[string]string{"/old": "/new"},
			in:      "nothing here",
			want:    "nothing here",
		},
		{
			name:    "identity pair",
			mapping: map[string]string{"/same": "/same"},
			in:      "/same/lib",
			want:    "/same/lib",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pm := relocate.NewPrefixMap(tt.mapping)
			out, changed := pm.Rewrite([]byte(tt.in))
			assert.Equal(t, tt.want, string(out))
			assert.Equal(t, tt.changed, changed)

			again, changedAgain := pm.Rewrite(out)
			assert.Equal(t, tt.want, string(again), "second rewrite must be a no-op")
			assert.False(t, changedAgain)
		})
	}
}

func TestPrefixMap_RewritePath(t *testing.T) {
	t.Parallel()

	pm := relocate.NewPrefixMap(map[string]string{"/opt/a": "/srv/a"})

	got, ok := pm.RewritePath("/opt/a/lib/libz.so")
	assert.True(t, ok)
	assert.Equal(t, "/srv/a/lib/libz.so", got)

	got, ok = pm.RewritePath("/opt/a")
	assert.True(t, ok)
	assert.Equal(t, "/srv/a", got)

	got, ok = pm.RewritePath("/opt/ab/lib")
	assert.False(t, ok)
	assert.Equal(t, "/opt/ab/lib", got)
}

func TestPrefixMap_RewritePathNestedTarget(t *testing.T) {
	t.Parallel()

	pm := relocate.NewPrefixMap(map[string]string{"/d/opt": "/d/opt/v2"})

	got, ok := pm.RewritePath("/d/opt/lib/libz.so")
	assert.True(t, ok)
	assert.Equal(t, "/d/opt/v2/lib/libz.so", got)

	again, ok := pm.RewritePath(got)
	assert.False(t, ok)
	assert.Equal(t, "/d/opt/v2/lib/libz.so", again)

	got, ok = pm.RewritePath("/d/opt/v2x/lib")
	assert.True(t, ok)
	assert.Equal(t, "/d/opt/v2/v2x/lib", got)
}
