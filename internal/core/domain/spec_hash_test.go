package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/bincache/internal/core/domain"
)

func TestSpec_DAGHash_Golden(t *testing.T) {
	t.Parallel()

	zlib := newZlib()
	png := newLibpng(zlib)

	assert.Equal(t, "aredtvm6ed6fd6aydntv3xbfuia6hp5y", zlib.DAGHash())
	assert.Equal(t, "qhbdv4wq3a7h4gcmdrrm4txk7wpbmhlb", zlib.FullHash())
	assert.Equal(t, "ow622cdajsjgbflbbhu2zfgg4ci6jpdr", png.DAGHash())
	assert.Equal(t, "lrarvde6moc54llvqivg6nctswvl46qt", png.FullHash())
}

func TestSpec_DAGHash_Stable(t *testing.T) {
	t.Parallel()

	png := newLibpng(newZlib())
	first := png.DAGHash()
	for range 10 {
		assert.Equal(t, first, png.DAGHash())
	}
	assert.Len(t, first, domain.SpecHashLength)
}

func TestSpec_DAGHash_IgnoresOrdering(t *testing.T) {
	t.Parallel()

	a := newZlib()
	b := newZlib()
	b.Variants = map[string]string{"optimize": "true", "shared": "true"}

	dep1 := &domain.Spec{Name: "a", Version: "1"}
	dep2 := &domain.Spec{Name: "b", Version: "1"}
	a.Dependencies = []domain.Dependency{{Spec: dep1, Types: []string{"link"}}, {Spec: dep2, Types: []string{"run", "link"}}}
	b.Dependencies = []domain.Dependency{{Spec: dep2, Types: []string{"link", "run"}}, {Spec: dep1, Types: []string{"link"}}}

	assert.Equal(t, a.DAGHash(), b.DAGHash())
	assert.Equal(t, a.FullHash(), b.FullHash())
}

func TestSpec_FullHash_CoversPatches(t *testing.T) {
	t.Parallel()

	zlib := newZlib()
	patched := newZlib()
	patched.Patches = []string{"deadbeef"}

	assert.Equal(t, zlib.DAGHash(), patched.DAGHash())
	assert.NotEqual(t, zlib.FullHash(), patched.FullHash())

	png := newLibpng(zlib)
	pngPatched := newLibpng(patched)
	assert.Equal(t, png.DAGHash(), pngPatched.DAGHash())
	assert.Equal(t, "rgh3ztmwy4erbgqnof2lfcivfpcnpenm", pngPatched.FullHash())
}

func TestSpec_DAGHash_DistinguishesFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(s *domain.Spec)
	}{
		{name: "version", mutate: func(s *domain.Spec) { s.Version = "1.2.12" }},
		{name: "compiler", mutate: func(s *domain.Spec) { s.Compiler.Version = "10.1.0" }},
		{name: "target", mutate: func(s *domain.Spec) { s.Arch.Target = "aarch64" }},
		{name: "variant", mutate: func(s *domain.Spec) { s.Variants["shared"] = "false" }},
		{name: "field boundary", mutate: func(s *domain.Spec) { s.Name, s.Version = "zlib1", ".2.11" }},
	}

	base := newZlib().DAGHash()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newZlib()
			tt.mutate(s)
			assert.NotEqual(t, base, s.DAGHash())
		})
	}
}

func TestSpec_RuntimeDependencies(t *testing.T) {
	t.Parallel()

	zlib := newZlib()
	cmake := &domain.Spec{Name: "cmake", Version: "3.20"}
	png := newLibpng(zlib)
	png.Dependencies = append(png.Dependencies, domain.Dependency{Spec: cmake, Types: []string{domain.DepBuild}})

	deps := png.RuntimeDependencies()
	assert.Equal(t, []*domain.Spec{zlib}, deps)

	all := png.Traverse()
	assert.Len(t, all, 3)
	assert.Same(t, png, all[len(all)-1])
}
