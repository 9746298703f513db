// Package domaintest provides spec fixtures shared by tests.
package domaintest

import "go.trai.ch/bincache/internal/core/domain"

// Arch is the platform every fixture spec is built for.
var Arch = domain.Arch{Platform: "linux", OS: "ubuntu20.04", Target: "x86_64"}

// Compiler is the toolchain every fixture spec is built with.
var Compiler = domain.Compiler{Name: "gcc", Version: "9.3.0"}

// Zlib returns a leaf spec.
func Zlib() *domain.Spec {
	return &domain.Spec{
		Name:        "zlib",
		Version:     "1.2.11",
		Arch:        Arch,
		Compiler:    Compiler,
		Variants:    map[string]string{"shared": "true"},
		PackageHash: "zlib-recipe",
	}
}

// Libpng returns a spec linking against zlib.
func Libpng(zlib *domain.Spec) *domain.Spec {
	return &domain.Spec{
		Name:        "libpng",
		Version:     "1.6.37",
		Arch:        Arch,
		Compiler:    Compiler,
		PackageHash: "libpng-recipe",
		Dependencies: []domain.Dependency{
			{Spec: zlib, Types: []string{domain.DepBuild, domain.DepLink}},
		},
	}
}

// Named returns a leaf spec with the given name and version.
func Named(name, version string) *domain.Spec {
	return &domain.Spec{Name: name, Version: version, Arch: Arch, Compiler: Compiler}
}
