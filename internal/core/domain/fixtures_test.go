package domain_test

import "go.trai.ch/bincache/internal/core/domain"

var testArch = domain.Arch{Platform: "linux", OS: "ubuntu20.04", Target: "x86_64"}

func newZlib() *domain.Spec {
	return &domain.Spec{
		Name:        "zlib",
		Version:     "1.2.11",
		Arch:        testArch,
		Compiler:    domain.Compiler{Name: "gcc", Version: "9.3.0"},
		Variants:    map[string]string{"shared": "true", "optimize": "true"},
		PackageHash: "abc",
	}
}

func newLibpng(zlib *domain.Spec) *domain.Spec {
	return &domain.Spec{
		Name:     "libpng",
		Version:  "1.6.37",
		Arch:     testArch,
		Compiler: domain.Compiler{Name: "gcc", Version: "9.3.0"},
		Dependencies: []domain.Dependency{
			{Spec: zlib, Types: []string{domain.DepLink, domain.DepBuild}},
		},
	}
}
