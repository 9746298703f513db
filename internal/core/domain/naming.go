package domain

import "path"

// ArchiveBaseName returns the file name stem shared by every artifact of an archive:
// <arch>-<compiler>-<compiler_version>-<name>-<version>-<dag_hash>.
func ArchiveBaseName(s *Spec) string {
	return s.Arch.String() + "-" + s.Compiler.DirName() + "-" + s.Name + "-" + s.Version + "-" + s.DAGHash()
}

// ArchiveDirName returns the archive directory relative to build_cache.
func ArchiveDirName(s *Spec) string {
	return path.Join(s.Arch.String(), s.Compiler.DirName(), s.Name+"-"+s.Version)
}

// ContainerPath returns the container path relative to build_cache.
func ContainerPath(s *Spec) string {
	return path.Join(ArchiveDirName(s), ArchiveBaseName(s)+ContainerExt)
}

// SpecFilePath returns the published spec document path relative to build_cache.
func SpecFilePath(s *Spec) string {
	return ArchiveBaseName(s) + SpecExt
}

// PayloadName returns the file name of the compressed prefix tarball.
func PayloadName(s *Spec) string {
	return ArchiveBaseName(s) + PayloadExt
}

// SignatureName returns the file name of the detached spec signature.
func SignatureName(s *Spec) string {
	return SpecFilePath(s) + SignatureExt
}
