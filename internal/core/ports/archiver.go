package ports

import "context"

// Archiver creates and extracts the tarballs that make up an archive.
type Archiver interface {
	// Pack writes srcDir as a gzipped tarball rooted at arcName.
	Pack(dst, srcDir, arcName string) error
	// WriteContainer writes an uncompressed tarball holding the given files flat.
	WriteContainer(dst string, files []string) error
	// Unpack extracts a tarball into dstDir, detecting its compression.
	Unpack(src, dstDir string) error
	// CopyTree copies src to dst, preserving hardlinks and symlinks.
	CopyTree(ctx context.Context, src, dst string) error
}
