// Package tarball reads and writes the tarballs that make up an archive.
package tarball

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

var _ ports.Archiver = (*Archiver)(nil)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
)

// Archiver implements ports.Archiver.
type Archiver struct{}

// New creates a new Archiver.
func New() *Archiver {
	return &Archiver{}
}

// Pack writes srcDir as a gzipped tarball whose entries live below arcName.
func (a *Archiver) Pack(dst, srcDir, arcName string) (err error) {
	//nolint:gosec // Destination is a scratch path
	f, err := os.Create(dst)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", dst)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = zerr.With(zerr.Wrap(cerr, domain.ErrArchiveWriteFailed.Error()), "path", dst)
		}
	}()

	zw := gzip.NewWriter(f)
	tw := tar.NewWriter(zw)
	if err := writeTree(context.Background(), tw, srcDir, arcName); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", dst)
	}
	if err := tw.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", dst)
	}
	if err := zw.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", dst)
	}
	return nil
}

// WriteContainer writes an uncompressed tarball holding files under their base names.
func (a *Archiver) WriteContainer(dst string, files []string) (err error) {
	//nolint:gosec // Destination is a scratch path
	f, err := os.Create(dst)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", dst)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = zerr.With(zerr.Wrap(cerr, domain.ErrArchiveWriteFailed.Error()), "path", dst)
		}
	}()

	tw := tar.NewWriter(f)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", file)
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", file)
		}
		hdr.Name = filepath.Base(file)
		anonymize(hdr)
		if err := tw.WriteHeader(hdr); err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", file)
		}
		if err := copyFile(tw, file); err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", file)
		}
	}
	if err := tw.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", dst)
	}
	return nil
}

// Unpack extracts src into dstDir. Gzip, bzip2, and plain tarballs are
// detected by their magic bytes.
func (a *Archiver) Unpack(src, dstDir string) error {
	//nolint:gosec // Source is an archive fetched by the caller
	f, err := os.Open(src)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", src)
	}
	defer func() { _ = f.Close() }()

	r, err := decompress(bufio.NewReader(f))
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrInvalidArchive, err.Error()), "path", src)
	}

	if err := extract(context.Background(), tar.NewReader(r), dstDir); err != nil {
		return zerr.With(err, "path", src)
	}
	return nil
}

// CopyTree copies src into dst through an in-memory tar stream, which keeps
// hardlinked files linked in the copy.
func (a *Archiver) CopyTree(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(dst, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", dst)
	}

	pr, pw := io.Pipe()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tw := tar.NewWriter(pw)
		err := writeTree(ctx, tw, src, "")
		if err == nil {
			err = tw.Close()
		}
		_ = pw.CloseWithError(err)
		return err
	})

	g.Go(func() error {
		err := extract(ctx, tar.NewReader(pr), dst)
		_ = pr.CloseWithError(err)
		return err
	})

	if err := g.Wait(); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", src)
	}
	return nil
}

func decompress(br *bufio.Reader) (io.Reader, error) {
	head, err := br.Peek(3)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return gzip.NewReader(br)
	case bytes.HasPrefix(head, bzip2Magic):
		return bzip2.NewReader(br), nil
	default:
		return br, nil
	}
}

func writeTree(ctx context.Context, tw *tar.Writer, srcDir, arcName string) error {
	links := newLinkTracker()

	return filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		name := entryName(arcName, filepath.ToSlash(rel))
		if name == "" {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		var target string
		if info.Mode()&fs.ModeSymlink != 0 {
			if target, err = os.Readlink(p); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, target)
		if err != nil {
			return err
		}
		hdr.Name = name
		if info.IsDir() {
			hdr.Name += "/"
		}
		anonymize(hdr)

		if info.Mode().IsRegular() {
			if first, ok := links.seen(info, name); ok {
				hdr.Typeflag = tar.TypeLink
				hdr.Linkname = first
				hdr.Size = 0
			}
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if hdr.Typeflag == tar.TypeReg {
			return copyFile(tw, p)
		}
		return nil
	})
}

func entryName(arcName, rel string) string {
	switch {
	case rel == ".":
		return arcName
	case arcName == "":
		return rel
	default:
		return path.Join(arcName, rel)
	}
}

func anonymize(hdr *tar.Header) {
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""
}

func copyFile(w io.Writer, p string) error {
	//nolint:gosec // Path comes from walking a directory we own
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(w, f)
	return err
}

func extract(ctx context.Context, tr *tar.Reader, dstDir string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return zerr.Wrap(err, domain.ErrArchiveReadFailed.Error())
		}

		target, err := safeJoin(dstDir, hdr.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}

		if err := confined(dstDir, target, hdr.Typeflag == tar.TypeDir); err != nil {
			return zerr.With(err, "entry", hdr.Name)
		}
		if err := extractEntry(tr, hdr, dstDir, target); err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrArchiveReadFailed.Error()), "entry", hdr.Name)
		}
	}
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, dstDir, target string) error {
	mode := hdr.FileInfo().Mode().Perm()

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, domain.DirPerm); err != nil {
			return err
		}
		return os.Chmod(target, mode|0o700)

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), domain.DirPerm); err != nil {
			return err
		}
		_ = os.Remove(target)
		//nolint:gosec // Target is confined to dstDir by safeJoin
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0o200)
		if err != nil {
			return err
		}
		//nolint:gosec // Entry sizes are bounded by the archive itself
		if _, err := io.Copy(f, tr); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		return os.Chmod(target, mode)

	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), domain.DirPerm); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Symlink(hdr.Linkname, target)

	case tar.TypeLink:
		source, err := safeJoin(dstDir, hdr.Linkname)
		if err != nil {
			return err
		}
		if err := confined(dstDir, source, false); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), domain.DirPerm); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Link(source, target)

	default:
		// Devices, fifos, and pax metadata have no place in an install prefix.
		return nil
	}
}

// safeJoin resolves an archive entry name below dstDir. The archive root
// itself resolves to "".
func safeJoin(dstDir, name string) (string, error) {
	clean := path.Clean(strings.TrimSuffix(name, "/"))
	if clean == "." {
		return "", nil
	}
	if !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", zerr.With(zerr.Wrap(domain.ErrUnsafeArchivePath, "entry escapes the extraction root"), "entry", name)
	}
	return filepath.Join(dstDir, filepath.FromSlash(clean)), nil
}

// confined rejects a target when an existing component between dstDir and
// target is a symlink. The target itself is checked only when self is set.
func confined(dstDir, target string, self bool) error {
	rel, err := filepath.Rel(dstDir, target)
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrUnsafeArchivePath, err.Error()), "path", target)
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if !self {
		parts = parts[:len(parts)-1]
	}
	p := dstDir
	for _, part := range parts {
		p = filepath.Join(p, part)
		info, err := os.Lstat(p)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrArchiveReadFailed.Error()), "path", p)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return zerr.With(zerr.Wrap(domain.ErrUnsafeArchivePath, "entry is written through a symlink"), "path", p)
		}
	}
	return nil
}
