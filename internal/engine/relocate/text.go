package relocate

import (
	"bytes"
	"io"
	"os"
	"unicode/utf8"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/zerr"
)

// sniffSize is how much of a file is inspected to classify it.
const sniffSize = 8 << 10

// readHead returns up to n leading bytes of the file at path.
func readHead(path string, n int) ([]byte, error) {
	//nolint:gosec // Path is a file inside the prefix being inspected
	f, err := os.Open(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", path)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", path)
	}
	return buf[:read], nil
}

// looksLikeText reports whether head has no NUL bytes and is valid UTF-8,
// allowing a multi-byte rune to be cut off at the end.
func looksLikeText(head []byte) bool {
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	if utf8.Valid(head) {
		return true
	}
	for k := 1; k < utf8.UTFMax && k <= len(head); k++ {
		tail := head[len(head)-k:]
		if utf8.RuneStart(tail[0]) {
			return !utf8.FullRune(tail) && utf8.Valid(head[:len(head)-k])
		}
	}
	return false
}

// rewriteText substitutes prefixes across the whole file.
func rewriteText(path string, pm *PrefixMap) error {
	//nolint:gosec // Path is a file inside the prefix being relocated
	data, err := os.ReadFile(path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", path)
	}
	out, changed := pm.Rewrite(data)
	if !changed {
		return nil
	}
	return writeInPlace(path, out)
}

// rewriteBinaryText substitutes prefixes inside NUL terminated strings,
// padding shortened strings with NULs. A longer replacement is rejected.
func rewriteBinaryText(path string, pm *PrefixMap) error {
	//nolint:gosec // Path is a file inside the prefix being relocated
	data, err := os.ReadFile(path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", path)
	}
	if !pm.Contains(data) {
		return nil
	}

	changed := false
	for start := 0; start < len(data); {
		end := bytes.IndexByte(data[start:], 0)
		if end < 0 {
			end = len(data)
		} else {
			end += start
		}

		segment := data[start:end]
		if out, ok := pm.Rewrite(segment); ok {
			if len(out) > len(segment) {
				return zerr.With(zerr.With(zerr.Wrap(domain.ErrNotRelocatable, "replacement is longer than the embedded string"),
					"path", path), "string", string(segment))
			}
			copy(segment, out)
			clear(segment[len(out):])
			changed = true
		}
		start = end + 1
	}
	if !changed {
		return nil
	}
	return writeInPlace(path, data)
}

func writeInPlace(path string, data []byte) error {
	return withWritable(path, func() error {
		//nolint:gosec // Path is a file inside the prefix being relocated
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", path)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
		}
		return f.Close()
	})
}
