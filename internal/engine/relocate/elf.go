package relocate

import (
	"bytes"
	"debug/elf"
	"strings"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/zerr"
)

var elfMagic = []byte(elf.ELFMAG)

// ELFRelocator rewrites DT_RPATH, DT_RUNPATH, absolute DT_NEEDED entries,
// and the PT_INTERP program interpreter.
type ELFRelocator struct{}

// Format implements BinaryRelocator.
func (ELFRelocator) Format() string { return "elf" }

// Match implements BinaryRelocator.
func (ELFRelocator) Match(header []byte) bool {
	return bytes.HasPrefix(header, elfMagic)
}

// LinkStrings implements BinaryRelocator.
func (ELFRelocator) LinkStrings(path string) ([]LinkString, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrInvalidArchive.Error()), "path", path)
	}
	defer func() { _ = f.Close() }()

	var out []LinkString

	for _, p := range f.Progs {
		if p.Type != elf.PT_INTERP || p.Filesz == 0 {
			continue
		}
		data := make([]byte, p.Filesz)
		if _, err := p.ReadAt(data, 0); err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", path)
		}
		value := cString(data)
		out = append(out, LinkString{Kind: KindInterp, Offset: int64(p.Off), Capacity: len(value), Value: value})
	}

	for _, dyn := range f.Sections {
		if dyn.Type != elf.SHT_DYNAMIC || int(dyn.Link) >= len(f.Sections) {
			continue
		}
		strtab := f.Sections[dyn.Link]
		strData, err := strtab.Data()
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", path)
		}
		dynData, err := dyn.Data()
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", path)
		}

		for _, e := range dynamicEntries(f, dynData) {
			var kind LinkKind
			switch e.tag {
			case elf.DT_RPATH, elf.DT_RUNPATH:
				kind = KindRpath
			case elf.DT_NEEDED:
				kind = KindNeeded
			default:
				continue
			}
			if e.val >= uint64(len(strData)) {
				continue
			}
			value := cString(strData[e.val:])
			if kind == KindNeeded && !strings.HasPrefix(value, "/") {
				continue
			}
			out = append(out, LinkString{
				Kind:     kind,
				Offset:   int64(strtab.Offset) + int64(e.val),
				Capacity: len(value),
				Value:    value,
			})
		}
	}

	return out, nil
}

// Relocate implements BinaryRelocator.
func (r ELFRelocator) Relocate(path string, pm *PrefixMap) error {
	strs, err := r.LinkStrings(path)
	if err != nil {
		return err
	}
	return patchLinkStrings(path, strs, func(ls LinkString) string {
		rewrite := func(s string) string {
			out, _ := pm.RewritePath(s)
			return out
		}
		if ls.Kind == KindRpath {
			return rewriteSearchPath(ls.Value, rewrite)
		}
		return rewrite(ls.Value)
	})
}

// MakeRelative implements BinaryRelocator. Rpath entries inside root become
// $ORIGIN relative.
func (r ELFRelocator) MakeRelative(path, origPath, root string) error {
	strs, err := r.LinkStrings(path)
	if err != nil {
		return err
	}
	return patchLinkStrings(path, strs, func(ls LinkString) string {
		if ls.Kind != KindRpath {
			return ls.Value
		}
		return rewriteSearchPath(ls.Value, func(s string) string {
			out, _ := relativeTo("$ORIGIN", s, origPath, root)
			return out
		})
	})
}

type dynEntry struct {
	tag elf.DynTag
	val uint64
}

func dynamicEntries(f *elf.File, data []byte) []dynEntry {
	var out []dynEntry
	order := f.ByteOrder
	if f.Class == elf.ELFCLASS64 {
		for len(data) >= 16 {
			tag := elf.DynTag(int64(order.Uint64(data[0:8]))) //nolint:gosec // Tags are small
			out = append(out, dynEntry{tag: tag, val: order.Uint64(data[8:16])})
			if tag == elf.DT_NULL {
				break
			}
			data = data[16:]
		}
		return out
	}
	for len(data) >= 8 {
		tag := elf.DynTag(int32(order.Uint32(data[0:4]))) //nolint:gosec // Tags are small
		out = append(out, dynEntry{tag: tag, val: uint64(order.Uint32(data[4:8]))})
		if tag == elf.DT_NULL {
			break
		}
		data = data[8:]
	}
	return out
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
