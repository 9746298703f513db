package relocate

import (
	"debug/macho"
	"encoding/binary"
	"path/filepath"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/zerr"
)

// Load commands carrying a path string at offset 8.
const (
	lcLoadDylib     macho.LoadCmd = 0xc
	lcIDDylib       macho.LoadCmd = 0xd
	lcLoadWeakDylib macho.LoadCmd = 0x80000018
	lcRpath         macho.LoadCmd = 0x8000001c
	lcReexportDylib macho.LoadCmd = 0x8000001f
	lcLazyLoadDylib macho.LoadCmd = 0x20
)

const (
	machoHeaderSize32 = 28
	machoHeaderSize64 = 32
	maxFatArches      = 30
)

// MachORelocator rewrites LC_RPATH, the dylib load commands, and LC_ID_DYLIB
// in thin and universal Mach-O files.
type MachORelocator struct{}

// Format implements BinaryRelocator.
func (MachORelocator) Format() string { return "macho" }

// Match implements BinaryRelocator.
func (MachORelocator) Match(header []byte) bool {
	if len(header) < 8 {
		return false
	}
	be := binary.BigEndian.Uint32(header)
	le := binary.LittleEndian.Uint32(header)
	switch {
	case be == macho.Magic32, be == macho.Magic64, le == macho.Magic32, le == macho.Magic64:
		return true
	case be == macho.MagicFat:
		// Java class files share the universal magic; their next word is a
		// version number rather than a small arch count.
		n := binary.BigEndian.Uint32(header[4:])
		return n > 0 && n <= maxFatArches
	default:
		return false
	}
}

// LinkStrings implements BinaryRelocator.
func (MachORelocator) LinkStrings(path string) ([]LinkString, error) {
	if fat, err := macho.OpenFat(path); err == nil {
		defer func() { _ = fat.Close() }()
		var out []LinkString
		for _, arch := range fat.Arches {
			out = append(out, machoLinkStrings(arch.File, int64(arch.Offset))...)
		}
		return out, nil
	}

	f, err := macho.Open(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", path)
	}
	defer func() { _ = f.Close() }()
	return machoLinkStrings(f, 0), nil
}

func machoLinkStrings(f *macho.File, base int64) []LinkString {
	offset := base + machoHeaderSize32
	if f.Magic == macho.Magic64 {
		offset = base + machoHeaderSize64
	}

	var out []LinkString
	for _, l := range f.Loads {
		raw := l.Raw()
		cmdOffset := offset
		offset += int64(len(raw))
		if len(raw) < 12 {
			continue
		}

		var kind LinkKind
		switch macho.LoadCmd(f.ByteOrder.Uint32(raw[0:4])) {
		case lcRpath:
			kind = KindRpath
		case lcLoadDylib, lcLoadWeakDylib, lcReexportDylib, lcLazyLoadDylib:
			kind = KindDylib
		case lcIDDylib:
			kind = KindID
		default:
			continue
		}

		cmdSize := int(f.ByteOrder.Uint32(raw[4:8]))
		strOff := int(f.ByteOrder.Uint32(raw[8:12]))
		if cmdSize > len(raw) || strOff >= cmdSize {
			continue
		}
		out = append(out, LinkString{
			Kind:     kind,
			Offset:   cmdOffset + int64(strOff),
			Capacity: cmdSize - strOff - 1,
			Value:    cString(raw[strOff:cmdSize]),
		})
	}
	return out
}

// Relocate implements BinaryRelocator.
func (r MachORelocator) Relocate(path string, pm *PrefixMap) error {
	strs, err := r.LinkStrings(path)
	if err != nil {
		return err
	}
	return patchLinkStrings(path, strs, func(ls LinkString) string {
		out, _ := pm.RewritePath(ls.Value)
		return out
	})
}

// MakeRelative implements BinaryRelocator. Rpaths and dylib loads inside
// root become @loader_path relative and the install name becomes
// @rpath/<basename>.
func (r MachORelocator) MakeRelative(path, origPath, root string) error {
	strs, err := r.LinkStrings(path)
	if err != nil {
		return err
	}
	return patchLinkStrings(path, strs, func(ls LinkString) string {
		if ls.Kind == KindID {
			return "@rpath/" + filepath.Base(ls.Value)
		}
		out, _ := relativeTo("@loader_path", ls.Value, origPath, root)
		return out
	})
}
