// Package relocatetest builds minimal ELF and Mach-O files for tests.
package relocatetest

import (
	"bytes"
	"encoding/binary"
	"os"
)

// ELF describes the dynamic-linker strings of a minimal ELF64 shared object.
type ELF struct {
	Interp  string
	Rpath   string
	Runpath string
	Needed  []string
	// Strings are placed in a .rodata section, outside link metadata.
	Strings []string
}

// WriteELF writes spec as a little-endian x86-64 ELF64 file.
func WriteELF(path string, spec ELF) error {
	return os.WriteFile(path, BuildELF(spec), 0o755) //nolint:gosec // Fixture binaries are executable
}

// BuildELF returns the bytes of spec as a little-endian x86-64 ELF64 file.
func BuildELF(spec ELF) []byte {
	const (
		ehdrSize = 64
		phdrSize = 56
		shdrSize = 64
	)
	le := binary.LittleEndian

	phnum := 0
	if spec.Interp != "" {
		phnum = 1
	}
	dataStart := ehdrSize + phnum*phdrSize

	var body bytes.Buffer
	interpOff := dataStart
	if spec.Interp != "" {
		body.WriteString(spec.Interp)
		body.WriteByte(0)
	}

	dynstrOff := dataStart + body.Len()
	var dynstr bytes.Buffer
	dynstr.WriteByte(0)
	addStr := func(s string) uint64 {
		off := uint64(dynstr.Len()) //nolint:gosec // Fixture sizes are small
		dynstr.WriteString(s)
		dynstr.WriteByte(0)
		return off
	}

	type entry struct{ tag, val uint64 }
	var dyn []entry
	for _, n := range spec.Needed {
		dyn = append(dyn, entry{1, addStr(n)})
	}
	if spec.Rpath != "" {
		dyn = append(dyn, entry{15, addStr(spec.Rpath)})
	}
	if spec.Runpath != "" {
		dyn = append(dyn, entry{29, addStr(spec.Runpath)})
	}
	dyn = append(dyn, entry{0, 0})
	body.Write(dynstr.Bytes())

	dynamicOff := dataStart + body.Len()
	for _, e := range dyn {
		_ = binary.Write(&body, le, e.tag)
		_ = binary.Write(&body, le, e.val)
	}
	dynamicSize := len(dyn) * 16

	rodataOff := dataStart + body.Len()
	for _, s := range spec.Strings {
		body.WriteString(s)
		body.WriteByte(0)
	}
	rodataSize := dataStart + body.Len() - rodataOff

	shstrtabOff := dataStart + body.Len()
	shstrtab := []byte("\x00.dynstr\x00.dynamic\x00.rodata\x00.shstrtab\x00")
	body.Write(shstrtab)

	shoff := dataStart + body.Len()

	var out bytes.Buffer
	out.Write([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	_ = binary.Write(&out, le, uint16(3))  // ET_DYN
	_ = binary.Write(&out, le, uint16(62)) // EM_X86_64
	_ = binary.Write(&out, le, uint32(1))
	_ = binary.Write(&out, le, uint64(0))
	if phnum > 0 {
		_ = binary.Write(&out, le, uint64(ehdrSize))
	} else {
		_ = binary.Write(&out, le, uint64(0))
	}
	_ = binary.Write(&out, le, uint64(shoff)) //nolint:gosec // Fixture sizes are small
	_ = binary.Write(&out, le, uint32(0))
	_ = binary.Write(&out, le, uint16(ehdrSize))
	_ = binary.Write(&out, le, uint16(phdrSize))
	_ = binary.Write(&out, le, uint16(phnum)) //nolint:gosec // Fixture sizes are small
	_ = binary.Write(&out, le, uint16(shdrSize))
	_ = binary.Write(&out, le, uint16(5))
	_ = binary.Write(&out, le, uint16(4))

	if phnum > 0 {
		_ = binary.Write(&out, le, uint32(3)) // PT_INTERP
		_ = binary.Write(&out, le, uint32(4))
		_ = binary.Write(&out, le, uint64(interpOff)) //nolint:gosec // Fixture sizes are small
		_ = binary.Write(&out, le, uint64(0))
		_ = binary.Write(&out, le, uint64(0))
		_ = binary.Write(&out, le, uint64(len(spec.Interp)+1))
		_ = binary.Write(&out, le, uint64(len(spec.Interp)+1))
		_ = binary.Write(&out, le, uint64(1))
	}

	out.Write(body.Bytes())

	section := func(name, typ uint32, off, size int, link uint32, entsize uint64) {
		_ = binary.Write(&out, le, name)
		_ = binary.Write(&out, le, typ)
		_ = binary.Write(&out, le, uint64(0))
		_ = binary.Write(&out, le, uint64(0))
		_ = binary.Write(&out, le, uint64(off))  //nolint:gosec // Fixture sizes are small
		_ = binary.Write(&out, le, uint64(size)) //nolint:gosec // Fixture sizes are small
		_ = binary.Write(&out, le, link)
		_ = binary.Write(&out, le, uint32(0))
		_ = binary.Write(&out, le, uint64(1))
		_ = binary.Write(&out, le, entsize)
	}
	section(0, 0, 0, 0, 0, 0)
	section(1, 3, dynstrOff, dynstr.Len(), 0, 0)     // .dynstr, SHT_STRTAB
	section(9, 6, dynamicOff, dynamicSize, 1, 16)    // .dynamic, SHT_DYNAMIC
	section(18, 1, rodataOff, rodataSize, 0, 0)      // .rodata, SHT_PROGBITS
	section(26, 3, shstrtabOff, len(shstrtab), 0, 0) // .shstrtab

	return out.Bytes()
}

// MachO describes the load commands of a minimal 64-bit Mach-O dylib.
type MachO struct {
	ID     string
	Rpaths []string
	Dylibs []string
	// Slack is extra room reserved after every load command string.
	Slack int
	// Strings are appended after the load commands.
	Strings []string
}

// WriteMachO writes spec as a little-endian x86-64 Mach-O file.
func WriteMachO(path string, spec MachO) error {
	return os.WriteFile(path, BuildMachO(spec), 0o755) //nolint:gosec // Fixture binaries are executable
}

// BuildMachO returns the bytes of spec as a little-endian x86-64 Mach-O file.
func BuildMachO(spec MachO) []byte {
	le := binary.LittleEndian

	padded := func(s string, fixed int) (int, []byte) {
		size := fixed + len(s) + 1 + spec.Slack
		size = (size + 7) &^ 7
		buf := make([]byte, size-fixed)
		copy(buf, s)
		return size, buf
	}

	var cmds bytes.Buffer
	ncmds := 0
	dylib := func(cmd uint32, name string) {
		size, str := padded(name, 24)
		_ = binary.Write(&cmds, le, cmd)
		_ = binary.Write(&cmds, le, uint32(size)) //nolint:gosec // Fixture sizes are small
		_ = binary.Write(&cmds, le, uint32(24))
		_ = binary.Write(&cmds, le, uint32(2))
		_ = binary.Write(&cmds, le, uint32(0x10000))
		_ = binary.Write(&cmds, le, uint32(0x10000))
		cmds.Write(str)
		ncmds++
	}
	if spec.ID != "" {
		dylib(0xd, spec.ID)
	}
	for _, d := range spec.Dylibs {
		dylib(0xc, d)
	}
	for _, r := range spec.Rpaths {
		size, str := padded(r, 12)
		_ = binary.Write(&cmds, le, uint32(0x8000001c))
		_ = binary.Write(&cmds, le, uint32(size)) //nolint:gosec // Fixture sizes are small
		_ = binary.Write(&cmds, le, uint32(12))
		cmds.Write(str)
		ncmds++
	}

	var out bytes.Buffer
	_ = binary.Write(&out, le, uint32(0xfeedfacf))
	_ = binary.Write(&out, le, uint32(0x01000007))
	_ = binary.Write(&out, le, uint32(3))
	_ = binary.Write(&out, le, uint32(6))          // MH_DYLIB
	_ = binary.Write(&out, le, uint32(ncmds))      //nolint:gosec // Fixture sizes are small
	_ = binary.Write(&out, le, uint32(cmds.Len())) //nolint:gosec // Fixture sizes are small
	_ = binary.Write(&out, le, uint32(0))
	_ = binary.Write(&out, le, uint32(0))
	out.Write(cmds.Bytes())
	for _, s := range spec.Strings {
		out.WriteString(s)
		out.WriteByte(0)
	}
	return out.Bytes()
}
