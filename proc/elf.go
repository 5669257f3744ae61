package proc

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	elfMagic   = "\x7fELF"
	elfClass32 = 1
	ptLoad     = 1
)

// elf32Header mirrors Elf32_Ehdr field-for-field, decoded with
// encoding/binary the same way inode.go decodes on-disk records rather
// than through a generic object-file library.
type elf32Header struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// elf32ProgramHeader mirrors Elf32_Phdr.
type elf32ProgramHeader struct {
	Type   uint32
	Offset uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

// Segment is one PT_LOAD program header's payload, ready to be copied
// into an AddressSpace.
type Segment struct {
	Vaddr uint32
	Data  []byte
	Memsz uint32
}

// Image is a parsed ELF32 executable (spec.md §4.10's "execv validates
// and loads an ELF32 image").
type Image struct {
	Entry    uint32
	Segments []Segment
}

// ParseELF32 decodes raw into an Image, validating the magic and class
// and keeping only PT_LOAD segments.
func ParseELF32(raw []byte) (*Image, error) {
	if len(raw) < 52 || string(raw[:4]) != elfMagic {
		return nil, fmt.Errorf("proc: not an ELF image")
	}

	var hdr elf32Header
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if hdr.Ident[4] != elfClass32 {
		return nil, fmt.Errorf("proc: not a 32-bit ELF image")
	}

	img := &Image{Entry: hdr.Entry}
	for i := 0; i < int(hdr.Phnum); i++ {
		off := int(hdr.Phoff) + i*int(hdr.Phentsize)
		if off+32 > len(raw) {
			return nil, fmt.Errorf("proc: truncated program header table")
		}
		var ph elf32ProgramHeader
		if err := binary.Read(bytes.NewReader(raw[off:off+32]), binary.LittleEndian, &ph); err != nil {
			return nil, err
		}
		if ph.Type != ptLoad {
			continue
		}
		end := int(ph.Offset) + int(ph.Filesz)
		if end > len(raw) {
			return nil, fmt.Errorf("proc: segment exceeds image size")
		}
		img.Segments = append(img.Segments, Segment{
			Vaddr: ph.Vaddr,
			Data:  raw[ph.Offset:end],
			Memsz: ph.Memsz,
		})
	}
	return img, nil
}

// Load copies img's segments into space page by page, zero-filling any
// bss tail up to Memsz.
func (img *Image) Load(space *AddressSpace) {
	for _, seg := range img.Segments {
		var written uint32
		for written < seg.Memsz {
			page := (seg.Vaddr + written) / PageSize
			pageOff := (seg.Vaddr + written) % PageSize
			frame := space.Page(page)

			n := uint32(PageSize) - pageOff
			if remaining := seg.Memsz - written; n > remaining {
				n = remaining
			}
			if written < uint32(len(seg.Data)) {
				end := written + n
				if end > uint32(len(seg.Data)) {
					end = uint32(len(seg.Data))
				}
				copy(frame[pageOff:], seg.Data[written:end])
			}
			written += n
		}
	}
}
