// Package exec validates and loads the kernel's simple segment-based
// executable format. Parsing is a pure function from bytes to a structured
// result (the header/program-header parser never touches an address
// space); Load takes that result and maps it into a target address space,
// separating the two concerns per the executable loader's design notes.
package exec

import (
	"encoding/binary"
	"gopheros/kernel"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"gopheros/kernel/mem/vmm"
	"reflect"
	"unsafe"
)

const (
	headerSize        = 20
	programHeaderSize = 24

	classBits32    = 1
	dataLittleEnd  = 1
	typeExecutable = 2
	machineX86     = 3

	// SegmentTypeLoad marks a program header as a loadable segment; all
	// other segment types are ignored by Load.
	SegmentTypeLoad = 1
)

var (
	magic = [4]byte{0x7f, 'K', 'R', 'N'}

	errBadMagic   = &kernel.Error{Module: "exec", Message: "bad executable magic", Kind: kernel.KindCorrupt}
	errBadClass   = &kernel.Error{Module: "exec", Message: "unsupported executable class (want 32-bit)", Kind: kernel.KindCorrupt}
	errBadData    = &kernel.Error{Module: "exec", Message: "unsupported byte order (want little-endian)", Kind: kernel.KindCorrupt}
	errBadType    = &kernel.Error{Module: "exec", Message: "unsupported object type (want executable)", Kind: kernel.KindCorrupt}
	errBadMachine = &kernel.Error{Module: "exec", Message: "unsupported architecture (want x86)", Kind: kernel.KindCorrupt}
	errTruncated  = &kernel.Error{Module: "exec", Message: "executable image is truncated", Kind: kernel.KindCorrupt}
)

// Segment describes a single loadable program segment.
type Segment struct {
	VAddr   uint32
	FileOff uint32
	FileSz  uint32
	MemSz   uint32
	Flags   uint32
}

// Executable is the parsed, address-space-independent representation of an
// executable image.
type Executable struct {
	Entry    uint32
	Segments []Segment
}

// Parse validates an executable image's header (magic, 32-bit class,
// little-endian byte order, executable type, x86 architecture) and returns
// its entry point and LOAD segments. It performs no I/O and touches no
// address space.
func Parse(image []byte) (Executable, *kernel.Error) {
	if len(image) < headerSize {
		return Executable{}, errTruncated
	}

	if [4]byte{image[0], image[1], image[2], image[3]} != magic {
		return Executable{}, errBadMagic
	}
	if image[4] != classBits32 {
		return Executable{}, errBadClass
	}
	if image[5] != dataLittleEnd {
		return Executable{}, errBadData
	}

	objType := binary.LittleEndian.Uint16(image[6:8])
	if objType != typeExecutable {
		return Executable{}, errBadType
	}

	machine := binary.LittleEndian.Uint16(image[8:10])
	if machine != machineX86 {
		return Executable{}, errBadMachine
	}

	entry := binary.LittleEndian.Uint32(image[10:14])
	phOffset := binary.LittleEndian.Uint32(image[14:18])
	phCount := binary.LittleEndian.Uint16(image[18:20])

	segments := make([]Segment, 0, phCount)
	for i := uint16(0); i < phCount; i++ {
		start := phOffset + uint32(i)*programHeaderSize
		if uint64(start)+programHeaderSize > uint64(len(image)) {
			return Executable{}, errTruncated
		}
		ph := image[start : start+programHeaderSize]

		segType := binary.LittleEndian.Uint32(ph[0:4])
		if segType != SegmentTypeLoad {
			continue
		}

		seg := Segment{
			FileOff: binary.LittleEndian.Uint32(ph[4:8]),
			VAddr:   binary.LittleEndian.Uint32(ph[8:12]),
			FileSz:  binary.LittleEndian.Uint32(ph[12:16]),
			MemSz:   binary.LittleEndian.Uint32(ph[16:20]),
			Flags:   binary.LittleEndian.Uint32(ph[20:24]),
		}
		if uint64(seg.FileOff)+uint64(seg.FileSz) > uint64(len(image)) {
			return Executable{}, errTruncated
		}
		segments = append(segments, seg)
	}

	return Executable{Entry: entry, Segments: segments}, nil
}

// addressSpace is the subset of *vmm.AddressSpace that Load needs; defined
// as an interface so tests can supply a stub rather than a real paged
// address space.
type addressSpace interface {
	Map(page vmm.Page, frame pmm.Frame, flags vmm.PageTableEntryFlag) *kernel.Error
}

var (
	// mapTemporaryFn and unmapFn are mocked by tests; in the running
	// kernel they delegate to the real vmm package.
	mapTemporaryFn = vmm.MapTemporary
	unmapFn        = vmm.Unmap
)

// Load parses image and copies every LOAD segment into as, one page at a
// time: filesz bytes are copied from the image and the remaining
// memsz-filesz bytes (BSS) are zeroed. It returns the image's entry point.
func Load(image []byte, as addressSpace, allocFrame func() (pmm.Frame, *kernel.Error)) (uintptr, *kernel.Error) {
	exe, err := Parse(image)
	if err != nil {
		return 0, err
	}

	for _, seg := range exe.Segments {
		if err := loadSegment(image, seg, as, allocFrame); err != nil {
			return 0, err
		}
	}

	return uintptr(exe.Entry), nil
}

// loadSegment maps and populates every page covered by seg.
func loadSegment(image []byte, seg Segment, as addressSpace, allocFrame func() (pmm.Frame, *kernel.Error)) *kernel.Error {
	pageSize := uintptr(mem.PageSize)
	start := uintptr(seg.VAddr) &^ (pageSize - 1)
	end := (uintptr(seg.VAddr) + uintptr(seg.MemSz) + pageSize - 1) &^ (pageSize - 1)

	for va := start; va < end; va += pageSize {
		frame, err := allocFrame()
		if err != nil {
			return err
		}
		if err := as.Map(vmm.PageFromAddress(va), frame, vmm.FlagPresent|vmm.FlagRW|vmm.FlagUser); err != nil {
			return err
		}

		page, err := mapTemporaryFn(frame)
		if err != nil {
			return err
		}
		if err := fillPage(image, seg, va, page.Address()); err != nil {
			unmapFn(page)
			return err
		}
		if err := unmapFn(page); err != nil {
			return err
		}
	}

	return nil
}

// fillPage writes the portion of seg's file contents (and BSS zero-fill)
// that falls within the page-aligned region [va, va+PageSize) into the
// physical page currently visible at dst.
func fillPage(image []byte, seg Segment, va, dst uintptr) *kernel.Error {
	pageSize := uintptr(mem.PageSize)
	dstBuf := pageBytes(dst, pageSize)

	for i := uintptr(0); i < pageSize; i++ {
		addr := va + i
		switch {
		case addr < uintptr(seg.VAddr) || addr >= uintptr(seg.VAddr)+uintptr(seg.MemSz):
			// Outside this segment's range entirely (a neighbouring
			// segment may share the page); leave untouched.
			continue
		case addr < uintptr(seg.VAddr)+uintptr(seg.FileSz):
			off := uintptr(seg.FileOff) + (addr - uintptr(seg.VAddr))
			dstBuf[i] = image[off]
		default:
			dstBuf[i] = 0
		}
	}

	return nil
}

// pageBytes overlays a byte slice of the given length on top of a virtual
// address.
func pageBytes(addr, length uintptr) []byte {
	return *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Data: addr,
		Len:  int(length),
		Cap:  int(length),
	}))
}
