package vmm

import (
	"gopheros/kernel"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"reflect"
	"unsafe"
)

var (
	// earlyReserveLastUsed tracks the last reserved page address and is
	// decreased after each allocation request. Initially, it points to
	// tempMappingAddr which coincides with the end of the kernel address
	// space.
	earlyReserveLastUsed = tempMappingAddr

	errEarlyReserveNoSpace = &kernel.Error{Module: "early_reserve", Message: "remaining virtual address space not large enough to satisfy reservation request"}
)

// EarlyReserveRegion reserves a page-aligned contiguous virtual memory region
// with the requested size in the kernel address space and returns its virtual
// address. If size is not a multiple of mem.PageSize it will be automatically
// rounded up.
//
// This function allocates regions starting at the end of the kernel address
// space. It should only be used during the early stages of kernel initialization.
func EarlyReserveRegion(size mem.Size) (uintptr, *kernel.Error) {
	size = (size + (mem.PageSize - 1)) & ^(mem.PageSize - 1)

	// reserving a region of the requested size will cause an underflow
	if uintptr(size) > earlyReserveLastUsed {
		return 0, errEarlyReserveNoSpace
	}

	earlyReserveLastUsed -= uintptr(size)
	return earlyReserveLastUsed, nil
}

// kernelSpaceSplit is the page-directory index at which the kernel's shared
// upper mappings begin: the reserved region used by MapTemporary/the
// recursive self-mapping and, below that, anything reserved via
// EarlyReserveRegion during boot (kheap's backing region among them). Every
// process directory mirrors entries [kernelSpaceSplit, 1023) from the
// kernel's own directory so that region stays mapped regardless of which
// address space is active. The very last entry (1023) is never copied: each
// directory keeps its own recursive self-mapping there.
//
// This is in addition to kernelLowEntries (vmm.go), the low identity map
// that the running kernel image itself occupies: per spec, the kernel range
// is shared-by-reference across all address spaces and the user range sits
// between the two shared ranges, [kernelLowEntries, kernelSpaceSplit).
const kernelSpaceSplit = 768

// AddressSpace represents a process' virtual address space: a private page
// directory whose user range, [kernelLowEntries, kernelSpaceSplit), belongs
// to the process, sandwiched between the kernel's low identity map and its
// upper shared range, both of which alias the kernel directory.
type AddressSpace struct {
	pdt PageDirectoryTable
}

// NewAddressSpace allocates a fresh page directory, installs the kernel's
// shared mappings (both its low identity map and its upper range) into it
// and returns the resulting AddressSpace. The address space initially has
// no user-space mappings.
func NewAddressSpace() (*AddressSpace, *kernel.Error) {
	frame, err := frameAllocator()
	if err != nil {
		return nil, err
	}

	as := &AddressSpace{}
	if err := as.pdt.Init(frame); err != nil {
		return nil, err
	}

	if err := as.shareKernelMappings(); err != nil {
		return nil, err
	}

	return as, nil
}

// shareKernelMappings copies the kernel's directory entries for
// [0, kernelLowEntries) and [kernelSpaceSplit, 1023) into as's directory so
// both the kernel's low identity map and its upper shared range remain
// mapped after as is activated.
func (as *AddressSpace) shareKernelMappings() *kernel.Error {
	activeFrame := pmm.Frame(activePDTFn() >> mem.PageShift)
	activePage, err := mapTemporaryFn(activeFrame)
	if err != nil {
		return err
	}
	lowEntries := readDirRange(activePage.Address(), 0, kernelLowEntries)
	highEntries := readDirRange(activePage.Address(), kernelSpaceSplit, 1023)
	if err := unmapFn(activePage); err != nil {
		return err
	}

	newPage, err := mapTemporaryFn(as.pdt.Frame())
	if err != nil {
		return err
	}
	writeDirRange(newPage.Address(), 0, lowEntries)
	writeDirRange(newPage.Address(), kernelSpaceSplit, highEntries)
	return unmapFn(newPage)
}

// readDirRange copies the directory entries [lo, hi) of the directory
// mapped at dirAddr.
func readDirRange(dirAddr uintptr, lo, hi uintptr) []pageTableEntry {
	entries := make([]pageTableEntry, hi-lo)
	for i := range entries {
		entryAddr := dirAddr + ((lo + uintptr(i)) << mem.PointerShift)
		entries[i] = *(*pageTableEntry)(unsafe.Pointer(entryAddr))
	}
	return entries
}

// writeDirRange writes entries back starting at directory index lo of the
// directory mapped at dirAddr.
func writeDirRange(dirAddr uintptr, lo uintptr, entries []pageTableEntry) {
	for i, e := range entries {
		entryAddr := dirAddr + ((lo + uintptr(i)) << mem.PointerShift)
		*(*pageTableEntry)(unsafe.Pointer(entryAddr)) = e
	}
}

// Map installs a user-space mapping in this address space.
func (as *AddressSpace) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return as.pdt.Map(page, frame, flags)
}

// Switch activates this address space, making it the one the CPU translates
// addresses against.
func (as *AddressSpace) Switch() {
	as.pdt.Activate()
}

// Clone creates a deep duplicate of as suitable for the child produced by
// fork: every present user-space page in as is copied into a freshly
// allocated frame in the child so that, once Clone returns, the two address
// spaces share no data frames (copy-on-write fork is a non-goal; see
// cloneTable).
func (as *AddressSpace) Clone() (*AddressSpace, *kernel.Error) {
	child, err := NewAddressSpace()
	if err != nil {
		return nil, err
	}

	srcDirPage, err := mapTemporaryFn(as.pdt.Frame())
	if err != nil {
		return nil, err
	}

	for dirIndex := kernelLowEntries; dirIndex < kernelSpaceSplit; dirIndex++ {
		dirEntryAddr := srcDirPage.Address() + (dirIndex << mem.PointerShift)
		dirEntry := (*pageTableEntry)(unsafe.Pointer(dirEntryAddr))
		if !dirEntry.HasFlags(FlagPresent) {
			continue
		}

		if err = as.cloneTable(child, dirIndex, dirEntry); err != nil {
			unmapFn(srcDirPage)
			return nil, err
		}
	}

	if err = unmapFn(srcDirPage); err != nil {
		return nil, err
	}

	return child, nil
}

// clonedEntry describes a single present mapping discovered while scanning a
// source page table for cloning.
type clonedEntry struct {
	index uintptr
	frame pmm.Frame
	flags PageTableEntryFlag
}

// cloneTable deep-copies every present entry of the page table referenced by
// dirEntry (at directory index dirIndex in as) into a freshly allocated page
// table owned by child: each mapped page gets its own physical frame holding
// a byte-for-byte copy of the source frame's contents. Fork does not use
// copy-on-write (non-goal); the two address spaces share no data frames
// after Clone returns.
func (as *AddressSpace) cloneTable(child *AddressSpace, dirIndex uintptr, dirEntry *pageTableEntry) *kernel.Error {
	srcTablePage, err := mapTemporaryFn(dirEntry.Frame())
	if err != nil {
		return err
	}

	var toClone []clonedEntry
	for i := uintptr(0); i < uintptr(1)<<pageLevelBits[1]; i++ {
		entryAddr := srcTablePage.Address() + (i << mem.PointerShift)
		entry := (*pageTableEntry)(unsafe.Pointer(entryAddr))
		if !entry.HasFlags(FlagPresent) {
			continue
		}

		toClone = append(toClone, clonedEntry{
			index: i,
			frame: entry.Frame(),
			flags: PageTableEntryFlag(*entry) &^ PageTableEntryFlag(ptePhysPageMask),
		})
	}

	if err := unmapFn(srcTablePage); err != nil {
		return err
	}

	buf := make([]byte, mem.PageSize)
	for _, m := range toClone {
		srcPage, err := mapTemporaryFn(m.frame)
		if err != nil {
			return err
		}
		copy(buf, pageBytes(srcPage.Address()))
		if err := unmapFn(srcPage); err != nil {
			return err
		}

		dstFrame, err := frameAllocator()
		if err != nil {
			return err
		}
		dstPage, err := mapTemporaryFn(dstFrame)
		if err != nil {
			return err
		}
		copy(pageBytes(dstPage.Address()), buf)
		if err := unmapFn(dstPage); err != nil {
			return err
		}

		page := Page((dirIndex << pageLevelBits[1]) | m.index)
		if err := child.Map(page, dstFrame, m.flags); err != nil {
			return err
		}
	}

	return nil
}

// pageBytes overlays a mem.PageSize byte slice on top of the page-aligned
// virtual address addr.
func pageBytes(addr uintptr) []byte {
	return *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Data: addr,
		Len:  int(mem.PageSize),
		Cap:  int(mem.PageSize),
	}))
}

// Destroy releases the page-table frames owned by this address space (the
// user-space directory entries and the tables they reference) along with the
// directory frame itself.
func (as *AddressSpace) Destroy(freeFrame func(pmm.Frame)) *kernel.Error {
	dirPage, err := mapTemporaryFn(as.pdt.Frame())
	if err != nil {
		return err
	}

	for dirIndex := kernelLowEntries; dirIndex < kernelSpaceSplit; dirIndex++ {
		dirEntryAddr := dirPage.Address() + (dirIndex << mem.PointerShift)
		dirEntry := (*pageTableEntry)(unsafe.Pointer(dirEntryAddr))
		if !dirEntry.HasFlags(FlagPresent) {
			continue
		}
		freeFrame(dirEntry.Frame())
	}

	if err := unmapFn(dirPage); err != nil {
		return err
	}

	freeFrame(as.pdt.Frame())
	return nil
}
