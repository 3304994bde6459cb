package vmm

import (
	"gopheros/kernel"
	"gopheros/kernel/cpu"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"unsafe"
)

var (
	activePDTFn = cpu.ActivePDT
	switchPDTFn = cpu.SwitchPDT
)

// PageDirectoryTable represents a page directory that has not necessarily
// been activated yet. It is used by setupPDTForKernel to build a fresh
// mapping for the kernel before switching CR3 over to it, and by the
// process table when cloning an address space for fork.
type PageDirectoryTable struct {
	pdtFrame pmm.Frame
}

// Init clears the page directory backed by pdtFrame and installs the
// recursive self-mapping that allows pteForAddress/walk to reach it once it
// becomes the active table.
func (pdt *PageDirectoryTable) Init(pdtFrame pmm.Frame) *kernel.Error {
	pdt.pdtFrame = pdtFrame

	page, err := mapTemporaryFn(pdtFrame)
	if err != nil {
		return err
	}

	mem.Memset(page.Address(), 0, mem.PageSize)

	recursiveIndex := (uintptr(1) << pageLevelBits[0]) - 1
	lastEntry := (*pageTableEntry)(unsafe.Pointer(page.Address() + (recursiveIndex << mem.PointerShift)))
	lastEntry.SetFrame(pdtFrame)
	lastEntry.SetFlags(FlagPresent | FlagRW)

	return unmapFn(page)
}

// Map installs a mapping in this (not necessarily active) page directory,
// allocating and clearing any intermediate page table that does not exist
// yet. Unlike the package-level Map, it walks the table hierarchy through a
// sequence of temporary mappings instead of relying on the recursive
// self-mapping trick, since that trick only resolves addresses against the
// currently active directory.
func (pdt *PageDirectoryTable) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	curFrame := pdt.pdtFrame

	for level := uint8(0); level < pageLevels; level++ {
		tablePage, err := mapTemporaryFn(curFrame)
		if err != nil {
			return err
		}

		entryIndex := (page.Address() >> pageLevelShifts[level]) & ((uintptr(1) << pageLevelBits[level]) - 1)
		entry := (*pageTableEntry)(unsafe.Pointer(tablePage.Address() + (entryIndex << mem.PointerShift)))

		if level == pageLevels-1 {
			*entry = 0
			entry.SetFrame(frame)
			entry.SetFlags(flags)
			return unmapFn(tablePage)
		}

		if !entry.HasFlags(FlagPresent) {
			newFrame, err := frameAllocator()
			if err != nil {
				unmapFn(tablePage)
				return err
			}

			nextPage, err := mapTemporaryFn(newFrame)
			if err != nil {
				unmapFn(tablePage)
				return err
			}
			mem.Memset(nextPage.Address(), 0, mem.PageSize)
			if err := unmapFn(nextPage); err != nil {
				unmapFn(tablePage)
				return err
			}

			*entry = 0
			entry.SetFrame(newFrame)
			entry.SetFlags(FlagPresent | FlagRW)
		}

		curFrame = entry.Frame()
		if err := unmapFn(tablePage); err != nil {
			return err
		}
	}

	return nil
}

// Activate loads this page directory into CR3, making it the active address
// space for the CPU.
func (pdt *PageDirectoryTable) Activate() {
	switchPDTFn(pdt.pdtFrame.Address())
}

// Frame returns the physical frame backing this page directory.
func (pdt *PageDirectoryTable) Frame() pmm.Frame {
	return pdt.pdtFrame
}
