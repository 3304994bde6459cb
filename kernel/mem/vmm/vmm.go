package vmm

import (
	"gopheros/kernel"
	"gopheros/kernel/cpu"
	"gopheros/kernel/irq"
	"gopheros/kernel/kfmt"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
)

var (
	// frameAllocator points to a frame allocator function registered using
	// SetFrameAllocator.
	frameAllocator FrameAllocatorFn

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	handleExceptionWithCodeFn = irq.HandleExceptionWithCode
	readCR2Fn                 = cpu.ReadCR2
	translateFn               = Translate
	mapFn                     = Map
	unmapFn                   = Unmap
	mapTemporaryFn            = MapTemporary

	errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "page/gpf fault"}
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// SetFrameAllocator registers a frame allocator function that will be used by
// the vmm code when new physical frames need to be allocated.
func SetFrameAllocator(allocFn FrameAllocatorFn) {
	frameAllocator = allocFn
}

func pageFaultHandler(errorCode uint64, frame *irq.Frame, regs *irq.Regs) {
	var (
		faultAddress = readCR2Fn()
		faultPage    = PageFromAddress(faultAddress)
		pageEntry    *pageTableEntry
	)

	// Lookup entry for the page where the fault occurred
	walk(faultPage.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		nextIsPresent := pte.HasFlags(FlagPresent)

		if pteLevel == pageLevels-1 && nextIsPresent {
			pageEntry = pte
		}

		// Abort walk if the next page table entry is missing
		return nextIsPresent
	})

	// CoW is supported for RO pages with the CoW flag set
	if pageEntry != nil && !pageEntry.HasFlags(FlagRW) && pageEntry.HasFlags(FlagCopyOnWrite) {
		var (
			copy    pmm.Frame
			tmpPage Page
			err     *kernel.Error
		)

		if copy, err = frameAllocator(); err != nil {
			nonRecoverablePageFault(faultAddress, errorCode, frame, regs, err)
		} else if tmpPage, err = mapTemporaryFn(copy); err != nil {
			nonRecoverablePageFault(faultAddress, errorCode, frame, regs, err)
		} else {
			// Copy page contents, mark as RW and remove CoW flag
			mem.Memcopy(faultPage.Address(), tmpPage.Address(), mem.PageSize)
			unmapFn(tmpPage)

			// Update mapping to point to the new frame, flag it as RW and
			// remove the CoW flag
			pageEntry.ClearFlags(FlagCopyOnWrite)
			pageEntry.SetFlags(FlagPresent | FlagRW)
			pageEntry.SetFrame(copy)
			flushTLBEntryFn(faultPage.Address())

			// Fault recovered; retry the instruction that caused the fault
			return
		}
	}

	nonRecoverablePageFault(faultAddress, errorCode, frame, regs, errUnrecoverableFault)
}

func nonRecoverablePageFault(faultAddress uintptr, errorCode uint64, frame *irq.Frame, regs *irq.Regs, err *kernel.Error) {
	kfmt.Printf("\nPage fault while accessing address: 0x%x\nReason: ", faultAddress)
	switch {
	case errorCode == 0:
		kfmt.Printf("read from non-present page")
	case errorCode == 1:
		kfmt.Printf("page protection violation (read)")
	case errorCode == 2:
		kfmt.Printf("write to non-present page")
	case errorCode == 3:
		kfmt.Printf("page protection violation (write)")
	case errorCode == 4:
		kfmt.Printf("page-fault in user-mode")
	case errorCode == 8:
		kfmt.Printf("page table has reserved bit set")
	case errorCode == 16:
		kfmt.Printf("instruction fetch")
	default:
		kfmt.Printf("unknown")
	}

	kfmt.Printf("\n\nRegisters:\n")
	regs.Print()
	frame.Print()

	panic(err)
}

func generalProtectionFaultHandler(_ uint64, frame *irq.Frame, regs *irq.Regs) {
	kfmt.Printf("\nGeneral protection fault while accessing address: 0x%x\n", readCR2Fn())
	kfmt.Printf("Registers:\n")
	regs.Print()
	frame.Print()

	panic(errUnrecoverableFault)
}

// reserveZeroedFrame reserves a physical frame to be used together with
// FlagCopyOnWrite for lazy allocation requests.
func reserveZeroedFrame() *kernel.Error {
	var (
		err      *kernel.Error
		tempPage Page
	)

	if ReservedZeroedFrame, err = frameAllocator(); err != nil {
		return err
	} else if tempPage, err = mapTemporaryFn(ReservedZeroedFrame); err != nil {
		return err
	}
	mem.Memset(tempPage.Address(), 0, mem.PageSize)
	unmapFn(tempPage)

	// From this point on, ReservedZeroedFrame cannot be mapped with a RW flag
	protectReservedZeroedPage = true
	return nil
}

// Init initializes the vmm system: it builds a fresh page directory for the
// kernel, identity-maps the kernel image plus anything reserved via
// EarlyReserveRegion, activates it and installs the paging-related exception
// handlers.
func Init(kernelStart, kernelEnd, kernelPageOffset uintptr) *kernel.Error {
	if err := setupPDTForKernel(kernelStart, kernelEnd, kernelPageOffset); err != nil {
		return err
	}

	if err := reserveZeroedFrame(); err != nil {
		return err
	}

	handleExceptionWithCodeFn(irq.PageFaultException, pageFaultHandler)
	handleExceptionWithCodeFn(irq.GPFException, generalProtectionFaultHandler)
	return nil
}

// minKernelLowPDEntries is the lower bound on kernelLowEntries: two
// directory entries cover 8 MiB, matching spec's "at least the first 8 MiB
// identity-mapped" requirement for the shared kernel range even if the
// kernel image itself is smaller than that.
const minKernelLowPDEntries = 2

// kernelLowEntries is the number of page-directory entries, starting at
// index 0, spanned by the kernel's own low identity map (built by
// setupPDTForKernel below). AddressSpace mirrors these entries into every
// process directory it creates, in addition to the existing upper-half
// shared range, so that kernel code and data stay mapped no matter which
// address space is active: without this, switching CR3 to a freshly
// created address space would immediately fault on the next instruction
// fetch, since the running kernel code physically lives in this low range.
var kernelLowEntries uintptr

// dirIndexForAddress returns the page-directory index that addr falls
// into.
func dirIndexForAddress(addr uintptr) uintptr {
	return addr >> pageLevelShifts[0]
}

// setupPDTForKernel builds a new page directory for the kernel, maps the
// physical range [kernelStart, kernelEnd) at kernelPageOffset+phys with
// RW|Present and copies over any page reserved via EarlyReserveRegion before
// activating the new table.
func setupPDTForKernel(kernelStart, kernelEnd, kernelPageOffset uintptr) *kernel.Error {
	var pdt PageDirectoryTable

	pdtFrame, err := frameAllocator()
	if err != nil {
		return err
	}

	if err = pdt.Init(pdtFrame); err != nil {
		return err
	}

	startPage := PageFromAddress(kernelPageOffset + (kernelStart &^ (uintptr(mem.PageSize) - 1)))
	endPage := PageFromAddress(kernelPageOffset + kernelEnd)
	startFrame := pmm.Frame(kernelStart >> mem.PageShift)

	for page, frame := startPage, startFrame; page <= endPage; page, frame = page+1, frame+1 {
		if err := pdt.Map(page, frame, FlagPresent|FlagRW); err != nil {
			return err
		}
	}

	kernelLowEntries = dirIndexForAddress(endPage.Address()) + 1
	if kernelLowEntries < minKernelLowPDEntries {
		kernelLowEntries = minKernelLowPDEntries
	}

	// Ensure that any pages mapped by the memory allocator using
	// EarlyReserveRegion are copied to the new page directory.
	for rsvAddr := earlyReserveLastUsed; rsvAddr < tempMappingAddr; rsvAddr += uintptr(mem.PageSize) {
		page := PageFromAddress(rsvAddr)

		frameAddr, err := translateFn(rsvAddr)
		if err != nil {
			return err
		}

		if err = pdt.Map(page, pmm.Frame(frameAddr>>mem.PageShift), FlagPresent|FlagRW); err != nil {
			return err
		}
	}

	// Activate the new PDT. After this point, the identity mapping for the
	// physical memory addresses where the kernel is loaded becomes invalid.
	pdt.Activate()

	return nil
}
