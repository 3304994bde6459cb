package vmm

import (
	"bytes"
	"fmt"
	"gopheros/kernel"
	"gopheros/kernel/cpu"
	"gopheros/kernel/irq"
	"gopheros/kernel/kfmt"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"strings"
	"testing"
	"unsafe"
)

func TestRecoverablePageFault(t *testing.T) {
	var (
		frame      irq.Frame
		regs       irq.Regs
		pageEntry  pageTableEntry
		origPage   = make([]byte, mem.PageSize)
		clonedPage = make([]byte, mem.PageSize)
		err        = &kernel.Error{Module: "test", Message: "something went wrong"}
	)

	defer func(origPtePtr func(uintptr) unsafe.Pointer) {
		ptePtrFn = origPtePtr
		readCR2Fn = cpu.ReadCR2
		frameAllocator = nil
		mapTemporaryFn = MapTemporary
		unmapFn = Unmap
		flushTLBEntryFn = cpu.FlushTLBEntry
	}(ptePtrFn)

	specs := []struct {
		pteFlags   PageTableEntryFlag
		allocError *kernel.Error
		mapError   *kernel.Error
		expPanic   bool
	}{
		// Missing pge
		{0, nil, nil, true},
		// Page is present but CoW flag not set
		{FlagPresent, nil, nil, true},
		// Page is present but both CoW and RW flags set
		{FlagPresent | FlagRW | FlagCopyOnWrite, nil, nil, true},
		// Page is present with CoW flag set but allocating a page copy fails
		{FlagPresent | FlagCopyOnWrite, err, nil, true},
		// Page is present with CoW flag set but mapping the page copy fails
		{FlagPresent | FlagCopyOnWrite, nil, err, true},
		// Page is present with CoW flag set
		{FlagPresent | FlagCopyOnWrite, nil, nil, false},
	}

	ptePtrFn = func(entry uintptr) unsafe.Pointer { return unsafe.Pointer(&pageEntry) }
	readCR2Fn = func() uintptr { return uintptr(unsafe.Pointer(&origPage[0])) }
	unmapFn = func(_ Page) *kernel.Error { return nil }
	flushTLBEntryFn = func(_ uintptr) {}

	for specIndex, spec := range specs {
		t.Run(fmt.Sprint(specIndex), func(t *testing.T) {
			defer func() {
				err := recover()
				if spec.expPanic && err == nil {
					t.Error("expected a panic")
				} else if !spec.expPanic {
					if err != nil {
						t.Error("unexpected panic")
						return
					}

					for i := 0; i < len(origPage); i++ {
						if origPage[i] != clonedPage[i] {
							t.Errorf("expected clone page to be a copy of the original page; mismatch at index %d", i)
						}
					}
				}
			}()

			mapTemporaryFn = func(f pmm.Frame) (Page, *kernel.Error) { return Page(f), spec.mapError }
			SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
				addr := uintptr(unsafe.Pointer(&clonedPage[0]))
				return pmm.Frame(addr >> mem.PageShift), spec.allocError
			})

			for i := 0; i < len(origPage); i++ {
				origPage[i] = byte(i % 256)
				clonedPage[i] = 0
			}

			pageEntry = 0
			pageEntry.SetFlags(spec.pteFlags)

			pageFaultHandler(2, &frame, &regs)
		})
	}
}

func TestNonRecoverablePageFault(t *testing.T) {
	defer func() {
		kfmt.SetOutputSink(nil)
	}()

	specs := []struct {
		errCode   uint64
		expReason string
	}{
		{0, "read from non-present page"},
		{1, "page protection violation (read)"},
		{2, "write to non-present page"},
		{3, "page protection violation (write)"},
		{4, "page-fault in user-mode"},
		{8, "page table has reserved bit set"},
		{16, "instruction fetch"},
		{0xf00, "unknown"},
	}

	var (
		regs  irq.Regs
		frame irq.Frame
		buf   bytes.Buffer
	)

	kfmt.SetOutputSink(&buf)
	for specIndex, spec := range specs {
		t.Run(fmt.Sprint(specIndex), func(t *testing.T) {
			buf.Reset()
			defer func() {
				if err := recover(); err != errUnrecoverableFault {
					t.Errorf("expected a panic with errUnrecoverableFault; got %v", err)
				}
			}()

			nonRecoverablePageFault(0xbadf00d0, spec.errCode, &frame, &regs, errUnrecoverableFault)
			if got := buf.String(); !strings.Contains(got, spec.expReason) {
				t.Errorf("expected reason %q; got output:\n%q", spec.expReason, got)
			}
		})
	}
}

func TestGPFHandler(t *testing.T) {
	defer func() {
		readCR2Fn = cpu.ReadCR2
	}()

	var (
		regs  irq.Regs
		frame irq.Frame
	)

	readCR2Fn = func() uintptr {
		return 0xbadf00d0
	}

	defer func() {
		if err := recover(); err != errUnrecoverableFault {
			t.Errorf("expected a panic with errUnrecoverableFault; got %v", err)
		}
	}()

	generalProtectionFaultHandler(0, &frame, &regs)
}

func TestInit(t *testing.T) {
	defer func() {
		frameAllocator = nil
		mapTemporaryFn = MapTemporary
		unmapFn = Unmap
		mapFn = Map
		translateFn = Translate
		handleExceptionWithCodeFn = irq.HandleExceptionWithCode
		earlyReserveLastUsed = tempMappingAddr
	}()

	backingPage := make([]byte, mem.PageSize)

	t.Run("success", func(t *testing.T) {
		for i := 0; i < len(backingPage); i++ {
			backingPage[i] = byte(i % 256)
		}

		SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
			addr := uintptr(unsafe.Pointer(&backingPage[0]))
			return pmm.Frame(addr >> mem.PageShift), nil
		})
		mapTemporaryFn = func(f pmm.Frame) (Page, *kernel.Error) { return Page(f), nil }
		unmapFn = func(p Page) *kernel.Error { return nil }
		mapFn = func(_ Page, _ pmm.Frame, _ PageTableEntryFlag) *kernel.Error { return nil }
		handleExceptionWithCodeFn = func(_ irq.ExceptionNum, _ irq.ExceptionHandlerWithCode) {}

		if err := Init(0, uintptr(mem.PageSize), 0); err != nil {
			t.Fatal(err)
		}

		for i := 0; i < len(backingPage); i++ {
			if backingPage[i] != 0 {
				t.Errorf("expected reserved page to be zeroed; got byte %d at index %d", backingPage[i], i)
			}
		}
	})

	t.Run("setupPDT fails", func(t *testing.T) {
		expErr := &kernel.Error{Module: "test", Message: "out of memory"}

		SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
			return pmm.InvalidFrame, expErr
		})

		if err := Init(0, uintptr(mem.PageSize), 0); err != expErr {
			t.Fatalf("expected error: %v; got %v", expErr, err)
		}
	})

	t.Run("blank page allocation error", func(t *testing.T) {
		expErr := &kernel.Error{Module: "test", Message: "out of memory"}

		var allocCount int
		SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
			defer func() { allocCount++ }()

			if allocCount == 0 {
				addr := uintptr(unsafe.Pointer(&backingPage[0]))
				return pmm.Frame(addr >> mem.PageShift), nil
			}

			return pmm.InvalidFrame, expErr
		})
		mapTemporaryFn = func(f pmm.Frame) (Page, *kernel.Error) { return Page(f), nil }
		unmapFn = func(p Page) *kernel.Error { return nil }
		mapFn = func(_ Page, _ pmm.Frame, _ PageTableEntryFlag) *kernel.Error { return nil }
		handleExceptionWithCodeFn = func(_ irq.ExceptionNum, _ irq.ExceptionHandlerWithCode) {}

		if err := Init(0, uintptr(mem.PageSize), 0); err != expErr {
			t.Fatalf("expected error: %v; got %v", expErr, err)
		}
	})
}

func TestSetupPDTForKernel(t *testing.T) {
	defer func() {
		frameAllocator = nil
		mapFn = Map
		mapTemporaryFn = MapTemporary
		unmapFn = Unmap
		translateFn = Translate
		earlyReserveLastUsed = tempMappingAddr
	}()

	backingPage := make([]byte, mem.PageSize)

	t.Run("map kernel range", func(t *testing.T) {
		SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
			addr := uintptr(unsafe.Pointer(&backingPage[0]))
			return pmm.Frame(addr >> mem.PageShift), nil
		})
		mapTemporaryFn = func(f pmm.Frame) (Page, *kernel.Error) { return Page(f), nil }
		unmapFn = func(p Page) *kernel.Error { return nil }
		translateFn = func(_ uintptr) (uintptr, *kernel.Error) { return 0xbadf0000, nil }

		mapCalls := 0
		mapFn = func(_ Page, _ pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
			mapCalls++
			if flags&(FlagPresent|FlagRW) != (FlagPresent | FlagRW) {
				t.Errorf("expected kernel range to be mapped with FlagPresent|FlagRW; got %d", flags)
			}
			return nil
		}

		if err := setupPDTForKernel(0, uintptr(mem.PageSize)<<1, 0); err != nil {
			t.Fatal(err)
		}

		if mapCalls == 0 {
			t.Error("expected Map to be called at least once for the kernel range")
		}
	})

	t.Run("map of kernel range fails", func(t *testing.T) {
		expErr := &kernel.Error{Module: "test", Message: "map failed"}

		SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
			addr := uintptr(unsafe.Pointer(&backingPage[0]))
			return pmm.Frame(addr >> mem.PageShift), nil
		})
		mapTemporaryFn = func(f pmm.Frame) (Page, *kernel.Error) { return Page(f), nil }
		unmapFn = func(p Page) *kernel.Error { return nil }
		mapFn = func(_ Page, _ pmm.Frame, _ PageTableEntryFlag) *kernel.Error { return expErr }

		if err := setupPDTForKernel(0, uintptr(mem.PageSize), 0); err != expErr {
			t.Fatalf("expected error: %v; got %v", expErr, err)
		}
	})

	t.Run("copy allocator reservations to PDT", func(t *testing.T) {
		earlyReserveLastUsed = tempMappingAddr - uintptr(mem.PageSize)

		SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
			addr := uintptr(unsafe.Pointer(&backingPage[0]))
			return pmm.Frame(addr >> mem.PageShift), nil
		})
		mapTemporaryFn = func(f pmm.Frame) (Page, *kernel.Error) { return Page(f), nil }
		unmapFn = func(p Page) *kernel.Error { return nil }
		translateFn = func(_ uintptr) (uintptr, *kernel.Error) { return 0xbadf0000, nil }

		var sawReservedPage bool
		mapFn = func(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
			if page == PageFromAddress(earlyReserveLastUsed) {
				sawReservedPage = true
				if exp := pmm.Frame(0xbadf0000 >> mem.PageShift); frame != exp {
					t.Errorf("expected reserved page to map to frame %d; got %d", exp, frame)
				}
			}
			return nil
		}

		if err := setupPDTForKernel(0, uintptr(mem.PageSize), 0); err != nil {
			t.Fatal(err)
		}

		if !sawReservedPage {
			t.Error("expected the early-reserved page to be mapped into the new PDT")
		}
	})

	t.Run("pdt init fails", func(t *testing.T) {
		expErr := &kernel.Error{Module: "test", Message: "map temporary failed"}

		SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
			addr := uintptr(unsafe.Pointer(&backingPage[0]))
			return pmm.Frame(addr >> mem.PageShift), nil
		})
		mapTemporaryFn = func(f pmm.Frame) (Page, *kernel.Error) { return 0, expErr }

		if err := setupPDTForKernel(0, uintptr(mem.PageSize), 0); err != expErr {
			t.Fatalf("expected error: %v; got %v", expErr, err)
		}
	})

	t.Run("translation fails for page in reserved address space", func(t *testing.T) {
		expErr := &kernel.Error{Module: "test", Message: "translate failed"}

		earlyReserveLastUsed = tempMappingAddr - uintptr(mem.PageSize)
		SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
			addr := uintptr(unsafe.Pointer(&backingPage[0]))
			return pmm.Frame(addr >> mem.PageShift), nil
		})
		mapTemporaryFn = func(f pmm.Frame) (Page, *kernel.Error) { return Page(f), nil }
		unmapFn = func(p Page) *kernel.Error { return nil }
		translateFn = func(_ uintptr) (uintptr, *kernel.Error) { return 0, expErr }

		if err := setupPDTForKernel(0, uintptr(mem.PageSize), 0); err != expErr {
			t.Fatalf("expected error: %v; got %v", expErr, err)
		}
	})
}
