package proc

import (
	"encoding/binary"
	"gopheros/kernel"
	"gopheros/kernel/exec"
	"gopheros/kernel/irq"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"gopheros/kernel/mem/pmm/allocator"
	"gopheros/kernel/mem/vmm"
	"reflect"
	"unsafe"
)

const (
	// userStackPages is the number of pages mapped for a freshly exec'd
	// process' user stack.
	userStackPages = 4

	// userCodeSelector and userDataSelector are ring-3 GDT selectors
	// (index 3 and 4, RPL 3); the GDT layout itself lives outside this
	// package's scope.
	userCodeSelector = 0x1b
	userDataSelector = 0x23

	// userEFlagsIF keeps interrupts enabled once control reaches ring 3.
	userEFlagsIF = 0x200
)

// pageDirIndexShift converts a page-directory index into the virtual
// address of the region it covers (1024 pages per table).
const pageDirIndexShift = mem.PageShift + 10

// stackHigh is the first address past the top of user space: the virtual
// address of page-directory index 768, matching vmm's kernelSpaceSplit, so
// the user stack never collides with the kernel's shared mappings.
var stackHigh = uintptr(768) << pageDirIndexShift

var errArgvTooLarge = &kernel.Error{Module: "proc", Message: "argv does not fit in the top user stack page", Kind: kernel.KindInvalidArgument}

// Exec replaces p's user address space with the loaded image. The fd table
// is left untouched (per the process table's testable invariant: "after
// exec, the fd table survives"); only the address space is new.
func Exec(p *Process, image []byte, argv []string) *kernel.Error {
	newAS, kerr := newAddressSpaceFn()
	if kerr != nil {
		return kerr
	}

	entry, kerr := exec.Load(image, newAS, allocator.AllocFrame)
	if kerr != nil {
		destroyAddressSpaceFn(newAS)
		return kerr
	}

	sp, kerr := setupUserStack(newAS, argv)
	if kerr != nil {
		destroyAddressSpaceFn(newAS)
		return kerr
	}

	oldAS := p.AddrSpace
	p.AddrSpace = newAS
	p.Frame = irq.Frame{
		EIP:    uint32(entry),
		CS:     userCodeSelector,
		EFlags: userEFlagsIF,
		ESP:    uint32(sp),
		SS:     userDataSelector,
	}
	p.Regs = irq.Regs{}

	if oldAS != nil {
		destroyAddressSpaceFn(oldAS)
	}
	return nil
}

// setupUserStack maps userStackPages pages at the top of user space and
// writes argv (as a NUL-terminated string table, a NULL-terminated pointer
// vector, then the vector's address, argc and a dummy return address,
// cdecl-style, so argc sits at sp+4 and argv at sp+8) into the topmost page.
// It returns the resulting stack pointer.
func setupUserStack(as *vmm.AddressSpace, argv []string) (uintptr, *kernel.Error) {
	stackLow := stackHigh - uintptr(userStackPages)*mem.PageSize
	topPageBase := stackHigh - mem.PageSize

	var topFrame pmm.Frame
	for va := stackLow; va < stackHigh; va += mem.PageSize {
		frame, err := allocator.AllocFrame()
		if err != nil {
			return 0, err
		}
		if err := as.Map(vmm.PageFromAddress(va), frame, vmm.FlagPresent|vmm.FlagRW|vmm.FlagUser); err != nil {
			return 0, err
		}
		if va == topPageBase {
			topFrame = frame
		}
	}

	page, err := vmm.MapTemporary(topFrame)
	if err != nil {
		return 0, err
	}
	defer vmm.Unmap(page)

	buf := overlayBytes(page.Address(), mem.PageSize)
	cursor := len(buf)

	offsets := make([]uint32, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		if cursor < len(s)+1 {
			return 0, errArgvTooLarge
		}
		cursor -= len(s) + 1
		copy(buf[cursor:], s)
		buf[cursor+len(s)] = 0
		offsets[i] = uint32(topPageBase) + uint32(cursor)
	}
	cursor &^= 3 // align the pointer vector

	if cursor < 4 {
		return 0, errArgvTooLarge
	}
	cursor -= 4
	binary.LittleEndian.PutUint32(buf[cursor:], 0) // argv[argc] == NULL

	for i := len(argv) - 1; i >= 0; i-- {
		if cursor < 4 {
			return 0, errArgvTooLarge
		}
		cursor -= 4
		binary.LittleEndian.PutUint32(buf[cursor:], offsets[i])
	}
	argvAddr := uint32(topPageBase) + uint32(cursor)

	if cursor < 4 {
		return 0, errArgvTooLarge
	}
	cursor -= 4
	binary.LittleEndian.PutUint32(buf[cursor:], argvAddr)

	if cursor < 4 {
		return 0, errArgvTooLarge
	}
	cursor -= 4
	binary.LittleEndian.PutUint32(buf[cursor:], uint32(len(argv)))

	if cursor < 4 {
		return 0, errArgvTooLarge
	}
	cursor -= 4
	binary.LittleEndian.PutUint32(buf[cursor:], 0) // dummy return address

	return topPageBase + uintptr(cursor), nil
}

// overlayBytes overlays a byte slice of the given length on top of a
// virtual address, mirroring the same unsafe-slice-header pattern used by
// kernel/exec and kernel/mem/vmm for writing through a temporary mapping.
func overlayBytes(addr uintptr, length uintptr) []byte {
	return *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Data: addr,
		Len:  int(length),
		Cap:  int(length),
	}))
}
