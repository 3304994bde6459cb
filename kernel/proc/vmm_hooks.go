package proc

import (
	"gopheros/kernel"
	"gopheros/kernel/mem/pmm/allocator"
	"gopheros/kernel/mem/vmm"
)

// The following package vars indirect every touch-point this package has
// with *vmm.AddressSpace, following the kernel's convention of mockable
// package-level function variables for anything that ultimately reaches
// real hardware (a fresh/cloned/activated/destroyed address space all
// require a working MMU and frame allocator that a unit test cannot
// provide). Production code never overrides them; tests substitute no-op
// or recording stand-ins to exercise the surrounding process-table and
// scheduler logic in isolation.
var (
	newAddressSpaceFn = vmm.NewAddressSpace

	cloneAddressSpaceFn = func(as *vmm.AddressSpace) (*vmm.AddressSpace, *kernel.Error) {
		return as.Clone()
	}

	switchAddressSpaceFn = func(as *vmm.AddressSpace) {
		as.Switch()
	}

	destroyAddressSpaceFn = func(as *vmm.AddressSpace) *kernel.Error {
		return as.Destroy(allocator.FreeFrame)
	}
)
