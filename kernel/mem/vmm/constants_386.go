// +build 386

package vmm

// On a 32-bit x86 target without PAE, a virtual address is split into a
// 10-bit page-directory index, a 10-bit page-table index and a 12-bit
// in-page offset. Two paging levels are walked for every translation.
const pageLevels = 2

var (
	pageLevelShifts = [pageLevels]uint8{22, 12}
	pageLevelBits   = [pageLevels]uint8{10, 10}
)

const (
	// ptePhysPageMask masks out the flag bits of a page table entry,
	// leaving only the physical frame address.
	ptePhysPageMask = uintptr(0xfffff000)

	// pdtVirtualAddr is the virtual address at which the active page
	// directory becomes visible once its own last entry has been set up
	// to point back to itself. Indexing the last slot at every paging
	// level (dir index 1023, table index 1023) lands on the directory's
	// own backing frame, which is exactly the classic x86 "recursive
	// page directory" trick.
	pdtVirtualAddr = uintptr(0xfffff000)

	// tempMappingAddr is a reserved page, just below the 4MiB region
	// occupied by the recursive mapping, used by MapTemporary to map
	// arbitrary physical frames into the kernel's address space.
	tempMappingAddr = uintptr(0xffbff000)
)
