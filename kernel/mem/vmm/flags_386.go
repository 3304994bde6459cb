// +build 386

package vmm

// Page table entry flags. The first three bit positions and the page-size
// bit match the hardware-defined x86 PDE/PTE layout; CopyOnWrite borrows one
// of the three OS-available bits (9-11) that the CPU otherwise ignores.
// Non-PAE 32-bit paging has no hardware no-execute bit, so NoExecute is also
// tracked as a software-only bit and is enforced (if at all) by the fault
// handler rather than the MMU.
const (
	FlagPresent PageTableEntryFlag = 1 << iota
	FlagRW
	FlagUser
	_ // write-through, unused
	_ // cache-disable, unused
	_ // accessed, unused
	_ // dirty, unused
	FlagHugePage
	_ // global, unused
	FlagCopyOnWrite
	FlagNoExecute
)
