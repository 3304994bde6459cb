package vmm

import "gopheros/kernel/mem"

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual memory address for this page.
func (p Page) Address() uintptr {
	return uintptr(p << mem.PageShift)
}

// PageFromAddress returns the Page that contains virtAddr.
func PageFromAddress(virtAddr uintptr) Page {
	return Page(virtAddr >> mem.PageShift)
}
