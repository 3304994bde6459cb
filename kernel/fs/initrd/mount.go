package initrd

import (
	"gopheros/kernel"
	"gopheros/kernel/fs/vfs"
)

// Mount parses buf as a CPIO-newc archive and mounts the resulting tree at
// path in mt. buf must remain valid and unmodified for the kernel's
// lifetime; no initrd node ever writes to it.
func Mount(mt *vfs.MountTable, path string, buf []byte) *kernel.Error {
	root, err := Parse(buf)
	if err != nil {
		return err
	}
	return mt.MountNode(path, "initrd", "initrd", root)
}
