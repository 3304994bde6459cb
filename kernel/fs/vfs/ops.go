package vfs

import "gopheros/kernel"

// errUnimplemented is returned by the directory/file mutation operations
// below. None of the filesystems this kernel ships (the read-only initrd)
// implement a writable backing store, so these always fail until a
// writable filesystem is mounted (open question: spec leaves create-on-open
// and these three operations unimplemented for this generation).
var errUnimplemented = &kernel.Error{Module: "vfs", Message: "operation requires a writable filesystem", Kind: kernel.KindUnsupported}

// Mkdir creates a directory at path. Always fails: no mounted filesystem in
// this kernel supports directory creation.
func (mt *MountTable) Mkdir(cwd, path string) *kernel.Error {
	return errUnimplemented
}

// Rmdir removes the (empty) directory at path. Always fails, for the same
// reason as Mkdir.
func (mt *MountTable) Rmdir(cwd, path string) *kernel.Error {
	return errUnimplemented
}

// Unlink removes the directory entry at path. Always fails, for the same
// reason as Mkdir.
func (mt *MountTable) Unlink(cwd, path string) *kernel.Error {
	return errUnimplemented
}
