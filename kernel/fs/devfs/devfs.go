// Package devfs exposes the device framework's driver registry as a VFS
// filesystem mounted at /dev: opening "/dev/<name><minor>" resolves a Node
// that forwards Read/Write/Close to device.Open/Read/Write/Close, bridging
// the VFS fd model to the kernel-scoped device handle pool that §4.7
// describes as "parallel to but distinct from VFS fds".
package devfs

import (
	"gopheros/device"
	"gopheros/kernel"
	"gopheros/kernel/fs/vfs"
)

var errNoSuchDevice = &kernel.Error{Module: "devfs", Message: "no such device", Kind: kernel.KindNotFound}

// root is devfs' single directory node; Finddir synthesizes a fresh devNode
// for any name with a registered driver rather than keeping a persistent
// child list, since device identity lives in the driver registry, not in
// devfs itself.
type root struct{}

// Name implements vfs.Node.
func (root) Name() string { return "dev" }

// Type implements vfs.Node.
func (root) Type() vfs.NodeType { return vfs.NodeTypeDirectory }

// Len implements vfs.Node.
func (root) Len() int64 { return 0 }

// Ino implements vfs.Node.
func (root) Ino() uint32 { return 1 }

// Finddir resolves name to a devNode if a driver is registered for it.
func (root) Finddir(name string) (vfs.Node, *kernel.Error) {
	driverName, _ := device.ParseDeviceName(name)
	if device.DriverFind(driverName) == nil {
		return nil, errNoSuchDevice
	}
	return &devNode{name: name}, nil
}

// devNode is a VFS node representing a single device special file. It holds
// no state until Open is called, at which point it allocates a handle from
// device's fixed pool; Close releases it.
type devNode struct {
	name   string
	handle int
	open   bool
}

// Name implements vfs.Node.
func (n *devNode) Name() string { return n.name }

// Type implements vfs.Node.
func (n *devNode) Type() vfs.NodeType { return vfs.NodeTypeCharDevice }

// Len implements vfs.Node.
func (n *devNode) Len() int64 { return 0 }

// Ino implements vfs.Node.
func (n *devNode) Ino() uint32 { return 0 }

// Open implements vfs.Opener, allocating a device.Handle for this node.
func (n *devNode) Open(flags vfs.OpenFlag) *kernel.Error {
	h, err := device.Open("/dev/"+n.name, device.OpenFlag(flags))
	if err != nil {
		return err
	}
	n.handle = h
	n.open = true
	return nil
}

// Close implements vfs.Closer, releasing the underlying device.Handle.
func (n *devNode) Close() *kernel.Error {
	if !n.open {
		return nil
	}
	n.open = false
	return device.Close(n.handle)
}

// Read implements vfs.Reader. pos is ignored; the device.Handle tracks its
// own position, reset to 0 on every Open per spec's resolution of the
// device-position-on-reopen open question.
func (n *devNode) Read(_ int64, buf []byte) (int, *kernel.Error) {
	return device.Read(n.handle, buf)
}

// Write implements vfs.Writer.
func (n *devNode) Write(_ int64, buf []byte) (int, *kernel.Error) {
	return device.Write(n.handle, buf)
}

// DeviceIoctl implements the ioctl capability kernel/syscall dispatches
// against for the ioctl syscall: a pure pass-through to device.Ioctl.
func (n *devNode) DeviceIoctl(request uint32, arg uintptr) (uintptr, *kernel.Error) {
	return device.Ioctl(n.handle, request, arg)
}

// Mount registers devfs' fstype factory and mounts it at path (conventionally
// "/dev").
func Mount(mt *vfs.MountTable, path string) *kernel.Error {
	mt.RegisterFilesystem("devfs", func(string) (vfs.Node, *kernel.Error) {
		return root{}, nil
	})
	return mt.Mount(path, "devfs", "devfs")
}
