// Package vfs implements the kernel's virtual filesystem layer: a node
// abstraction polymorphic over the capability set {read, write, open, close,
// readdir, finddir}, a per-process file-descriptor table and a mount table
// with longest-prefix-match path resolution.
package vfs

import "gopheros/kernel"

// NodeType classifies what a Node represents.
type NodeType uint8

// The set of node types a filesystem implementation can expose.
const (
	NodeTypeRegular NodeType = iota
	NodeTypeDirectory
	NodeTypeCharDevice
	NodeTypeBlockDevice
	NodeTypeSymlink
	NodeTypeMountpoint
)

// Dirent describes a single directory entry returned by Readdir.
type Dirent struct {
	// Name is the entry's file name (not a full path).
	Name string

	// Ino is the entry's inode number.
	Ino uint32

	// Type is the entry's node type.
	Type NodeType
}

// Reader is implemented by nodes that support reads.
type Reader interface {
	// Read copies up to len(buf) bytes starting at pos into buf and
	// returns the number of bytes copied. A return of 0 with no error
	// indicates end-of-file.
	Read(pos int64, buf []byte) (int, *kernel.Error)
}

// Writer is implemented by nodes that support writes.
type Writer interface {
	// Write copies len(buf) bytes from buf to the node starting at pos
	// and returns the number of bytes written.
	Write(pos int64, buf []byte) (int, *kernel.Error)
}

// Opener is implemented by nodes that need to run custom logic when a
// descriptor referencing them is opened.
type Opener interface {
	Open(flags OpenFlag) *kernel.Error
}

// Closer is implemented by nodes that need to run custom logic when a
// descriptor referencing them is closed.
type Closer interface {
	Close() *kernel.Error
}

// Readdirer is implemented by directory nodes. Readdir returns the idx-th
// child (0-based) or ok == false once idx runs past the last child.
type Readdirer interface {
	Readdir(idx int) (Dirent, bool, *kernel.Error)
}

// Finddirer is implemented by directory nodes and resolves a single path
// component to the Node it names.
type Finddirer interface {
	Finddir(name string) (Node, *kernel.Error)
}

// Node is the minimal contract every filesystem entry satisfies. The
// optional capabilities (Reader, Writer, Opener, Closer, Readdirer,
// Finddirer) are implemented selectively by concrete filesystem node types;
// a missing capability is reported as KindUnsupported by the fd-table
// operations in this package.
type Node interface {
	// Name returns the node's name (its last path component, not a full
	// path).
	Name() string

	// Type returns the node's type.
	Type() NodeType

	// Len returns the node's length in bytes (0 for non-regular nodes).
	Len() int64

	// Ino returns the node's inode number.
	Ino() uint32
}

// errUnsupported builds a KindUnsupported error tagged with the capability
// that a node lacks.
func errUnsupported(op string) *kernel.Error {
	return &kernel.Error{Module: "vfs", Message: "node does not support " + op, Kind: kernel.KindUnsupported}
}
