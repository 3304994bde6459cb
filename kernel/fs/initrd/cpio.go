// Package initrd parses a CPIO-newc archive (the kernel's initial ramdisk)
// into a read-only tree of vfs.Node values. The backing buffer is retained
// for the kernel's lifetime; nothing in this package ever writes to it.
package initrd

import (
	"gopheros/kernel"
	"gopheros/kernel/fs/vfs"
	"strconv"
	"strings"
)

const (
	magic      = "070701"
	headerSize = 110
	trailer    = "TRAILER!!!"
)

var (
	errBadMagic    = &kernel.Error{Module: "initrd", Message: "bad cpio-newc magic", Kind: kernel.KindCorrupt}
	errTruncated   = &kernel.Error{Module: "initrd", Message: "cpio archive is truncated", Kind: kernel.KindCorrupt}
	errBadHexField = &kernel.Error{Module: "initrd", Message: "malformed cpio header field", Kind: kernel.KindCorrupt}
)

// header mirrors the fields of a CPIO-newc entry header, in file order.
// Every field is an 8-character hex-encoded string in the archive.
type header struct {
	ino      uint32
	mode     uint32
	nlink    uint32
	mtime    uint32
	filesize uint32
	namesize uint32
}

// align4 rounds n up to the next multiple of 4.
func align4(n int) int {
	return (n + 3) &^ 3
}

func parseHexField(buf []byte) (uint32, *kernel.Error) {
	v, err := strconv.ParseUint(string(buf), 16, 32)
	if err != nil {
		return 0, errBadHexField
	}
	return uint32(v), nil
}

func parseHeader(buf []byte) (header, *kernel.Error) {
	if len(buf) < headerSize {
		return header{}, errTruncated
	}
	if string(buf[:6]) != magic {
		return header{}, errBadMagic
	}

	var (
		h   header
		err *kernel.Error
	)
	fields := []struct {
		dst   *uint32
		start int
	}{
		{&h.ino, 6},
		{&h.mode, 14},
		// uid(22) gid(30) skipped
		{&h.nlink, 38},
		{&h.mtime, 46},
		{&h.filesize, 54},
		// devmajor(62) devminor(70) rdevmajor(78) rdevminor(86) skipped
		{&h.namesize, 94},
		// check(102) skipped
	}
	for _, f := range fields {
		if *f.dst, err = parseHexField(buf[f.start : f.start+8]); err != nil {
			return header{}, err
		}
	}

	return h, nil
}

// node is the concrete vfs.Node implementation produced by Parse. Regular
// files carry a slice view of the archive's backing buffer; directories
// carry their children. Both implement vfs.Finddirer/vfs.Readdirer so the
// resolver and readdir syscall can walk the tree uniformly.
type node struct {
	name     string
	typ      vfs.NodeType
	ino      uint32
	data     []byte
	children []*node
}

func (n *node) Name() string       { return n.name }
func (n *node) Type() vfs.NodeType { return n.typ }
func (n *node) Ino() uint32        { return n.ino }
func (n *node) Len() int64         { return int64(len(n.data)) }

// Read copies from the in-memory backing buffer; the initrd is never
// written to.
func (n *node) Read(pos int64, buf []byte) (int, *kernel.Error) {
	if n.typ != vfs.NodeTypeRegular {
		return 0, nil
	}
	if pos >= int64(len(n.data)) {
		return 0, nil
	}
	return copy(buf, n.data[pos:]), nil
}

func (n *node) Readdir(idx int) (vfs.Dirent, bool, *kernel.Error) {
	if n.typ != vfs.NodeTypeDirectory {
		return vfs.Dirent{}, false, nil
	}
	if idx >= len(n.children) {
		return vfs.Dirent{}, false, nil
	}
	c := n.children[idx]
	return vfs.Dirent{Name: c.name, Ino: c.ino, Type: c.typ}, true, nil
}

func (n *node) Finddir(name string) (vfs.Node, *kernel.Error) {
	for _, c := range n.children {
		if c.name == name {
			return c, nil
		}
	}
	return nil, &kernel.Error{Module: "initrd", Message: "no such entry: " + name, Kind: kernel.KindNotFound}
}

func (n *node) childDir(name string) *node {
	for _, c := range n.children {
		if c.name == name && c.typ == vfs.NodeTypeDirectory {
			return c
		}
	}
	child := &node{name: name, typ: vfs.NodeTypeDirectory}
	n.children = append(n.children, child)
	return child
}

// insert places a leaf node at the tree location named by path (slash
// separated, relative to root).
func insert(root *node, path string, leaf *node) {
	parts := strings.Split(path, "/")
	dir := root
	for _, p := range parts[:len(parts)-1] {
		if p == "" {
			continue
		}
		dir = dir.childDir(p)
	}
	leaf.name = parts[len(parts)-1]
	dir.children = append(dir.children, leaf)
}

// Parse reads a CPIO-newc archive from buf and returns the root of the VFS
// tree it describes. The "." and "TRAILER!!!" entries are skipped, per the
// format's convention of using them as bookkeeping rather than real files.
func Parse(buf []byte) (vfs.Node, *kernel.Error) {
	root := &node{name: "/", typ: vfs.NodeTypeDirectory}

	pos := 0
	for {
		if pos+headerSize > len(buf) {
			return nil, errTruncated
		}

		h, err := parseHeader(buf[pos:])
		if err != nil {
			return nil, err
		}

		nameStart := pos + headerSize
		if nameStart+int(h.namesize) > len(buf) {
			return nil, errTruncated
		}
		// namesize includes the trailing NUL.
		name := string(buf[nameStart : nameStart+int(h.namesize)-1])

		dataStart := align4(nameStart + int(h.namesize))
		dataEnd := dataStart + int(h.filesize)
		if dataEnd > len(buf) {
			return nil, errTruncated
		}

		if name == trailer {
			break
		}

		if name != "." {
			typ := vfs.NodeTypeRegular
			if isDirMode(h.mode) {
				typ = vfs.NodeTypeDirectory
			}

			if typ == vfs.NodeTypeDirectory {
				// Directories may also appear as explicit entries (e.g.
				// "bin/"); childDir is idempotent so re-visiting one a
				// file entry already created as a parent is harmless.
				parts := strings.Split(strings.TrimSuffix(name, "/"), "/")
				dir := root
				for _, p := range parts {
					if p == "" {
						continue
					}
					dir = dir.childDir(p)
				}
				dir.ino = h.ino
			} else {
				insert(root, name, &node{ino: h.ino, typ: vfs.NodeTypeRegular, data: buf[dataStart:dataEnd]})
			}
		}

		pos = align4(dataEnd)
	}

	return root, nil
}

// isDirMode reports whether a CPIO st_mode field's file-type bits (the top
// 4 bits, POSIX S_IFMT) describe a directory (0040000).
func isDirMode(mode uint32) bool {
	return mode&0170000 == 0040000
}
