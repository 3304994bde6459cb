package vfs

import "gopheros/kernel"

// MaxDescriptors is the fixed size of a per-process file-descriptor table.
const MaxDescriptors = 32

// reservedDescriptors is the number of slots (0, 1, 2) intercepted by the
// syscall layer for stdin/stdout/stderr regardless of what (if anything)
// this table has stored in them.
const reservedDescriptors = 3

var (
	errExhausted     = &kernel.Error{Module: "vfs", Message: "file descriptor table is full", Kind: kernel.KindExhausted}
	errBadDescriptor = &kernel.Error{Module: "vfs", Message: "bad file descriptor", Kind: kernel.KindInvalidArgument}
	errIsADirectory  = &kernel.Error{Module: "vfs", Message: "is a directory", Kind: kernel.KindPermissionish}
	errWriteOnly     = &kernel.Error{Module: "vfs", Message: "file descriptor is write-only", Kind: kernel.KindPermissionish}
	errReadOnly      = &kernel.Error{Module: "vfs", Message: "file descriptor is read-only", Kind: kernel.KindPermissionish}
)

// descriptor is a single entry of a Table: the open node, the current byte
// position and the flags it was opened with. A nil Node marks the slot
// free.
type descriptor struct {
	node  Node
	pos   int64
	flags OpenFlag
}

// Table is a per-process file-descriptor table. The zero value has all
// slots free. Slots 0-2 are never handed out by Open (the syscall layer
// intercepts them for stdin/stdout/stderr); Table itself places no special
// meaning on them.
type Table struct {
	slots [MaxDescriptors]descriptor
}

// allocSlot returns the index of the first free slot at or after
// reservedDescriptors, or -1 if the table is full.
func (t *Table) allocSlot() int {
	for i := reservedDescriptors; i < MaxDescriptors; i++ {
		if t.slots[i].node == nil {
			return i
		}
	}
	return -1
}

func (t *Table) valid(fd int) bool {
	return fd >= 0 && fd < MaxDescriptors && t.slots[fd].node != nil
}

// Open resolves path (against mt, joining with cwd if path is relative),
// validates flags against the resolved node's type and, if both checks
// pass, installs the node in a free descriptor slot. It returns the new
// descriptor index.
func (t *Table) Open(mt *MountTable, cwd, path string, flags OpenFlag) (int, *kernel.Error) {
	node, err := mt.ResolveAt(cwd, path)
	if err != nil {
		return -1, err
	}

	if node.Type() == NodeTypeDirectory && flags&(OWronly|ORdwr) != 0 {
		return -1, errIsADirectory
	}

	fd := t.allocSlot()
	if fd < 0 {
		return -1, errExhausted
	}

	t.slots[fd] = descriptor{node: node, pos: 0, flags: flags}

	if opener, ok := node.(Opener); ok {
		if err := opener.Open(flags); err != nil {
			t.slots[fd] = descriptor{}
			return -1, err
		}
	}

	return fd, nil
}

// Close releases fd, invoking the node's Close hook if it implements one.
func (t *Table) Close(fd int) *kernel.Error {
	if !t.valid(fd) {
		return errBadDescriptor
	}

	node := t.slots[fd].node
	t.slots[fd] = descriptor{}

	if closer, ok := node.(Closer); ok {
		return closer.Close()
	}
	return nil
}

// Read reads up to len(buf) bytes from fd at its current position and
// advances the position by the number of bytes returned.
func (t *Table) Read(fd int, buf []byte) (int, *kernel.Error) {
	if !t.valid(fd) {
		return 0, errBadDescriptor
	}

	d := &t.slots[fd]
	if d.flags&OWronly != 0 {
		return 0, errWriteOnly
	}
	if d.node.Type() == NodeTypeDirectory {
		return 0, errIsADirectory
	}

	reader, ok := d.node.(Reader)
	if !ok {
		return 0, errUnsupported("read")
	}

	n, err := reader.Read(d.pos, buf)
	if err != nil {
		return 0, err
	}
	d.pos += int64(n)
	return n, nil
}

// Write writes len(buf) bytes to fd, seeking to the node's end first if the
// descriptor was opened with OAppend, and advances the position by the
// number of bytes written.
func (t *Table) Write(fd int, buf []byte) (int, *kernel.Error) {
	if !t.valid(fd) {
		return 0, errBadDescriptor
	}

	d := &t.slots[fd]
	if d.flags&ORdonly != 0 && d.flags&(OWronly|ORdwr) == 0 {
		return 0, errReadOnly
	}

	writer, ok := d.node.(Writer)
	if !ok {
		return 0, errUnsupported("write")
	}

	if d.flags&OAppend != 0 {
		d.pos = d.node.Len()
	}

	n, err := writer.Write(d.pos, buf)
	if err != nil {
		return 0, err
	}
	d.pos += int64(n)
	return n, nil
}

// Seek repositions fd per whence and returns the resulting position. A
// computed negative position is rejected.
func (t *Table) Seek(fd int, offset int64, whence Whence) (int64, *kernel.Error) {
	if !t.valid(fd) {
		return 0, errBadDescriptor
	}

	d := &t.slots[fd]
	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = d.pos
	case SeekEnd:
		base = d.node.Len()
	default:
		return 0, &kernel.Error{Module: "vfs", Message: "invalid whence", Kind: kernel.KindInvalidArgument}
	}

	newPos := base + offset
	if newPos < 0 {
		return 0, &kernel.Error{Module: "vfs", Message: "negative seek result", Kind: kernel.KindInvalidArgument}
	}

	d.pos = newPos
	return newPos, nil
}

// Readdir treats fd's position as a child index into the directory it
// refers to, fills ent with the idx-th entry and advances the position.
// When the directory is exhausted it returns ok == false with no error.
func (t *Table) Readdir(fd int) (ent Dirent, ok bool, kerr *kernel.Error) {
	if !t.valid(fd) {
		return Dirent{}, false, errBadDescriptor
	}

	d := &t.slots[fd]
	if d.node.Type() != NodeTypeDirectory {
		return Dirent{}, false, errNotADirectory
	}

	reader, isReaddirer := d.node.(Readdirer)
	if !isReaddirer {
		return Dirent{}, false, errUnsupported("readdir")
	}

	ent, ok, kerr = reader.Readdir(int(d.pos))
	if kerr != nil || !ok {
		return Dirent{}, false, kerr
	}
	d.pos++
	return ent, true, nil
}

// Stat returns metadata for the node currently open at fd.
func (t *Table) Stat(fd int) (Stat, *kernel.Error) {
	if !t.valid(fd) {
		return Stat{}, errBadDescriptor
	}

	node := t.slots[fd].node
	return Stat{Mode: modeForType(node.Type()), Size: node.Len()}, nil
}

// Node returns the node currently open at fd, or nil if fd is not open.
func (t *Table) Node(fd int) Node {
	if !t.valid(fd) {
		return nil
	}
	return t.slots[fd].node
}

// CloseAll closes every open descriptor in the table, ignoring individual
// Close errors. It is used by process exit.
func (t *Table) CloseAll() {
	for i := 0; i < MaxDescriptors; i++ {
		if t.slots[i].node != nil {
			t.Close(i)
		}
	}
}

// Clone returns a copy of t suitable for a forked child: every occupied
// slot refers to the same underlying Node (nodes are not refcounted; their
// lifetime matches their filesystem's mount, per the VFS node invariant).
func (t *Table) Clone() Table {
	return Table{slots: t.slots}
}
