package vfs

import "gopheros/kernel"

// memNode is a minimal in-memory Node used by this package's tests. It
// implements Reader, Writer, Readdirer and Finddirer selectively depending
// on which fields are populated, mirroring the way real filesystem node
// types each implement a subset of the capability interfaces.
type memNode struct {
	name     string
	typ      NodeType
	ino      uint32
	data     []byte
	children []*memNode

	openCalls  int
	closeCalls int
}

func (n *memNode) Name() string   { return n.name }
func (n *memNode) Type() NodeType { return n.typ }
func (n *memNode) Ino() uint32    { return n.ino }
func (n *memNode) Len() int64     { return int64(len(n.data)) }

func (n *memNode) Read(pos int64, buf []byte) (int, *kernel.Error) {
	if pos >= int64(len(n.data)) {
		return 0, nil
	}
	cnt := copy(buf, n.data[pos:])
	return cnt, nil
}

func (n *memNode) Write(pos int64, buf []byte) (int, *kernel.Error) {
	end := pos + int64(len(buf))
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[pos:], buf)
	return len(buf), nil
}

func (n *memNode) Open(flags OpenFlag) *kernel.Error {
	n.openCalls++
	return nil
}

func (n *memNode) Close() *kernel.Error {
	n.closeCalls++
	return nil
}

func (n *memNode) Readdir(idx int) (Dirent, bool, *kernel.Error) {
	if idx >= len(n.children) {
		return Dirent{}, false, nil
	}
	c := n.children[idx]
	return Dirent{Name: c.name, Ino: c.ino, Type: c.typ}, true, nil
}

func (n *memNode) Finddir(name string) (Node, *kernel.Error) {
	for _, c := range n.children {
		if c.name == name {
			return c, nil
		}
	}
	return nil, errNotFound
}

func dir(name string, ino uint32, children ...*memNode) *memNode {
	return &memNode{name: name, typ: NodeTypeDirectory, ino: ino, children: children}
}

func file(name string, ino uint32, contents string) *memNode {
	return &memNode{name: name, typ: NodeTypeRegular, ino: ino, data: []byte(contents)}
}
