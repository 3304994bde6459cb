package vfs

import (
	"gopheros/kernel"
	"strings"
)

var (
	errNotFound      = &kernel.Error{Module: "vfs", Message: "no such file or directory", Kind: kernel.KindNotFound}
	errNotADirectory = &kernel.Error{Module: "vfs", Message: "component is not a directory", Kind: kernel.KindPermissionish}
	errRelativePath  = &kernel.Error{Module: "vfs", Message: "path is relative", Kind: kernel.KindInvalidArgument}
)

// splitComponents splits an absolute or mount-relative path into its
// components, collapsing duplicate slashes, skipping empty components (the
// consequence of leading/duplicate/trailing slashes) but keeping "." and
// ".." as-is so Resolve can interpret them.
func splitComponents(path string) []string {
	var out []string
	for _, c := range strings.Split(path, "/") {
		if c == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Resolve walks path (which must be absolute) to the Node it names. It
// starts at the root of the mount table entry whose path is the longest
// prefix of path, then calls Finddir on each remaining component in turn.
// "." leaves the current node unchanged; ".." pops the traversal stack
// (resolution keeps an explicit stack rather than parent pointers, per the
// node model's invariant that a node is reachable from exactly one parent).
func (mt *MountTable) Resolve(path string) (Node, *kernel.Error) {
	if !strings.HasPrefix(path, "/") {
		return nil, errRelativePath
	}

	mountEntry, components := mt.resolveMount(path)
	if mountEntry == nil {
		return nil, errNotFound
	}

	stack := []Node{mountEntry.root}
	for _, c := range components {
		switch c {
		case ".":
			continue
		case "..":
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		cur := stack[len(stack)-1]
		finder, ok := cur.(Finddirer)
		if !ok {
			return nil, errUnsupported("finddir")
		}

		next, err := finder.Finddir(c)
		if err != nil {
			return nil, err
		}
		stack = append(stack, next)
	}

	return stack[len(stack)-1], nil
}

// ResolveAt resolves path against cwd when path is relative, then calls
// Resolve. It is the entry point used by syscalls, which always have a
// current process cwd to join relative paths against.
func (mt *MountTable) ResolveAt(cwd, path string) (Node, *kernel.Error) {
	if strings.HasPrefix(path, "/") {
		return mt.Resolve(path)
	}
	return mt.Resolve(joinPath(cwd, path))
}

// joinPath joins a (possibly non-canonical) cwd with a relative path,
// producing a canonical-looking absolute path; duplicate slashes and "." /
// ".." components are resolved later, by Resolve's traversal stack.
func joinPath(cwd, rel string) string {
	if cwd == "" {
		cwd = "/"
	}
	if strings.HasSuffix(cwd, "/") {
		return cwd + rel
	}
	return cwd + "/" + rel
}
