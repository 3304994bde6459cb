package vfs

import (
	"gopheros/kernel"
	"gopheros/kernel/sync"
	"strings"
)

// Factory instantiates the root Node of a filesystem given its source
// string (e.g. a device name or, for memory-resident filesystems, an
// implementation-defined token). It is invoked by Mount after dispatching
// on the requested fstype.
type Factory func(source string) (Node, *kernel.Error)

var (
	errAlreadyMounted = &kernel.Error{Module: "vfs", Message: "mount target is already mounted", Kind: kernel.KindExists}
	errNoSuchFSType   = &kernel.Error{Module: "vfs", Message: "unknown filesystem type", Kind: kernel.KindNotFound}
	errNoSuchMount    = &kernel.Error{Module: "vfs", Message: "mount target is not mounted", Kind: kernel.KindNotFound}
	errUnmountRoot    = &kernel.Error{Module: "vfs", Message: "the root mount cannot be unmounted", Kind: kernel.KindPermissionish}
)

// mountEntry records one active mount.
type mountEntry struct {
	path   string
	source string
	fstype string
	root   Node
}

// MountTable owns the set of active mounts and the registry of filesystem
// factories. The zero value is ready to use.
type MountTable struct {
	mu        sync.Spinlock
	mounts    []*mountEntry
	factories map[string]Factory
}

// RegisterFilesystem adds fstype to the table's factory registry. It is
// typically called from an init() function by filesystem implementations,
// mirroring the way device.RegisterDriver works for drivers.
func (mt *MountTable) RegisterFilesystem(fstype string, factory Factory) {
	mt.mu.Acquire()
	defer mt.mu.Release()

	if mt.factories == nil {
		mt.factories = make(map[string]Factory)
	}
	mt.factories[fstype] = factory
}

// Mount instantiates the filesystem named by fstype (via its registered
// Factory) and mounts it at path. path must be a canonical absolute path
// and must not already be mounted.
func (mt *MountTable) Mount(path, source, fstype string) *kernel.Error {
	path = canonicalizeMountPath(path)

	mt.mu.Acquire()
	defer mt.mu.Release()

	for _, m := range mt.mounts {
		if m.path == path {
			return errAlreadyMounted
		}
	}

	factory, ok := mt.factories[fstype]
	if !ok {
		return errNoSuchFSType
	}

	root, err := factory(source)
	if err != nil {
		return err
	}

	mt.mounts = append(mt.mounts, &mountEntry{path: path, source: source, fstype: fstype, root: root})
	return nil
}

// MountNode mounts an already-constructed root Node at path, bypassing the
// factory registry. It is used by boot code that builds a filesystem's root
// directly from data supplied outside the mount table (e.g. the initrd
// image handed to the kernel by the bootloader).
func (mt *MountTable) MountNode(path, source, fstype string, root Node) *kernel.Error {
	path = canonicalizeMountPath(path)

	mt.mu.Acquire()
	defer mt.mu.Release()

	for _, m := range mt.mounts {
		if m.path == path {
			return errAlreadyMounted
		}
	}

	mt.mounts = append(mt.mounts, &mountEntry{path: path, source: source, fstype: fstype, root: root})
	return nil
}

// Unmount removes the mount at path. The root mount ("/") may never be
// unmounted.
func (mt *MountTable) Unmount(path string) *kernel.Error {
	path = canonicalizeMountPath(path)
	if path == "/" {
		return errUnmountRoot
	}

	mt.mu.Acquire()
	defer mt.mu.Release()

	for i, m := range mt.mounts {
		if m.path == path {
			mt.mounts = append(mt.mounts[:i], mt.mounts[i+1:]...)
			return nil
		}
	}

	return errNoSuchMount
}

// resolveMount returns the mount whose path is the longest prefix of path
// that ends at a directory boundary, along with the path's components
// relative to that mount's root.
func (mt *MountTable) resolveMount(path string) (*mountEntry, []string) {
	mt.mu.Acquire()
	defer mt.mu.Release()

	var (
		best       *mountEntry
		bestPrefix = -1
	)

	for _, m := range mt.mounts {
		if m.path == "/" {
			if bestPrefix < 0 {
				best, bestPrefix = m, 0
			}
			continue
		}

		if path == m.path || strings.HasPrefix(path, m.path+"/") {
			if len(m.path) > bestPrefix {
				best, bestPrefix = m, len(m.path)
			}
		}
	}

	if best == nil {
		return nil, nil
	}

	rel := strings.TrimPrefix(path, best.path)
	return best, splitComponents(rel)
}

// canonicalizeMountPath strips a trailing slash (except for the root path
// itself) from a mount path.
func canonicalizeMountPath(path string) string {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	if path == "" {
		return "/"
	}
	return path
}
