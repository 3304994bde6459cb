package device

import (
	"gopheros/kernel"
	"strconv"
	"strings"
)

// MaxHandles bounds the fixed-size device-handle pool, mirroring the
// kernel's convention of fixed-capacity tables (vfs.Table, proc's process
// table) rather than unboundedly growing slices.
const MaxHandles = 64

var (
	errNoSuchDriver  = &kernel.Error{Module: "device", Message: "no such driver", Kind: kernel.KindNotFound}
	errHandlesFull   = &kernel.Error{Module: "device", Message: "device handle pool is full", Kind: kernel.KindExhausted}
	errBadHandle     = &kernel.Error{Module: "device", Message: "bad device handle", Kind: kernel.KindInvalidArgument}
	errOpNotSupported = &kernel.Error{Module: "device", Message: "driver does not implement this operation", Kind: kernel.KindUnsupported}
)

// OpenFlag mirrors vfs.OpenFlag's bit layout; kept as a distinct type since
// device handles are a parallel but separate concept from VFS descriptors.
type OpenFlag uint32

// BlockDriver is implemented by drivers that expose a byte-addressable
// read/write surface, the capability set dev_read/dev_write dispatch
// against. A driver that does not implement it still registers (for
// DriverName/major-number lookup); dev_read/dev_write on it fail with
// KindUnsupported.
type BlockDriver interface {
	// DevRead reads len(buf) bytes starting at pos for the given minor.
	DevRead(minor uint8, pos int64, buf []byte) (int, *kernel.Error)
	// DevWrite writes len(buf) bytes starting at pos for the given minor.
	DevWrite(minor uint8, pos int64, buf []byte) (int, *kernel.Error)
}

// IoctlDriver is implemented by drivers that support a device-specific
// control channel; dev_ioctl is a pure pass-through to it.
type IoctlDriver interface {
	DevIoctl(minor uint8, request uint32, arg uintptr) (uintptr, *kernel.Error)
}

// majorRegistry maps a driver's assigned major number back to the driver,
// separate from the probe-entry registeredDrivers list in driver.go so
// that DriverFindByMajor stays O(1)-ish without re-walking every probe
// result.
var (
	nextMajor     uint16 = 1
	majorToDriver        = map[uint16]Driver{}
	nameToMajor          = map[string]uint16{}
)

// RegisterNamed assigns drv a major number (allocating the next free one)
// and records it under DriverName() so DriverFind/DriverFindByMajor can
// locate it afterwards. Called once a driver has been successfully probed
// and initialized, per the driver framework's "assigns a major number if
// zero" rule.
func RegisterNamed(drv Driver) uint16 {
	name := drv.DriverName()
	major := nextMajor
	nextMajor++
	nameToMajor[name] = major
	majorToDriver[major] = drv
	return major
}

// DriverFind returns the registered driver named name, or nil.
func DriverFind(name string) Driver {
	if major, ok := nameToMajor[name]; ok {
		return majorToDriver[major]
	}
	return nil
}

// DriverFindByMajor returns the driver bound to major, or nil.
func DriverFindByMajor(major uint16) Driver {
	return majorToDriver[major]
}

// ParseDeviceName splits a "/dev/<name><minor>" style device name into the
// driver name and its decimal minor suffix, per spec's device naming rule.
// A name with no trailing digits has minor 0.
func ParseDeviceName(devName string) (name string, minor uint8) {
	devName = strings.TrimPrefix(devName, "/dev/")

	i := len(devName)
	for i > 0 && devName[i-1] >= '0' && devName[i-1] <= '9' {
		i--
	}
	name = devName[:i]
	if i < len(devName) {
		n, _ := strconv.Atoi(devName[i:])
		minor = uint8(n)
	}
	return name, minor
}

// Handle is a kernel-scoped device handle: {driver, minor, open flags,
// position}, allocated from a fixed pool by Open and freed by Close.
// Parallel to but distinct from a VFS file descriptor.
type Handle struct {
	driver Driver
	minor  uint8
	flags  OpenFlag
	pos    int64
	inUse  bool
}

var handlePool [MaxHandles]Handle

// Open resolves devName to a registered driver and allocates a Handle for
// it from the fixed pool, returning the handle's index. Position resets to
// 0 on every open, per the spec's resolution of the device-handle-position
// open question.
func Open(devName string, flags OpenFlag) (int, *kernel.Error) {
	name, minor := ParseDeviceName(devName)
	drv := DriverFind(name)
	if drv == nil {
		return -1, errNoSuchDriver
	}

	for i := range handlePool {
		if !handlePool[i].inUse {
			handlePool[i] = Handle{driver: drv, minor: minor, flags: flags, pos: 0, inUse: true}
			return i, nil
		}
	}
	return -1, errHandlesFull
}

// Close releases the handle at index h.
func Close(h int) *kernel.Error {
	if h < 0 || h >= MaxHandles || !handlePool[h].inUse {
		return errBadHandle
	}
	handlePool[h] = Handle{}
	return nil
}

// Read forwards to the handle's driver's DevRead at the handle's current
// position, then advances that position by the signed return value.
func Read(h int, buf []byte) (int, *kernel.Error) {
	hd, err := lookupHandle(h)
	if err != nil {
		return 0, err
	}

	blk, ok := hd.driver.(BlockDriver)
	if !ok {
		return 0, errOpNotSupported
	}

	n, rerr := blk.DevRead(hd.minor, hd.pos, buf)
	if rerr != nil {
		return 0, rerr
	}
	hd.pos += int64(n)
	return n, nil
}

// Write forwards to the handle's driver's DevWrite at the handle's current
// position, then advances that position by the signed return value.
func Write(h int, buf []byte) (int, *kernel.Error) {
	hd, err := lookupHandle(h)
	if err != nil {
		return 0, err
	}

	blk, ok := hd.driver.(BlockDriver)
	if !ok {
		return 0, errOpNotSupported
	}

	n, werr := blk.DevWrite(hd.minor, hd.pos, buf)
	if werr != nil {
		return 0, werr
	}
	hd.pos += int64(n)
	return n, nil
}

// Ioctl is a pure pass-through to the handle's driver's DevIoctl.
func Ioctl(h int, request uint32, arg uintptr) (uintptr, *kernel.Error) {
	hd, err := lookupHandle(h)
	if err != nil {
		return 0, err
	}

	ioc, ok := hd.driver.(IoctlDriver)
	if !ok {
		return 0, errOpNotSupported
	}
	return ioc.DevIoctl(hd.minor, request, arg)
}

func lookupHandle(h int) (*Handle, *kernel.Error) {
	if h < 0 || h >= MaxHandles || !handlePool[h].inUse {
		return nil, errBadHandle
	}
	return &handlePool[h], nil
}

// resetHandles clears the handle pool and major registry; used by tests
// only.
func resetHandles() {
	handlePool = [MaxHandles]Handle{}
	nextMajor = 1
	majorToDriver = map[uint16]Driver{}
	nameToMajor = map[string]uint16{}
}
