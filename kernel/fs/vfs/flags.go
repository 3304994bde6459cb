package vfs

// OpenFlag describes the mode bits passed to Open.
type OpenFlag uint32

// Open flag bits, matching the syscall ABI numbering.
const (
	ORdonly OpenFlag = 0x1
	OWronly OpenFlag = 0x2
	ORdwr   OpenFlag = 0x4
	OCreat  OpenFlag = 0x8
	OTrunc  OpenFlag = 0x10
	OAppend OpenFlag = 0x20
)

// Whence describes the reference point for a Seek call.
type Whence uint8

// The supported seek whence values, matching the syscall ABI numbering.
const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// Mode bits reported by Stat, matching the syscall ABI's stat mode field.
const (
	ModeRegular    uint32 = 0x8000
	ModeDirectory  uint32 = 0x4000
	ModeCharDevice uint32 = 0x2000
	ModeBlockDevice uint32 = 0x6000
)

// Stat describes the metadata returned for a file.
type Stat struct {
	Mode   uint32
	Size   int64
	Blocks uint32
	Atime  uint32
	Mtime  uint32
	Ctime  uint32
}

// modeForType returns the stat mode bits corresponding to a NodeType.
func modeForType(t NodeType) uint32 {
	switch t {
	case NodeTypeDirectory:
		return ModeDirectory
	case NodeTypeCharDevice:
		return ModeCharDevice
	case NodeTypeBlockDevice:
		return ModeBlockDevice
	default:
		return ModeRegular
	}
}
