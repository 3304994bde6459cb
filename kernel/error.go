package kernel

// Kind classifies the cause of an Error so that internal callers can branch
// on it without string-matching a message. The syscall layer still
// collapses every Kind to -1 at the user boundary.
type Kind uint8

// The error taxonomy used throughout the kernel.
const (
	// KindUnspecified is the zero value; used by errors predating Kind.
	KindUnspecified Kind = iota

	// KindInvalidArgument covers null pointers, out-of-range descriptors
	// and unknown syscall numbers.
	KindInvalidArgument

	// KindNotFound covers missing paths, devices, pids and mount targets.
	KindNotFound

	// KindPermissionish covers open-mode/node-type mismatches, writes to
	// read-only descriptors and kill(0, ...).
	KindPermissionish

	// KindExists covers mounting onto an already-mounted path.
	KindExists

	// KindExhausted covers out-of-fds, out-of-frames and out-of-process
	// conditions.
	KindExhausted

	// KindUnsupported covers absent driver ops and unimplemented
	// filesystem operations.
	KindUnsupported

	// KindCorrupt covers heap magic mismatches and invalid executable
	// headers.
	KindCorrupt

	// KindFatal covers CPU exceptions with no registered handler.
	KindFatal
)

// Error describes a kernel error. All kernel errors must be defined as
// global variables that are pointers to the Error structure. This
// requirement stems from the fact that the Go allocator is not available to
// us so we cannot use errors.New.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message.
	Message string

	// The error taxonomy this error belongs to. Defaults to
	// KindUnspecified for errors that predate the taxonomy.
	Kind Kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
