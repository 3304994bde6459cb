package device

import (
	"io"

	"gopheros/kernel"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. Any diagnostic output
	// produced while probing/initializing the underlying hardware is
	// written to w.
	DriverInit(w io.Writer) *kernel.Error
}

// ProbeFn attempts to detect and instantiate a driver for a particular piece
// of hardware. It returns nil if the hardware could not be detected.
type ProbeFn func() Driver

// DetectOrder specifies the relative order in which a driver's ProbeFn is
// invoked by the HAL during hardware detection.
type DetectOrder uint8

const (
	// DetectOrderEarly is used by drivers that must be probed before
	// everything else (e.g. drivers that other probes depend on).
	DetectOrderEarly DetectOrder = iota

	// DetectOrderBeforeACPI is used by drivers that must run before ACPI
	// is probed.
	DetectOrderBeforeACPI

	// DetectOrderACPI is reserved for the ACPI driver itself.
	DetectOrderACPI

	// DetectOrderLast is used by drivers with no particular ordering
	// requirement; they are probed after everything else.
	DetectOrderLast
)

// DriverInfo bundles together a driver's ProbeFn with its detection order so
// that the HAL can probe hardware in a deterministic sequence.
type DriverInfo struct {
	// Order controls when, relative to other drivers, this driver's
	// Probe function is invoked.
	Order DetectOrder

	// Probe attempts to detect and instantiate this driver.
	Probe ProbeFn
}

// DriverInfoList implements sort.Interface, ordering entries by Order.
type DriverInfoList []*DriverInfo

// Len implements sort.Interface.
func (l DriverInfoList) Len() int { return len(l) }

// Less implements sort.Interface.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

// Swap implements sort.Interface.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

var registeredDrivers DriverInfoList

// RegisterDriver adds a driver to the set of known drivers. Drivers
// typically call this from an init() function, passing the ProbeFn that
// detects their hardware.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of all registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}
