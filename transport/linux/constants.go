//go:build linux

package linux

import "time"

// =============================================================================
// System Paths
// =============================================================================

// SysfsUSBPath is the base path for USB devices in sysfs.
const SysfsUSBPath = "/sys/bus/usb/devices"

// DevfsUSBPath is the base path for USB device nodes.
const DevfsUSBPath = "/dev/bus/usb"

// =============================================================================
// Transfer Limits
// =============================================================================

// MaxSegmentSize is the largest single USBDEVFS_BULK write. usbfs rejects
// transfers above its per-URB limit, so frames are written in segments.
const MaxSegmentSize = 16 << 10

// DefaultTimeout bounds each bulk transfer.
const DefaultTimeout = 2 * time.Second

// DefaultStallRetries is the number of CLEAR_HALT retries per segment.
const DefaultStallRetries = 2

// =============================================================================
// Endpoint Descriptor Fields
// =============================================================================

const (
	endpointDirIn      = 0x80
	endpointTypeMask   = 0x03
	endpointTypeBulk   = 0x02
	defaultConfigValue = 1
)
