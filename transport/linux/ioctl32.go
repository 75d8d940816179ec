//go:build linux && (arm || 386)

package linux

// Argument structure sizes with 32-bit pointers.
const (
	sizeofBulkTransfer  = 16 // struct usbdevfs_bulktransfer
	sizeofUsbdevfsIoctl = 12 // struct usbdevfs_ioctl
)
