//go:build linux && (amd64 || arm64 || riscv64 || loong64 || s390x)

package linux

// Argument structure sizes with 64-bit pointers.
const (
	sizeofBulkTransfer  = 24 // struct usbdevfs_bulktransfer
	sizeofUsbdevfsIoctl = 16 // struct usbdevfs_ioctl
)
