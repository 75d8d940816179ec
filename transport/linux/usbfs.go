//go:build linux && (amd64 || arm64 || riscv64 || loong64 || s390x || arm || 386)

package linux

import (
	"errors"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// =============================================================================
// Kernel Structures
// =============================================================================

// bulkTransfer must match the kernel's struct usbdevfs_bulktransfer layout.
type bulkTransfer struct {
	endpoint uint32  // Endpoint address
	length   uint32  // Data length
	timeout  uint32  // Timeout in milliseconds
	data     uintptr // Data buffer pointer
}

// usbdevfsIoctl must match the kernel's struct usbdevfs_ioctl layout.
type usbdevfsIoctl struct {
	ifno      int32   // Interface number
	ioctlCode int32   // Request forwarded to the interface driver
	data      uintptr // Request argument
}

// =============================================================================
// Raw Syscall Wrappers
// =============================================================================

// openDevice opens a usbfs node for read/write access.
func openDevice(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
}

// closeDevice closes a usbfs file descriptor.
func closeDevice(fd int) error {
	return unix.Close(fd)
}

// ioctlPtr performs an ioctl whose argument is a pointer and returns the
// syscall result value.
func ioctlPtr(fd int, req uintptr, arg unsafe.Pointer) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return int(r), errno
	}
	return int(r), nil
}

// ioctlUint performs an ioctl whose argument is a pointer to an unsigned int.
func ioctlUint(fd int, req uintptr, v uint32) error {
	_, err := ioctlPtr(fd, req, unsafe.Pointer(&v))
	return err
}

// =============================================================================
// USBDEVFS Operations
// =============================================================================

// doBulkTransfer performs a synchronous bulk transfer and returns the number
// of bytes moved.
func doBulkTransfer(fd int, endpoint uint8, data []byte, timeoutMs uint32) (int, error) {
	bulk := bulkTransfer{
		endpoint: uint32(endpoint),
		length:   uint32(len(data)),
		timeout:  timeoutMs,
	}
	if len(data) > 0 {
		bulk.data = uintptr(unsafe.Pointer(&data[0]))
	}

	n, err := ioctlPtr(fd, ioctlUsbdevfsBulk, unsafe.Pointer(&bulk))
	runtime.KeepAlive(data)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// setConfiguration selects a device configuration.
func setConfiguration(fd int, value uint8) error {
	return ioctlUint(fd, ioctlUsbdevfsSetConfiguration, uint32(value))
}

// claimInterface claims exclusive access to an interface.
func claimInterface(fd int, iface uint8) error {
	return ioctlUint(fd, ioctlUsbdevfsClaimInterface, uint32(iface))
}

// releaseInterface releases a previously claimed interface.
func releaseInterface(fd int, iface uint8) error {
	return ioctlUint(fd, ioctlUsbdevfsReleaseInterface, uint32(iface))
}

// disconnectDriver detaches the kernel driver bound to an interface.
func disconnectDriver(fd int, iface uint8) error {
	req := usbdevfsIoctl{
		ifno:      int32(iface),
		ioctlCode: int32(ioctlUsbdevfsDisconnect),
	}
	_, err := ioctlPtr(fd, ioctlUsbdevfsIoctl, unsafe.Pointer(&req))
	return err
}

// clearHalt clears a stall condition on an endpoint.
func clearHalt(fd int, endpoint uint8) error {
	return ioctlUint(fd, ioctlUsbdevfsClearHalt, uint32(endpoint))
}

// =============================================================================
// Error Helpers
// =============================================================================

// isNoData returns true if the error indicates no driver was bound (ENODATA).
func isNoData(err error) bool {
	return errors.Is(err, unix.ENODATA)
}

// isPipe returns true if the error indicates a stall (EPIPE).
func isPipe(err error) bool {
	return errors.Is(err, unix.EPIPE)
}
