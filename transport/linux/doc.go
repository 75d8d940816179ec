// Package linux implements the display transport on Linux using usbfs.
//
// The device is located through sysfs (/sys/bus/usb/devices/) by vendor and
// product ID and opened through its usbfs node (/dev/bus/usb/BBB/DDD). Bulk
// transfers are issued synchronously with USBDEVFS_BULK. No cgo is used.
//
// # Requirements
//
// The user running the program needs read/write access to the device node,
// either as root or through a udev rule such as:
//
//	SUBSYSTEM=="usb", ATTR{idVendor}=="1cbe", ATTR{idProduct}=="0088", MODE="0660", GROUP="plugdev"
//
// # Open Sequence
//
//   - select configuration 1 when the device is unconfigured
//   - detach any kernel driver bound to the interface
//   - claim the interface
//   - resolve exactly one bulk OUT and one bulk IN endpoint from sysfs
//
// # Errors
//
// Errno values are mapped onto the pkg taxonomy. An endpoint stall (EPIPE)
// is cleared with USBDEVFS_CLEAR_HALT and the segment retried a bounded
// number of times; no other failure is retried.
package linux
