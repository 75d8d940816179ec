//go:build linux

package linux

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ardnew/turingscreen/pkg"
)

// =============================================================================
// USB Device Information
// =============================================================================

// usbDeviceInfo holds information about a USB device discovered via sysfs.
type usbDeviceInfo struct {
	sysfsPath     string // Path in /sys/bus/usb/devices
	devfsPath     string // Path in /dev/bus/usb
	busNum        uint8  // Bus number
	devNum        uint8  // Device number
	vendorID      uint16 // USB Vendor ID
	productID     uint16 // USB Product ID
	configuration uint8  // bConfigurationValue, 0 when unconfigured
	manufacturer  string // iManufacturer string, if any
	product       string // iProduct string, if any
}

// endpointInfo holds the sysfs view of one endpoint descriptor.
type endpointInfo struct {
	address    uint8  // bEndpointAddress
	attributes uint8  // bmAttributes
	maxPacket  uint16 // wMaxPacketSize
}

func (e endpointInfo) isIn() bool {
	return e.address&endpointDirIn != 0
}

func (e endpointInfo) isBulk() bool {
	return e.attributes&endpointTypeMask == endpointTypeBulk
}

// sysfs locates devices below a sysfs root and maps them to usbfs nodes
// below a devfs root.
type sysfs struct {
	root    string
	devRoot string
}

// =============================================================================
// Device Lookup
// =============================================================================

// findDevice returns the first device matching vid and pid.
func (s sysfs) findDevice(vid, pid uint16) (usbDeviceInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return usbDeviceInfo{}, fmt.Errorf("scan %s: %w", s.root, pkg.ErrDeviceNotFound)
	}

	for _, entry := range entries {
		name := entry.Name()

		// Root hubs are "usbN"; interfaces are "B-P:C.I".
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}

		info, err := s.parseUSBDevice(filepath.Join(s.root, name))
		if err != nil {
			continue
		}
		if info.vendorID == vid && info.productID == pid {
			return info, nil
		}
	}

	return usbDeviceInfo{}, fmt.Errorf("%04x:%04x: %w", vid, pid, pkg.ErrDeviceNotFound)
}

// parseUSBDevice parses USB device information from sysfs.
func (s sysfs) parseUSBDevice(sysfsPath string) (usbDeviceInfo, error) {
	info := usbDeviceInfo{sysfsPath: sysfsPath}

	var err error
	if info.busNum, err = readSysfsUint8(filepath.Join(sysfsPath, "busnum")); err != nil {
		return info, err
	}
	if info.devNum, err = readSysfsUint8(filepath.Join(sysfsPath, "devnum")); err != nil {
		return info, err
	}
	if info.vendorID, err = readSysfsHexUint16(filepath.Join(sysfsPath, "idVendor")); err != nil {
		return info, err
	}
	if info.productID, err = readSysfsHexUint16(filepath.Join(sysfsPath, "idProduct")); err != nil {
		return info, err
	}
	info.devfsPath = formatDevfsPath(s.devRoot, info.busNum, info.devNum)

	// Empty while the device is unconfigured.
	if v, err := readSysfsUint8(filepath.Join(sysfsPath, "bConfigurationValue")); err == nil {
		info.configuration = v
	}
	info.manufacturer, _ = readSysfsString(filepath.Join(sysfsPath, "manufacturer"))
	info.product, _ = readSysfsString(filepath.Join(sysfsPath, "product"))

	return info, nil
}

// bulkEndpoints resolves the bulk IN and OUT endpoints of an interface.
// Exactly one of each is required.
func (s sysfs) bulkEndpoints(dev usbDeviceInfo, iface uint8) (in, out endpointInfo, err error) {
	ifacePath, err := findInterface(dev.sysfsPath, iface)
	if err != nil {
		return in, out, err
	}

	entries, err := os.ReadDir(ifacePath)
	if err != nil {
		return in, out, fmt.Errorf("interface %d: %w", iface, pkg.ErrDeviceNotFound)
	}

	var nIn, nOut int
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "ep_") {
			continue
		}
		ep, err := parseEndpoint(filepath.Join(ifacePath, entry.Name()))
		if err != nil || !ep.isBulk() {
			continue
		}
		if ep.isIn() {
			in = ep
			nIn++
		} else {
			out = ep
			nOut++
		}
	}

	if nIn != 1 || nOut != 1 {
		return endpointInfo{}, endpointInfo{}, fmt.Errorf(
			"interface %d has %d bulk IN and %d bulk OUT endpoints: %w",
			iface, nIn, nOut, pkg.ErrDeviceNotFound)
	}
	return in, out, nil
}

// findInterface returns the sysfs directory of interface iface of the
// active configuration. Interface entries are named <device>:<config>.<iface>.
func findInterface(devicePath string, iface uint8) (string, error) {
	entries, err := os.ReadDir(devicePath)
	if err != nil {
		return "", fmt.Errorf("interface %d: %w", iface, pkg.ErrDeviceNotFound)
	}

	prefix := filepath.Base(devicePath) + ":"
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		p := filepath.Join(devicePath, entry.Name())
		n, err := readSysfsHexUint8(filepath.Join(p, "bInterfaceNumber"))
		if err == nil && n == iface {
			return p, nil
		}
	}
	return "", fmt.Errorf("interface %d: %w", iface, pkg.ErrDeviceNotFound)
}

// parseEndpoint reads an ep_XX directory.
func parseEndpoint(path string) (endpointInfo, error) {
	var ep endpointInfo
	var err error
	if ep.address, err = readSysfsHexUint8(filepath.Join(path, "bEndpointAddress")); err != nil {
		return ep, err
	}
	if ep.attributes, err = readSysfsHexUint8(filepath.Join(path, "bmAttributes")); err != nil {
		return ep, err
	}
	ep.maxPacket, _ = readSysfsHexUint16(filepath.Join(path, "wMaxPacketSize"))
	return ep, nil
}

// =============================================================================
// Sysfs Read Helpers
// =============================================================================

// readSysfsString reads a string from a sysfs attribute file.
func readSysfsString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// readSysfsUint8 reads an unsigned decimal uint8 from a sysfs attribute file.
func readSysfsUint8(path string) (uint8, error) {
	s, err := readSysfsString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

// readSysfsHex reads a hexadecimal value from a sysfs attribute file.
func readSysfsHex(path string, bitSize int) (uint64, error) {
	s, err := readSysfsString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, bitSize)
}

// readSysfsHexUint8 reads a hexadecimal uint8 from a sysfs attribute file.
func readSysfsHexUint8(path string) (uint8, error) {
	v, err := readSysfsHex(path, 8)
	return uint8(v), err
}

// readSysfsHexUint16 reads a hexadecimal uint16 from a sysfs attribute file.
func readSysfsHexUint16(path string) (uint16, error) {
	v, err := readSysfsHex(path, 16)
	return uint16(v), err
}

// =============================================================================
// Path Helpers
// =============================================================================

// formatDevfsPath constructs a usbfs node path from bus and device numbers.
// Path format: <root>/BBB/DDD with zero-padded numbers.
func formatDevfsPath(root string, busNum, devNum uint8) string {
	return fmt.Sprintf("%s/%03d/%03d", root, busNum, devNum)
}
