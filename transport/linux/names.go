//go:build linux

package linux

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// usbIDPaths lists the standard locations of the USB ID database.
var usbIDPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// idDatabase resolves vendor and product names for devices whose string
// descriptors are missing. It is loaded on first lookup.
type idDatabase struct {
	paths    []string
	once     sync.Once
	vendors  map[uint16]string
	products map[uint32]string // (VID<<16)|PID
}

var defaultIDs = &idDatabase{paths: usbIDPaths}

// lookup returns the vendor and product names, or empty strings when the
// database is unavailable or does not list the device.
func (db *idDatabase) lookup(vid, pid uint16) (vendor, product string) {
	db.once.Do(db.load)
	return db.vendors[vid], db.products[uint32(vid)<<16|uint32(pid)]
}

func (db *idDatabase) load() {
	for _, path := range db.paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		db.vendors, db.products = parseUSBIDs(f)
		f.Close()
		return
	}
}

// parseUSBIDs parses the usb.ids format. Vendor lines are "xxxx  Name";
// product lines are indented with one tab. Class and interface sections end
// the vendor list.
func parseUSBIDs(r io.Reader) (map[uint16]string, map[uint32]string) {
	vendors := make(map[uint16]string)
	products := make(map[uint32]string)

	var vid uint16
	var inVendor bool

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}

		if line[0] == '\t' {
			if !inVendor || strings.HasPrefix(line, "\t\t") {
				continue
			}
			id, name, ok := splitIDLine(line[1:])
			if ok {
				products[uint32(vid)<<16|uint32(id)] = name
			}
			continue
		}

		id, name, ok := splitIDLine(line)
		inVendor = ok
		if ok {
			vid = id
			vendors[vid] = name
		}
	}

	return vendors, products
}

// splitIDLine splits "xxxx  Name" into its hex ID and name.
func splitIDLine(line string) (uint16, string, bool) {
	if len(line) < 6 || line[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(line[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	return uint16(id), strings.TrimSpace(line[5:]), true
}

// describe returns a human-readable device name, preferring the device's own
// string descriptors.
func describe(info usbDeviceInfo, db *idDatabase) string {
	vendor, product := info.manufacturer, info.product
	if vendor == "" || product == "" {
		v, p := db.lookup(info.vendorID, info.productID)
		if vendor == "" {
			vendor = v
		}
		if product == "" {
			product = p
		}
	}
	name := strings.TrimSpace(vendor + " " + product)
	if name == "" {
		return fmt.Sprintf("%04x:%04x", info.vendorID, info.productID)
	}
	return fmt.Sprintf("%s (%04x:%04x)", name, info.vendorID, info.productID)
}
