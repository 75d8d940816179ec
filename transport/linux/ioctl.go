//go:build linux && (amd64 || arm64 || riscv64 || loong64 || s390x || arm || 386)

package linux

// ioctl number layout (asm-generic):
//
//	bits 0-7:   command number (nr)
//	bits 8-15:  ioctl type (type)
//	bits 16-29: argument size (size)
//	bits 30-31: direction (dir)

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

func ior(typ, nr, size uintptr) uintptr {
	return ioc(iocRead, typ, nr, size)
}

func iowr(typ, nr, size uintptr) uintptr {
	return ioc(iocRead|iocWrite, typ, nr, size)
}

func ioctlNone(typ, nr uintptr) uintptr {
	return ioc(iocNone, typ, nr, 0)
}

// usbdevfs ioctl type character.
const usbdevfsType = 'U'

// usbdevfs command numbers.
const (
	cmdBulk             = 2
	cmdSetConfiguration = 5
	cmdClaimInterface   = 15
	cmdReleaseInterface = 16
	cmdIoctl            = 18
	cmdClearHalt        = 21
	cmdDisconnect       = 22
)

const sizeofInt = 4

var (
	ioctlUsbdevfsBulk             = iowr(usbdevfsType, cmdBulk, sizeofBulkTransfer)
	ioctlUsbdevfsSetConfiguration = ior(usbdevfsType, cmdSetConfiguration, sizeofInt)
	ioctlUsbdevfsClaimInterface   = ior(usbdevfsType, cmdClaimInterface, sizeofInt)
	ioctlUsbdevfsReleaseInterface = ior(usbdevfsType, cmdReleaseInterface, sizeofInt)
	ioctlUsbdevfsIoctl            = iowr(usbdevfsType, cmdIoctl, sizeofUsbdevfsIoctl)
	ioctlUsbdevfsClearHalt        = ior(usbdevfsType, cmdClearHalt, sizeofInt)
	ioctlUsbdevfsDisconnect       = ioctlNone(usbdevfsType, cmdDisconnect)
)
