//go:build linux

package linux

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ardnew/turingscreen/pkg"
)

// classify maps a usbfs errno onto the error taxonomy. The original errno
// stays in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return fmt.Errorf("%w: %w", pkg.ErrTransportIO, err)
	}

	var kind error
	switch errno {
	case unix.ETIMEDOUT:
		kind = pkg.ErrTransportTimeout
	case unix.ENODEV, unix.ENOENT, unix.ESHUTDOWN:
		kind = pkg.ErrDeviceNotFound
	case unix.EACCES, unix.EPERM:
		kind = pkg.ErrPermissionDenied
	case unix.EBUSY:
		kind = pkg.ErrDeviceBusy
	case unix.EPIPE:
		kind = pkg.ErrStall
	default:
		kind = pkg.ErrTransportIO
	}
	return fmt.Errorf("%w: %w", kind, err)
}
