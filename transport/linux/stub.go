//go:build !linux || !(amd64 || arm64 || riscv64 || loong64 || s390x || arm || 386)

package linux

import (
	"context"
	"time"

	"github.com/ardnew/turingscreen/pkg"
	"github.com/ardnew/turingscreen/transport"
)

// Config selects the device and bounds its transfers.
type Config struct {
	VendorID     uint16
	ProductID    uint16
	Interface    uint8
	Timeout      time.Duration
	StallRetries int
	SysfsRoot    string
	DevfsRoot    string
}

// DefaultConfig returns the configuration for the display.
func DefaultConfig() Config {
	return Config{
		VendorID:     transport.VendorID,
		ProductID:    transport.ProductID,
		Interface:    transport.Interface,
		Timeout:      2 * time.Second,
		StallRetries: 2,
	}
}

// Transport is unavailable on this platform.
type Transport struct{}

var _ transport.Transport = (*Transport)(nil)

// Open always fails with pkg.ErrNotSupported on this platform.
func Open(Config) (*Transport, error) {
	return nil, pkg.ErrNotSupported
}

// Send always fails with pkg.ErrNotSupported.
func (*Transport) Send(context.Context, []byte) error { return pkg.ErrNotSupported }

// Receive always fails with pkg.ErrNotSupported.
func (*Transport) Receive(context.Context) ([]byte, error) { return nil, pkg.ErrNotSupported }

// Close does nothing.
func (*Transport) Close() error { return nil }
