//go:build linux && (amd64 || arm64 || riscv64 || loong64 || s390x || arm || 386)

package linux

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ardnew/turingscreen/pkg"
	"github.com/ardnew/turingscreen/transport"
)

// Config selects the device and bounds its transfers.
type Config struct {
	VendorID     uint16
	ProductID    uint16
	Interface    uint8
	Timeout      time.Duration // per bulk transfer
	StallRetries int

	// Filesystem roots, overridable for tests.
	SysfsRoot string
	DevfsRoot string
}

// DefaultConfig returns the configuration for the display.
func DefaultConfig() Config {
	return Config{
		VendorID:     transport.VendorID,
		ProductID:    transport.ProductID,
		Interface:    transport.Interface,
		Timeout:      DefaultTimeout,
		StallRetries: DefaultStallRetries,
		SysfsRoot:    SysfsUSBPath,
		DevfsRoot:    DevfsUSBPath,
	}
}

// Transport is a usbfs connection to the display. It implements
// transport.Transport.
type Transport struct {
	cfg   Config
	info  usbDeviceInfo
	fd    int
	epIn  endpointInfo
	epOut endpointInfo

	closed bool
	mu     sync.Mutex // serializes transfers against Close
}

var _ transport.Transport = (*Transport)(nil)

// Open finds the device, claims its interface and resolves its bulk
// endpoints.
func Open(cfg Config) (*Transport, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SysfsRoot == "" {
		cfg.SysfsRoot = SysfsUSBPath
	}
	if cfg.DevfsRoot == "" {
		cfg.DevfsRoot = DevfsUSBPath
	}
	fs := sysfs{root: cfg.SysfsRoot, devRoot: cfg.DevfsRoot}

	info, err := fs.findDevice(cfg.VendorID, cfg.ProductID)
	if err != nil {
		return nil, err
	}

	fd, err := openDevice(info.devfsPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", info.devfsPath, classify(err))
	}

	if info.configuration == 0 {
		if err := setConfiguration(fd, defaultConfigValue); err != nil {
			closeDevice(fd)
			return nil, fmt.Errorf("set configuration: %w", classify(err))
		}
		pkg.LogDebug(pkg.ComponentTransport, "selected configuration",
			"value", defaultConfigValue)
	}

	if err := disconnectDriver(fd, cfg.Interface); err != nil && !isNoData(err) {
		pkg.LogDebug(pkg.ComponentTransport, "kernel driver not detached",
			"interface", cfg.Interface, "error", err)
	}

	if err := claimInterface(fd, cfg.Interface); err != nil {
		closeDevice(fd)
		return nil, fmt.Errorf("claim interface %d: %w", cfg.Interface, classify(err))
	}

	in, out, err := fs.bulkEndpoints(info, cfg.Interface)
	if err != nil {
		releaseInterface(fd, cfg.Interface)
		closeDevice(fd)
		return nil, err
	}

	t := &Transport{
		cfg:   cfg,
		info:  info,
		fd:    fd,
		epIn:  in,
		epOut: out,
	}

	pkg.LogInfo(pkg.ComponentTransport, "device opened",
		"device", describe(info, defaultIDs),
		"path", info.devfsPath,
		"ep_out", fmt.Sprintf("%#02x", out.address),
		"ep_in", fmt.Sprintf("%#02x", in.address),
		"max_packet", out.maxPacket)

	return t, nil
}

// Send writes b to the OUT endpoint in segments of at most MaxSegmentSize.
func (t *Transport) Send(ctx context.Context, b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("send: transport closed: %w", pkg.ErrTransportIO)
	}

	for off := 0; off < len(b); {
		n := min(MaxSegmentSize, len(b)-off)
		w, err := t.bulk(ctx, t.epOut.address, b[off:off+n])
		if err != nil {
			return fmt.Errorf("send at offset %d: %w", off, err)
		}
		if w != n {
			return fmt.Errorf("send at offset %d: short write %d of %d: %w",
				off, w, n, pkg.ErrTransportIO)
		}
		off += n
	}
	return nil
}

// Receive reads one reply of at most transport.ReplySize bytes.
func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, fmt.Errorf("receive: transport closed: %w", pkg.ErrTransportIO)
	}

	buf := make([]byte, transport.ReplySize)
	n, err := t.bulk(ctx, t.epIn.address, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Close releases the interface and closes the device node.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if err := releaseInterface(t.fd, t.cfg.Interface); err != nil {
		pkg.LogDebug(pkg.ComponentTransport, "release interface failed", "error", err)
	}
	if err := closeDevice(t.fd); err != nil {
		return classify(err)
	}
	pkg.LogDebug(pkg.ComponentTransport, "device closed", "path", t.info.devfsPath)
	return nil
}

// bulk performs one bulk transfer, clearing stalls up to StallRetries times.
func (t *Transport) bulk(ctx context.Context, endpoint uint8, buf []byte) (int, error) {
	for attempt := 0; ; attempt++ {
		ms, err := t.timeoutMs(ctx)
		if err != nil {
			return 0, err
		}

		n, err := doBulkTransfer(t.fd, endpoint, buf, ms)
		if err == nil {
			return n, nil
		}
		if !isPipe(err) || attempt >= t.cfg.StallRetries {
			return 0, classify(err)
		}

		pkg.LogWarn(pkg.ComponentTransport, "endpoint stalled, clearing halt",
			"endpoint", fmt.Sprintf("%#02x", endpoint), "attempt", attempt+1)
		if err := clearHalt(t.fd, endpoint); err != nil {
			return 0, fmt.Errorf("clear halt: %w", classify(err))
		}
	}
}

// timeoutMs returns the transfer timeout clamped by the context deadline.
func (t *Transport) timeoutMs(ctx context.Context) (uint32, error) {
	if err := ctx.Err(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return 0, fmt.Errorf("%w: %w", pkg.ErrTransportTimeout, err)
		}
		return 0, fmt.Errorf("%w: %w", pkg.ErrCancelled, err)
	}

	timeout := t.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, fmt.Errorf("deadline passed: %w", pkg.ErrTransportTimeout)
		}
		timeout = min(timeout, remaining)
	}
	return uint32(max(timeout.Milliseconds(), 1)), nil
}
