// Package transport defines the byte pipe between the host and the display
// and the request/reply discipline the firmware expects on it.
//
// A Transport moves opaque bytes over one bulk OUT and one bulk IN endpoint.
// It knows nothing about frames. Exchange layers the firmware's flush
// discipline on top: every command is followed by one reply read and a short
// drain of any extra replies the device queued.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ardnew/turingscreen/pkg"
)

// ReplySize is the largest device reply read in one Receive.
const ReplySize = 512

// Device identifiers.
const (
	VendorID  = 0x1cbe
	ProductID = 0x0088
	Interface = 0
)

// Transport is a bidirectional bulk pipe to the device.
//
// Implementations must bound every blocking call by their configured timeout
// and by the context deadline, whichever comes first. Send and Receive are
// not required to be safe for concurrent use; the session serializes access.
type Transport interface {
	// Send writes b to the OUT endpoint.
	Send(ctx context.Context, b []byte) error

	// Receive reads one reply of at most ReplySize bytes from the IN
	// endpoint.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the device. Close is idempotent.
	Close() error
}

// ErrNoReply marks an Exchange whose command was written but whose reply
// read timed out. It is always joined with pkg.ErrTransportTimeout.
var ErrNoReply = errors.New("no reply")

// Drain controls how many queued replies Exchange discards after the first.
type Drain struct {
	Attempts int
	Timeout  time.Duration
}

// DefaultDrain matches the firmware's reply queue behaviour.
var DefaultDrain = Drain{Attempts: 5, Timeout: 100 * time.Millisecond}

// Exchange writes one command, reads its reply and drains any further
// replies the device queued. The first reply is returned.
//
// A reply timeout after a successful write is reported as ErrNoReply so that
// callers tolerating silent commands can tell it apart from a write failure.
func Exchange(ctx context.Context, t Transport, frame []byte, d Drain) ([]byte, error) {
	if err := t.Send(ctx, frame); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	reply, err := t.Receive(ctx)
	if err != nil {
		if errors.Is(err, pkg.ErrTransportTimeout) {
			return nil, fmt.Errorf("receive: %w: %w", ErrNoReply, err)
		}
		return nil, fmt.Errorf("receive: %w", err)
	}

	drained := 0
	for range d.Attempts {
		dctx, cancel := context.WithTimeout(ctx, d.Timeout)
		_, err := t.Receive(dctx)
		cancel()
		if err != nil {
			break
		}
		drained++
	}
	if drained > 0 {
		pkg.LogDebug(pkg.ComponentTransport, "drained queued replies", "count", drained)
	}

	return reply, nil
}
