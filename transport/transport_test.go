package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ardnew/turingscreen/pkg"
)

// =============================================================================
// Scripted Transport for Testing
// =============================================================================

// scriptedTransport replays a fixed sequence of replies.
type scriptedTransport struct {
	sendErr  error
	replies  [][]byte
	recvErrs []error

	sent     [][]byte
	receives int
	closed   bool
}

func (s *scriptedTransport) Send(_ context.Context, b []byte) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, b)
	return nil
}

func (s *scriptedTransport) Receive(_ context.Context) ([]byte, error) {
	i := s.receives
	s.receives++
	if i < len(s.recvErrs) && s.recvErrs[i] != nil {
		return nil, s.recvErrs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return nil, pkg.ErrTransportTimeout
}

func (s *scriptedTransport) Close() error {
	s.closed = true
	return nil
}

// =============================================================================
// Exchange Tests
// =============================================================================

func TestExchangeReturnsFirstReply(t *testing.T) {
	st := &scriptedTransport{
		replies: [][]byte{[]byte("first"), []byte("second"), []byte("third")},
	}

	reply, err := Exchange(context.Background(), st, []byte("cmd"), DefaultDrain)
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if string(reply) != "first" {
		t.Errorf("reply = %q, want %q", reply, "first")
	}
	if len(st.sent) != 1 {
		t.Errorf("sent %d frames, want 1", len(st.sent))
	}
	// first reply, two drained, one timeout ends the drain
	if st.receives != 4 {
		t.Errorf("receives = %d, want 4", st.receives)
	}
}

func TestExchangeDrainBounded(t *testing.T) {
	replies := make([][]byte, 20)
	for i := range replies {
		replies[i] = []byte{byte(i)}
	}
	st := &scriptedTransport{replies: replies}

	if _, err := Exchange(context.Background(), st, nil, Drain{Attempts: 3}); err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if st.receives != 4 {
		t.Errorf("receives = %d, want 4", st.receives)
	}
}

func TestExchangeSendError(t *testing.T) {
	st := &scriptedTransport{sendErr: pkg.ErrTransportIO}

	_, err := Exchange(context.Background(), st, nil, DefaultDrain)
	if !errors.Is(err, pkg.ErrTransportIO) {
		t.Errorf("error = %v, want ErrTransportIO", err)
	}
	if errors.Is(err, ErrNoReply) {
		t.Error("send failure reported as ErrNoReply")
	}
	if st.receives != 0 {
		t.Errorf("receives = %d after failed send, want 0", st.receives)
	}
}

func TestExchangeNoReply(t *testing.T) {
	st := &scriptedTransport{}

	_, err := Exchange(context.Background(), st, nil, DefaultDrain)
	if !errors.Is(err, ErrNoReply) {
		t.Errorf("error = %v, want ErrNoReply", err)
	}
	if !errors.Is(err, pkg.ErrTransportTimeout) {
		t.Errorf("error = %v, want ErrTransportTimeout", err)
	}
}

func TestExchangeReceiveError(t *testing.T) {
	st := &scriptedTransport{recvErrs: []error{pkg.ErrDeviceNotFound}}

	_, err := Exchange(context.Background(), st, nil, DefaultDrain)
	if !errors.Is(err, pkg.ErrDeviceNotFound) {
		t.Errorf("error = %v, want ErrDeviceNotFound", err)
	}
	if errors.Is(err, ErrNoReply) {
		t.Error("receive failure reported as ErrNoReply")
	}
}
