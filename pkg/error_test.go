package pkg

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	// Verify all sentinel errors are distinct
	for i, err1 := range kinds {
		if err1 == nil {
			t.Errorf("error %d is nil", i)
			continue
		}
		for j, err2 := range kinds {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("error %d (%v) and %d (%v) are equal", i, err1, j, err2)
			}
		}
	}
}

func TestTransferError(t *testing.T) {
	err := fmt.Errorf("upload: %w", &TransferError{
		Kind:    "file",
		AtChunk: 3,
		Err:     ErrTransportTimeout,
	})

	if !errors.Is(err, ErrTransferFailed) {
		t.Error("TransferError should match ErrTransferFailed")
	}
	if !errors.Is(err, ErrTransportTimeout) {
		t.Error("TransferError should unwrap to its cause")
	}

	var te *TransferError
	if !errors.As(err, &te) {
		t.Fatal("errors.As failed for *TransferError")
	}
	if te.AtChunk != 3 {
		t.Errorf("AtChunk = %d, want 3", te.AtChunk)
	}
	if !strings.Contains(err.Error(), "chunk 3") {
		t.Errorf("message %q does not name the chunk", err.Error())
	}
}

func TestCommandError(t *testing.T) {
	err := &CommandError{Command: "brightness", Err: ErrInvalidParameter}

	if !errors.Is(err, ErrInvalidParameter) {
		t.Error("CommandError should unwrap to its cause")
	}
	if got, want := err.Error(), "brightness: invalid parameter"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"foreign", errors.New("other"), nil},
		{"direct", ErrMalformedFrame, ErrMalformedFrame},
		{"wrapped", fmt.Errorf("decode: %w", ErrIntegrityMismatch), ErrIntegrityMismatch},
		{
			"transfer beats cause",
			&TransferError{Kind: "video", AtChunk: 1, Err: ErrTransportIO},
			ErrTransferFailed,
		},
		{
			"command",
			&CommandError{Command: "sync", Err: ErrDeviceBusy},
			ErrDeviceBusy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
		})
	}
}
