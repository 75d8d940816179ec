package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"
)

// MaxIntegritySize is the width of the integrity slot in the command block.
const MaxIntegritySize = 6

// Integrity computes the integrity field stored in the command block.
//
// Sum receives the 504-byte plaintext header (opcode included) and every byte
// following the command block on the wire, and returns exactly Size bytes.
// Size must not exceed MaxIntegritySize.
type Integrity interface {
	Name() string
	Size() int
	Sum(header, payload []byte) []byte
}

// Built-in integrity functions.
var (
	// CRC32 is the IEEE CRC-32 of header and payload, big-endian.
	CRC32 Integrity = crc32Integrity{}

	// Sum16 is the 16-bit wrapping byte sum of header and payload, big-endian.
	Sum16 Integrity = sum16Integrity{}

	// None leaves the integrity slot empty and verifies nothing.
	None Integrity = noIntegrity{}
)

// IntegrityByName returns the built-in integrity function with the given name.
func IntegrityByName(name string) (Integrity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "crc32":
		return CRC32, nil
	case "sum16":
		return Sum16, nil
	case "none":
		return None, nil
	default:
		return nil, fmt.Errorf("unknown integrity function %q", name)
	}
}

type crc32Integrity struct{}

func (crc32Integrity) Name() string { return "crc32" }
func (crc32Integrity) Size() int    { return 4 }

func (crc32Integrity) Sum(header, payload []byte) []byte {
	crc := crc32.ChecksumIEEE(header)
	crc = crc32.Update(crc, crc32.IEEETable, payload)
	return binary.BigEndian.AppendUint32(nil, crc)
}

type sum16Integrity struct{}

func (sum16Integrity) Name() string { return "sum16" }
func (sum16Integrity) Size() int    { return 2 }

func (sum16Integrity) Sum(header, payload []byte) []byte {
	var s uint16
	for _, b := range header {
		s += uint16(b)
	}
	for _, b := range payload {
		s += uint16(b)
	}
	return binary.BigEndian.AppendUint16(nil, s)
}

type noIntegrity struct{}

func (noIntegrity) Name() string           { return "none" }
func (noIntegrity) Size() int              { return 0 }
func (noIntegrity) Sum(_, _ []byte) []byte { return nil }
