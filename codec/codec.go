package codec

import (
	"bytes"
	"crypto/cipher"
	"crypto/des"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ardnew/turingscreen/pkg"
)

// Command block geometry.
const (
	HeaderSize = 500 // plaintext header
	BlockSize  = 512 // command block on the wire
	ArgsOffset = 8   // first argument byte in the header
	MaxArgs    = HeaderSize - ArgsOffset

	cipherSize    = 504 // HeaderSize rounded up to the DES block size
	integrityEnd  = 510
	trailerOffset = 510
)

// Protocol constants.
const (
	magic0   = 0x1A
	magic1   = 0x6D
	trailer0 = 0xA1
	trailer1 = 0x1A
)

// Payload caps.
const (
	// MaxImagePayload is the largest PNG accepted in a single image frame.
	MaxImagePayload = 8 << 20

	// MaxVideoChunk is the largest H264 slice accepted in a video frame.
	MaxVideoChunk = 202752

	// FileChunkSize is the capacity of one write-file frame. The payload
	// region of every write-file frame is padded to FileChunkSize+BlockSize.
	FileChunkSize = 1 << 20
)

// cipherKey is the DES key and IV shared with the firmware.
var cipherKey = []byte("slv3tuzx")

// layout describes where an opcode declares its payload.
type layout struct {
	lengthAt   int // header offset of the big-endian payload length
	capacityAt int // header offset of the big-endian capacity, 0 if none
	maxPayload int
	padTo      int // wire size of the payload region, 0 for exact
}

var layouts = map[Opcode]layout{
	OpImage:      {lengthAt: 8, maxPayload: MaxImagePayload},
	OpVideoChunk: {lengthAt: 8, maxPayload: MaxVideoChunk},
	OpWriteFile: {
		lengthAt:   12,
		capacityAt: 8,
		maxPayload: FileChunkSize,
		padTo:      FileChunkSize + BlockSize,
	},
}

// MaxPayload returns the payload cap of op. Opcodes without a payload layout
// return zero.
func MaxPayload(op Opcode) int {
	return layouts[op].maxPayload
}

// Frame is one decoded command.
type Frame struct {
	Opcode    Opcode
	Timestamp uint32 // milliseconds since local midnight

	// Args holds the header bytes from ArgsOffset with trailing zero padding
	// removed. Declared length fields are included.
	Args []byte

	// Payload holds the bulk bytes following the command block, without
	// wire padding.
	Payload []byte
}

// Arg returns the argument byte at index i, or zero past the end of Args.
func (f Frame) Arg(i int) byte {
	if i < 0 || i >= len(f.Args) {
		return 0
	}
	return f.Args[i]
}

// Codec encodes and decodes command frames. A Codec is safe for concurrent
// use.
type Codec struct {
	block     cipher.Block
	integrity Integrity
	now       func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithIntegrity selects the integrity function.
func WithIntegrity(i Integrity) Option {
	return func(c *Codec) {
		if i != nil {
			c.integrity = i
		}
	}
}

// WithClock replaces the time source used for header time stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a codec using CRC32 integrity and the wall clock.
func New(opts ...Option) *Codec {
	block, err := des.NewCipher(cipherKey)
	if err != nil {
		// Only reachable if cipherKey is not 8 bytes long.
		panic(err)
	}
	c := &Codec{
		block:     block,
		integrity: CRC32,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.integrity.Size() > MaxIntegritySize {
		panic(fmt.Sprintf("codec: integrity %s wider than %d bytes",
			c.integrity.Name(), MaxIntegritySize))
	}
	return c
}

// Integrity returns the integrity function in use.
func (c *Codec) Integrity() Integrity {
	return c.integrity
}

// Encode builds the wire bytes of a command.
//
// args are copied into the header from ArgsOffset. For opcodes that carry a
// payload the declared length (and capacity) fields are written by Encode and
// override whatever args holds at those offsets.
func (c *Codec) Encode(op Opcode, args, payload []byte) ([]byte, error) {
	if len(args) > MaxArgs {
		return nil, fmt.Errorf("%s: %d argument bytes: %w", op, len(args), pkg.ErrPayloadTooLarge)
	}
	l, hasPayload := layouts[op]
	if len(payload) > l.maxPayload {
		return nil, fmt.Errorf("%s: %d payload bytes (max %d): %w",
			op, len(payload), l.maxPayload, pkg.ErrPayloadTooLarge)
	}

	var header [cipherSize]byte
	header[0] = byte(op)
	header[2] = magic0
	header[3] = magic1
	binary.LittleEndian.PutUint32(header[4:8], c.timestamp())
	copy(header[ArgsOffset:HeaderSize], args)
	if hasPayload {
		binary.BigEndian.PutUint32(header[l.lengthAt:], uint32(len(payload)))
		if l.capacityAt != 0 {
			binary.BigEndian.PutUint32(header[l.capacityAt:], uint32(l.maxPayload))
		}
	}

	wireLen := len(payload)
	if l.padTo > 0 {
		wireLen = l.padTo
	}
	out := make([]byte, BlockSize+wireLen)
	copy(out[BlockSize:], payload)

	sum := c.integrity.Sum(header[:], out[BlockSize:])
	copy(out[integrityEnd-len(sum):integrityEnd], sum)

	cipher.NewCBCEncrypter(c.block, cipherKey).CryptBlocks(out[:cipherSize], header[:])
	out[trailerOffset] = trailer0
	out[trailerOffset+1] = trailer1

	return out, nil
}

// Decode parses and verifies wire bytes produced by Encode.
func (c *Codec) Decode(b []byte) (Frame, error) {
	if len(b) < BlockSize {
		return Frame{}, fmt.Errorf("%d bytes, need %d: %w", len(b), BlockSize, pkg.ErrMalformedFrame)
	}
	if b[trailerOffset] != trailer0 || b[trailerOffset+1] != trailer1 {
		return Frame{}, fmt.Errorf("bad trailer %#02x %#02x: %w",
			b[trailerOffset], b[trailerOffset+1], pkg.ErrMalformedFrame)
	}

	size := c.integrity.Size()
	for _, r := range b[cipherSize : integrityEnd-size] {
		if r != 0 {
			return Frame{}, fmt.Errorf("reserved bytes set: %w", pkg.ErrMalformedFrame)
		}
	}

	var header [cipherSize]byte
	cipher.NewCBCDecrypter(c.block, cipherKey).CryptBlocks(header[:], b[:cipherSize])
	trailing := b[BlockSize:]

	want := c.integrity.Sum(header[:], trailing)
	if !bytes.Equal(b[integrityEnd-size:integrityEnd], want) {
		return Frame{}, fmt.Errorf("%s: %w", c.integrity.Name(), pkg.ErrIntegrityMismatch)
	}

	if header[2] != magic0 || header[3] != magic1 {
		return Frame{}, fmt.Errorf("bad magic %#02x %#02x: %w", header[2], header[3], pkg.ErrMalformedFrame)
	}
	if header[1] != 0 || !allZero(header[HeaderSize:]) {
		return Frame{}, fmt.Errorf("header padding set: %w", pkg.ErrMalformedFrame)
	}

	f := Frame{
		Opcode:    Opcode(header[0]),
		Timestamp: binary.LittleEndian.Uint32(header[4:8]),
		Args:      bytes.TrimRight(append([]byte(nil), header[ArgsOffset:HeaderSize]...), "\x00"),
	}

	l, hasPayload := layouts[f.Opcode]
	if !hasPayload {
		if len(trailing) != 0 {
			return Frame{}, fmt.Errorf("%s: unexpected %d payload bytes: %w",
				f.Opcode, len(trailing), pkg.ErrMalformedFrame)
		}
		return f, nil
	}

	declared := int(binary.BigEndian.Uint32(header[l.lengthAt:]))
	if declared > l.maxPayload {
		return Frame{}, fmt.Errorf("%s: declared length %d exceeds %d: %w",
			f.Opcode, declared, l.maxPayload, pkg.ErrMalformedFrame)
	}
	if l.padTo > 0 {
		if len(trailing) != l.padTo {
			return Frame{}, fmt.Errorf("%s: payload region %d bytes, want %d: %w",
				f.Opcode, len(trailing), l.padTo, pkg.ErrMalformedFrame)
		}
		if !allZero(trailing[declared:]) {
			return Frame{}, fmt.Errorf("%s: payload padding set: %w", f.Opcode, pkg.ErrMalformedFrame)
		}
	} else if len(trailing) != declared {
		return Frame{}, fmt.Errorf("%s: declared length %d, got %d: %w",
			f.Opcode, declared, len(trailing), pkg.ErrMalformedFrame)
	}
	f.Payload = append([]byte(nil), trailing[:declared]...)

	return f, nil
}

// timestamp returns milliseconds elapsed since local midnight.
func (c *Codec) timestamp() uint32 {
	now := c.now()
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return uint32(now.Sub(midnight).Milliseconds())
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
