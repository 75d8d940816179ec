package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/turingscreen/pkg"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 1, 0, 0, 250*int(time.Millisecond), time.Local)
}

func newTestCodec(opts ...Option) *Codec {
	return New(append([]Option{WithClock(fixedClock)}, opts...)...)
}

// =============================================================================
// Encode Tests
// =============================================================================

func TestEncodeBlockLayout(t *testing.T) {
	c := newTestCodec()
	b, err := c.Encode(OpBrightness, []byte{40}, nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(b) != BlockSize {
		t.Fatalf("len = %d, want %d", len(b), BlockSize)
	}
	if b[510] != 0xA1 || b[511] != 0x1A {
		t.Errorf("trailer = %#02x %#02x, want 0xa1 0x1a", b[510], b[511])
	}
	if b[504] != 0 || b[505] != 0 {
		t.Errorf("reserved bytes = %#02x %#02x, want zero", b[504], b[505])
	}
}

func TestEncodeTimestamp(t *testing.T) {
	c := newTestCodec()
	b, err := c.Encode(OpSync, nil, nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	f, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if want := uint32(3600250); f.Timestamp != want {
		t.Errorf("Timestamp = %d, want %d", f.Timestamp, want)
	}
}

func TestEncodePayloadTooLarge(t *testing.T) {
	c := newTestCodec()
	tests := []struct {
		name    string
		op      Opcode
		args    []byte
		payload []byte
	}{
		{"args", OpSync, make([]byte, MaxArgs+1), nil},
		{"no payload layout", OpBrightness, nil, []byte{1}},
		{"video chunk", OpVideoChunk, nil, make([]byte, MaxVideoChunk+1)},
		{"file chunk", OpWriteFile, nil, make([]byte, FileChunkSize+1)},
		{"image", OpImage, nil, make([]byte, MaxImagePayload+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Encode(tt.op, tt.args, tt.payload)
			if !errors.Is(err, pkg.ErrPayloadTooLarge) {
				t.Errorf("Encode() error = %v, want ErrPayloadTooLarge", err)
			}
		})
	}
}

func TestEncodeAtCaps(t *testing.T) {
	c := newTestCodec()
	if _, err := c.Encode(OpSync, make([]byte, MaxArgs), nil); err != nil {
		t.Errorf("Encode(max args) error = %v", err)
	}
	if _, err := c.Encode(OpVideoChunk, nil, make([]byte, MaxVideoChunk)); err != nil {
		t.Errorf("Encode(max video chunk) error = %v", err)
	}
}

// =============================================================================
// Round Trip Tests
// =============================================================================

func TestRoundTrip(t *testing.T) {
	png := bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 300)
	video := bytes.Repeat([]byte{0, 0, 0, 1, 0x65}, 1000)
	path, _ := PathArgs(ImageDir + "a.png")

	tests := []struct {
		name    string
		op      Opcode
		args    []byte
		payload []byte
	}{
		{"sync", OpSync, nil, nil},
		{"brightness", OpBrightness, []byte{102}, nil},
		{"save", OpSaveSettings, []byte{50, 1, 0, 2, 30, 1}, nil},
		{"open", OpOpenFile, path, nil},
		{"image", OpImage, nil, png},
		{"video", OpVideoChunk, nil, video},
		{"empty image", OpImage, nil, nil},
	}

	for _, integrity := range []Integrity{CRC32, Sum16, None} {
		c := newTestCodec(WithIntegrity(integrity))
		for _, tt := range tests {
			t.Run(integrity.Name()+"/"+tt.name, func(t *testing.T) {
				b, err := c.Encode(tt.op, tt.args, tt.payload)
				if err != nil {
					t.Fatalf("Encode() error = %v", err)
				}
				f, err := c.Decode(b)
				if err != nil {
					t.Fatalf("Decode() error = %v", err)
				}
				if f.Opcode != tt.op {
					t.Errorf("Opcode = %v, want %v", f.Opcode, tt.op)
				}
				if !bytes.Equal(f.Payload, tt.payload) {
					t.Errorf("Payload mismatch: got %d bytes, want %d", len(f.Payload), len(tt.payload))
				}
				if _, ok := layouts[tt.op]; !ok && !bytes.Equal(f.Args, tt.args) {
					t.Errorf("Args = %v, want %v", f.Args, tt.args)
				}
			})
		}
	}
}

func TestRoundTripDeclaredLength(t *testing.T) {
	c := newTestCodec()
	payload := []byte("hello")
	b, err := c.Encode(OpImage, nil, payload)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	f, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := binary.BigEndian.Uint32(f.Args); got != uint32(len(payload)) {
		t.Errorf("declared length = %d, want %d", got, len(payload))
	}
}

func TestWriteFilePadding(t *testing.T) {
	c := newTestCodec()
	payload := []byte("0123456789")
	b, err := c.Encode(OpWriteFile, []byte{0, 0, 0, 0, 0, 0, 0, 0, 1}, payload)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if want := BlockSize + FileChunkSize + BlockSize; len(b) != want {
		t.Fatalf("len = %d, want %d", len(b), want)
	}
	f, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := binary.BigEndian.Uint32(f.Args[0:]); got != FileChunkSize {
		t.Errorf("capacity = %d, want %d", got, FileChunkSize)
	}
	if got := binary.BigEndian.Uint32(f.Args[4:]); got != uint32(len(payload)) {
		t.Errorf("chunk length = %d, want %d", got, len(payload))
	}
	if f.Arg(8) != 1 {
		t.Errorf("last flag = %d, want 1", f.Arg(8))
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Errorf("Payload = %q, want %q", f.Payload, payload)
	}
}

// =============================================================================
// Decode Failure Tests
// =============================================================================

func TestDecodeSingleByteCorruption(t *testing.T) {
	c := newTestCodec()
	frames := map[string][]byte{}
	for name, enc := range map[string]struct {
		op      Opcode
		args    []byte
		payload []byte
	}{
		"brightness": {OpBrightness, []byte{64}, nil},
		"image":      {OpImage, nil, bytes.Repeat([]byte{7, 9}, 64)},
	} {
		b, err := c.Encode(enc.op, enc.args, enc.payload)
		if err != nil {
			t.Fatalf("Encode(%s) error = %v", name, err)
		}
		frames[name] = b
	}

	for name, b := range frames {
		for i := range b {
			corrupt := append([]byte(nil), b...)
			corrupt[i] ^= 0x01
			_, err := c.Decode(corrupt)
			if !errors.Is(err, pkg.ErrIntegrityMismatch) && !errors.Is(err, pkg.ErrMalformedFrame) {
				t.Fatalf("%s: flip at %d: Decode() error = %v, want rejection", name, i, err)
			}
		}
	}
}

func TestDecodeCorruptionKinds(t *testing.T) {
	c := newTestCodec()
	b, err := c.Encode(OpImage, nil, []byte("payload"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	tests := []struct {
		name string
		pos  int
		want error
	}{
		{"ciphertext", 17, pkg.ErrIntegrityMismatch},
		{"reserved", 504, pkg.ErrMalformedFrame},
		{"integrity slot", 508, pkg.ErrIntegrityMismatch},
		{"trailer", 511, pkg.ErrMalformedFrame},
		{"payload", BlockSize + 2, pkg.ErrIntegrityMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrupt := append([]byte(nil), b...)
			corrupt[tt.pos] ^= 0x80
			if _, err := c.Decode(corrupt); !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	c := newTestCodec(WithIntegrity(None))
	img, _ := c.Encode(OpImage, nil, []byte("abcdef"))
	sync, _ := c.Encode(OpSync, nil, nil)

	tests := []struct {
		name string
		b    []byte
	}{
		{"empty", nil},
		{"short block", make([]byte, BlockSize-1)},
		{"zero block", make([]byte, BlockSize)},
		{"truncated payload", img[:len(img)-1]},
		{"extra payload", append(append([]byte(nil), img...), 'x')},
		{"payload on bare command", append(append([]byte(nil), sync...), 'x')},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Decode(tt.b); !errors.Is(err, pkg.ErrMalformedFrame) {
				t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
			}
		})
	}
}

func TestDecodeIntegrityMismatchAcrossFunctions(t *testing.T) {
	b, err := newTestCodec(WithIntegrity(Sum16)).Encode(OpSync, nil, nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, err := newTestCodec(WithIntegrity(CRC32)).Decode(b); err == nil {
		t.Error("Decode() accepted a frame sealed with a different integrity function")
	}
}

// =============================================================================
// Integrity Tests
// =============================================================================

func TestIntegrityByName(t *testing.T) {
	tests := []struct {
		name    string
		want    Integrity
		wantErr bool
	}{
		{"", CRC32, false},
		{"crc32", CRC32, false},
		{"CRC32", CRC32, false},
		{"sum16", Sum16, false},
		{"none", None, false},
		{"md5", nil, true},
	}

	for _, tt := range tests {
		got, err := IntegrityByName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("IntegrityByName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("IntegrityByName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCodecIntegrity(t *testing.T) {
	if got := New().Integrity(); got != CRC32 {
		t.Errorf("New().Integrity() = %s, want crc32", got.Name())
	}
	if got := New(WithIntegrity(Sum16)).Integrity(); got != Sum16 {
		t.Errorf("Integrity() = %s, want sum16", got.Name())
	}
	if got := New(WithIntegrity(nil)).Integrity(); got != CRC32 {
		t.Errorf("WithIntegrity(nil) replaced the default with %v", got)
	}
}

func TestIntegritySizes(t *testing.T) {
	for _, i := range []Integrity{CRC32, Sum16, None} {
		sum := i.Sum([]byte("header"), []byte("payload"))
		if len(sum) != i.Size() {
			t.Errorf("%s: len(Sum) = %d, want %d", i.Name(), len(sum), i.Size())
		}
		if i.Size() > MaxIntegritySize {
			t.Errorf("%s: Size = %d exceeds slot", i.Name(), i.Size())
		}
	}
}

func TestSum16Wraps(t *testing.T) {
	sum := Sum16.Sum(bytes.Repeat([]byte{0xFF}, 300), nil)
	if got, want := binary.BigEndian.Uint16(sum), uint16((300*0xFF)&0xFFFF); got != want {
		t.Errorf("Sum16 = %#04x, want %#04x", got, want)
	}
}

// =============================================================================
// Opcode Tests
// =============================================================================

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpSync, "sync"},
		{OpVideoChunk, "video-chunk"},
		{Opcode(200), "opcode(200)"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(%d).String() = %q, want %q", uint8(tt.op), got, tt.want)
		}
	}
}
