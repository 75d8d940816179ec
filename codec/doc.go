// Package codec implements the command frame format of the Turing smart-screen
// firmware.
//
// Every command starts with a 512-byte command block:
//
//	offset  size  contents
//	0       504   DES-CBC ciphertext of the 500-byte header, zero-padded
//	504     6     integrity slot (right-aligned, see [Integrity])
//	510     2     trailer 0xA1 0x1A
//
// The plaintext header carries the opcode at offset 0, the magic bytes
// 0x1A 0x6D at offset 2, a little-endian millisecond time-of-day stamp at
// offset 4, and opcode-specific arguments from offset 8. Opcodes that move
// bulk data (image, video chunk, file write) append their payload after the
// block and declare its length inside the header.
//
// # Encoding
//
//	c := codec.New()
//	frame, err := c.Encode(codec.OpBrightness, []byte{80}, nil)
//
// # Decoding
//
// [Codec.Decode] verifies structure and integrity of a frame produced by
// [Codec.Encode]. Device replies are plaintext and are parsed with
// [ParseResponse] and the Parse* helpers.
//
// # Integrity
//
// The integrity function is pluggable. [CRC32] is the default; [Sum16] and
// [None] can be selected with [WithIntegrity] without changing the transport
// or transfer layers.
package codec
