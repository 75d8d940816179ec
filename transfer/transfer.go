// Package transfer moves large payloads to the display as ordered sequences
// of frames.
//
// Each Kind has a profile fixing its chunk opcode, chunk size and whether
// replies are optional. File uploads are preceded by an open-file header
// frame and their final chunk carries the last-chunk flag. Video chunks are
// paced and throttled against the device's decode buffer.
//
// A transfer either completes with the device's acknowledgement of the final
// chunk or stops with an error naming the chunk that failed. There is no
// resume and no rollback: after a failure the device holds whatever prefix
// was written.
package transfer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ardnew/turingscreen/codec"
	"github.com/ardnew/turingscreen/transport"
)

// Kind identifies the payload type of a transfer.
type Kind int

const (
	KindImage Kind = iota
	KindFile
	KindVideo
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindFile:
		return "file"
	case KindVideo:
		return "video"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// profile describes how a kind is chunked and acknowledged.
type profile struct {
	opcode codec.Opcode

	// optionalReply tolerates chunks the device does not answer.
	optionalReply bool

	// single rejects payloads that do not fit in one chunk.
	single bool
}

var profiles = map[Kind]profile{
	KindImage: {opcode: codec.OpImage, single: true},
	KindFile:  {opcode: codec.OpWriteFile},
	KindVideo: {opcode: codec.OpVideoChunk, optionalReply: true},
}

// ChunkSize returns the chunk size of kind k, the payload cap of its chunk
// opcode, or zero for an unknown kind.
func ChunkSize(k Kind) int {
	p, ok := profiles[k]
	if !ok {
		return 0
	}
	return codec.MaxPayload(p.opcode)
}

// ChunkCount returns the number of chunk frames a payload of n bytes
// produces for kind k. It does not check the single-frame limit.
func ChunkCount(k Kind, n int) int {
	size := ChunkSize(k)
	if size == 0 || n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Request describes one transfer.
type Request struct {
	Kind    Kind
	Payload []byte

	// Destination is the device path for KindFile and ignored otherwise.
	Destination string

	// Progress, if set, is called after every acknowledged chunk.
	Progress func(Progress)
}

// Progress reports the state of a running transfer.
type Progress struct {
	ID     uuid.UUID
	Chunk  int // 1-based index of the chunk just sent
	Chunks int
	Sent   int64
	Total  int64
}

// Result describes a completed or cancelled transfer.
type Result struct {
	ID     uuid.UUID
	Kind   Kind
	Chunks int   // chunks acknowledged
	Bytes  int64 // payload bytes in acknowledged chunks

	// Ack is the device reply to the final chunk. It is empty unless the
	// transfer completed.
	Ack []byte
}

// Config tunes the engine.
type Config struct {
	// Drain is the reply flush discipline applied to every frame.
	Drain transport.Drain

	// VideoPace is the delay after each video chunk.
	VideoPace time.Duration

	// BufferPollInterval is the delay before each buffer-status poll.
	BufferPollInterval time.Duration

	// BufferPollLimit bounds the polls issued after one video chunk.
	BufferPollLimit int
}

// DefaultConfig returns the firmware's pacing parameters.
func DefaultConfig() Config {
	return Config{
		Drain:              transport.DefaultDrain,
		VideoPace:          30 * time.Millisecond,
		BufferPollInterval: 50 * time.Millisecond,
		BufferPollLimit:    100,
	}
}

// Video replies whose status byte is at or below pollThreshold make the
// engine poll buffer status until the level is at or below readyLevel.
const (
	pollThreshold = 3
	readyLevel    = 2
)
