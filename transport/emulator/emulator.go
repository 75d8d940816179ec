// Package emulator provides an in-memory display that speaks the frame
// protocol. It implements transport.Transport and is used by tests and by
// turingctl --simulate.
//
// Every Send is decoded with a codec and applied to the emulated device
// state; replies are queued for Receive the way the firmware queues them.
// Receive never blocks: an empty queue is reported as a transport timeout.
//
// # Fault Injection
//
// FailSendAt makes the Nth Send fail, Silent suppresses the replies to
// selected opcodes and BufferLevels scripts the replies to buffer-status
// polls.
package emulator

import (
	"context"
	"encoding/binary"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/ardnew/turingscreen/codec"
	"github.com/ardnew/turingscreen/pkg"
	"github.com/ardnew/turingscreen/transport"
)

// Reply layout.
const (
	replySize    = 16
	statusOffset = 8
)

// Default emulated values.
const (
	// DefaultChunkLevel is the buffer level reported after each video chunk.
	// Levels above 3 do not trigger buffer-status polling.
	DefaultChunkLevel = 8

	defaultCardKiB = 4 << 20 // 4 GiB card
)

// Option configures a Device.
type Option func(*Device)

// WithCodec sets the codec used to decode frames.
func WithCodec(c *codec.Codec) Option {
	return func(d *Device) { d.codec = c }
}

// FailSendAt makes the nth Send (1-based) fail with err.
func FailSendAt(n int, err error) Option {
	return func(d *Device) {
		d.failSendAt = n
		d.failErr = err
	}
}

// Silent suppresses replies to the given opcodes.
func Silent(ops ...codec.Opcode) Option {
	return func(d *Device) {
		for _, op := range ops {
			d.silent[op] = true
		}
	}
}

// BufferLevels scripts the levels reported by successive buffer-status
// polls. Once exhausted, polls report level 0.
func BufferLevels(levels ...byte) Option {
	return func(d *Device) { d.bufferLevels = append(d.bufferLevels, levels...) }
}

// ChunkLevel sets the buffer level reported after each video chunk.
func ChunkLevel(level byte) Option {
	return func(d *Device) { d.chunkLevel = level }
}

// WithFiles preloads the device storage. Keys are full device paths.
func WithFiles(files map[string][]byte) Option {
	return func(d *Device) {
		for k, v := range files {
			d.files[k] = v
		}
	}
}

// OnSend registers a hook called with every decoded frame, after the frame
// has been applied to the device state.
func OnSend(fn func(codec.Frame)) Option {
	return func(d *Device) { d.hook = fn }
}

// Device is an emulated display.
type Device struct {
	codec *codec.Codec

	mu      sync.Mutex
	replies [][]byte
	frames  []codec.Frame

	// Emulated state
	brightness int
	frameRate  int
	settings   []byte
	files      map[string][]byte
	openPath   string
	upload     []byte
	playing    string
	streaming  bool
	video      []byte
	videoEnds  int
	images     [][]byte
	listed     bool
	restarted  bool
	closed     bool

	// Fault injection
	failSendAt   int
	failErr      error
	silent       map[codec.Opcode]bool
	bufferLevels []byte
	chunkLevel   byte
	hook         func(codec.Frame)

	sends    int
	receives int
}

var _ transport.Transport = (*Device)(nil)

// New creates an emulated display.
func New(opts ...Option) *Device {
	d := &Device{
		files:      make(map[string][]byte),
		silent:     make(map[codec.Opcode]bool),
		chunkLevel: DefaultChunkLevel,
		frameRate:  25,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.codec == nil {
		d.codec = codec.New()
	}
	if d.failErr == nil {
		d.failErr = pkg.ErrTransportIO
	}
	return d
}

// =============================================================================
// transport.Transport
// =============================================================================

// Send decodes b and applies it to the device.
func (d *Device) Send(_ context.Context, b []byte) error {
	d.mu.Lock()

	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("emulator closed: %w", pkg.ErrTransportIO)
	}
	if d.restarted {
		d.mu.Unlock()
		return fmt.Errorf("emulator restarting: %w", pkg.ErrDeviceNotFound)
	}

	d.sends++
	if d.failSendAt > 0 && d.sends == d.failSendAt {
		d.mu.Unlock()
		return fmt.Errorf("injected failure at send %d: %w", d.sends, d.failErr)
	}

	f, err := d.codec.Decode(b)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("emulator rejected frame: %w", err)
	}

	d.frames = append(d.frames, f)
	if reply := d.apply(f); reply != nil && !d.silent[f.Opcode] {
		d.replies = append(d.replies, reply)
	}
	hook := d.hook
	d.mu.Unlock()

	if hook != nil {
		hook(f)
	}
	return nil
}

// Receive pops the oldest queued reply.
func (d *Device) Receive(_ context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("emulator closed: %w", pkg.ErrTransportIO)
	}
	d.receives++
	if len(d.replies) == 0 {
		return nil, fmt.Errorf("emulator: %w", pkg.ErrTransportTimeout)
	}
	r := d.replies[0]
	d.replies = d.replies[1:]
	return r, nil
}

// Close marks the device closed. Close is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// =============================================================================
// Command Handling
// =============================================================================

// apply mutates the device state for f and returns its reply, or nil when
// the firmware stays silent.
func (d *Device) apply(f codec.Frame) []byte {
	if f.Opcode != codec.OpListStorage {
		d.listed = false
	}

	switch f.Opcode {
	case codec.OpRestart:
		d.restarted = true
		d.streaming = false
		d.playing = ""

	case codec.OpBrightness:
		d.brightness = int(f.Arg(0))

	case codec.OpFrameRate:
		d.frameRate = int(f.Arg(0))

	case codec.OpSaveSettings:
		d.settings = append([]byte(nil), f.Args...)

	case codec.OpOpenFile:
		p, err := codec.PathFromArgs(f.Args)
		if err != nil {
			return d.status(f.Opcode, 1)
		}
		d.openPath = p
		d.upload = d.upload[:0]

	case codec.OpWriteFile:
		if d.openPath == "" {
			return d.status(f.Opcode, 1)
		}
		d.upload = append(d.upload, f.Payload...)
		if f.Arg(8) != 0 {
			d.files[d.openPath] = append([]byte(nil), d.upload...)
			d.openPath = ""
			d.upload = nil
		}

	case codec.OpDeleteFile:
		p, err := codec.PathFromArgs(f.Args)
		if err != nil {
			return d.status(f.Opcode, 1)
		}
		delete(d.files, p)

	case codec.OpPlayVideoFile, codec.OpPlayImageFile:
		p, err := codec.PathFromArgs(f.Args)
		if err != nil {
			return d.status(f.Opcode, 1)
		}
		if _, ok := d.files[p]; !ok {
			return d.status(f.Opcode, 1)
		}
		d.playing = p

	case codec.OpStopVideo, codec.OpStopImage:
		d.streaming = false
		d.playing = ""

	case codec.OpImage:
		d.images = append(d.images, f.Payload)

	case codec.OpVideoChunk:
		d.streaming = true
		d.video = append(d.video, f.Payload...)
		return d.status(f.Opcode, d.chunkLevel)

	case codec.OpVideoEnd:
		d.streaming = false
		d.videoEnds++

	case codec.OpBufferStatus:
		var level byte
		if len(d.bufferLevels) > 0 {
			level = d.bufferLevels[0]
			d.bufferLevels = d.bufferLevels[1:]
		}
		return d.status(f.Opcode, level)

	case codec.OpListStorage:
		if d.listed {
			return nil
		}
		d.listed = true
		dir, err := codec.PathFromArgs(f.Args)
		if err != nil {
			return d.status(f.Opcode, 1)
		}
		return d.listing(dir)

	case codec.OpRefreshStorage:
		return d.storage()
	}

	return d.status(f.Opcode, 0)
}

func (d *Device) status(op codec.Opcode, status byte) []byte {
	r := make([]byte, replySize)
	r[0] = byte(op)
	r[statusOffset] = status
	return r
}

// listing renders the files below dir in the firmware's reply format.
func (d *Device) listing(dir string) []byte {
	var b strings.Builder
	b.WriteString("file:")
	for _, p := range slices.Sorted(maps.Keys(d.files)) {
		name, ok := strings.CutPrefix(p, dir)
		if !ok || strings.Contains(name, "/") {
			continue
		}
		b.WriteString(name)
		b.WriteByte('/')
	}
	return []byte(b.String())
}

// storage renders a refresh-storage reply with sizes in KiB.
func (d *Device) storage() []byte {
	var used uint64
	for _, f := range d.files {
		used += uint64(len(f))
	}
	usedKiB := uint32((used + 1023) >> 10)

	r := make([]byte, 20)
	r[0] = byte(codec.OpRefreshStorage)
	binary.LittleEndian.PutUint32(r[8:], defaultCardKiB)
	binary.LittleEndian.PutUint32(r[12:], usedKiB)
	binary.LittleEndian.PutUint32(r[16:], defaultCardKiB-usedKiB)
	return r
}

// =============================================================================
// Inspection
// =============================================================================

// Brightness returns the last brightness value received.
func (d *Device) Brightness() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.brightness
}

// FrameRate returns the last frame rate received.
func (d *Device) FrameRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameRate
}

// Settings returns the argument bytes of the last save-settings command.
func (d *Device) Settings() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.settings)
}

// File returns the stored contents of a device path.
func (d *Device) File(path string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.files[path]
	return slices.Clone(b), ok
}

// Files returns the stored device paths in sorted order.
func (d *Device) Files() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Sorted(maps.Keys(d.files))
}

// Images returns the payloads of every image frame received.
func (d *Device) Images() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.images)
}

// Video returns the concatenated payloads of every video chunk received.
func (d *Device) Video() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.video)
}

// VideoEnds returns the number of video-end commands received.
func (d *Device) VideoEnds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.videoEnds
}

// Streaming reports whether a video stream is in progress.
func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

// Playing returns the stored file being played, if any.
func (d *Device) Playing() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

// Opcodes returns the opcode of every frame received, in order.
func (d *Device) Opcodes() []codec.Opcode {
	d.mu.Lock()
	defer d.mu.Unlock()
	ops := make([]codec.Opcode, len(d.frames))
	for i, f := range d.frames {
		ops[i] = f.Opcode
	}
	return ops
}

// Frames returns every frame received, in order.
func (d *Device) Frames() []codec.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.frames)
}

// Sends returns the number of Send calls, including failed ones.
func (d *Device) Sends() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sends
}

// Receives returns the number of Receive calls.
func (d *Device) Receives() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.receives
}

// Calls returns the total number of Send and Receive calls.
func (d *Device) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sends + d.receives
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Restarted reports whether a restart command was received.
func (d *Device) Restarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.restarted
}
