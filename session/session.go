package session

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ardnew/turingscreen/codec"
	"github.com/ardnew/turingscreen/pkg"
	"github.com/ardnew/turingscreen/transfer"
	"github.com/ardnew/turingscreen/transport"
)

// Command names reported in *pkg.CommandError.
const (
	CmdSync           = "sync"
	CmdRestart        = "restart"
	CmdBrightness     = "brightness"
	CmdFrameRate      = "frame-rate"
	CmdSave           = "save"
	CmdListStorage    = "list-storage"
	CmdRefreshStorage = "refresh-storage"
	CmdDelete         = "delete"
	CmdUpload         = "upload"
	CmdSendImage      = "send-image"
	CmdClearImage     = "clear-image"
	CmdSendVideo      = "send-video"
	CmdStopPlay       = "stop-play"
	CmdPlayStored     = "play-select"
	CmdReset          = "reset"
	CmdClose          = "close"
)

// maxListing bounds the bytes accumulated by one storage listing.
const maxListing = 10240

// Config tunes the command sequences.
type Config struct {
	Transfer transfer.Config

	// VideoBrightness is the brightness set before video playback.
	VideoBrightness int

	// VideoFrameRate is the decoder frame rate set before streaming.
	VideoFrameRate int

	// ListAttempts bounds the list-storage requests of one listing.
	ListAttempts int

	// LayerBytes is the target encoded size of one image layer.
	LayerBytes int
}

// DefaultConfig returns the sequences used by the vendor tool.
func DefaultConfig() Config {
	return Config{
		Transfer:        transfer.DefaultConfig(),
		VideoBrightness: 32,
		VideoFrameRate:  25,
		ListAttempts:    20,
		LayerBytes:      512 << 10,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithCodec sets the frame codec.
func WithCodec(c *codec.Codec) Option {
	return func(s *Session) { s.codec = c }
}

// WithConfig sets the session configuration.
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithProgress registers a callback for the progress of every transfer.
func WithProgress(fn func(transfer.Progress)) Option {
	return func(s *Session) { s.progress = fn }
}

// Session is the single owner of a display transport.
type Session struct {
	t        transport.Transport
	codec    *codec.Codec
	engine   *transfer.Engine
	cfg      Config
	progress func(transfer.Progress)

	// sem admits one command at a time; playback holds it while streaming.
	sem *semaphore.Weighted

	mu        sync.Mutex
	state     State
	undefined bool
	closed    bool
	settings  Settings
	playback  *Playback
}

// New creates a session that owns t. The session starts Idle.
func New(t transport.Transport, opts ...Option) *Session {
	s := &Session{
		t:        t,
		cfg:      DefaultConfig(),
		sem:      semaphore.NewWeighted(1),
		settings: DefaultSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		s.codec = codec.New()
	}
	s.engine = transfer.New(t, s.codec, s.cfg.Transfer)
	return s
}

// State returns the current device state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Undefined reports whether an aborted transfer left the display in an
// unknown condition.
func (s *Session) Undefined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undefined
}

// Settings returns the settings last written by Save or Brightness.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// =============================================================================
// Simple Commands
// =============================================================================

// Sync sends the keep-alive command.
func (s *Session) Sync(ctx context.Context) error {
	return s.run(CmdSync, func() error {
		_, err := s.exchange(ctx, codec.OpSync, nil)
		return err
	})
}

// Restart reboots the display. The transport is released afterwards and
// every later command fails with pkg.ErrSessionClosed; the caller must open
// a new session once the device re-enumerates.
func (s *Session) Restart(ctx context.Context) error {
	return s.run(CmdRestart, func() error {
		if _, err := s.exchangeOptional(ctx, codec.OpRestart, nil); err != nil {
			return err
		}

		s.mu.Lock()
		s.closed = true
		s.state = Idle
		s.mu.Unlock()

		if err := s.t.Close(); err != nil {
			pkg.LogWarn(pkg.ComponentSession, "close after restart", "error", err)
		}
		pkg.LogInfo(pkg.ComponentSession, "device restarting")
		return nil
	})
}

// Brightness sets the backlight level in 0..MaxBrightness.
func (s *Session) Brightness(ctx context.Context, v int) error {
	if err := ValidateBrightness(v); err != nil {
		return s.fail(CmdBrightness, err)
	}
	return s.run(CmdBrightness, func() error {
		if _, err := s.exchange(ctx, codec.OpBrightness, []byte{byte(v)}); err != nil {
			return err
		}
		s.mu.Lock()
		s.settings.Brightness = v
		s.mu.Unlock()
		return nil
	})
}

// FrameRate sets the video decoder frame rate.
func (s *Session) FrameRate(ctx context.Context, fps int) error {
	if err := ValidateFrameRate(fps); err != nil {
		return s.fail(CmdFrameRate, err)
	}
	return s.run(CmdFrameRate, func() error {
		_, err := s.exchange(ctx, codec.OpFrameRate, []byte{byte(fps)})
		return err
	})
}

// Save validates st and persists it on the display.
func (s *Session) Save(ctx context.Context, st Settings) error {
	if err := st.Validate(); err != nil {
		return s.fail(CmdSave, err)
	}
	return s.run(CmdSave, func() error {
		if _, err := s.exchange(ctx, codec.OpSaveSettings, st.args()); err != nil {
			return err
		}
		s.mu.Lock()
		s.settings = st
		s.mu.Unlock()
		pkg.LogInfo(pkg.ComponentSession, "settings saved",
			"brightness", st.Brightness, "startup", st.Startup, "rotation", int(st.Rotation),
			"sleep", st.SleepTimeout, "offline", st.Offline)
		return nil
	})
}

// =============================================================================
// Storage Commands
// =============================================================================

// ListStorage returns the files stored in the directory of kind.
//
// The firmware answers a listing in pieces; the request is repeated until
// the device stops replying or the attempt limit is reached.
func (s *Session) ListStorage(ctx context.Context, kind codec.StorageKind) ([]codec.StorageEntry, error) {
	if kind != codec.StorageImage && kind != codec.StorageVideo {
		return nil, s.fail(CmdListStorage, fmt.Errorf("storage kind %d: %w", int(kind), pkg.ErrInvalidParameter))
	}
	args, err := codec.PathArgs(kind.Dir())
	if err != nil {
		return nil, s.fail(CmdListStorage, err)
	}

	var entries []codec.StorageEntry
	err = s.run(CmdListStorage, func() error {
		var data []byte
		for i := 0; i < s.cfg.ListAttempts; i++ {
			reply, err := s.exchangeOptional(ctx, codec.OpListStorage, args)
			if err != nil {
				return err
			}
			if len(reply) == 0 {
				break
			}
			if len(data)+len(reply) > maxListing {
				pkg.LogWarn(pkg.ComponentSession, "storage listing truncated", "bytes", len(data))
				break
			}
			data = append(data, reply...)
		}
		if len(data) == 0 {
			return fmt.Errorf("listing %s: %w: %w", kind.Dir(), transport.ErrNoReply, pkg.ErrTransportTimeout)
		}

		entries, err = codec.ParseListing(data, kind)
		return err
	})
	return entries, err
}

// RefreshStorage returns the storage card usage.
func (s *Session) RefreshStorage(ctx context.Context) (codec.StorageInfo, error) {
	var info codec.StorageInfo
	err := s.run(CmdRefreshStorage, func() error {
		reply, err := s.exchange(ctx, codec.OpRefreshStorage, nil)
		if err != nil {
			return err
		}
		r, err := codec.ParseResponse(reply)
		if err != nil {
			return err
		}
		info, err = codec.ParseStorageInfo(r)
		return err
	})
	return info, err
}

// Delete removes a stored file. The directory is chosen by the file
// extension.
func (s *Session) Delete(ctx context.Context, filename string) error {
	p, _, err := storagePath(filename)
	if err != nil {
		return s.fail(CmdDelete, err)
	}
	args, err := codec.PathArgs(p)
	if err != nil {
		return s.fail(CmdDelete, err)
	}
	return s.run(CmdDelete, func() error {
		if st := s.State(); st == PlayingVideo {
			return fmt.Errorf("delete while %s: %w", st, pkg.ErrUnexpectedState)
		}
		if _, err := s.exchange(ctx, codec.OpDeleteFile, args); err != nil {
			return err
		}
		pkg.LogInfo(pkg.ComponentSession, "file deleted", "path", p)
		return nil
	})
}

// Upload stores data on the display as filename in the directory of kind.
// The display state is restored when the upload returns, whether or not it
// succeeded.
func (s *Session) Upload(ctx context.Context, kind codec.StorageKind, data []byte, filename string) (transfer.Result, error) {
	p, fileKind, err := storagePath(filename)
	if err != nil {
		return transfer.Result{}, s.fail(CmdUpload, err)
	}
	if fileKind != kind {
		return transfer.Result{}, s.fail(CmdUpload, fmt.Errorf("%s file %q: %w", kind, filename, pkg.ErrInvalidParameter))
	}
	if len(data) == 0 {
		return transfer.Result{}, s.fail(CmdUpload, pkg.ErrEmptyPayload)
	}

	var res transfer.Result
	err = s.run(CmdUpload, func() error {
		prev, err := s.enter(Uploading)
		if err != nil {
			return err
		}
		defer s.setState(prev)

		res, err = s.transfer(ctx, transfer.KindFile, data, p)
		if err != nil {
			return err
		}
		pkg.LogInfo(pkg.ComponentSession, "file uploaded", "path", p, "bytes", res.Bytes, "id", res.ID)
		return nil
	})
	return res, err
}

// storagePath maps a bare filename to its device path.
func storagePath(filename string) (string, codec.StorageKind, error) {
	if filename == "" || strings.ContainsAny(filename, "/\x00") {
		return "", 0, fmt.Errorf("filename %q: %w", filename, pkg.ErrInvalidParameter)
	}
	kind, err := codec.KindForFile(filename)
	if err != nil {
		return "", 0, err
	}
	return path.Join(kind.Dir(), filename), kind, nil
}

// =============================================================================
// Playback Commands
// =============================================================================

// StopPlay stops video playback.
//
// An active playback task is cancelled first and StopPlay waits, bounded by
// ctx, for it to finish its current chunk. The stop commands are then sent
// in every state because the display may be playing a stored file this
// session did not start. Only PlayingVideo changes state and requires the
// device to acknowledge both frames. From Idle or DisplayingImage the frames
// are best effort: StopPlay succeeds and leaves the state as it was, and the
// undefined flag is cleared only when the device answered.
func (s *Session) StopPlay(ctx context.Context) error {
	if err := s.stopPlayback(ctx); err != nil {
		return s.fail(CmdStopPlay, err)
	}
	return s.run(CmdStopPlay, func() error {
		if s.State() == PlayingVideo {
			if err := s.stop(ctx); err != nil {
				return err
			}
			s.mu.Lock()
			s.state = Idle
			s.undefined = false
			s.mu.Unlock()
			return nil
		}

		if s.tryStop(ctx) {
			s.mu.Lock()
			s.undefined = false
			s.mu.Unlock()
		}
		return nil
	})
}

// PlayStored plays a file previously uploaded to the display. A video file
// leaves the session PlayingVideo, an image DisplayingImage.
func (s *Session) PlayStored(ctx context.Context, filename string) error {
	p, kind, err := storagePath(filename)
	if err != nil {
		return s.fail(CmdPlayStored, err)
	}
	args, err := codec.PathArgs(p)
	if err != nil {
		return s.fail(CmdPlayStored, err)
	}
	if err := s.stopPlayback(ctx); err != nil {
		return s.fail(CmdPlayStored, err)
	}

	return s.run(CmdPlayStored, func() error {
		if err := s.stop(ctx); err != nil {
			return err
		}
		if _, err := s.exchange(ctx, codec.OpBrightness, []byte{byte(s.cfg.VideoBrightness)}); err != nil {
			return err
		}
		if kind == codec.StorageVideo {
			if _, err := s.exchange(ctx, codec.OpPlayFile, args); err != nil {
				return err
			}
		}
		for _, op := range []codec.Opcode{codec.OpStopVideo, codec.OpResetVideo} {
			if _, err := s.exchange(ctx, op, nil); err != nil {
				return err
			}
		}
		if err := s.clear(ctx); err != nil {
			return err
		}

		op, next := codec.OpPlayImageFile, DisplayingImage
		if kind == codec.StorageVideo {
			op, next = codec.OpPlayVideoFile, PlayingVideo
		}
		if _, err := s.exchange(ctx, op, args); err != nil {
			return err
		}

		s.mu.Lock()
		s.state = next
		s.undefined = false
		s.mu.Unlock()
		pkg.LogInfo(pkg.ComponentSession, "playing stored file", "path", p)
		return nil
	})
}

// Reset stops playback and blanks the screen from any state. It is the
// recovery command after an aborted transfer.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.stopPlayback(ctx); err != nil {
		return s.fail(CmdReset, err)
	}
	return s.run(CmdReset, func() error {
		if err := s.stop(ctx); err != nil {
			return err
		}
		if err := s.clear(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		s.state = Idle
		s.undefined = false
		s.mu.Unlock()
		return nil
	})
}

// stop sends the stop-video and stop-image commands.
func (s *Session) stop(ctx context.Context) error {
	for _, op := range []codec.Opcode{codec.OpStopVideo, codec.OpStopImage} {
		if _, err := s.exchange(ctx, op, nil); err != nil {
			return err
		}
	}
	return nil
}

// tryStop sends the stop frames without requiring replies and reports
// whether the device acknowledged both.
func (s *Session) tryStop(ctx context.Context) bool {
	acked := true
	for _, op := range []codec.Opcode{codec.OpStopVideo, codec.OpStopImage} {
		reply, err := s.exchangeOptional(ctx, op, nil)
		if err != nil {
			pkg.LogWarn(pkg.ComponentSession, "stop command failed", "opcode", op, "error", err)
			acked = false
			continue
		}
		if len(reply) == 0 {
			acked = false
		}
	}
	return acked
}

// =============================================================================
// Lifecycle
// =============================================================================

// Close stops any playback, waiting for it at most until ctx is done, and
// releases the transport. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	if err := s.stopPlayback(ctx); err != nil {
		return s.fail(CmdClose, err)
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return s.fail(CmdClose, fmt.Errorf("%w: %w", pkg.ErrCancelled, err))
	}
	defer s.sem.Release(1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = Idle
	s.mu.Unlock()

	if err := s.t.Close(); err != nil {
		return s.fail(CmdClose, err)
	}
	pkg.LogDebug(pkg.ComponentSession, "session closed")
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// run executes fn while holding the session. A busy or closed session fails
// without calling fn.
func (s *Session) run(cmd string, fn func() error) error {
	if err := s.acquire(); err != nil {
		return s.fail(cmd, err)
	}
	defer s.sem.Release(1)

	pkg.LogDebug(pkg.ComponentSession, "command", "cmd", cmd, "state", s.State())
	if err := fn(); err != nil {
		return s.fail(cmd, err)
	}
	return nil
}

// acquire takes the session semaphore without blocking.
func (s *Session) acquire() error {
	if !s.sem.TryAcquire(1) {
		return pkg.ErrDeviceBusy
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		s.sem.Release(1)
		return pkg.ErrSessionClosed
	}
	return nil
}

func (s *Session) fail(cmd string, err error) error {
	pkg.LogError(pkg.ComponentSession, "command failed", "cmd", cmd, "error", err)
	return &pkg.CommandError{Command: cmd, Err: err}
}

// exchange sends one command frame and returns its reply. A missing reply
// is an error.
func (s *Session) exchange(ctx context.Context, op codec.Opcode, args []byte) ([]byte, error) {
	frame, err := s.codec.Encode(op, args, nil)
	if err != nil {
		return nil, err
	}
	reply, err := transport.Exchange(ctx, s.t, frame, s.cfg.Transfer.Drain)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return reply, nil
}

// exchangeOptional is exchange for commands the firmware may leave
// unanswered. A missing reply yields a nil reply and no error.
func (s *Session) exchangeOptional(ctx context.Context, op codec.Opcode, args []byte) ([]byte, error) {
	reply, err := s.exchange(ctx, op, args)
	if errors.Is(err, transport.ErrNoReply) {
		return nil, nil
	}
	return reply, err
}

// transfer runs one chunked transfer. Any failure other than cancellation
// marks the display state undefined.
func (s *Session) transfer(ctx context.Context, kind transfer.Kind, data []byte, dest string) (transfer.Result, error) {
	res, err := s.engine.Transfer(ctx, transfer.Request{
		Kind:        kind,
		Payload:     data,
		Destination: dest,
		Progress:    s.progress,
	})
	if err != nil && errors.Is(err, pkg.ErrTransferFailed) {
		s.mu.Lock()
		s.undefined = true
		s.mu.Unlock()
	}
	return res, err
}

// enter moves to state next and returns the state it replaced. It refuses
// when an earlier transfer left the display undefined.
func (s *Session) enter(next State) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.undefined {
		return s.state, fmt.Errorf("display state undefined after aborted transfer: %w", pkg.ErrUnexpectedState)
	}
	prev := s.state
	s.state = next
	return prev, nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
