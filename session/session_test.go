package session

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/ardnew/turingscreen/codec"
	"github.com/ardnew/turingscreen/pkg"
	"github.com/ardnew/turingscreen/transfer"
	"github.com/ardnew/turingscreen/transport"
	"github.com/ardnew/turingscreen/transport/emulator"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Transfer = transfer.Config{
		Drain:           transport.Drain{Attempts: 1},
		BufferPollLimit: 10,
	}
	return cfg
}

func newTestSession(opts ...emulator.Option) (*Session, *emulator.Device) {
	c := codec.New()
	dev := emulator.New(append([]emulator.Option{emulator.WithCodec(c)}, opts...)...)
	return New(dev, WithCodec(c), WithConfig(testConfig())), dev
}

// assertCommandError checks that err is a *pkg.CommandError for cmd that
// matches target.
func assertCommandError(t *testing.T, err error, cmd string, target error) {
	t.Helper()
	var ce *pkg.CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *CommandError", err)
	}
	if ce.Command != cmd {
		t.Errorf("Command = %q, want %q", ce.Command, cmd)
	}
	if !errors.Is(err, target) {
		t.Errorf("error = %v, want %v", err, target)
	}
}

func assertOpcodes(t *testing.T, got, want []codec.Opcode) {
	t.Helper()
	if !slices.Equal(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
}

// =============================================================================
// State Tests
// =============================================================================

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Idle, "idle"},
		{DisplayingImage, "displaying-image"},
		{PlayingVideo, "playing-video"},
		{Uploading, "uploading"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

func TestNewSessionIsIdle(t *testing.T) {
	s, dev := newTestSession()
	if s.State() != Idle || s.Undefined() {
		t.Errorf("new session state = %v, undefined = %v", s.State(), s.Undefined())
	}
	if dev.Calls() != 0 {
		t.Errorf("New issued %d transport calls", dev.Calls())
	}
}

// =============================================================================
// Settings Tests
// =============================================================================

func TestBrightnessRoundTrip(t *testing.T) {
	s, dev := newTestSession()
	ctx := context.Background()

	for v := 0; v <= MaxBrightness; v++ {
		if err := s.Brightness(ctx, v); err != nil {
			t.Fatalf("Brightness(%d) error = %v", v, err)
		}
		if dev.Brightness() != v {
			t.Fatalf("device brightness = %d, want %d", dev.Brightness(), v)
		}
		if s.Settings().Brightness != v {
			t.Fatalf("Settings().Brightness = %d, want %d", s.Settings().Brightness, v)
		}
	}
}

func TestBrightnessInvalid(t *testing.T) {
	for _, v := range []int{-1, MaxBrightness + 1, 255, 1000} {
		s, dev := newTestSession()
		err := s.Brightness(context.Background(), v)
		assertCommandError(t, err, CmdBrightness, pkg.ErrInvalidParameter)
		if dev.Calls() != 0 {
			t.Errorf("Brightness(%d) issued %d transport calls", v, dev.Calls())
		}
	}
}

func TestFrameRate(t *testing.T) {
	s, dev := newTestSession()
	ctx := context.Background()

	if err := s.FrameRate(ctx, 30); err != nil {
		t.Fatalf("FrameRate(30) error = %v", err)
	}
	if dev.FrameRate() != 30 {
		t.Errorf("device frame rate = %d, want 30", dev.FrameRate())
	}

	for _, fps := range []int{0, -5, MaxFrameRate + 1} {
		calls := dev.Calls()
		assertCommandError(t, s.FrameRate(ctx, fps), CmdFrameRate, pkg.ErrInvalidParameter)
		if dev.Calls() != calls {
			t.Errorf("FrameRate(%d) issued transport calls", fps)
		}
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		st      Settings
		wantErr bool
	}{
		{"defaults", DefaultSettings(), false},
		{"all max", Settings{Brightness: 102, Startup: StartupVideo, Rotation: Rotate180, SleepTimeout: 255, Offline: true}, false},
		{"brightness low", Settings{Brightness: -1}, true},
		{"brightness high", Settings{Brightness: 103}, true},
		{"startup", Settings{Startup: StartupMode(3)}, true},
		{"rotation 90", Settings{Rotation: 90}, true},
		{"rotation wire value", Settings{Rotation: 2}, true},
		{"sleep high", Settings{SleepTimeout: 256}, true},
		{"sleep low", Settings{SleepTimeout: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.st.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, pkg.ErrInvalidParameter) {
				t.Errorf("Validate() error = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestSave(t *testing.T) {
	s, dev := newTestSession()
	st := Settings{Brightness: 50, Startup: StartupVideo, Rotation: Rotate180, SleepTimeout: 10, Offline: true}

	if err := s.Save(context.Background(), st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	want := []byte{50, 2, 0, 2, 10, 1}
	if got := dev.Settings(); !bytes.Equal(got, want) {
		t.Errorf("device settings = %v, want %v", got, want)
	}
	if s.Settings() != st {
		t.Errorf("Settings() = %+v, want %+v", s.Settings(), st)
	}
}

func TestSaveInvalidSendsNothing(t *testing.T) {
	s, dev := newTestSession()
	err := s.Save(context.Background(), Settings{Brightness: 50, SleepTimeout: 300})
	assertCommandError(t, err, CmdSave, pkg.ErrInvalidParameter)
	if dev.Calls() != 0 {
		t.Errorf("invalid Save issued %d transport calls", dev.Calls())
	}
	if s.Settings() != DefaultSettings() {
		t.Errorf("Settings() changed to %+v", s.Settings())
	}
}

func TestParseStartupMode(t *testing.T) {
	tests := []struct {
		in      string
		want    StartupMode
		wantErr bool
	}{
		{"none", StartupNone, false},
		{"0", StartupNone, false},
		{"Image", StartupImage, false},
		{"2", StartupVideo, false},
		{"slideshow", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseStartupMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseStartupMode(%q) = %v, %v", tt.in, got, err)
		}
	}
}

// =============================================================================
// Storage Tests
// =============================================================================

func TestListStorage(t *testing.T) {
	s, dev := newTestSession(emulator.WithFiles(map[string][]byte{
		codec.ImageDir + "b.png":  nil,
		codec.ImageDir + "a.png":  nil,
		codec.VideoDir + "v.h264": nil,
	}))

	entries, err := s.ListStorage(context.Background(), codec.StorageImage)
	if err != nil {
		t.Fatalf("ListStorage() error = %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
		if e.Kind != codec.StorageImage {
			t.Errorf("entry %q kind = %v", e.Name, e.Kind)
		}
	}
	if !slices.Equal(names, []string{"a.png", "b.png"}) {
		t.Errorf("names = %v", names)
	}
	// One answered request, then one that ends the listing.
	assertOpcodes(t, dev.Opcodes(), []codec.Opcode{codec.OpListStorage, codec.OpListStorage})
}

func TestListStorageNoReply(t *testing.T) {
	s, _ := newTestSession(emulator.Silent(codec.OpListStorage))
	_, err := s.ListStorage(context.Background(), codec.StorageVideo)
	assertCommandError(t, err, CmdListStorage, pkg.ErrTransportTimeout)
}

func TestRefreshStorage(t *testing.T) {
	s, _ := newTestSession(emulator.WithFiles(map[string][]byte{codec.ImageDir + "a.png": make([]byte, 2048)}))
	info, err := s.RefreshStorage(context.Background())
	if err != nil {
		t.Fatalf("RefreshStorage() error = %v", err)
	}
	if info.Used != 2048 || info.Total == 0 {
		t.Errorf("info = %+v", info)
	}
}

func TestDelete(t *testing.T) {
	s, dev := newTestSession(emulator.WithFiles(map[string][]byte{codec.VideoDir + "v.h264": {1}}))

	if err := s.Delete(context.Background(), "v.h264"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := dev.File(codec.VideoDir + "v.h264"); ok {
		t.Error("file still present")
	}
}

func TestDeleteInvalidName(t *testing.T) {
	for _, name := range []string{"", "clip.mp4", "../x.png", "noext"} {
		s, dev := newTestSession()
		assertCommandError(t, s.Delete(context.Background(), name), CmdDelete, pkg.ErrInvalidParameter)
		if dev.Calls() != 0 {
			t.Errorf("Delete(%q) issued transport calls", name)
		}
	}
}

// =============================================================================
// Upload Tests
// =============================================================================

func TestUpload(t *testing.T) {
	s, dev := newTestSession()
	data := bytes.Repeat([]byte("frame"), 1000)

	res, err := s.Upload(context.Background(), codec.StorageVideo, data, "clip.h264")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if res.Bytes != int64(len(data)) || res.Chunks != 1 {
		t.Errorf("result = %+v", res)
	}
	got, ok := dev.File(codec.VideoDir + "clip.h264")
	if !ok || !bytes.Equal(got, data) {
		t.Error("uploaded file differs")
	}
	if s.State() != Idle {
		t.Errorf("state = %v, want idle", s.State())
	}
}

func TestUploadRestoresState(t *testing.T) {
	s, _ := newTestSession(emulator.WithFiles(map[string][]byte{codec.ImageDir + "bg.png": {1}}))
	ctx := context.Background()

	if err := s.PlayStored(ctx, "bg.png"); err != nil {
		t.Fatalf("PlayStored() error = %v", err)
	}
	if _, err := s.Upload(ctx, codec.StorageImage, []byte{1, 2, 3}, "new.png"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if s.State() != DisplayingImage {
		t.Errorf("state = %v, want displaying-image", s.State())
	}
}

func TestUploadFailsAtChunk3(t *testing.T) {
	// Send 1 opens the file; send 4 carries chunk 3 of 10.
	s, dev := newTestSession(emulator.FailSendAt(4, pkg.ErrTransportTimeout))
	data := make([]byte, 10*codec.FileChunkSize)

	_, err := s.Upload(context.Background(), codec.StorageVideo, data, "big.h264")
	assertCommandError(t, err, CmdUpload, pkg.ErrTransferFailed)

	var te *pkg.TransferError
	if !errors.As(err, &te) || te.AtChunk != 3 {
		t.Errorf("error = %v, want TransferError at chunk 3", err)
	}
	if s.State() != Idle {
		t.Errorf("state = %v, want idle", s.State())
	}
	if !s.Undefined() {
		t.Error("aborted upload did not mark the display undefined")
	}
	if _, ok := dev.File(codec.VideoDir + "big.h264"); ok {
		t.Error("aborted upload was committed")
	}
}

func TestTransferRefusedWhileUndefined(t *testing.T) {
	s, _ := newTestSession(emulator.FailSendAt(2, pkg.ErrTransportIO))
	ctx := context.Background()

	if _, err := s.Upload(ctx, codec.StorageImage, []byte{1}, "a.png"); err == nil {
		t.Fatal("Upload() succeeded, want failure")
	}
	_, err := s.Upload(ctx, codec.StorageImage, []byte{1}, "a.png")
	assertCommandError(t, err, CmdUpload, pkg.ErrUnexpectedState)

	if err := s.ClearImage(ctx); err != nil {
		t.Fatalf("ClearImage() error = %v", err)
	}
	if s.Undefined() {
		t.Error("ClearImage did not clear the undefined flag")
	}
	if _, err := s.Upload(ctx, codec.StorageImage, []byte{1}, "a.png"); err != nil {
		t.Errorf("Upload() after clear error = %v", err)
	}
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name     string
		kind     codec.StorageKind
		data     []byte
		filename string
		want     error
	}{
		{"kind mismatch", codec.StorageImage, []byte{1}, "clip.h264", pkg.ErrInvalidParameter},
		{"bad extension", codec.StorageVideo, []byte{1}, "clip.mp4", pkg.ErrInvalidParameter},
		{"path in name", codec.StorageImage, []byte{1}, "dir/a.png", pkg.ErrInvalidParameter},
		{"empty data", codec.StorageImage, nil, "a.png", pkg.ErrEmptyPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, dev := newTestSession()
			_, err := s.Upload(context.Background(), tt.kind, tt.data, tt.filename)
			assertCommandError(t, err, CmdUpload, tt.want)
			if dev.Calls() != 0 {
				t.Errorf("issued %d transport calls", dev.Calls())
			}
		})
	}
}

// =============================================================================
// Stop and Play Tests
// =============================================================================

func TestStopPlayFromIdle(t *testing.T) {
	s, dev := newTestSession()

	if err := s.StopPlay(context.Background()); err != nil {
		t.Fatalf("StopPlay() error = %v", err)
	}
	if s.State() != Idle {
		t.Errorf("state = %v, want idle", s.State())
	}
	assertOpcodes(t, dev.Opcodes(), []codec.Opcode{codec.OpStopVideo, codec.OpStopImage})
}

func TestStopPlayFromIdleUnanswered(t *testing.T) {
	tests := []struct {
		name string
		opt  emulator.Option
	}{
		{"silent", emulator.Silent(codec.OpStopVideo, codec.OpStopImage)},
		{"send fails", emulator.FailSendAt(1, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, dev := newTestSession(tt.opt)
			s.undefined = true

			if err := s.StopPlay(context.Background()); err != nil {
				t.Fatalf("StopPlay() error = %v", err)
			}
			if s.State() != Idle {
				t.Errorf("state = %v, want idle", s.State())
			}
			if !s.Undefined() {
				t.Error("undefined cleared without an acknowledgement")
			}
			if dev.Sends() != 2 {
				t.Errorf("sends = %d, want 2", dev.Sends())
			}
		})
	}
}

func TestStopPlayAcknowledgedClearsUndefined(t *testing.T) {
	s, _ := newTestSession()
	s.undefined = true

	if err := s.StopPlay(context.Background()); err != nil {
		t.Fatalf("StopPlay() error = %v", err)
	}
	if s.Undefined() {
		t.Error("undefined still set after acknowledged stop")
	}
}

func TestStopPlayFromDisplayingImage(t *testing.T) {
	s, _ := newTestSession(emulator.WithFiles(map[string][]byte{codec.ImageDir + "bg.png": {1}}))
	ctx := context.Background()

	if err := s.PlayStored(ctx, "bg.png"); err != nil {
		t.Fatalf("PlayStored() error = %v", err)
	}
	if err := s.StopPlay(ctx); err != nil {
		t.Fatalf("StopPlay() error = %v", err)
	}
	if s.State() != DisplayingImage {
		t.Errorf("state = %v, want displaying-image", s.State())
	}
}

func TestStopPlayFromPlayingVideo(t *testing.T) {
	s, dev := newTestSession(emulator.WithFiles(map[string][]byte{codec.VideoDir + "v.h264": {1}}))
	ctx := context.Background()

	if err := s.PlayStored(ctx, "v.h264"); err != nil {
		t.Fatalf("PlayStored() error = %v", err)
	}
	if s.State() != PlayingVideo {
		t.Fatalf("state = %v, want playing-video", s.State())
	}
	if err := s.StopPlay(ctx); err != nil {
		t.Fatalf("StopPlay() error = %v", err)
	}
	if s.State() != Idle {
		t.Errorf("state = %v, want idle", s.State())
	}
	if dev.Playing() != "" {
		t.Errorf("device still playing %q", dev.Playing())
	}
}

func TestPlayStoredSequence(t *testing.T) {
	tests := []struct {
		file  string
		path  string
		want  []codec.Opcode
		state State
	}{
		{
			file: "v.h264",
			path: codec.VideoDir + "v.h264",
			want: []codec.Opcode{
				codec.OpStopVideo, codec.OpStopImage, codec.OpBrightness, codec.OpPlayFile,
				codec.OpStopVideo, codec.OpResetVideo, codec.OpImage, codec.OpPlayVideoFile,
			},
			state: PlayingVideo,
		},
		{
			file: "bg.png",
			path: codec.ImageDir + "bg.png",
			want: []codec.Opcode{
				codec.OpStopVideo, codec.OpStopImage, codec.OpBrightness,
				codec.OpStopVideo, codec.OpResetVideo, codec.OpImage, codec.OpPlayImageFile,
			},
			state: DisplayingImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			s, dev := newTestSession(emulator.WithFiles(map[string][]byte{tt.path: {1}}))
			if err := s.PlayStored(context.Background(), tt.file); err != nil {
				t.Fatalf("PlayStored() error = %v", err)
			}
			assertOpcodes(t, dev.Opcodes(), tt.want)
			if s.State() != tt.state {
				t.Errorf("state = %v, want %v", s.State(), tt.state)
			}
			if dev.Playing() != tt.path {
				t.Errorf("device playing %q, want %q", dev.Playing(), tt.path)
			}
		})
	}
}

func TestReset(t *testing.T) {
	s, dev := newTestSession(emulator.WithFiles(map[string][]byte{codec.VideoDir + "v.h264": {1}}))
	ctx := context.Background()

	if err := s.PlayStored(ctx, "v.h264"); err != nil {
		t.Fatalf("PlayStored() error = %v", err)
	}
	n := len(dev.Opcodes())
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	assertOpcodes(t, dev.Opcodes()[n:], []codec.Opcode{codec.OpStopVideo, codec.OpStopImage, codec.OpImage})
	if s.State() != Idle {
		t.Errorf("state = %v, want idle", s.State())
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestRestartClosesSession(t *testing.T) {
	s, dev := newTestSession()
	ctx := context.Background()

	if err := s.Restart(ctx); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	if !dev.Restarted() || !dev.Closed() {
		t.Errorf("restarted = %v, closed = %v", dev.Restarted(), dev.Closed())
	}
	assertCommandError(t, s.Sync(ctx), CmdSync, pkg.ErrSessionClosed)
}

func TestCloseIdempotent(t *testing.T) {
	s, dev := newTestSession()
	ctx := context.Background()

	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if !dev.Closed() {
		t.Error("transport not closed")
	}
	assertCommandError(t, s.Sync(ctx), CmdSync, pkg.ErrSessionClosed)
}

func TestBusySessionFailsFast(t *testing.T) {
	s, dev := newTestSession()
	if !s.sem.TryAcquire(1) {
		t.Fatal("could not hold session")
	}
	defer s.sem.Release(1)

	assertCommandError(t, s.Sync(context.Background()), CmdSync, pkg.ErrDeviceBusy)
	if dev.Calls() != 0 {
		t.Errorf("busy command issued %d transport calls", dev.Calls())
	}
}

func TestCommandFailureKeepsState(t *testing.T) {
	s, _ := newTestSession(
		emulator.WithFiles(map[string][]byte{codec.VideoDir + "v.h264": {1}}),
		emulator.Silent(codec.OpPlayVideoFile),
	)

	err := s.PlayStored(context.Background(), "v.h264")
	assertCommandError(t, err, CmdPlayStored, transport.ErrNoReply)
	if s.State() != Idle {
		t.Errorf("unacknowledged play changed state to %v", s.State())
	}
}
