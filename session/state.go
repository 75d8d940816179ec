package session

import (
	"fmt"
	"strings"

	"github.com/ardnew/turingscreen/pkg"
)

// State is the activity of the display as known to the session.
type State int

const (
	Idle State = iota
	DisplayingImage
	PlayingVideo
	Uploading
)

var stateNames = [...]string{
	Idle:            "idle",
	DisplayingImage: "displaying-image",
	PlayingVideo:    "playing-video",
	Uploading:       "uploading",
}

// String returns the state name.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Setting limits.
const (
	MaxBrightness   = 102
	MaxSleepTimeout = 255
	MinFrameRate    = 1
	MaxFrameRate    = 60
)

// StartupMode selects what the display shows after power-on.
type StartupMode int

const (
	StartupNone StartupMode = iota
	StartupImage
	StartupVideo
)

// String returns the mode name.
func (m StartupMode) String() string {
	switch m {
	case StartupNone:
		return "none"
	case StartupImage:
		return "image"
	case StartupVideo:
		return "video"
	default:
		return fmt.Sprintf("StartupMode(%d)", int(m))
	}
}

// ParseStartupMode parses a mode name or its numeric value.
func ParseStartupMode(s string) (StartupMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "default", "0":
		return StartupNone, nil
	case "image", "1":
		return StartupImage, nil
	case "video", "2":
		return StartupVideo, nil
	}
	return 0, fmt.Errorf("startup mode %q: %w", s, pkg.ErrInvalidParameter)
}

// Rotation is the screen rotation in degrees.
type Rotation int

// Supported rotations.
const (
	Rotate0   Rotation = 0
	Rotate180 Rotation = 180
)

// wire returns the rotation code sent to the firmware.
func (r Rotation) wire() byte {
	if r == Rotate180 {
		return 2
	}
	return 0
}

// Settings are the persistent display settings written by Save.
type Settings struct {
	Brightness   int
	Startup      StartupMode
	Rotation     Rotation
	SleepTimeout int
	Offline      bool
}

// DefaultSettings returns the settings of a factory-fresh display.
func DefaultSettings() Settings {
	return Settings{Brightness: MaxBrightness}
}

// ValidateBrightness checks v against 0..MaxBrightness.
func ValidateBrightness(v int) error {
	if v < 0 || v > MaxBrightness {
		return fmt.Errorf("brightness %d not in 0..%d: %w", v, MaxBrightness, pkg.ErrInvalidParameter)
	}
	return nil
}

// ValidateFrameRate checks fps against MinFrameRate..MaxFrameRate.
func ValidateFrameRate(fps int) error {
	if fps < MinFrameRate || fps > MaxFrameRate {
		return fmt.Errorf("frame rate %d not in %d..%d: %w", fps, MinFrameRate, MaxFrameRate, pkg.ErrInvalidParameter)
	}
	return nil
}

// Validate checks every field against its range.
func (st Settings) Validate() error {
	if err := ValidateBrightness(st.Brightness); err != nil {
		return err
	}
	switch {
	case st.Startup < StartupNone || st.Startup > StartupVideo:
		return fmt.Errorf("startup mode %d: %w", int(st.Startup), pkg.ErrInvalidParameter)
	case st.Rotation != Rotate0 && st.Rotation != Rotate180:
		return fmt.Errorf("rotation %d not 0 or 180: %w", int(st.Rotation), pkg.ErrInvalidParameter)
	case st.SleepTimeout < 0 || st.SleepTimeout > MaxSleepTimeout:
		return fmt.Errorf("sleep timeout %d not in 0..%d: %w", st.SleepTimeout, MaxSleepTimeout, pkg.ErrInvalidParameter)
	}
	return nil
}

// args encodes the settings in save-settings argument order. The third
// byte is reserved.
func (st Settings) args() []byte {
	var offline byte
	if st.Offline {
		offline = 1
	}
	return []byte{
		byte(st.Brightness),
		byte(st.Startup),
		0,
		st.Rotation.wire(),
		byte(st.SleepTimeout),
		offline,
	}
}
