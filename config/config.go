// Package config loads turingctl settings from a TOML file.
//
// Every key is optional. Load starts from Default and overlays only the keys
// present in the file, so a partial file never zeroes the others. Durations
// are Go duration strings such as "30ms" or "2s".
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ardnew/turingscreen/pkg"
)

// Config holds every tunable of the tool.
type Config struct {
	Device    Device
	Transport Transport
	Transfer  Transfer
	Video     Video
	Session   Session
	Codec     Codec
	Log       Log
}

// Device selects the display.
type Device struct {
	VendorID  uint16
	ProductID uint16
	Interface uint8
	SysfsRoot string
	DevfsRoot string
}

// Transport bounds bulk I/O.
type Transport struct {
	Timeout      time.Duration
	StallRetries int
}

// Transfer controls the reply drain after each frame.
type Transfer struct {
	DrainAttempts int
	DrainTimeout  time.Duration
}

// Video controls streaming.
type Video struct {
	Pace               time.Duration
	BufferPollInterval time.Duration
	BufferPollLimit    int
	Brightness         int
	FrameRate          int
	FFmpeg             string
}

// Session controls command sequences.
type Session struct {
	ListAttempts int
	LayerBytes   int
	SyncDelay    time.Duration
}

// Codec selects the frame integrity function.
type Codec struct {
	Integrity string
}

// Log configures logging.
type Log struct {
	Level  string
	Format string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Device: Device{
			VendorID:  0x1cbe,
			ProductID: 0x0088,
			Interface: 0,
			SysfsRoot: "/sys/bus/usb/devices",
			DevfsRoot: "/dev/bus/usb",
		},
		Transport: Transport{
			Timeout:      2 * time.Second,
			StallRetries: 2,
		},
		Transfer: Transfer{
			DrainAttempts: 5,
			DrainTimeout:  100 * time.Millisecond,
		},
		Video: Video{
			Pace:               30 * time.Millisecond,
			BufferPollInterval: 50 * time.Millisecond,
			BufferPollLimit:    100,
			Brightness:         32,
			FrameRate:          25,
			FFmpeg:             "ffmpeg",
		},
		Session: Session{
			ListAttempts: 20,
			LayerBytes:   512 << 10,
			SyncDelay:    200 * time.Millisecond,
		},
		Codec: Codec{Integrity: "crc32"},
		Log:   Log{Level: "info", Format: "text"},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/turingscreen/config.toml, falling
// back to the user configuration directory.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(dir, "turingscreen", "config.toml")
}

// fileConfig mirrors the TOML layout. Durations are strings.
type fileConfig struct {
	Device struct {
		VendorID  int    `toml:"vendor_id"`
		ProductID int    `toml:"product_id"`
		Interface int    `toml:"interface"`
		SysfsRoot string `toml:"sysfs_root"`
		DevfsRoot string `toml:"devfs_root"`
	} `toml:"device"`

	Transport struct {
		Timeout      string `toml:"timeout"`
		StallRetries int    `toml:"stall_retries"`
	} `toml:"transport"`

	Transfer struct {
		DrainAttempts int    `toml:"drain_attempts"`
		DrainTimeout  string `toml:"drain_timeout"`
	} `toml:"transfer"`

	Video struct {
		Pace               string `toml:"pace"`
		BufferPollInterval string `toml:"buffer_poll_interval"`
		BufferPollLimit    int    `toml:"buffer_poll_limit"`
		Brightness         int    `toml:"brightness"`
		FrameRate          int    `toml:"frame_rate"`
		FFmpeg             string `toml:"ffmpeg"`
	} `toml:"video"`

	Session struct {
		ListAttempts int    `toml:"list_attempts"`
		LayerBytes   int    `toml:"layer_bytes"`
		SyncDelay    string `toml:"sync_delay"`
	} `toml:"session"`

	Codec struct {
		Integrity string `toml:"integrity"`
	} `toml:"codec"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

// Load reads the file at path over Default and validates the result. A
// missing file yields the defaults when allowMissing is set.
func Load(path string, allowMissing bool) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if allowMissing && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		pkg.LogWarn(pkg.ComponentCLI, "unknown config keys ignored", "path", path, "keys", fmt.Sprint(undecoded))
	}

	if err := overlay(&cfg, &raw, meta); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func overlay(cfg *Config, raw *fileConfig, meta toml.MetaData) error {
	var errs []error
	duration := func(dst *time.Duration, s string, key ...string) {
		if !meta.IsDefined(key...) {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", strings.Join(key, "."), err))
			return
		}
		*dst = d
	}

	if meta.IsDefined("device", "vendor_id") {
		cfg.Device.VendorID = uint16(raw.Device.VendorID)
		if raw.Device.VendorID < 0 || raw.Device.VendorID > 0xFFFF {
			errs = append(errs, fmt.Errorf("device.vendor_id %#x: %w", raw.Device.VendorID, pkg.ErrInvalidParameter))
		}
	}
	if meta.IsDefined("device", "product_id") {
		cfg.Device.ProductID = uint16(raw.Device.ProductID)
		if raw.Device.ProductID < 0 || raw.Device.ProductID > 0xFFFF {
			errs = append(errs, fmt.Errorf("device.product_id %#x: %w", raw.Device.ProductID, pkg.ErrInvalidParameter))
		}
	}
	if meta.IsDefined("device", "interface") {
		cfg.Device.Interface = uint8(raw.Device.Interface)
		if raw.Device.Interface < 0 || raw.Device.Interface > 0xFF {
			errs = append(errs, fmt.Errorf("device.interface %d: %w", raw.Device.Interface, pkg.ErrInvalidParameter))
		}
	}
	if meta.IsDefined("device", "sysfs_root") {
		cfg.Device.SysfsRoot = strings.TrimSpace(raw.Device.SysfsRoot)
	}
	if meta.IsDefined("device", "devfs_root") {
		cfg.Device.DevfsRoot = strings.TrimSpace(raw.Device.DevfsRoot)
	}

	duration(&cfg.Transport.Timeout, raw.Transport.Timeout, "transport", "timeout")
	if meta.IsDefined("transport", "stall_retries") {
		cfg.Transport.StallRetries = raw.Transport.StallRetries
	}

	if meta.IsDefined("transfer", "drain_attempts") {
		cfg.Transfer.DrainAttempts = raw.Transfer.DrainAttempts
	}
	duration(&cfg.Transfer.DrainTimeout, raw.Transfer.DrainTimeout, "transfer", "drain_timeout")

	duration(&cfg.Video.Pace, raw.Video.Pace, "video", "pace")
	duration(&cfg.Video.BufferPollInterval, raw.Video.BufferPollInterval, "video", "buffer_poll_interval")
	if meta.IsDefined("video", "buffer_poll_limit") {
		cfg.Video.BufferPollLimit = raw.Video.BufferPollLimit
	}
	if meta.IsDefined("video", "brightness") {
		cfg.Video.Brightness = raw.Video.Brightness
	}
	if meta.IsDefined("video", "frame_rate") {
		cfg.Video.FrameRate = raw.Video.FrameRate
	}
	if meta.IsDefined("video", "ffmpeg") {
		cfg.Video.FFmpeg = strings.TrimSpace(raw.Video.FFmpeg)
	}

	if meta.IsDefined("session", "list_attempts") {
		cfg.Session.ListAttempts = raw.Session.ListAttempts
	}
	if meta.IsDefined("session", "layer_bytes") {
		cfg.Session.LayerBytes = raw.Session.LayerBytes
	}
	duration(&cfg.Session.SyncDelay, raw.Session.SyncDelay, "session", "sync_delay")

	if meta.IsDefined("codec", "integrity") {
		cfg.Codec.Integrity = strings.ToLower(strings.TrimSpace(raw.Codec.Integrity))
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(raw.Log.Format))
	}

	return errors.Join(errs...)
}

// Validate checks value ranges. Integrity names are checked by the codec.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format+": %w", append(args, pkg.ErrInvalidParameter)...))
		}
	}

	check(c.Transport.Timeout > 0, "transport.timeout %v must be positive", c.Transport.Timeout)
	check(c.Transport.StallRetries >= 0, "transport.stall_retries %d must not be negative", c.Transport.StallRetries)
	check(c.Transfer.DrainAttempts >= 0, "transfer.drain_attempts %d must not be negative", c.Transfer.DrainAttempts)
	check(c.Transfer.DrainTimeout >= 0, "transfer.drain_timeout %v must not be negative", c.Transfer.DrainTimeout)
	check(c.Video.Pace >= 0, "video.pace %v must not be negative", c.Video.Pace)
	check(c.Video.BufferPollInterval >= 0, "video.buffer_poll_interval %v must not be negative", c.Video.BufferPollInterval)
	check(c.Video.BufferPollLimit >= 0, "video.buffer_poll_limit %d must not be negative", c.Video.BufferPollLimit)
	check(c.Video.Brightness >= 0 && c.Video.Brightness <= 102, "video.brightness %d not in 0..102", c.Video.Brightness)
	check(c.Video.FrameRate >= 1 && c.Video.FrameRate <= 60, "video.frame_rate %d not in 1..60", c.Video.FrameRate)
	check(c.Video.FFmpeg != "", "video.ffmpeg must not be empty")
	check(c.Session.ListAttempts >= 1, "session.list_attempts %d must be at least 1", c.Session.ListAttempts)
	check(c.Session.LayerBytes >= 0, "session.layer_bytes %d must not be negative", c.Session.LayerBytes)
	check(c.Session.SyncDelay >= 0, "session.sync_delay %v must not be negative", c.Session.SyncDelay)

	if _, ok := pkg.ParseLogLevel(c.Log.Level); !ok {
		errs = append(errs, fmt.Errorf("log.level %q: %w", c.Log.Level, pkg.ErrInvalidParameter))
	}
	if _, err := c.Log.LogFormat(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LogFormat returns the configured log format.
func (l Log) LogFormat() (pkg.LogFormat, error) {
	switch l.Format {
	case "", "text":
		return pkg.LogFormatText, nil
	case "json":
		return pkg.LogFormatJSON, nil
	}
	return 0, fmt.Errorf("log.format %q: %w", l.Format, pkg.ErrInvalidParameter)
}
