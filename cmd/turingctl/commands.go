package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ardnew/turingscreen/codec"
	"github.com/ardnew/turingscreen/pkg"
	"github.com/ardnew/turingscreen/session"
)

// =============================================================================
// Device Commands
// =============================================================================

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Send a sync command",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), false, func(ctx context.Context, s *session.Session) error {
			return s.Sync(ctx)
		})
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the display",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
			return s.Restart(ctx)
		})
	},
}

var brightnessValue int

var brightnessCmd = &cobra.Command{
	Use:   "brightness",
	Short: "Set the backlight brightness (0-102)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := session.ValidateBrightness(brightnessValue); err != nil {
			return &pkg.CommandError{Command: session.CmdBrightness, Err: err}
		}
		return withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
			return s.Brightness(ctx, brightnessValue)
		})
	},
}

var frameRateValue int

var frameRateCmd = &cobra.Command{
	Use:   "frame-rate",
	Short: "Set the video frame rate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := session.ValidateFrameRate(frameRateValue); err != nil {
			return &pkg.CommandError{Command: session.CmdFrameRate, Err: err}
		}
		return withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
			return s.FrameRate(ctx, frameRateValue)
		})
	},
}

var saveFlags struct {
	brightness int
	startup    string
	rotation   int
	sleep      int
	offline    bool
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Persist display settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		startup, err := session.ParseStartupMode(saveFlags.startup)
		if err != nil {
			return &pkg.CommandError{Command: session.CmdSave, Err: err}
		}
		st := session.Settings{
			Brightness:   saveFlags.brightness,
			Startup:      startup,
			Rotation:     session.Rotation(saveFlags.rotation),
			SleepTimeout: saveFlags.sleep,
			Offline:      saveFlags.offline,
		}
		if err := st.Validate(); err != nil {
			return &pkg.CommandError{Command: session.CmdSave, Err: err}
		}
		return withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
			return s.Save(ctx, st)
		})
	},
}

// =============================================================================
// Storage Commands
// =============================================================================

var listType string

var listStorageCmd = &cobra.Command{
	Use:   "list-storage",
	Short: "List the files stored on the display",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		kind, err := codec.ParseStorageKind(listType)
		if err != nil {
			return &pkg.CommandError{Command: session.CmdListStorage, Err: err}
		}
		return withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
			entries, err := s.ListStorage(ctx, kind)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintln(out, e.Name)
			}
			pkg.LogInfo(pkg.ComponentCLI, "storage listed", "dir", kind.Dir(), "files", len(entries))
			return nil
		})
	},
}

var refreshStorageCmd = &cobra.Command{
	Use:   "refresh-storage",
	Short: "Show storage card usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
			info, err := s.RefreshStorage(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total: %s\n", formatBytes(info.Total))
			fmt.Fprintf(out, "used:  %s\n", formatBytes(info.Used))
			fmt.Fprintf(out, "valid: %s\n", formatBytes(info.Valid))
			return nil
		})
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a .png or .h264 file to the display storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := filepath.Base(args[0])
		kind, err := codec.KindForFile(name)
		if err != nil {
			return &pkg.CommandError{Command: session.CmdUpload, Err: err}
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return &pkg.CommandError{Command: session.CmdUpload, Err: err}
		}
		return withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
			if info, err := s.RefreshStorage(ctx); err == nil {
				pkg.LogInfo(pkg.ComponentCLI, "storage before upload",
					"used", formatBytes(info.Used), "valid", formatBytes(info.Valid))
			}
			res, err := s.Upload(ctx, kind, data, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%s, %d chunks)\n", name, formatBytes(uint64(res.Bytes)), res.Chunks)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <filename>",
	Short: "Delete a stored file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
			return s.Delete(ctx, args[0])
		})
	},
}

var playSelectCmd = &cobra.Command{
	Use:   "play-select <filename>",
	Short: "Play a stored .png or .h264 file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
			return s.PlayStored(ctx, args[0])
		})
	},
}

// =============================================================================
// Display Commands
// =============================================================================

var sendImageCmd = &cobra.Command{
	Use:   "send-image <file.png>",
	Short: "Show a 480x1920 PNG image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := loadImage(args[0])
		if err != nil {
			return &pkg.CommandError{Command: session.CmdSendImage, Err: err}
		}
		return withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
			return s.SendImage(ctx, img)
		})
	},
}

var clearImageCmd = &cobra.Command{
	Use:   "clear-image",
	Short: "Clear the displayed image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
			return s.ClearImage(ctx)
		})
	},
}

var videoLoop bool

var sendVideoCmd = &cobra.Command{
	Use:   "send-video <file>",
	Short: "Stream a video; non-H264 input is converted with ffmpeg",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path, err := extractH264(ctx, cfg.Video.FFmpeg, args[0])
		if err != nil {
			return &pkg.CommandError{Command: session.CmdSendVideo, Err: err}
		}
		stream, err := os.ReadFile(path)
		if err != nil {
			return &pkg.CommandError{Command: session.CmdSendVideo, Err: err}
		}
		return withSession(ctx, true, func(ctx context.Context, s *session.Session) error {
			if videoLoop {
				pkg.LogInfo(pkg.ComponentCLI, "looping video until interrupted", "path", path)
			}
			return s.SendVideo(ctx, stream, videoLoop)
		})
	},
}

var stopPlayCmd = &cobra.Command{
	Use:   "stop-play",
	Short: "Stop video playback",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
			return s.StopPlay(ctx)
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Stop playback and blank the screen",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
			return s.Reset(ctx)
		})
	},
}

func init() {
	brightnessCmd.Flags().IntVar(&brightnessValue, "value", 0, "Brightness (0-102)")
	_ = brightnessCmd.MarkFlagRequired("value")

	frameRateCmd.Flags().IntVar(&frameRateValue, "value", 25, "Frames per second")
	_ = frameRateCmd.MarkFlagRequired("value")

	sf := saveCmd.Flags()
	sf.IntVar(&saveFlags.brightness, "brightness", session.MaxBrightness, "Brightness (0-102)")
	sf.StringVar(&saveFlags.startup, "startup", "none", "Startup mode: none, image or video")
	sf.IntVar(&saveFlags.rotation, "rotation", 0, "Rotation in degrees: 0 or 180")
	sf.IntVar(&saveFlags.sleep, "sleep", 0, "Sleep timeout (0-255)")
	sf.BoolVar(&saveFlags.offline, "offline", false, "Enable offline mode")

	listStorageCmd.Flags().StringVar(&listType, "type", "image", "Storage to list: image or video")

	sendVideoCmd.Flags().BoolVar(&videoLoop, "loop", false, "Loop the video until interrupted")

	rootCmd.AddCommand(
		syncCmd,
		restartCmd,
		brightnessCmd,
		frameRateCmd,
		saveCmd,
		listStorageCmd,
		refreshStorageCmd,
		uploadCmd,
		deleteCmd,
		playSelectCmd,
		sendImageCmd,
		clearImageCmd,
		sendVideoCmd,
		stopPlayCmd,
		resetCmd,
	)
}
