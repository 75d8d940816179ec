package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ardnew/turingscreen/pkg"
	"github.com/ardnew/turingscreen/session"
)

// loadImage decodes a PNG file into an RGBA image. The resolution is
// checked by the session.
func loadImage(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	b := src.Bounds()
	if b.Dx() != session.ScreenWidth || b.Dy() != session.ScreenHeight {
		pkg.LogWarn(pkg.ComponentCLI, "image resolution differs from the screen",
			"width", b.Dx(), "height", b.Dy(),
			"want_width", session.ScreenWidth, "want_height", session.ScreenHeight)
	}

	img := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)
	return img, nil
}

// extractH264 returns the path of an Annex-B H264 stream for input.
//
// .h264 and .264 files are used as they are. Anything else is remuxed by
// ffmpeg into input + ".h264"; an existing output from an earlier run is
// reused.
func extractH264(ctx context.Context, ffmpeg, input string) (string, error) {
	if _, err := os.Stat(input); err != nil {
		return "", err
	}
	switch strings.ToLower(filepath.Ext(input)) {
	case ".h264", ".264":
		return input, nil
	}

	output := input + ".h264"
	if _, err := os.Stat(output); err == nil {
		pkg.LogInfo(pkg.ComponentCLI, "reusing extracted stream", "path", output)
		return output, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	cmd := exec.CommandContext(ctx, ffmpeg,
		"-y",
		"-i", input,
		"-c:v", "copy",
		"-bsf:v", "h264_mp4toannexb",
		"-an",
		"-f", "h264",
		output,
	)
	pkg.LogInfo(pkg.ComponentCLI, "extracting H264", "input", input, "output", output)
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(output)
		return "", fmt.Errorf("%s: %w: %s", ffmpeg, err, bytes.TrimSpace(lastLines(out, 5)))
	}
	return output, nil
}

// lastLines returns the final n lines of b.
func lastLines(b []byte, n int) []byte {
	b = bytes.TrimRight(b, "\n")
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] == '\n' {
			n--
			if n == 0 {
				return b[i+1:]
			}
		}
	}
	return b
}

// formatBytes renders a byte count with a binary unit.
func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit && exp < 4; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), "KMGTP"[exp])
}
