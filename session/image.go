package session

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"sync"

	"github.com/ardnew/turingscreen/pkg"
	"github.com/ardnew/turingscreen/transfer"
)

// Screen resolution in pixels.
const (
	ScreenWidth  = 480
	ScreenHeight = 1920
)

var pngEncoder = png.Encoder{CompressionLevel: png.BestCompression}

// blankPNG is a fully transparent full-screen image. Showing it clears the
// image layer.
var blankPNG = sync.OnceValues(func() ([]byte, error) {
	return encodePNG(image.NewNRGBA(image.Rect(0, 0, ScreenWidth, ScreenHeight)))
})

// SendImage shows img on the display.
//
// img must be exactly ScreenWidth by ScreenHeight. Large images are split
// into horizontal layers that each encode to roughly the configured layer
// size; the display composites them bottom up.
func (s *Session) SendImage(ctx context.Context, img image.Image) error {
	if img == nil {
		return s.fail(CmdSendImage, fmt.Errorf("nil image: %w", pkg.ErrInvalidParameter))
	}
	if b := img.Bounds(); b.Dx() != ScreenWidth || b.Dy() != ScreenHeight {
		return s.fail(CmdSendImage, fmt.Errorf("image is %dx%d, want %dx%d: %w",
			b.Dx(), b.Dy(), ScreenWidth, ScreenHeight, pkg.ErrInvalidParameter))
	}

	layers, err := Layers(img, s.cfg.LayerBytes)
	if err != nil {
		return s.fail(CmdSendImage, err)
	}

	return s.run(CmdSendImage, func() error {
		s.mu.Lock()
		st, undefined := s.state, s.undefined
		s.mu.Unlock()
		if undefined {
			return fmt.Errorf("display state undefined after aborted transfer: %w", pkg.ErrUnexpectedState)
		}
		if st != Idle && st != DisplayingImage {
			return fmt.Errorf("send image while %s: %w", st, pkg.ErrUnexpectedState)
		}

		for i, layer := range layers {
			res, err := s.transfer(ctx, transfer.KindImage, layer, "")
			if err != nil {
				return fmt.Errorf("layer %d of %d: %w", i+1, len(layers), err)
			}
			pkg.LogDebug(pkg.ComponentSession, "image layer sent",
				"layer", i+1, "layers", len(layers), "bytes", res.Bytes)
		}

		s.setState(DisplayingImage)
		pkg.LogInfo(pkg.ComponentSession, "image displayed", "layers", len(layers))
		return nil
	})
}

// ClearImage blanks the image layer. It is accepted from Idle and
// DisplayingImage, and from any state once an aborted transfer has left the
// display undefined.
func (s *Session) ClearImage(ctx context.Context) error {
	return s.run(CmdClearImage, func() error {
		s.mu.Lock()
		st, undefined := s.state, s.undefined
		s.mu.Unlock()
		if !undefined && st != Idle && st != DisplayingImage {
			return fmt.Errorf("clear image while %s: %w", st, pkg.ErrUnexpectedState)
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

// clear sends the blank image.
func (s *Session) clear(ctx context.Context) error {
	blank, err := blankPNG()
	if err != nil {
		return err
	}
	_, err = s.engine.Transfer(ctx, transfer.Request{Kind: transfer.KindImage, Payload: blank})
	return err
}

// Layers encodes img as one or more PNG layers.
//
// The full image is encoded once to estimate its size. It is then cut into
// n = ceil(size / layerBytes) bands of height h = H / n counted from the
// bottom. Layer i is an image of height H - i*h holding band i at its
// original position with transparent rows above; the last layer also
// carries any rows left over at the top.
func Layers(img image.Image, layerBytes int) ([][]byte, error) {
	full, err := encodePNG(img)
	if err != nil {
		return nil, err
	}
	if layerBytes <= 0 || len(full) <= layerBytes {
		return [][]byte{full}, nil
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	n := (len(full) + layerBytes - 1) / layerBytes
	n = min(n, height)
	h := height / n

	layers := make([][]byte, 0, n)
	for i := range n {
		bottom := height - i*h
		top := max(0, bottom-h)
		if i == n-1 {
			top = 0
		}

		layer := image.NewNRGBA(image.Rect(0, 0, width, bottom))
		draw.Draw(layer, image.Rect(0, top, width, bottom), img, b.Min.Add(image.Pt(0, top)), draw.Src)

		enc, err := encodePNG(layer)
		if err != nil {
			return nil, err
		}
		layers = append(layers, enc)
	}
	return layers, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := pngEncoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
