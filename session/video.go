package session

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/turingscreen/codec"
	"github.com/ardnew/turingscreen/pkg"
	"github.com/ardnew/turingscreen/transfer"
)

// Playback is a running video stream started by StartVideo.
type Playback struct {
	cancel context.CancelFunc
	done   chan struct{}
	g      *errgroup.Group
}

// Stop asks the stream to end at the next chunk boundary. It does not wait.
func (p *Playback) Stop() { p.cancel() }

// Done is closed when the stream has ended and the session is free.
func (p *Playback) Done() <-chan struct{} { return p.done }

// Wait blocks until the stream has ended. A stream ended by Stop or by
// cancellation of its context is not an error.
func (p *Playback) Wait() error {
	<-p.done
	return p.g.Wait()
}

// SendVideo streams an H264 elementary stream and blocks until it ends.
// With loop set the stream repeats until ctx is cancelled.
func (s *Session) SendVideo(ctx context.Context, stream []byte, loop bool) error {
	p, err := s.StartVideo(ctx, stream, loop)
	if err != nil {
		return err
	}
	return p.Wait()
}

// StartVideo prepares the display for streaming and starts sending stream
// in the background. The session stays held until the stream ends, so other
// commands fail with pkg.ErrDeviceBusy except StopPlay, Reset, PlayStored
// and Close, which stop the stream first.
//
// The preparation commands run before StartVideo returns; their failure is
// returned directly and no stream is started.
func (s *Session) StartVideo(ctx context.Context, stream []byte, loop bool) (*Playback, error) {
	if len(stream) == 0 {
		return nil, s.fail(CmdSendVideo, fmt.Errorf("video stream: %w", pkg.ErrEmptyPayload))
	}
	if err := s.acquire(); err != nil {
		return nil, s.fail(CmdSendVideo, err)
	}

	prev, err := s.prepareVideo(ctx)
	if err != nil {
		s.sem.Release(1)
		return nil, s.fail(CmdSendVideo, err)
	}

	pctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(pctx)
	p := &Playback{cancel: cancel, done: make(chan struct{}), g: g}

	s.mu.Lock()
	s.state = PlayingVideo
	s.playback = p
	s.mu.Unlock()
	pkg.LogInfo(pkg.ComponentSession, "video started",
		"bytes", len(stream), "chunks", transfer.ChunkCount(transfer.KindVideo, len(stream)),
		"loop", loop, "from", prev)

	g.Go(func() error {
		defer close(p.done)
		defer s.finishPlayback(p)
		defer cancel()

		if err := s.stream(gctx, stream, loop); err != nil {
			return s.fail(CmdSendVideo, err)
		}
		return nil
	})
	return p, nil
}

// prepareVideo checks the state and sends the preamble that switches the
// display to streaming. It returns the state being left.
func (s *Session) prepareVideo(ctx context.Context) (State, error) {
	s.mu.Lock()
	st, undefined := s.state, s.undefined
	s.mu.Unlock()
	if undefined {
		return st, fmt.Errorf("display state undefined after aborted transfer: %w", pkg.ErrUnexpectedState)
	}
	if st != Idle && st != DisplayingImage {
		return st, fmt.Errorf("send video while %s: %w", st, pkg.ErrUnexpectedState)
	}

	steps := []struct {
		op   codec.Opcode
		args []byte
	}{
		{codec.OpStopVideo, nil},
		{codec.OpResetVideo, nil},
		{codec.OpVideoMode, nil},
		{codec.OpBrightness, []byte{byte(s.cfg.VideoBrightness)}},
		{codec.OpConfigureScreen, nil},
	}
	for _, step := range steps {
		if _, err := s.exchange(ctx, step.op, step.args); err != nil {
			return st, err
		}
	}
	if err := s.clear(ctx); err != nil {
		return st, err
	}
	if _, err := s.exchange(ctx, codec.OpFrameRate, []byte{byte(s.cfg.VideoFrameRate)}); err != nil {
		return st, err
	}
	return st, nil
}

// stream sends the video once, or repeatedly with loop, then sends the
// end-of-stream command. Cancellation ends the stream cleanly.
func (s *Session) stream(ctx context.Context, data []byte, loop bool) error {
	for pass := 1; ; pass++ {
		res, err := s.transfer(ctx, transfer.KindVideo, data, "")
		if errors.Is(err, pkg.ErrCancelled) {
			pkg.LogInfo(pkg.ComponentSession, "video stopped", "pass", pass, "chunks", res.Chunks)
			break
		}
		if err != nil {
			return err
		}
		pkg.LogDebug(pkg.ComponentSession, "video pass complete", "pass", pass, "chunks", res.Chunks)

		if !loop || ctx.Err() != nil {
			break
		}
	}

	if _, err := s.exchange(context.WithoutCancel(ctx), codec.OpVideoEnd, nil); err != nil {
		s.mu.Lock()
		s.undefined = true
		s.mu.Unlock()
		return err
	}
	s.setState(Idle)
	return nil
}

// finishPlayback detaches p from the session and frees the session.
func (s *Session) finishPlayback(p *Playback) {
	s.mu.Lock()
	if s.playback == p {
		s.playback = nil
	}
	s.mu.Unlock()
	s.sem.Release(1)
}

// stopPlayback cancels the active playback, if any, and waits for it to end
// or for ctx to be done.
func (s *Session) stopPlayback(ctx context.Context) error {
	s.mu.Lock()
	p := s.playback
	s.mu.Unlock()
	if p == nil {
		return nil
	}

	p.Stop()
	select {
	case <-p.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for playback: %w: %w", pkg.ErrCancelled, ctx.Err())
	}
}
