package main

import (
	"context"
	"time"

	"github.com/ardnew/turingscreen/codec"
	"github.com/ardnew/turingscreen/pkg"
	"github.com/ardnew/turingscreen/session"
	"github.com/ardnew/turingscreen/transfer"
	"github.com/ardnew/turingscreen/transport"
	"github.com/ardnew/turingscreen/transport/emulator"
	"github.com/ardnew/turingscreen/transport/linux"
)

// closeTimeout bounds the wait for a stopped playback when the command
// ends.
const closeTimeout = 5 * time.Second

// openSession opens the display, or an emulator with --simulate.
func openSession() (*session.Session, error) {
	integrity, err := codec.IntegrityByName(cfg.Codec.Integrity)
	if err != nil {
		return nil, err
	}
	c := codec.New(codec.WithIntegrity(integrity))
	pkg.LogDebug(pkg.ComponentCLI, "codec ready", "integrity", c.Integrity().Name())

	var t transport.Transport
	if simulate {
		t = emulator.New(emulator.WithCodec(c))
		pkg.LogInfo(pkg.ComponentCLI, "using emulated display")
	} else {
		lt, err := linux.Open(linux.Config{
			VendorID:     cfg.Device.VendorID,
			ProductID:    cfg.Device.ProductID,
			Interface:    cfg.Device.Interface,
			Timeout:      cfg.Transport.Timeout,
			StallRetries: cfg.Transport.StallRetries,
			SysfsRoot:    cfg.Device.SysfsRoot,
			DevfsRoot:    cfg.Device.DevfsRoot,
		})
		if err != nil {
			return nil, err
		}
		t = lt
	}

	return session.New(t,
		session.WithCodec(c),
		session.WithConfig(sessionConfig()),
		session.WithProgress(logProgress),
	), nil
}

func sessionConfig() session.Config {
	return session.Config{
		Transfer: transfer.Config{
			Drain: transport.Drain{
				Attempts: cfg.Transfer.DrainAttempts,
				Timeout:  cfg.Transfer.DrainTimeout,
			},
			VideoPace:          cfg.Video.Pace,
			BufferPollInterval: cfg.Video.BufferPollInterval,
			BufferPollLimit:    cfg.Video.BufferPollLimit,
		},
		VideoBrightness: cfg.Video.Brightness,
		VideoFrameRate:  cfg.Video.FrameRate,
		ListAttempts:    cfg.Session.ListAttempts,
		LayerBytes:      cfg.Session.LayerBytes,
	}
}

// withSession opens a session, wakes the display with a sync command
// unless the command is itself a sync, runs fn and closes the session on
// every path.
func withSession(ctx context.Context, presync bool, fn func(context.Context, *session.Session) error) (err error) {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if cerr := s.Close(cctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if presync {
		if err := s.Sync(ctx); err != nil {
			return err
		}
		if d := cfg.Session.SyncDelay; d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fn(ctx, s)
}

// logProgress reports every tenth chunk and the last one.
func logProgress(p transfer.Progress) {
	if p.Chunk%10 != 0 && p.Chunk != p.Chunks {
		pkg.LogDebug(pkg.ComponentCLI, "chunk sent", "id", p.ID, "chunk", p.Chunk, "chunks", p.Chunks)
		return
	}
	pkg.LogInfo(pkg.ComponentCLI, "transfer progress",
		"id", p.ID, "chunk", p.Chunk, "chunks", p.Chunks, "sent", p.Sent, "total", p.Total)
}
