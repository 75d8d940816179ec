package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ardnew/turingscreen/codec"
	"github.com/ardnew/turingscreen/pkg"
	"github.com/ardnew/turingscreen/transport"
)

// lastChunkArg is the argument index of the write-file last-chunk flag.
const lastChunkArg = 8

// Engine runs transfers over one transport. An Engine is not safe for
// concurrent use; the session serializes access.
type Engine struct {
	t     transport.Transport
	codec *codec.Codec
	cfg   Config
}

// New creates an engine.
func New(t transport.Transport, c *codec.Codec, cfg Config) *Engine {
	return &Engine{t: t, codec: c, cfg: cfg}
}

// Transfer sends req.Payload as a sequence of chunk frames.
//
// The context is observed only between chunks. A frame that has started is
// always completed, so cancellation returns pkg.ErrCancelled together with
// the counts of the chunks already acknowledged. Any other failure is a
// *pkg.TransferError naming the chunk (0 for the header frame).
func (e *Engine) Transfer(ctx context.Context, req Request) (Result, error) {
	res := Result{ID: uuid.New(), Kind: req.Kind}

	p, ok := profiles[req.Kind]
	if !ok {
		return res, fmt.Errorf("transfer kind %d: %w", int(req.Kind), pkg.ErrInvalidParameter)
	}
	if len(req.Payload) == 0 {
		return res, fmt.Errorf("%s transfer: %w", req.Kind, pkg.ErrEmptyPayload)
	}
	size := codec.MaxPayload(p.opcode)
	if p.single && len(req.Payload) > size {
		return res, fmt.Errorf("%s transfer of %d bytes (max %d): %w",
			req.Kind, len(req.Payload), size, pkg.ErrPayloadTooLarge)
	}

	var header []byte
	if req.Kind == KindFile {
		if req.Destination == "" {
			return res, fmt.Errorf("file transfer without destination: %w", pkg.ErrInvalidParameter)
		}
		args, err := codec.PathArgs(req.Destination)
		if err != nil {
			return res, err
		}
		if header, err = e.codec.Encode(codec.OpOpenFile, args, nil); err != nil {
			return res, err
		}
	}

	total := len(req.Payload)
	chunks := ChunkCount(req.Kind, total)
	ioCtx := context.WithoutCancel(ctx)

	pkg.LogInfo(pkg.ComponentTransfer, "transfer started",
		"id", res.ID, "kind", req.Kind, "bytes", total, "chunks", chunks)

	if err := ctx.Err(); err != nil {
		return res, e.cancelled(res, chunks, err)
	}

	if header != nil {
		if _, err := transport.Exchange(ioCtx, e.t, header, e.cfg.Drain); err != nil {
			return res, e.failed(res, 0, err)
		}
		pkg.LogDebug(pkg.ComponentTransfer, "destination opened", "id", res.ID, "path", req.Destination)
	}

	for n := 1; n <= chunks; n++ {
		if n > 1 || header != nil {
			if err := ctx.Err(); err != nil {
				return res, e.cancelled(res, chunks, err)
			}
		}

		start := (n - 1) * size
		end := min(start+size, total)
		chunk := req.Payload[start:end]

		var args []byte
		if req.Kind == KindFile {
			args = make([]byte, lastChunkArg+1)
			if n == chunks {
				args[lastChunkArg] = 1
			}
		}

		frame, err := e.codec.Encode(p.opcode, args, chunk)
		if err != nil {
			return res, e.failed(res, n, err)
		}

		reply, err := transport.Exchange(ioCtx, e.t, frame, e.cfg.Drain)
		if err != nil && !(p.optionalReply && errors.Is(err, transport.ErrNoReply)) {
			return res, e.failed(res, n, err)
		}

		if req.Kind == KindVideo {
			if reply, err = e.throttle(ctx, ioCtx, reply); err != nil {
				return res, e.failed(res, n, err)
			}
		}

		if n == chunks {
			if len(reply) == 0 {
				return res, e.failed(res, n, fmt.Errorf("final chunk: %w", transport.ErrNoReply))
			}
			res.Ack = reply
		}

		res.Chunks = n
		res.Bytes += int64(len(chunk))
		if req.Progress != nil {
			req.Progress(Progress{
				ID:     res.ID,
				Chunk:  n,
				Chunks: chunks,
				Sent:   res.Bytes,
				Total:  int64(total),
			})
		}
	}

	pkg.LogInfo(pkg.ComponentTransfer, "transfer complete",
		"id", res.ID, "kind", req.Kind, "chunks", res.Chunks, "bytes", res.Bytes)
	return res, nil
}

// throttle paces the video stream after a chunk and, when the chunk reply
// reports a low buffer level or is missing, polls buffer status until the
// decoder is ready. It returns the last reply seen.
func (e *Engine) throttle(ctx, ioCtx context.Context, reply []byte) ([]byte, error) {
	wait(ctx, e.cfg.VideoPace)

	if level, ok := bufferLevel(reply); ok && level > pollThreshold {
		return reply, nil
	}

	poll, err := e.codec.Encode(codec.OpBufferStatus, nil, nil)
	if err != nil {
		return reply, err
	}

	for i := 0; i < e.cfg.BufferPollLimit; i++ {
		wait(ctx, e.cfg.BufferPollInterval)

		r, err := transport.Exchange(ioCtx, e.t, poll, e.cfg.Drain)
		if errors.Is(err, transport.ErrNoReply) {
			return reply, nil
		}
		if err != nil {
			return reply, fmt.Errorf("buffer status: %w", err)
		}
		reply = r

		level, ok := bufferLevel(r)
		if !ok || level <= readyLevel {
			return reply, nil
		}
	}

	pkg.LogWarn(pkg.ComponentTransfer, "buffer status poll limit reached",
		"polls", e.cfg.BufferPollLimit)
	return reply, nil
}

func (e *Engine) failed(res Result, chunk int, err error) error {
	pkg.LogError(pkg.ComponentTransfer, "transfer failed",
		"id", res.ID, "kind", res.Kind, "chunk", chunk, "error", err)
	return &pkg.TransferError{Kind: res.Kind.String(), AtChunk: chunk, Err: err}
}

func (e *Engine) cancelled(res Result, chunks int, cause error) error {
	pkg.LogInfo(pkg.ComponentTransfer, "transfer cancelled",
		"id", res.ID, "kind", res.Kind, "chunks", res.Chunks, "of", chunks)
	return fmt.Errorf("%s transfer after %d of %d chunks: %w: %w",
		res.Kind, res.Chunks, chunks, pkg.ErrCancelled, cause)
}

// bufferLevel returns the decoder buffer level carried in a video reply.
func bufferLevel(reply []byte) (byte, bool) {
	r, err := codec.ParseResponse(reply)
	if err != nil {
		return 0, false
	}
	return r.Status()
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
