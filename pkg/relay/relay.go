// Package relay copies PCM from a transcoder into a voice sink until the
// source ends, the copy is cancelled, or either side fails.
package relay

import (
	"context"
	"errors"
	"io"
	"time"
)

// DefaultFrameSize is 20ms of 48kHz stereo s16le audio
const DefaultFrameSize = 3840

// Status is how a relay ended
type Status int

const (
	Completed Status = iota
	Cancelled
	Failed
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one relay. Err is set only when Status is Failed.
type Outcome struct {
	Status  Status
	Bytes   int64
	Elapsed time.Duration
	Err     error
}

// ContextWriter is implemented by sinks whose writes can block (paused or
// congested) and must give up when ctx is done
type ContextWriter interface {
	WriteContext(ctx context.Context, p []byte) (int, error)
}

// Relay copies frame-sized chunks from a source to a sink
type Relay struct {
	frameSize int
}

// New creates a relay copying frameSize bytes at a time
func New(frameSize int) *Relay {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &Relay{frameSize: frameSize}
}

// Run copies src into dst on a separate goroutine and waits for it to finish.
// When ctx is cancelled Run closes src (if it is an io.Closer) so a blocked
// read returns, waits for the copy goroutine to exit and reports Cancelled
// unless the copy had already completed or failed.
// No bytes are written to dst after Run returns.
func (r *Relay) Run(ctx context.Context, src io.Reader, dst io.Writer) Outcome {
	start := time.Now()
	result := make(chan Outcome, 1)

	go func() {
		result <- r.copy(ctx, src, dst)
	}()

	var out Outcome
	select {
	case out = <-result:
	case <-ctx.Done():
		select {
		case out = <-result:
			// the copy finished before it saw the cancellation
		default:
			if c, ok := src.(io.Closer); ok {
				c.Close()
			}
			// copy labels failures caused by the close as Cancelled; an
			// outcome it settled first is kept
			out = <-result
		}
	}

	out.Elapsed = time.Since(start)
	return out
}

func (r *Relay) copy(ctx context.Context, src io.Reader, dst io.Writer) Outcome {
	buf := make([]byte, r.frameSize)
	var written int64

	for {
		if ctx.Err() != nil {
			return Outcome{Status: Cancelled, Bytes: written}
		}

		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			w, err := write(ctx, dst, buf[:n])
			written += int64(w)
			if err != nil {
				if ctx.Err() != nil {
					return Outcome{Status: Cancelled, Bytes: written}
				}
				return Outcome{Status: Failed, Bytes: written, Err: err}
			}
		}

		switch {
		case readErr == nil:
		case errors.Is(readErr, io.EOF), errors.Is(readErr, io.ErrUnexpectedEOF):
			return Outcome{Status: Completed, Bytes: written}
		case ctx.Err() != nil:
			return Outcome{Status: Cancelled, Bytes: written}
		default:
			return Outcome{Status: Failed, Bytes: written, Err: readErr}
		}
	}
}

func write(ctx context.Context, dst io.Writer, p []byte) (int, error) {
	if cw, ok := dst.(ContextWriter); ok {
		return cw.WriteContext(ctx, p)
	}
	return dst.Write(p)
}
