package frame

import (
	"bytes"
	"context"
	"errors"
	"time"
)

const (
	// Boundary separates parts of the live feed.
	Boundary = "frame"
	// StreamContentType is the Content-Type of the live feed response.
	StreamContentType = "multipart/x-mixed-replace; boundary=" + Boundary
	// ImageContentType is the declared type of every frame.
	ImageContentType = "image/jpeg"
)

// StreamOptions tunes the chunk producer.
type StreamOptions struct {
	// MinInterval is the minimum spacing between two chunks. Frames uploaded
	// faster than this are skipped in favour of the newest one.
	MinInterval time.Duration
	// Keepalive re-emits the current frame when no new frame arrived within
	// this period. Zero disables re-emission.
	Keepalive time.Duration
}

// Chunk frames a payload as one multipart part.
func Chunk(data []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(data) + 64)
	buf.WriteString("--" + Boundary + "\r\n")
	buf.WriteString("Content-Type: " + ImageContentType + "\r\n\r\n")
	buf.Write(data)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// Stream returns an unbounded sequence of multipart chunks built from the
// current frame at emission time. Nothing is produced until the first
// upload. The channel is closed once ctx is done.
func (s *Store) Stream(ctx context.Context, opts StreamOptions) <-chan []byte {
	out := make(chan []byte)

	go func() {
		defer close(out)

		var last uint64
		for {
			f, err := s.next(ctx, last, opts.Keepalive)
			if err != nil {
				return
			}
			last = f.Seq

			select {
			case out <- Chunk(f.Data):
			case <-ctx.Done():
				return
			}

			if opts.MinInterval > 0 {
				t := time.NewTimer(opts.MinInterval)
				select {
				case <-ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
			}
		}
	}()

	return out
}

// next waits for a frame newer than last. With a keepalive it falls back to
// the current frame once the period elapses without an upload.
func (s *Store) next(ctx context.Context, last uint64, keepalive time.Duration) (Frame, error) {
	if keepalive <= 0 || last == 0 {
		return s.Wait(ctx, last)
	}

	waitCtx, cancel := context.WithTimeout(ctx, keepalive)
	defer cancel()

	f, err := s.Wait(waitCtx, last)
	if err == nil {
		return f, nil
	}
	if ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
		return Frame{}, err
	}

	current, ok := s.Get()
	if !ok {
		return s.Wait(ctx, last)
	}
	return current, nil
}
