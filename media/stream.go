// Package media acquires camera streams, previews them and freezes single
// frames into encoded images.
package media

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"sync"
)

var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrStreamReleased    = errors.New("stream already released")
	ErrPreviewNotReady   = errors.New("preview not ready")
	ErrNoStream          = errors.New("no stream")
)

// Constraints describe the requested video track. Audio is never requested.
type Constraints struct {
	Facing      string `json:"facingMode"`
	IdealWidth  int    `json:"width"`
	IdealHeight int    `json:"height"`
}

// Device hands out camera streams
type Device interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live video feed. Release stops every underlying track and is
// safe to call more than once.
type Stream interface {
	Frame() (image.Image, error)
	Release()
	Released() bool
}

// Surface is a preview bound to a stream
type Surface struct {
	stream Stream
	ready  chan struct{}
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// AttachPreview binds stream to a new surface. The surface becomes ready
// once the first frame has been decoded.
func AttachPreview(stream Stream) (*Surface, error) {
	if stream == nil {
		return nil, ErrNoStream
	}
	s := &Surface{
		stream: stream,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.decodeFirstFrame()
	return s, nil
}

func (s *Surface) decodeFirstFrame() {
	defer close(s.done)
	if _, err := s.stream.Frame(); err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		return
	}
	close(s.ready)
}

// Ready is closed once the first frame is available
func (s *Surface) Ready() <-chan struct{} {
	return s.ready
}

// IsReady reports readiness without blocking
func (s *Surface) IsReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the surface is ready, the first frame fails, or
// ctx ends.
func (s *Surface) WaitReady(ctx context.Context) error {
	select {
	case <-s.done:
		if s.IsReady() {
			return nil
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CaptureFrame draws the surface's current frame into an off-screen buffer
// at native resolution and encodes it as JPEG.
func CaptureFrame(s *Surface) (CapturedImage, error) {
	if s == nil {
		return CapturedImage{}, ErrNoStream
	}
	if !s.IsReady() {
		return CapturedImage{}, ErrPreviewNotReady
	}
	frame, err := s.stream.Frame()
	if err != nil {
		return CapturedImage{}, err
	}
	b := frame.Bounds()
	buf := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(buf, buf.Bounds(), frame, b.Min, draw.Src)
	return EncodeJPEG(buf, SourceCamera)
}
