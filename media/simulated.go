package media

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/skip2/go-qrcode"
)

const (
	defaultWidth  = 1280
	defaultHeight = 720
)

// SimulatedDevice stands in for a real camera. Every frame is a test card
// with a QR code that encodes the facing mode and the frame number.
type SimulatedDevice struct {
	// Unavailable makes Acquire fail as if the platform had no camera
	Unavailable bool
	// DenyPermission makes Acquire fail as if the user declined access
	DenyPermission bool

	mu       sync.Mutex
	acquired int
	streams  []*simulatedStream
}

// NewSimulatedDevice creates a working simulated camera
func NewSimulatedDevice() *SimulatedDevice {
	return &SimulatedDevice{}
}

// Acquire opens a new simulated stream
func (d *SimulatedDevice) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Unavailable {
		return nil, ErrCameraUnavailable
	}
	if d.DenyPermission {
		return nil, ErrPermissionDenied
	}

	width, height := c.IdealWidth, c.IdealHeight
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquired++
	s := &simulatedStream{id: d.acquired, facing: c.Facing, width: width, height: height}
	d.streams = append(d.streams, s)
	return s, nil
}

// LiveStreams counts acquired streams that have not been released
func (d *SimulatedDevice) LiveStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	live := 0
	for _, s := range d.streams {
		if !s.Released() {
			live++
		}
	}
	return live
}

// Acquired counts every stream ever handed out
func (d *SimulatedDevice) Acquired() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired
}

type simulatedStream struct {
	id     int
	facing string
	width  int
	height int

	mu       sync.Mutex
	frames   int
	released bool
}

func (s *simulatedStream) Frame() (image.Image, error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil, ErrStreamReleased
	}
	s.frames++
	n := s.frames
	s.mu.Unlock()

	return s.render(n)
}

func (s *simulatedStream) render(frame int) (image.Image, error) {
	side := s.width
	if s.height < side {
		side = s.height
	}
	qr, err := qrcode.New(fmt.Sprintf("%s/%d/%d", s.facing, s.id, frame), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to render test card: %w", err)
	}
	code := qr.Image(side)

	card := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	draw.Draw(card, card.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	offset := image.Pt((s.width-code.Bounds().Dx())/2, (s.height-code.Bounds().Dy())/2)
	draw.Draw(card, code.Bounds().Add(offset), code, code.Bounds().Min, draw.Src)
	return card, nil
}

func (s *simulatedStream) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}

func (s *simulatedStream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
