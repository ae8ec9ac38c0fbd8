package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/jaliph/residence-companion/utils"
)

// Capturer owns at most one live stream at a time. Starting a new capture
// releases whatever stream is still live.
type Capturer struct {
	device Device

	mu     sync.Mutex
	active Stream
}

// NewCapturer creates a capturer for device
func NewCapturer(device Device) *Capturer {
	return &Capturer{device: device}
}

// Start acquires a stream, releasing the previous one first
func (c *Capturer) Start(ctx context.Context, constraints Constraints) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.active.Release()
		c.active = nil
	}
	if c.device == nil {
		return nil, ErrCameraUnavailable
	}

	stream, err := c.device.Acquire(ctx, constraints)
	if err != nil {
		return nil, err
	}
	c.active = stream
	return stream, nil
}

// Stop releases the live stream, if any
func (c *Capturer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.active.Release()
		c.active = nil
	}
}

// Live reports whether a stream is currently held
func (c *Capturer) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

func (c *Capturer) release(stream Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stream.Release()
	if c.active == stream {
		c.active = nil
	}
}

// Capture runs one full cycle: acquire, preview, wait for the first frame,
// freeze it and release the stream.
func (c *Capturer) Capture(ctx context.Context, constraints Constraints) (CapturedImage, error) {
	stream, err := c.Start(ctx, constraints)
	if err != nil {
		return CapturedImage{}, err
	}
	defer c.release(stream)

	surface, err := AttachPreview(stream)
	if err != nil {
		return CapturedImage{}, err
	}
	if err := surface.WaitReady(ctx); err != nil {
		return CapturedImage{}, fmt.Errorf("failed to start preview: %w", err)
	}

	img, err := CaptureFrame(surface)
	if err != nil {
		return CapturedImage{}, fmt.Errorf("failed to capture frame: %w", err)
	}
	utils.Logger.Debug("Captured camera frame", "facing", constraints.Facing, "bytes", len(img.DataURI))
	return img, nil
}
