package capability

import (
	"context"
	"errors"
	"sync"

	"moneychanger/internal/core"
)

// SimCamera returns synthetic blank frames, or a specific frame injected
// via SetNextFrame, without touching any real capture device.
type SimCamera struct {
	mu   sync.Mutex
	w, h int

	nextFrame    *core.Frame
	captureCount int
	initialized  bool
}

func NewSimCamera(width, height int) *SimCamera {
	return &SimCamera{w: width, h: height}
}

func (c *SimCamera) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = true
	// Discard the warm-up frame, mirroring V4L2Camera: the first frame off
	// a freshly opened device is unreliable. Not counted against
	// CaptureCount since it was never handed to a caller.
	if c.nextFrame != nil {
		c.nextFrame = nil
	}
	return nil
}

func (c *SimCamera) CaptureFrame(ctx context.Context) (core.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return core.Frame{}, errors.New("camera not initialized")
	}
	c.captureCount++
	if c.nextFrame != nil {
		f := *c.nextFrame
		c.nextFrame = nil
		return f, nil
	}
	return core.Frame{Width: c.w, Height: c.h, Pix: make([]byte, c.w*c.h*3)}, nil
}

func (c *SimCamera) Release(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = false
	return nil
}

// SetNextFrame injects the frame returned by the next CaptureFrame call.
func (c *SimCamera) SetNextFrame(f core.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextFrame = &f
}

// CaptureCount reports how many frames have been captured so far.
func (c *SimCamera) CaptureCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captureCount
}

// Reset clears capture count and any pending injected frame.
func (c *SimCamera) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captureCount = 0
	c.nextFrame = nil
}

var _ core.Camera = (*SimCamera)(nil)
