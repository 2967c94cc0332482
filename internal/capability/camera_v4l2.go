package capability

import (
	"context"
	"fmt"
	"io"
	"os"

	"moneychanger/internal/core"
)

// V4L2Camera captures raw frames from a USB camera exposed as a Video4Linux2
// device node. No Go video-capture library appears anywhere in this
// project's dependency set, so frames are read directly off the device
// node rather than decoded through a driver SDK; devices must already be
// configured (via v4l2-ctl or similar) for raw BGR24 output at the given
// resolution.
type V4L2Camera struct {
	devicePath    string
	width, height int
	file          *os.File
}

func NewV4L2Camera(devicePath string, width, height int) *V4L2Camera {
	return &V4L2Camera{devicePath: devicePath, width: width, height: height}
}

func (c *V4L2Camera) Initialize(ctx context.Context) error {
	f, err := os.OpenFile(c.devicePath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.devicePath, err)
	}
	c.file = f
	// Warm-up frame: the first frame off a freshly opened device is
	// frequently a stale buffer and must be discarded.
	if _, err := c.CaptureFrame(ctx); err != nil {
		_ = f.Close()
		return fmt.Errorf("warm-up capture: %w", err)
	}
	return nil
}

func (c *V4L2Camera) CaptureFrame(ctx context.Context) (core.Frame, error) {
	if c.file == nil {
		return core.Frame{}, fmt.Errorf("camera not initialized")
	}
	buf := make([]byte, c.width*c.height*3)
	if _, err := io.ReadFull(c.file, buf); err != nil {
		return core.Frame{}, fmt.Errorf("read frame: %w", err)
	}
	return core.Frame{Width: c.width, Height: c.height, Pix: buf}, nil
}

func (c *V4L2Camera) Release(ctx context.Context) error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

var _ core.Camera = (*V4L2Camera)(nil)
